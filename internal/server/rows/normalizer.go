package rows

import (
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/sitevisit/internal/server/payload"
)

// Options carries per-call inputs of Normalize.
type Options struct {
	// ReportID, when set, is written as the correlation id instead of the
	// payload-derived fallback (cand, then siteId).
	ReportID string
}

// Normalizer turns one payload into sheet records.
type Normalizer struct {
	sections   []Section
	containers []string
	now        func() time.Time
}

// NewNormalizer returns a normalizer over the default checklist layout.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		sections:   DefaultSections,
		containers: DefaultContainers,
		now:        time.Now,
	}
}

// Normalize projects p into records: one per section with at least one
// present key, one "Geral" record for everything no section took, and one
// per photo category. Every record starts with the correlation columns.
func (n *Normalizer) Normalize(p payload.Payload, opts Options) []Record {
	block, fields := payload.ExtractPhotos(p)

	ts := n.timestamp(fields)
	id := reportID(fields, opts)

	lookup, consumed := n.flatten(fields)

	var out []Record
	for _, s := range n.sections {
		row := prefixed(ts, id)
		for _, key := range s.Keys {
			consumed[key] = struct{}{}
			v, ok := lookup[key]
			if !ok {
				continue
			}
			row.Set(key, cell(v))
		}
		if row.Len() > 2 {
			out = append(out, Record{Sheet: s.Sheet, Row: row})
		}
	}

	if general := n.general(fields, consumed, ts, id); general.Len() > 2 {
		out = append(out, Record{Sheet: SheetGeneral, Row: general})
	}

	for _, category := range block.Categories() {
		out = append(out, Record{Sheet: PhotoSheetPrefix + category, Row: photoRow(ts, id, category, block[category])})
	}

	return out
}

// flatten merges container members into one lookup. Root keys win over
// container members of the same name; containers are marked consumed.
func (n *Normalizer) flatten(fields payload.Payload) (map[string]any, map[string]struct{}) {
	lookup := make(map[string]any, len(fields))
	consumed := map[string]struct{}{
		ColTimestamp: {},
		ColReportID:  {},
	}

	for _, c := range n.containers {
		nested, ok := fields[c].(map[string]any)
		if !ok {
			continue
		}
		consumed[c] = struct{}{}
		for k, v := range nested {
			if _, seen := lookup[k]; !seen {
				lookup[k] = v
			}
		}
	}
	for k, v := range fields {
		lookup[k] = v
	}
	return lookup, consumed
}

// general collects root keys nobody consumed, then container members
// outside every whitelist as "<container>.<key>", each group sorted.
func (n *Normalizer) general(fields payload.Payload, consumed map[string]struct{}, ts, id string) *Row {
	row := prefixed(ts, id)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if _, ok := consumed[k]; ok {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		row.Set(k, cell(fields[k]))
	}

	for _, c := range n.containers {
		nested, ok := fields[c].(map[string]any)
		if !ok {
			continue
		}
		members := make([]string, 0, len(nested))
		for k := range nested {
			if _, ok := consumed[k]; ok {
				continue
			}
			members = append(members, k)
		}
		slices.Sort(members)
		for _, k := range members {
			row.Set(c+"."+k, cell(nested[k]))
		}
	}
	return row
}

func (n *Normalizer) timestamp(fields payload.Payload) string {
	if s, ok, isNull := fields.String(ColTimestamp); ok && !isNull && s != "" {
		return s
	}
	return n.now().UTC().Format(time.RFC3339)
}

func reportID(fields payload.Payload, opts Options) string {
	if opts.ReportID != "" {
		return opts.ReportID
	}
	for _, key := range []string{"cand", "siteId"} {
		if s, ok, isNull := fields.String(key); ok && !isNull && s != "" {
			return s
		}
	}
	return ""
}

func prefixed(ts, id string) *Row {
	return RowOf(ColTimestamp, ts, ColReportID, id)
}

func photoRow(ts, id, category string, e payload.PhotoEntry) *Row {
	row := prefixed(ts, id)
	row.Set(ColCategory, category)
	row.Set(ColCount, payload.FormatScalar(len(e.Images)))
	row.Set(ColCoords, e.CoordinatesText())
	if len(e.Images) > 0 && !e.HasEmbedded() {
		row.Set(ColURLs, strings.Join(e.Images, ", "))
	}
	return row
}

// cell renders a payload value for a spreadsheet cell. Lists are joined
// with ", " since a cell has no list type.
func cell(v any) string {
	switch t := v.(type) {
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if item == nil {
				continue
			}
			parts = append(parts, payload.FormatScalar(item))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(t, ", ")
	default:
		return payload.FormatScalar(v)
	}
}
