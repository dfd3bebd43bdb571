package payload

import (
	"fmt"
	"slices"
	"strings"
)

// PhotoBlockKey is the canonical name of the photo block. Clients send it
// under one of photoAliases; everything downstream uses this name.
const PhotoBlockKey = "photosUploads"

// photoAliases lists accepted spellings in resolution order: current
// client naming first, then the legacy snake_case key.
var photoAliases = []string{PhotoBlockKey, "photos_uploads"}

// IsPhotoKey reports whether key is any alias of the photo block.
func IsPhotoKey(key string) bool {
	return slices.Contains(photoAliases, key)
}

// PhotoEntry is the photo set of one checklist category.
type PhotoEntry struct {
	Images     []string
	Lat        *float64
	Lng        *float64
	CoordsText string
}

// CoordinatesText renders the entry's position: coordsText when the
// client sent one, otherwise "lat, lng", otherwise "".
func (e PhotoEntry) CoordinatesText() string {
	if e.CoordsText != "" {
		return e.CoordsText
	}
	if e.Lat != nil && e.Lng != nil {
		return formatFloat(*e.Lat) + ", " + formatFloat(*e.Lng)
	}
	return ""
}

// HasEmbedded reports whether any image is an inline data URL.
func (e PhotoEntry) HasEmbedded() bool {
	for _, img := range e.Images {
		if IsDataURL(img) {
			return true
		}
	}
	return false
}

// PhotoBlock maps category name to its entry.
type PhotoBlock map[string]PhotoEntry

// Categories returns category names in sorted order so photo rows and
// photo positions are deterministic.
func (b PhotoBlock) Categories() []string {
	out := make([]string, 0, len(b))
	for k := range b {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Len is the total number of images across categories.
func (b PhotoBlock) Len() int {
	n := 0
	for _, e := range b {
		n += len(e.Images)
	}
	return n
}

// ExtractPhotos separates the photo block from the rest of the payload.
// The returned payload is a copy without any alias key. When no alias is
// present the block is empty and p itself is returned.
func ExtractPhotos(p Payload) (PhotoBlock, Payload) {
	var raw any
	found := false
	for _, key := range photoAliases {
		if v, ok := p[key]; ok {
			raw, found = v, true
			break
		}
	}
	if !found {
		return PhotoBlock{}, p
	}

	stripped := p.Clone()
	for _, key := range photoAliases {
		delete(stripped, key)
	}

	return parseBlock(raw), stripped
}

func parseBlock(raw any) PhotoBlock {
	block := PhotoBlock{}
	m, ok := raw.(map[string]any)
	if !ok {
		return block
	}
	for category, v := range m {
		entry, ok := v.(map[string]any)
		if !ok || len(entry) == 0 {
			continue
		}
		block[category] = parseEntry(entry)
	}
	return block
}

func parseEntry(m map[string]any) PhotoEntry {
	var e PhotoEntry

	images := listOf(m["images"])
	if len(images) == 0 {
		images = listOf(m["urls"])
	}
	e.Images = images

	if coords, ok := m["coords"].(map[string]any); ok {
		if f, ok := toFloat(coords["lat"]); ok {
			e.Lat = &f
		}
		if f, ok := toFloat(coords["lng"]); ok {
			e.Lng = &f
		}
	}
	if s, ok := m["coordsText"].(string); ok {
		e.CoordsText = strings.TrimSpace(s)
	}
	return e
}

// listOf keeps the non-empty items of a JSON array, formatting non-string
// scalars. A single string is treated as a one-item list.
func listOf(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if item == nil {
				continue
			}
			s, ok := item.(string)
			if !ok {
				s = fmt.Sprint(item)
			}
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	default:
		return nil
	}
}
