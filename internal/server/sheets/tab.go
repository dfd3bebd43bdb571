package sheets

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/dmitrijs2005/sitevisit/internal/server/rows"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"
)

const maxSheetNameLen = 31

// ErrCellTooLong is returned when a value exceeds the UTF-16 units a
// single xlsx cell can hold. Such a row is rejected instead of being truncated.
var ErrCellTooLong = errors.New("cell value too long")

// appendToTab merges row into sheet: the header becomes the existing
// header plus the row's new keys in row order and the row is written
// last. Returns the 1-based row number written. On error the tab is left
// as it was, and a tab created for this row is removed again.
func appendToTab(f *excelize.File, sheet string, row *rows.Row) (int, error) {
	cells := make(map[string]string, row.Len())
	incoming := make([]string, 0, row.Len())
	for _, k := range row.Keys() {
		v, _ := row.Get(k)
		nk := norm.NFC.String(k)
		nv := norm.NFC.String(v)
		if n := cellLen(nk); n > excelize.TotalCellChars {
			return 0, fmt.Errorf("%w: column name of %d characters, limit %d", ErrCellTooLong, n, excelize.TotalCellChars)
		}
		if n := cellLen(nv); n > excelize.TotalCellChars {
			return 0, fmt.Errorf("%w: column %q has %d characters, limit %d", ErrCellTooLong, nk, n, excelize.TotalCellChars)
		}
		if _, dup := cells[nk]; !dup {
			incoming = append(incoming, nk)
		}
		cells[nk] = nv
	}

	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return 0, fmt.Errorf("sheet index: %w", err)
	}

	var existing [][]string
	created := idx == -1
	if created {
		if _, err := f.NewSheet(sheet); err != nil {
			return 0, fmt.Errorf("new sheet: %w", err)
		}
	} else {
		existing, err = f.GetRows(sheet)
		if err != nil {
			return 0, fmt.Errorf("get rows: %w", err)
		}
	}

	var oldHeader []string
	n := 2
	if len(existing) > 0 {
		oldHeader = existing[0]
		n = len(existing) + 1
	}
	header := unionHeader(oldHeader, incoming)

	values := make([]string, len(header))
	for i, col := range header {
		values[i] = cells[col]
	}

	if err := setRow(f, sheet, n, values); err != nil {
		undoAppend(f, sheet, created, n, nil)
		return 0, err
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		undoAppend(f, sheet, created, n, oldHeader)
		return 0, err
	}
	return n, nil
}

// undoAppend reverts a partial append: a tab created for it is deleted,
// otherwise the written row is removed and the previous header restored.
func undoAppend(f *excelize.File, sheet string, created bool, n int, oldHeader []string) {
	if created {
		_ = f.DeleteSheet(sheet)
		return
	}
	_ = f.RemoveRow(sheet, n)
	if oldHeader != nil {
		_ = f.RemoveRow(sheet, 1)
		_ = f.InsertRows(sheet, 1, 1)
		_ = setRow(f, sheet, 1, oldHeader)
	}
}

// cellLen measures s the way xlsx limits a cell: in UTF-16 code units.
func cellLen(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// unionHeader keeps existing column order and appends unseen keys.
func unionHeader(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, h := range existing {
		seen[h] = struct{}{}
		out = append(out, h)
	}
	for _, k := range incoming {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func setRow(f *excelize.File, sheet string, n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	vals := make([]interface{}, len(values))
	for i, v := range values {
		vals[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
		return fmt.Errorf("set row %d: %w", n, err)
	}
	return nil
}

func pad(r []string, width int) []string {
	if len(r) >= width {
		return r
	}
	out := make([]string, width)
	copy(out, r)
	return out
}

// SanitizeSheetName maps an arbitrary label to a valid tab name: NFC,
// without []:*?/\ and surrounding apostrophes, at most 31 runes.
func SanitizeSheetName(name string) string {
	name = norm.NFC.String(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return '-'
		}
		return r
	}, name)
	name = strings.Trim(strings.TrimSpace(name), "'")
	if name == "" {
		return "Sheet"
	}
	return truncateRunes(name, maxSheetNameLen)
}

// FallbackSheetName is "<base>_<yyyymmddThhmmss>", the base shortened so
// the whole name stays within the tab name limit.
func FallbackSheetName(sheet string, at time.Time) string {
	suffix := "_" + at.UTC().Format("20060102T150405")
	base := truncateRunes(SanitizeSheetName(sheet), maxSheetNameLen-utf8.RuneCountInString(suffix))
	return base + suffix
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
