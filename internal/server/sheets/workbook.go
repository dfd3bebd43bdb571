// Package sheets appends normalized rows to tabs of a single on-disk
// workbook, reconciling each tab's header as the union of every row ever
// written to it.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/sitevisit/internal/common"
	"github.com/dmitrijs2005/sitevisit/internal/filex"
	"github.com/dmitrijs2005/sitevisit/internal/logging"
	"github.com/dmitrijs2005/sitevisit/internal/server/rows"
	"github.com/xuri/excelize/v2"
)

// PlaceholderSheet is the only tab of a freshly created workbook.
const PlaceholderSheet = "README"

// writeTab is swapped in tests to simulate a tab that cannot be written.
var writeTab = appendToTab

// Result describes where one record ended up.
type Result struct {
	// Sheet is the tab actually written, the fallback tab when Fallback is set.
	Sheet string
	// Row is the 1-based spreadsheet row of the appended record.
	Row int
	// Fallback is set when the target tab failed and the row was diverted.
	Fallback bool
}

// Table is the content of one tab with every row padded to the header.
type Table struct {
	Header []string
	Rows   [][]string
}

// Workbook is a single xlsx file guarded by one mutex. Every append is a
// read-merge-write of the whole file followed by an atomic replace.
type Workbook struct {
	path string
	log  logging.Logger
	now  func() time.Time

	mu sync.Mutex
}

func NewWorkbook(path string, log logging.Logger) *Workbook {
	if log == nil {
		log = logging.Discard()
	}
	return &Workbook{
		path: path,
		log:  log.With("module", "sheets"),
		now:  time.Now,
	}
}

// Path returns the workbook file location.
func (w *Workbook) Path() string {
	return w.path
}

// Append writes one row to sheet, creating the workbook and the tab when
// missing.
func (w *Workbook) Append(ctx context.Context, sheet string, row *rows.Row) (Result, error) {
	res, err := w.AppendRecords(ctx, []rows.Record{{Sheet: sheet, Row: row}})
	if err != nil {
		return Result{}, err
	}
	return res[0], nil
}

// AppendRecords writes a batch under one lock and one save. If a record
// can be written neither to its tab nor to a fallback tab, or holds a
// value longer than a cell allows, the whole batch is abandoned and the
// file on disk is left as it was.
func (w *Workbook) AppendRecords(ctx context.Context, recs []rows.Record) ([]Result, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := w.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	results := make([]Result, 0, len(recs))
	for _, rec := range recs {
		res, err := w.appendOne(ctx, f, rec)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	if err := w.save(f); err != nil {
		return nil, err
	}
	return results, nil
}

func (w *Workbook) appendOne(ctx context.Context, f *excelize.File, rec rows.Record) (Result, error) {
	sheet := SanitizeSheetName(rec.Sheet)

	n, err := writeTab(f, sheet, rec.Row)
	if err == nil {
		return Result{Sheet: sheet, Row: n}, nil
	}
	if errors.Is(err, ErrCellTooLong) {
		return Result{}, fmt.Errorf("write sheet %q: %w", sheet, err)
	}

	fallback := FallbackSheetName(sheet, w.now())
	w.log.Warn(ctx, "sheet write failed, diverting row", "sheet", sheet, "fallback", fallback, "error", err)

	n, ferr := writeTab(f, fallback, rec.Row)
	if ferr != nil {
		return Result{}, fmt.Errorf("write sheet %q: %w (fallback %q: %v)", sheet, err, fallback, ferr)
	}
	return Result{Sheet: fallback, Row: n, Fallback: true}, nil
}

// Read returns the content of one tab. A missing workbook or tab is
// common.ErrorNotFound.
func (w *Workbook) Read(ctx context.Context, sheet string) (*Table, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := w.openExisting()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sheet = SanitizeSheetName(sheet)
	idx, err := f.GetSheetIndex(sheet)
	if err != nil || idx == -1 {
		return nil, fmt.Errorf("sheet %q: %w", sheet, common.ErrorNotFound)
	}

	data, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	t := &Table{Header: []string{}, Rows: [][]string{}}
	if len(data) == 0 {
		return t, nil
	}
	t.Header = data[0]
	for _, r := range data[1:] {
		t.Rows = append(t.Rows, pad(r, len(t.Header)))
	}
	return t, nil
}

// Sheets lists the tabs in workbook order.
func (w *Workbook) Sheets(ctx context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := w.openExisting()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return f.GetSheetList(), nil
}

// open loads the workbook, or starts a new one with the placeholder tab
// when the file does not exist yet.
func (w *Workbook) open() (*excelize.File, error) {
	f, err := w.openExisting()
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	f = excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), PlaceholderSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create workbook: %w", err)
	}
	if err := f.SetCellStr(PlaceholderSheet, "A1", "Field visit reports. Each tab is appended by the ingestion service."); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create workbook: %w", err)
	}
	return f, nil
}

func (w *Workbook) openExisting() (*excelize.File, error) {
	if _, err := os.Stat(w.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("workbook %s: %w", w.path, common.ErrorNotFound)
		}
		return nil, fmt.Errorf("stat workbook: %w", err)
	}
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	return f, nil
}

func (w *Workbook) save(f *excelize.File) error {
	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("serialize workbook: %w", err)
	}
	if err := filex.WriteFileAtomic(w.path, buf.Bytes(), 0o640); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
