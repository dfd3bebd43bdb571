package services

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/sitevisit/internal/common"
	"github.com/dmitrijs2005/sitevisit/internal/dbx"
	"github.com/dmitrijs2005/sitevisit/internal/server/models"
	"github.com/dmitrijs2005/sitevisit/internal/server/repositories/photos"
	"github.com/dmitrijs2005/sitevisit/internal/server/repositories/reports"
	"github.com/dmitrijs2005/sitevisit/internal/server/rows"
	"github.com/dmitrijs2005/sitevisit/internal/server/sheets"
	"github.com/dmitrijs2005/sitevisit/internal/server/storage"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func strp(s string) *string { return &s }

func dataURL(mime, body string) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString([]byte(body))
}

// --- in-memory repositories ---

type memStore struct {
	mu      sync.Mutex
	reports map[string]*models.Report
	photos  map[string][]*models.Photo

	reportCreateErr error
	photoCreateErr  error
	listErr         error
}

func newMemStore() *memStore {
	return &memStore{reports: map[string]*models.Report{}, photos: map[string][]*models.Photo{}}
}

func (m *memStore) put(r *models.Report, ps ...*models.Photo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.reports[r.ID] = &cp
	m.photos[r.ID] = append(m.photos[r.ID], ps...)
}

func (m *memStore) get(id string) *models.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

type fakeReports struct{ st *memStore }

func (f *fakeReports) Create(_ context.Context, r *models.Report) error {
	if f.st.reportCreateErr != nil {
		return f.st.reportCreateErr
	}
	f.st.put(r)
	return nil
}

func (f *fakeReports) Update(_ context.Context, r *models.Report) error {
	if f.st.get(r.ID) == nil {
		return common.ErrorNotFound
	}
	f.st.mu.Lock()
	cp := *r
	f.st.reports[r.ID] = &cp
	f.st.mu.Unlock()
	return nil
}

func (f *fakeReports) GetByID(_ context.Context, id string) (*models.Report, error) {
	r := f.st.get(id)
	if r == nil {
		return nil, common.ErrorNotFound
	}
	return r, nil
}

func (f *fakeReports) GetByIDForUpdate(ctx context.Context, id string) (*models.Report, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeReports) List(_ context.Context, filter models.ReportFilter) ([]*models.Report, error) {
	if f.st.listErr != nil {
		return nil, f.st.listErr
	}
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var out []*models.Report
	for _, r := range f.st.reports {
		if filter.SiteID != "" && (r.SiteID == nil || *r.SiteID != filter.SiteID) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeReports) LatestDraft(_ context.Context, siteID string) (*models.Report, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	var best *models.Report
	for _, r := range f.st.reports {
		if !r.IsDraft() || (siteID != "" && (r.SiteID == nil || *r.SiteID != siteID)) {
			continue
		}
		if best == nil || r.UpdatedAt.After(best.UpdatedAt) ||
			(r.UpdatedAt.Equal(best.UpdatedAt) && r.ID > best.ID) {
			best = r
		}
	}
	if best == nil {
		return nil, common.ErrorNotFound
	}
	cp := *best
	return &cp, nil
}

type fakePhotos struct{ st *memStore }

func (f *fakePhotos) Create(_ context.Context, p *models.Photo) error {
	if f.st.photoCreateErr != nil {
		return f.st.photoCreateErr
	}
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	f.st.photos[p.ReportID] = append(f.st.photos[p.ReportID], p)
	return nil
}

func (f *fakePhotos) DeleteByReportID(_ context.Context, reportID string) (int64, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	n := len(f.st.photos[reportID])
	delete(f.st.photos, reportID)
	return int64(n), nil
}

func (f *fakePhotos) ListByReportID(_ context.Context, reportID string) ([]*models.Photo, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	out := append([]*models.Photo(nil), f.st.photos[reportID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakePhotos) NextPosition(_ context.Context, reportID string) (int, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	next := 0
	for _, p := range f.st.photos[reportID] {
		if p.Position >= next {
			next = p.Position + 1
		}
	}
	return next, nil
}

func (f *fakePhotos) FindOwned(_ context.Context, userID, reportID, reference string) (*models.Photo, error) {
	f.st.mu.Lock()
	defer f.st.mu.Unlock()
	r, ok := f.st.reports[reportID]
	if !ok || !r.OwnedBy(userID) {
		return nil, common.ErrorNotFound
	}
	for _, p := range f.st.photos[reportID] {
		if p.Reference == reference {
			return p, nil
		}
	}
	return nil, common.ErrorNotFound
}

type fakeRepoManager struct{ st *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Reports(dbx.DBTX) reports.Repository         { return &fakeReports{m.st} }
func (m *fakeRepoManager) Photos(dbx.DBTX) photos.Repository           { return &fakePhotos{m.st} }

// --- storage backend ---

type fakeBackend struct {
	mode storage.Mode

	mu        sync.Mutex
	n         int
	stored    map[string][]byte
	discarded []string
	storeErr  error

	uploadReqs []storage.UploadRequest
	downloads  []string
}

func newFakeBackend(mode storage.Mode) *fakeBackend {
	return &fakeBackend{mode: mode, stored: map[string][]byte{}}
}

func (b *fakeBackend) Mode() storage.Mode { return b.mode }

func (b *fakeBackend) Store(_ context.Context, data []byte, ext, folder string) (string, error) {
	if b.mode != storage.ModeLocal {
		return "", fmt.Errorf("%w: store", common.ErrStorageMode)
	}
	if b.storeErr != nil {
		return "", b.storeErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.n++
	ref := fmt.Sprintf("/storage/%s/%d.%s", folder, b.n, ext)
	b.stored[ref] = data
	return ref, nil
}

func (b *fakeBackend) Discard(_ context.Context, ref string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.discarded = append(b.discarded, ref)
	delete(b.stored, ref)
	return nil
}

func (b *fakeBackend) IssueUploadSlot(_ context.Context, req storage.UploadRequest) (*models.UploadSlot, error) {
	if b.mode != storage.ModeObjectStore {
		return nil, fmt.Errorf("%w: upload", common.ErrStorageMode)
	}
	b.uploadReqs = append(b.uploadReqs, req)
	key := "relatorios/" + req.ReportID + "/k.jpg"
	return &models.UploadSlot{UploadURL: "https://bucket", Method: "POST", ObjectKey: key, ContentType: req.ContentType, ExpiresIn: 900}, nil
}

func (b *fakeBackend) IssueDownloadSlot(_ context.Context, key string) (*models.DownloadSlot, error) {
	if b.mode != storage.ModeObjectStore {
		return nil, fmt.Errorf("%w: download", common.ErrStorageMode)
	}
	b.downloads = append(b.downloads, key)
	return &models.DownloadSlot{DownloadURL: "https://bucket/" + key, ObjectKey: key, ExpiresIn: 900}, nil
}

// --- row sink ---

type fakeSink struct {
	mu       sync.Mutex
	recs     []rows.Record
	calls    int
	err      error
	fallback bool
}

func (s *fakeSink) AppendRecords(_ context.Context, recs []rows.Record) ([]sheets.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	s.recs = append(s.recs, recs...)
	out := make([]sheets.Result, len(recs))
	for i, r := range recs {
		out[i] = sheets.Result{Sheet: r.Sheet, Row: i + 2, Fallback: s.fallback}
	}
	return out, nil
}

var errBoom = errors.New("boom")
