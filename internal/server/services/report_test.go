package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/sitevisit/internal/common"
	"github.com/dmitrijs2005/sitevisit/internal/server/metrics"
	"github.com/dmitrijs2005/sitevisit/internal/server/models"
	"github.com/dmitrijs2005/sitevisit/internal/server/payload"
	"github.com/dmitrijs2005/sitevisit/internal/server/rows"
	"github.com/dmitrijs2005/sitevisit/internal/server/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reportFixture struct {
	svc     *ReportService
	mock    sqlmock.Sqlmock
	st      *memStore
	backend *fakeBackend
	sink    *fakeSink
}

func newReportFixture(t *testing.T, mode storage.Mode) *reportFixture {
	t.Helper()
	db, mock := newSQLMockDB(t)
	st := newMemStore()
	backend := newFakeBackend(mode)
	sink := &fakeSink{}
	svc := NewReportService(db, &fakeRepoManager{st: st}, backend, sink, nil, nil)

	n := 0
	svc.newID = func() string {
		n++
		return "id-" + string(rune('a'+n-1))
	}
	return &reportFixture{svc: svc, mock: mock, st: st, backend: backend, sink: sink}
}

func (f *reportFixture) expectCommit() {
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
}

func (f *reportFixture) expectRollback() {
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
}

func recordFor(recs []rows.Record, sheet string) *rows.Row {
	for _, r := range recs {
		if r.Sheet == sheet {
			return r.Row
		}
	}
	return nil
}

func TestCreate_DefaultsToSentAndStoresPhotos(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	f.expectCommit()

	p := payload.Payload{
		"siteId":      "SITE_1",
		"cand":        "C1",
		"operadora":   "Vivo",
		"cidade":      "SP",
		"observacoes": "portao fechado",
		"photosUploads": map[string]any{
			"fachada": map[string]any{
				"images": []any{dataURL("image/png", "png-bytes"), "https://cdn/x.jpg"},
				"coords": map[string]any{"lat": -23.5, "lng": -46.6},
			},
		},
	}

	res, err := f.svc.Create(context.Background(), CreateInput{Payload: p, UserID: "u1", PersistPhotos: true})
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())

	r := res.Report
	assert.Equal(t, "id-a", r.ID)
	assert.Equal(t, common.StatusSent, r.Status)
	assert.Equal(t, "SITE_1", *r.SiteID)
	assert.Equal(t, "Vivo", *r.Operator)
	assert.Equal(t, "SP", *r.City)
	assert.Equal(t, "portao fechado", *r.Notes)
	assert.Nil(t, r.TimestampISO)
	require.NotNil(t, r.UserID)
	assert.Equal(t, "u1", *r.UserID)

	assert.NotContains(t, r.Payload, payload.PhotoBlockKey, "photo block never stored in the blob")
	assert.Equal(t, "C1", r.Payload["cand"])
	assert.Contains(t, p, payload.PhotoBlockKey, "caller payload untouched")

	require.Len(t, r.Photos, 2)
	assert.Equal(t, "/storage/id-a/1.png", r.Photos[0].Reference)
	assert.Equal(t, "https://cdn/x.jpg", r.Photos[1].Reference)
	assert.Equal(t, 0, r.Photos[0].Position)
	assert.Equal(t, 1, r.Photos[1].Position)
	assert.Equal(t, "fachada", *r.Photos[0].Category)
	assert.InDelta(t, -23.5, *r.Photos[0].Lat, 1e-9)
	assert.Equal(t, []byte("png-bytes"), f.backend.stored["/storage/id-a/1.png"])

	stored := f.st.get("id-a")
	require.NotNil(t, stored)
	assert.Len(t, f.st.photos["id-a"], 2)

	require.Equal(t, 1, f.sink.calls)
	site := recordFor(f.sink.recs, rows.SheetSiteInfo)
	require.NotNil(t, site)
	id, _ := site.Get(rows.ColReportID)
	assert.Equal(t, "id-a", id)
	assert.NotNil(t, recordFor(f.sink.recs, rows.PhotoSheetPrefix+"fachada"))
	assert.Len(t, res.Sheets, len(f.sink.recs))
	assert.NoError(t, res.SheetError)
}

func TestCreate_EndToEndNestedSection(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	f.expectCommit()

	p := payload.Payload{"siteId": "SITE_1", "cand": "C1", "cidade": "SP", "documentacao": map[string]any{"iptuItr": "sim"}}

	res, err := f.svc.Create(context.Background(), CreateInput{Payload: p, PersistPhotos: true})
	require.NoError(t, err)

	assert.Equal(t, "SITE_1", *res.Report.SiteID)
	assert.Equal(t, common.StatusSent, res.Report.Status)
	assert.Contains(t, res.Report.Payload, "documentacao")
	assert.Nil(t, res.Report.UserID)

	doc := recordFor(f.sink.recs, rows.SheetDocumentation)
	require.NotNil(t, doc)
	v, _ := doc.Get("iptuItr")
	assert.Equal(t, "sim", v)
}

func TestCreate_PayloadStatusIsKept(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	f.expectCommit()

	res, err := f.svc.Create(context.Background(), CreateInput{Payload: payload.Payload{"siteId": "S", "status": "em_revisao"}})
	require.NoError(t, err)
	assert.Equal(t, "em_revisao", res.Report.Status)
}

func TestCreate_PhotosNotPersistedWhenDisabled(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	f.expectCommit()

	p := payload.Payload{"siteId": "S", "photos_uploads": map[string]any{"torre": map[string]any{"images": []any{dataURL("image/jpeg", "x")}}}}
	res, err := f.svc.Create(context.Background(), CreateInput{Payload: p})
	require.NoError(t, err)

	assert.Empty(t, res.Report.Photos)
	assert.Empty(t, f.backend.stored)
	assert.NotContains(t, res.Report.Payload, "photos_uploads")
}

func TestCreate_EmptyPayload(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)

	_, err := f.svc.Create(context.Background(), CreateInput{Payload: payload.Payload{}})
	require.ErrorIs(t, err, common.ErrMalformedInput)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreate_BadDataURLAbortsBeforeTransaction(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)

	p := payload.Payload{
		"siteId": "S",
		"photosUploads": map[string]any{
			"a": map[string]any{"images": []any{dataURL("image/png", "ok")}},
			"b": map[string]any{"images": []any{"data:image/png;base64,@@@"}},
		},
	}

	_, err := f.svc.Create(context.Background(), CreateInput{Payload: p, PersistPhotos: true})
	require.ErrorIs(t, err, common.ErrMalformedInput)
	require.NoError(t, f.mock.ExpectationsWereMet(), "no transaction may be opened")

	assert.Empty(t, f.st.reports)
	assert.Equal(t, []string{"/storage/id-a/1.png"}, f.backend.discarded)
	assert.Empty(t, f.backend.stored)
	assert.Zero(t, f.sink.calls)
}

func TestCreate_PhotoInsertFailureRollsBackAndDiscards(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	f.expectRollback()
	f.st.photoCreateErr = errBoom

	p := payload.Payload{"siteId": "S", "photosUploads": map[string]any{"a": map[string]any{"images": []any{dataURL("image/png", "ok")}}}}

	_, err := f.svc.Create(context.Background(), CreateInput{Payload: p, PersistPhotos: true})
	require.ErrorIs(t, err, errBoom)
	require.ErrorContains(t, err, "create photo")
	require.NoError(t, f.mock.ExpectationsWereMet())

	assert.Len(t, f.backend.discarded, 1)
	assert.Empty(t, f.backend.stored)
	assert.Zero(t, f.sink.calls)
}

func TestCreate_ReportInsertFailure(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	f.expectRollback()
	f.st.reportCreateErr = errBoom

	_, err := f.svc.Create(context.Background(), CreateInput{Payload: payload.Payload{"siteId": "S"}})
	require.ErrorIs(t, err, errBoom)
	require.ErrorContains(t, err, "create report")
}

func TestCreate_EmbeddedPhotoInObjectStoreModeIsModeError(t *testing.T) {
	f := newReportFixture(t, storage.ModeObjectStore)

	p := payload.Payload{"siteId": "S", "photosUploads": map[string]any{"a": map[string]any{"images": []any{dataURL("image/png", "ok")}}}}
	_, err := f.svc.Create(context.Background(), CreateInput{Payload: p, PersistPhotos: true})
	require.ErrorIs(t, err, common.ErrStorageMode)
}

func TestCreate_ObjectKeysPassThroughInObjectStoreMode(t *testing.T) {
	f := newReportFixture(t, storage.ModeObjectStore)
	f.expectCommit()

	p := payload.Payload{"siteId": "S", "photosUploads": map[string]any{"a": map[string]any{"urls": []any{"relatorios/S/r/a/k.jpg"}}}}
	res, err := f.svc.Create(context.Background(), CreateInput{Payload: p, PersistPhotos: true})
	require.NoError(t, err)
	require.Len(t, res.Report.Photos, 1)
	assert.Equal(t, "relatorios/S/r/a/k.jpg", res.Report.Photos[0].Reference)
}

func TestCreate_SheetFailureDoesNotUndoReport(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	f.expectCommit()
	f.sink.err = errors.New("disk full")

	res, err := f.svc.Create(context.Background(), CreateInput{Payload: payload.Payload{"siteId": "S", "cand": "C"}})
	require.NoError(t, err)
	require.ErrorContains(t, res.SheetError, "disk full")
	assert.NotNil(t, f.st.get(res.Report.ID))
}

func TestCreateDraft_ForcesDraftAndSkipsSheet(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	f.expectCommit()

	p := payload.Payload{"siteId": "S", "status": "sent", "photosUploads": map[string]any{"a": map[string]any{"images": []any{dataURL("image/png", "ok")}}}}
	res, err := f.svc.CreateDraft(context.Background(), p, "u1")
	require.NoError(t, err)

	assert.Equal(t, common.StatusDraft, res.Report.Status)
	assert.Equal(t, common.StatusDraft, res.Report.Payload["status"])
	assert.Equal(t, "sent", p["status"], "caller payload untouched")
	assert.Empty(t, res.Report.Photos)
	assert.Empty(t, f.backend.stored)
	assert.Zero(t, f.sink.calls)
}

func TestCreateDraft_EmptyPayload(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	_, err := f.svc.CreateDraft(context.Background(), nil, "")
	require.ErrorIs(t, err, common.ErrMalformedInput)
}

func seedReport(st *memStore, id, status string, nPhotos int) {
	r := &models.Report{
		ID:       id,
		Status:   status,
		SiteID:   strp("SITE_1"),
		Operator: strp("Claro"),
		City:     strp("Recife"),
		Payload:  map[string]any{"old": true},
	}
	var ps []*models.Photo
	for i := 0; i < nPhotos; i++ {
		ps = append(ps, &models.Photo{ID: id + "-p" + string(rune('0'+i)), ReportID: id, Reference: "/old", Position: i})
	}
	st.put(r, ps...)
}

func TestUpdate_SparseMergeKeepsAbsentScalars(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	seedReport(f.st, "r1", common.StatusSent, 0)
	f.expectCommit()

	res, err := f.svc.Update(context.Background(), UpdateInput{ReportID: "r1", Payload: payload.Payload{"observacoes": "x"}})
	require.NoError(t, err)

	r := res.Report
	assert.Equal(t, "SITE_1", *r.SiteID)
	assert.Equal(t, "Claro", *r.Operator)
	assert.Equal(t, "Recife", *r.City)
	assert.Equal(t, "x", *r.Notes)
	assert.Equal(t, common.StatusSent, r.Status)
	assert.Equal(t, map[string]any{"observacoes": "x"}, map[string]any(r.Payload), "blob fully replaced")

	assert.Equal(t, "x", *f.st.get("r1").Notes)
}

func TestUpdate_ExplicitNullClearsScalar(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	seedReport(f.st, "r1", common.StatusSent, 0)
	f.expectCommit()

	res, err := f.svc.Update(context.Background(), UpdateInput{ReportID: "r1", Payload: payload.Payload{"cidade": nil}})
	require.NoError(t, err)
	assert.Nil(t, res.Report.City)
	assert.Equal(t, "SITE_1", *res.Report.SiteID)
}

func TestUpdate_ReplaceWithEmptyBlockLeavesNoPhotos(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	seedReport(f.st, "r1", common.StatusSent, 2)
	f.expectCommit()

	res, err := f.svc.Update(context.Background(), UpdateInput{
		ReportID:      "r1",
		Payload:       payload.Payload{"observacoes": "x"},
		ReplacePhotos: true,
		PersistPhotos: true,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Report.Photos)
	assert.Empty(t, f.st.photos["r1"])
}

func TestUpdate_AppendAddsOnePhoto(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	seedReport(f.st, "r1", common.StatusSent, 2)
	f.expectCommit()

	p := payload.Payload{"photosUploads": map[string]any{"torre": map[string]any{"images": []any{dataURL("image/jpeg", "new")}}}}
	res, err := f.svc.Update(context.Background(), UpdateInput{ReportID: "r1", Payload: p, PersistPhotos: true})
	require.NoError(t, err)

	require.Len(t, res.Report.Photos, 3)
	last := res.Report.Photos[2]
	assert.Equal(t, 2, last.Position)
	assert.Equal(t, "/storage/r1/1.jpeg", last.Reference)
}

func TestUpdate_ReplaceSwapsPhotos(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	seedReport(f.st, "r1", common.StatusSent, 2)
	f.expectCommit()

	p := payload.Payload{"photosUploads": map[string]any{"torre": map[string]any{"images": []any{"https://cdn/a.jpg"}}}}
	res, err := f.svc.Update(context.Background(), UpdateInput{ReportID: "r1", Payload: p, PersistPhotos: true, ReplacePhotos: true})
	require.NoError(t, err)

	require.Len(t, res.Report.Photos, 1)
	assert.Equal(t, 0, res.Report.Photos[0].Position)
	assert.Equal(t, "https://cdn/a.jpg", res.Report.Photos[0].Reference)
}

func TestUpdate_UnknownReport(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	f.expectRollback()

	p := payload.Payload{"photosUploads": map[string]any{"torre": map[string]any{"images": []any{dataURL("image/jpeg", "new")}}}}
	_, err := f.svc.Update(context.Background(), UpdateInput{ReportID: "missing", Payload: p, PersistPhotos: true})
	require.ErrorIs(t, err, common.ErrorNotFound)
	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.Len(t, f.backend.discarded, 1, "files written for the failed update are discarded")
}

func TestUpdate_MissingID(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	_, err := f.svc.Update(context.Background(), UpdateInput{Payload: payload.Payload{"a": 1}})
	require.ErrorIs(t, err, common.ErrMalformedInput)
}

func TestUpdate_SentCannotReturnToDraft(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	seedReport(f.st, "r1", common.StatusSent, 0)
	f.expectRollback()

	_, err := f.svc.Update(context.Background(), UpdateInput{ReportID: "r1", Payload: payload.Payload{"status": "draft"}})
	require.ErrorIs(t, err, common.ErrStatusTransition)
	assert.Equal(t, common.StatusSent, f.st.get("r1").Status)
}

func TestUpdate_DraftPromotedToSentAppendsSheet(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	seedReport(f.st, "d1", common.StatusDraft, 0)
	f.expectCommit()

	res, err := f.svc.Update(context.Background(), UpdateInput{ReportID: "d1", Payload: payload.Payload{"status": "sent", "cand": "C9"}})
	require.NoError(t, err)
	assert.Equal(t, common.StatusSent, res.Report.Status)
	assert.Equal(t, 1, f.sink.calls)

	site := recordFor(f.sink.recs, rows.SheetSiteInfo)
	require.NotNil(t, site)
	id, _ := site.Get(rows.ColReportID)
	assert.Equal(t, "d1", id)
}

func TestUpdateDraft(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	seedReport(f.st, "d1", common.StatusDraft, 1)
	f.expectCommit()

	res, err := f.svc.UpdateDraft(context.Background(), "d1", payload.Payload{"cidade": "Natal"}, true)
	require.NoError(t, err)
	assert.Equal(t, common.StatusDraft, res.Report.Status)
	assert.Equal(t, "Natal", *res.Report.City)
	assert.Len(t, res.Report.Photos, 1, "draft updates do not touch photos")
	assert.Zero(t, f.sink.calls)
}

func TestUpdateDraft_OnSentReport(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	seedReport(f.st, "r1", common.StatusSent, 0)
	f.expectRollback()

	_, err := f.svc.UpdateDraft(context.Background(), "r1", payload.Payload{"cidade": "Natal"}, true)
	require.ErrorIs(t, err, common.ErrStatusTransition)
}

func TestGetListAndLatestDraft(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	seedReport(f.st, "r1", common.StatusSent, 2)
	seedReport(f.st, "d1", common.StatusDraft, 0)
	seedReport(f.st, "d2", common.StatusDraft, 1)
	f.st.reports["d1"].UpdatedAt = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	f.st.reports["d2"].UpdatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := f.svc.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Len(t, got.Photos, 2)

	_, err = f.svc.Get(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrorNotFound)

	list, err := f.svc.List(context.Background(), models.ReportFilter{SiteID: "SITE_1"})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Len(t, list[0].Photos, 2)

	latest, err := f.svc.LatestDraft(context.Background(), "SITE_1")
	require.NoError(t, err)
	assert.Equal(t, "d1", latest.ID)

	_, err = f.svc.LatestDraft(context.Background(), "OTHER")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestLatestDraft_TieBreaksOnID(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	seedReport(f.st, "d1", common.StatusDraft, 0)
	seedReport(f.st, "d2", common.StatusDraft, 0)

	latest, err := f.svc.LatestDraft(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "d2", latest.ID)
}

func TestList_Error(t *testing.T) {
	f := newReportFixture(t, storage.ModeLocal)
	f.st.listErr = errBoom

	_, err := f.svc.List(context.Background(), models.ReportFilter{})
	require.ErrorIs(t, err, errBoom)
}

func TestReportService_RecordsMetrics(t *testing.T) {
	db, mock := newSQLMockDB(t)
	m, err := metrics.NewIngestMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	svc := NewReportService(db, &fakeRepoManager{st: newMemStore()}, newFakeBackend(storage.ModeLocal), &fakeSink{fallback: true}, m, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()
	_, err = svc.Create(context.Background(), CreateInput{Payload: payload.Payload{"siteId": "S", "cand": "C"}})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), UpdateInput{})
	require.Error(t, err)

	assert.Equal(t, 2, testutil.CollectAndCount(m, "report_operations_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(m, "sheet_rows_appended_total"))
}
