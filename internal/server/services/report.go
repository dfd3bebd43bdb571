// Package services contains server-side business logic. This file implements
// ReportService, the record store lifecycle: create, update, drafts and reads,
// with photo persistence and the spreadsheet append after commit.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/sitevisit/internal/common"
	"github.com/dmitrijs2005/sitevisit/internal/dbx"
	"github.com/dmitrijs2005/sitevisit/internal/logging"
	"github.com/dmitrijs2005/sitevisit/internal/server/metrics"
	"github.com/dmitrijs2005/sitevisit/internal/server/models"
	"github.com/dmitrijs2005/sitevisit/internal/server/payload"
	"github.com/dmitrijs2005/sitevisit/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sitevisit/internal/server/rows"
	"github.com/dmitrijs2005/sitevisit/internal/server/sheets"
	"github.com/dmitrijs2005/sitevisit/internal/server/storage"
	"github.com/google/uuid"
)

// Operation labels used for metrics and logs.
const (
	OpCreate      = "create"
	OpUpdate      = "update"
	OpCreateDraft = "create_draft"
	OpUpdateDraft = "update_draft"
)

// Payload keys lifted into report columns.
const (
	keyTimestamp = "timestamp_iso"
	keySiteID    = "siteId"
	keyOperator  = "operadora"
	keyCity      = "cidade"
	keyStatus    = "status"
	keyNotes     = "observacoes"
)

// RowSink receives the spreadsheet projection of committed reports.
type RowSink interface {
	AppendRecords(ctx context.Context, recs []rows.Record) ([]sheets.Result, error)
}

// CreateInput is one new submission.
type CreateInput struct {
	Payload        payload.Payload
	UserID         string
	PersistPhotos  bool
	StatusOverride string
}

// UpdateInput is a sparse update of an existing report.
type UpdateInput struct {
	ReportID       string
	Payload        payload.Payload
	ReplacePhotos  bool
	PersistPhotos  bool
	StatusOverride string
}

// Result is the committed report plus the outcome of the spreadsheet
// append. SheetError never means the report was not saved.
type Result struct {
	Report     *models.Report
	Sheets     []sheets.Result
	SheetError error
}

type ReportService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	storage     storage.Backend
	sink        RowSink
	normalizer  *rows.Normalizer
	metrics     *metrics.IngestMetrics
	log         logging.Logger
	newID       func() string
}

// NewReportService wires the record store. sink and m may be nil.
func NewReportService(db *sql.DB, rm repomanager.RepositoryManager, backend storage.Backend,
	sink RowSink, m *metrics.IngestMetrics, log logging.Logger) *ReportService {
	if log == nil {
		log = logging.Discard()
	}
	return &ReportService{
		db:          db,
		repomanager: rm,
		storage:     backend,
		sink:        sink,
		normalizer:  rows.NewNormalizer(),
		metrics:     m,
		log:         log.With("module", "reports"),
		newID:       uuid.NewString,
	}
}

// Create stores a new report. Status defaults to "sent".
func (s *ReportService) Create(ctx context.Context, in CreateInput) (*Result, error) {
	return s.observe(OpCreate, func() (*Result, error) { return s.create(ctx, in) })
}

// CreateDraft stores a new draft: status is forced to "draft" and photos
// are not persisted.
func (s *ReportService) CreateDraft(ctx context.Context, p payload.Payload, userID string) (*Result, error) {
	return s.observe(OpCreateDraft, func() (*Result, error) {
		return s.create(ctx, CreateInput{
			Payload:        withDraftStatus(p),
			UserID:         userID,
			StatusOverride: common.StatusDraft,
		})
	})
}

// Update merges a payload into an existing report.
func (s *ReportService) Update(ctx context.Context, in UpdateInput) (*Result, error) {
	return s.observe(OpUpdate, func() (*Result, error) { return s.update(ctx, in) })
}

// UpdateDraft updates a report through the draft path. A report that is
// no longer a draft yields common.ErrStatusTransition.
func (s *ReportService) UpdateDraft(ctx context.Context, reportID string, p payload.Payload, replacePhotos bool) (*Result, error) {
	return s.observe(OpUpdateDraft, func() (*Result, error) {
		return s.update(ctx, UpdateInput{
			ReportID:       reportID,
			Payload:        withDraftStatus(p),
			ReplacePhotos:  replacePhotos,
			StatusOverride: common.StatusDraft,
		})
	})
}

func (s *ReportService) observe(op string, fn func() (*Result, error)) (*Result, error) {
	start := time.Now()
	res, err := fn()
	s.metrics.RecordReportOperation(op, err, time.Since(start).Seconds())
	return res, err
}

func (s *ReportService) create(ctx context.Context, in CreateInput) (*Result, error) {
	if len(in.Payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", common.ErrMalformedInput)
	}

	block, fields := payload.ExtractPhotos(in.Payload)

	report := &models.Report{
		ID:      s.newID(),
		Status:  resolveStatus(common.StatusSent, fields, in.StatusOverride),
		Payload: fields,
	}
	if in.UserID != "" {
		uid := in.UserID
		report.UserID = &uid
	}
	applyScalars(report, fields)

	var built []*models.Photo
	var stored []string
	if in.PersistPhotos {
		var err error
		built, stored, err = s.buildPhotos(ctx, report.ID, block)
		if err != nil {
			s.discard(ctx, stored)
			return nil, err
		}
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Reports(tx).Create(ctx, report); err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		photoRepo := s.repomanager.Photos(tx)
		for i, p := range built {
			p.Position = i
			if err := photoRepo.Create(ctx, p); err != nil {
				return fmt.Errorf("create photo: %w", err)
			}
		}
		report.Photos = built
		return nil
	})
	if err != nil {
		s.discard(ctx, stored)
		return nil, err
	}

	s.recordPhotos(built, stored)
	s.log.Info(ctx, "report created", "report_id", report.ID, "status", report.Status, "photos", len(built))

	return s.afterCommit(ctx, report, in.Payload), nil
}

func (s *ReportService) update(ctx context.Context, in UpdateInput) (*Result, error) {
	if in.ReportID == "" {
		return nil, fmt.Errorf("%w: report id is required", common.ErrMalformedInput)
	}
	if len(in.Payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", common.ErrMalformedInput)
	}

	block, fields := payload.ExtractPhotos(in.Payload)

	var built []*models.Photo
	var stored []string
	if in.PersistPhotos {
		var err error
		built, stored, err = s.buildPhotos(ctx, in.ReportID, block)
		if err != nil {
			s.discard(ctx, stored)
			return nil, err
		}
	}

	var report *models.Report
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		reportRepo := s.repomanager.Reports(tx)
		existing, err := reportRepo.GetByIDForUpdate(ctx, in.ReportID)
		if err != nil {
			return err
		}

		next := resolveStatus(existing.Status, fields, in.StatusOverride)
		if !existing.IsDraft() && next == common.StatusDraft {
			return fmt.Errorf("%w: report %s is %q", common.ErrStatusTransition, existing.ID, existing.Status)
		}

		applyScalars(existing, fields)
		existing.Status = next
		existing.Payload = fields
		if err := reportRepo.Update(ctx, existing); err != nil {
			return fmt.Errorf("update report: %w", err)
		}

		photoRepo := s.repomanager.Photos(tx)
		if in.PersistPhotos {
			start := 0
			if in.ReplacePhotos {
				if _, err := photoRepo.DeleteByReportID(ctx, existing.ID); err != nil {
					return fmt.Errorf("delete photos: %w", err)
				}
			} else {
				start, err = photoRepo.NextPosition(ctx, existing.ID)
				if err != nil {
					return fmt.Errorf("photo position: %w", err)
				}
			}
			for i, p := range built {
				p.Position = start + i
				if err := photoRepo.Create(ctx, p); err != nil {
					return fmt.Errorf("create photo: %w", err)
				}
			}
		}

		existing.Photos, err = photoRepo.ListByReportID(ctx, existing.ID)
		if err != nil {
			return fmt.Errorf("list photos: %w", err)
		}
		report = existing
		return nil
	})
	if err != nil {
		s.discard(ctx, stored)
		return nil, err
	}

	s.recordPhotos(built, stored)
	s.log.Info(ctx, "report updated", "report_id", report.ID, "status", report.Status,
		"photos", len(report.Photos), "replace_photos", in.ReplacePhotos)

	return s.afterCommit(ctx, report, in.Payload), nil
}

// afterCommit appends the spreadsheet projection of non-draft reports.
func (s *ReportService) afterCommit(ctx context.Context, report *models.Report, p payload.Payload) *Result {
	res := &Result{Report: report}
	if s.sink == nil || report.IsDraft() {
		return res
	}

	recs := s.normalizer.Normalize(p, rows.Options{ReportID: report.ID})
	results, err := s.sink.AppendRecords(ctx, recs)
	if err != nil {
		s.metrics.RecordSheetRow(metrics.StatusError)
		s.log.Error(ctx, "sheet append failed", "report_id", report.ID, "records", len(recs), "error", err)
		res.SheetError = err
		return res
	}
	for _, r := range results {
		if r.Fallback {
			s.metrics.RecordSheetRow(metrics.StatusFallback)
			s.log.Warn(ctx, "sheet row diverted", "report_id", report.ID, "sheet", r.Sheet)
			continue
		}
		s.metrics.RecordSheetRow(metrics.StatusSuccess)
	}
	res.Sheets = results
	return res
}

// buildPhotos decodes and stores embedded images and turns every image of
// the block into a photo row. References already stored are returned even
// on error so the caller can discard them.
func (s *ReportService) buildPhotos(ctx context.Context, reportID string, block payload.PhotoBlock) ([]*models.Photo, []string, error) {
	var built []*models.Photo
	var stored []string

	for _, category := range block.Categories() {
		entry := block[category]
		for _, img := range entry.Images {
			if strings.TrimSpace(img) == "" {
				continue
			}

			ref := img
			if payload.IsDataURL(img) {
				data, ext, err := payload.DecodeDataURL(img)
				if err != nil {
					return built, stored, fmt.Errorf("photo %q: %w", category, err)
				}
				ref, err = s.storage.Store(ctx, data, ext, reportID)
				if err != nil {
					return built, stored, fmt.Errorf("store photo %q: %w", category, err)
				}
				stored = append(stored, ref)
			}

			cat := category
			built = append(built, &models.Photo{
				ID:        s.newID(),
				ReportID:  reportID,
				Category:  &cat,
				Reference: ref,
				Lat:       entry.Lat,
				Lng:       entry.Lng,
			})
		}
	}
	return built, stored, nil
}

func (s *ReportService) discard(ctx context.Context, stored []string) {
	for _, ref := range stored {
		if err := s.storage.Discard(ctx, ref); err != nil {
			s.log.Warn(ctx, "discard stored photo failed", "ref", ref, "error", err)
		}
	}
}

func (s *ReportService) recordPhotos(built []*models.Photo, stored []string) {
	s.metrics.RecordPhotos("decoded", len(stored))
	s.metrics.RecordPhotos("reference", len(built)-len(stored))
}

// Get returns one report with its photos.
func (s *ReportService) Get(ctx context.Context, id string) (*models.Report, error) {
	report, err := s.repomanager.Reports(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withPhotos(ctx, report)
}

// List returns reports newest first.
func (s *ReportService) List(ctx context.Context, filter models.ReportFilter) ([]*models.Report, error) {
	list, err := s.repomanager.Reports(s.db).List(ctx, filter)
	if err != nil {
		return nil, err
	}
	for _, r := range list {
		if _, err := s.withPhotos(ctx, r); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// LatestDraft returns the most recently updated draft, of siteID when set.
func (s *ReportService) LatestDraft(ctx context.Context, siteID string) (*models.Report, error) {
	report, err := s.repomanager.Reports(s.db).LatestDraft(ctx, siteID)
	if err != nil {
		return nil, err
	}
	return s.withPhotos(ctx, report)
}

func (s *ReportService) withPhotos(ctx context.Context, report *models.Report) (*models.Report, error) {
	photos, err := s.repomanager.Photos(s.db).ListByReportID(ctx, report.ID)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	report.Photos = photos
	return report, nil
}

// applyScalars copies the column fields present in p. Absent keys keep
// the current value; an explicit null clears it.
func applyScalars(r *models.Report, p payload.Payload) {
	set := func(dst **string, key string) {
		if v, ok := p.StringPtr(key); ok {
			*dst = v
		}
	}
	set(&r.TimestampISO, keyTimestamp)
	set(&r.SiteID, keySiteID)
	set(&r.Operator, keyOperator)
	set(&r.City, keyCity)
	set(&r.Notes, keyNotes)
}

// resolveStatus picks override, then a non-empty payload status, then current.
func resolveStatus(current string, p payload.Payload, override string) string {
	if override != "" {
		return override
	}
	if v, ok, isNull := p.String(keyStatus); ok && !isNull && v != "" {
		return v
	}
	return current
}

func withDraftStatus(p payload.Payload) payload.Payload {
	if len(p) == 0 {
		return p
	}
	out := p.Clone()
	out[keyStatus] = common.StatusDraft
	return out
}
