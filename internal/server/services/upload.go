package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/sitevisit/internal/common"
	"github.com/dmitrijs2005/sitevisit/internal/logging"
	sc "github.com/dmitrijs2005/sitevisit/internal/server/config"
	"github.com/dmitrijs2005/sitevisit/internal/server/metrics"
	"github.com/dmitrijs2005/sitevisit/internal/server/models"
	"github.com/dmitrijs2005/sitevisit/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sitevisit/internal/server/storage"
)

// PresignRequest asks for a direct upload of one photo of a report.
type PresignRequest struct {
	Filename    string
	ContentType string
	SizeBytes   *int64
	SiteID      string
	DraftID     string
	ReportID    string
	Category    string
	FieldKey    string
}

// UploadService gates presigned slot issuance: the caller must own the
// report and the declared file must satisfy the upload policy before any
// key is generated.
type UploadService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	storage     storage.Backend
	config      *sc.Config
	metrics     *metrics.IngestMetrics
	log         logging.Logger
}

func NewUploadService(db *sql.DB, rm repomanager.RepositoryManager, backend storage.Backend,
	config *sc.Config, m *metrics.IngestMetrics, log logging.Logger) *UploadService {
	if log == nil {
		log = logging.Discard()
	}
	return &UploadService{
		db:          db,
		repomanager: rm,
		storage:     backend,
		config:      config,
		metrics:     m,
		log:         log.With("module", "uploads"),
	}
}

// PresignUpload issues an upload slot for a photo of a report owned by userID.
func (s *UploadService) PresignUpload(ctx context.Context, userID string, req PresignRequest) (*models.UploadSlot, error) {
	slot, err := s.presignUpload(ctx, userID, req)
	s.metrics.RecordUploadSlot("upload", err)
	if err != nil {
		s.log.Debug(ctx, "upload slot refused", "report_id", req.ReportID, "error", err)
		return nil, err
	}
	s.log.Info(ctx, "upload slot issued", "report_id", req.ReportID, "key", slot.ObjectKey, "method", slot.Method)
	return slot, nil
}

func (s *UploadService) presignUpload(ctx context.Context, userID string, req PresignRequest) (*models.UploadSlot, error) {
	if err := storage.RequireMode(s.storage, storage.ModeObjectStore); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, common.ErrorUnauthorized
	}
	if strings.TrimSpace(req.ReportID) == "" {
		return nil, fmt.Errorf("%w: visita_id is required", common.ErrMalformedInput)
	}
	if err := s.requireOwnedReport(ctx, userID, req.ReportID); err != nil {
		return nil, err
	}
	if err := storage.CheckUploadPolicy(s.config.UploadAllowedTypes, s.config.UploadMaxBytes, req.ContentType, req.SizeBytes); err != nil {
		return nil, err
	}

	return s.storage.IssueUploadSlot(ctx, storage.UploadRequest{
		Filename:    req.Filename,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		SiteID:      req.SiteID,
		ReportID:    req.ReportID,
		Category:    req.Category,
		FieldKey:    req.FieldKey,
		DraftID:     req.DraftID,
	})
}

// PresignDownload issues a read slot for objectKey, which must be attached
// as a photo to reportID and reportID must belong to userID.
func (s *UploadService) PresignDownload(ctx context.Context, userID, reportID, objectKey string) (*models.DownloadSlot, error) {
	slot, err := s.presignDownload(ctx, userID, reportID, objectKey)
	s.metrics.RecordUploadSlot("download", err)
	if err != nil {
		s.log.Debug(ctx, "download slot refused", "report_id", reportID, "error", err)
		return nil, err
	}
	return slot, nil
}

func (s *UploadService) presignDownload(ctx context.Context, userID, reportID, objectKey string) (*models.DownloadSlot, error) {
	if err := storage.RequireMode(s.storage, storage.ModeObjectStore); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, common.ErrorUnauthorized
	}
	if strings.TrimSpace(reportID) == "" || strings.TrimSpace(objectKey) == "" {
		return nil, fmt.Errorf("%w: visita_id and object_key are required", common.ErrMalformedInput)
	}

	if _, err := s.repomanager.Photos(s.db).FindOwned(ctx, userID, reportID, objectKey); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: photo not attached to report %s", common.ErrorNotFound, reportID)
		}
		return nil, err
	}

	return s.storage.IssueDownloadSlot(ctx, objectKey)
}

func (s *UploadService) requireOwnedReport(ctx context.Context, userID, reportID string) error {
	report, err := s.repomanager.Reports(s.db).GetByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("%w: report %s", common.ErrorNotFound, reportID)
		}
		return err
	}
	if !report.OwnedBy(userID) {
		return fmt.Errorf("%w: report %s", common.ErrorNotFound, reportID)
	}
	return nil
}
