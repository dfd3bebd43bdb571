// Package storage persists photo bytes or issues presigned credentials for
// them. Exactly one variant is active, chosen from configuration at
// startup; operations of the other variant fail with common.ErrStorageMode.
package storage

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/sitevisit/internal/common"
	"github.com/dmitrijs2005/sitevisit/internal/logging"
	sc "github.com/dmitrijs2005/sitevisit/internal/server/config"
	"github.com/dmitrijs2005/sitevisit/internal/server/models"
)

// Mode names a storage variant.
type Mode string

const (
	ModeLocal       Mode = sc.StorageLocal
	ModeObjectStore Mode = sc.StorageS3
)

// Backend is the capability set shared by both variants.
type Backend interface {
	Mode() Mode

	// Store writes bytes under folder and returns the reference to keep
	// (a path, or a public URL when one is configured). Local only.
	Store(ctx context.Context, data []byte, ext, folder string) (string, error)

	// Discard removes a previously stored reference. Local only.
	Discard(ctx context.Context, ref string) error

	// IssueUploadSlot presigns a direct client upload. Object store only.
	IssueUploadSlot(ctx context.Context, req UploadRequest) (*models.UploadSlot, error)

	// IssueDownloadSlot presigns a read of one key. Object store only.
	IssueDownloadSlot(ctx context.Context, key string) (*models.DownloadSlot, error)
}

// UploadRequest describes the object a client wants to upload. Key
// segments are optional; SizeBytes nil means "not declared".
type UploadRequest struct {
	Filename    string
	ContentType string
	SizeBytes   *int64
	SiteID      string
	ReportID    string
	Category    string
	FieldKey    string
	DraftID     string
}

// New builds the backend selected by cfg.StorageBackend.
func New(cfg *sc.Config, log logging.Logger) (Backend, error) {
	switch Mode(cfg.StorageBackend) {
	case ModeLocal:
		return NewLocal(cfg.StorageDir, cfg.StoragePublicBaseURL), nil
	case ModeObjectStore:
		return NewObjectStore(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// RequireMode fails with common.ErrStorageMode unless b runs in mode m.
func RequireMode(b Backend, m Mode) error {
	if b.Mode() != m {
		return modeError(b.Mode(), fmt.Sprintf("requires %s backend", m))
	}
	return nil
}

func modeError(active Mode, op string) error {
	return fmt.Errorf("%w: %s (active backend: %s)", common.ErrStorageMode, op, active)
}
