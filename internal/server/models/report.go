// Package models defines server-side data models persisted in the database.
package models

import (
	"time"

	"github.com/dmitrijs2005/sitevisit/internal/common"
)

// Report is one field-visit submission. Scalar columns are lifted out of
// the payload for querying; Payload keeps the remaining fields with the
// photo block stripped.
type Report struct {
	ID           string
	UserID       *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	TimestampISO *string
	SiteID       *string
	Operator     *string
	City         *string
	Status       string
	Notes        *string
	Payload      map[string]any

	Photos []*Photo
}

// IsDraft reports whether the report is still a draft.
func (r *Report) IsDraft() bool {
	return r.Status == common.StatusDraft
}

// OwnedBy reports whether userID created the report.
func (r *Report) OwnedBy(userID string) bool {
	return r.UserID != nil && *r.UserID == userID
}

// ReportFilter narrows report listings. Empty fields do not filter.
type ReportFilter struct {
	SiteID   string
	Operator string
	City     string
	Limit    int
}
