package reports

import (
	"context"

	"github.com/dmitrijs2005/sitevisit/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, report *models.Report) error
	Update(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id string) (*models.Report, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Report, error)
	List(ctx context.Context, filter models.ReportFilter) ([]*models.Report, error)
	LatestDraft(ctx context.Context, siteID string) (*models.Report, error)
}
