package photos

import (
	"context"

	"github.com/dmitrijs2005/sitevisit/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, photo *models.Photo) error
	DeleteByReportID(ctx context.Context, reportID string) (int64, error)
	ListByReportID(ctx context.Context, reportID string) ([]*models.Photo, error)
	NextPosition(ctx context.Context, reportID string) (int, error)
	FindOwned(ctx context.Context, userID, reportID, reference string) (*models.Photo, error)
}
