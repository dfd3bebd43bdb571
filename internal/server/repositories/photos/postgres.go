// Package photos provides the PostgreSQL-backed photo repository.
package photos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sitevisit/internal/common"
	"github.com/dmitrijs2005/sitevisit/internal/dbx"
	"github.com/dmitrijs2005/sitevisit/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, photo *models.Photo) error {
	query :=
		`INSERT INTO photos (id, report_id, categoria, path, coords_lat, coords_lng, position)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		photo.ID, photo.ReportID, photo.Category, photo.Reference, photo.Lat, photo.Lng, photo.Position,
	).Scan(&photo.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteByReportID removes every photo row of a report and returns how
// many were removed. Stored files are not touched.
func (r *PostgresRepository) DeleteByReportID(ctx context.Context, reportID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM photos WHERE report_id = $1`, reportID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListByReportID(ctx context.Context, reportID string) ([]*models.Photo, error) {
	query :=
		`SELECT id, report_id, categoria, path, coords_lat, coords_lng, position, created_at
		 FROM photos WHERE report_id = $1
		 ORDER BY position, created_at, id
		 `

	rows, err := r.db.QueryContext(ctx, query, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to select photos: %w", err)
	}
	defer rows.Close()

	var result []*models.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// NextPosition is the position the next appended photo of a report takes.
func (r *PostgresRepository) NextPosition(ctx context.Context, reportID string) (int, error) {
	var next int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM photos WHERE report_id = $1`, reportID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return next, nil
}

// FindOwned returns the photo stored under reference on reportID, provided
// that report belongs to userID. Anything else is common.ErrorNotFound.
func (r *PostgresRepository) FindOwned(ctx context.Context, userID, reportID, reference string) (*models.Photo, error) {
	query :=
		`SELECT p.id, p.report_id, p.categoria, p.path, p.coords_lat, p.coords_lng, p.position, p.created_at
		 FROM photos p
		 JOIN reports r ON r.id = p.report_id
		 WHERE p.report_id = $1 AND p.path = $2 AND r.user_id = $3
		 LIMIT 1
		 `

	p, err := scanPhoto(r.db.QueryRowContext(ctx, query, reportID, reference, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func scanPhoto(s dbx.RowScanner) (*models.Photo, error) {
	var p models.Photo
	if err := s.Scan(&p.ID, &p.ReportID, &p.Category, &p.Reference, &p.Lat, &p.Lng, &p.Position, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
