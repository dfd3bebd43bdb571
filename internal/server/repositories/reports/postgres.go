// Package reports provides the PostgreSQL-backed report repository.
package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/sitevisit/internal/common"
	"github.com/dmitrijs2005/sitevisit/internal/dbx"
	"github.com/dmitrijs2005/sitevisit/internal/server/models"
	"github.com/dmitrijs2005/sitevisit/internal/server/payload"
)

// DefaultListLimit caps List when the filter carries no limit.
const DefaultListLimit = 100

const reportColumns = `id, user_id, created_at, updated_at, timestamp_iso, site_id, operadora, cidade, status, observacoes, payload`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a report with its caller-assigned ID and fills the
// server timestamps.
func (r *PostgresRepository) Create(ctx context.Context, report *models.Report) error {
	blob, err := encodePayload(report.Payload)
	if err != nil {
		return err
	}

	query :=
		`INSERT INTO reports (id, user_id, timestamp_iso, site_id, operadora, cidade, status, observacoes, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at
		 `

	err = r.db.QueryRowContext(ctx, query,
		report.ID, report.UserID, report.TimestampISO, report.SiteID, report.Operator,
		report.City, report.Status, report.Notes, blob,
	).Scan(&report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Update overwrites the mutable columns of an existing report and bumps
// updated_at. An unknown ID is common.ErrorNotFound.
func (r *PostgresRepository) Update(ctx context.Context, report *models.Report) error {
	blob, err := encodePayload(report.Payload)
	if err != nil {
		return err
	}

	query :=
		`UPDATE reports SET timestamp_iso = $2, site_id = $3, operadora = $4, cidade = $5,
		 status = $6, observacoes = $7, payload = $8, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at
		 `

	err = r.db.QueryRowContext(ctx, query,
		report.ID, report.TimestampISO, report.SiteID, report.Operator,
		report.City, report.Status, report.Notes, blob,
	).Scan(&report.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByIDForUpdate is GetByID holding a row lock until the surrounding
// transaction ends.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

// List returns reports newest first, narrowed by the non-empty filter fields.
func (r *PostgresRepository) List(ctx context.Context, filter models.ReportFilter) ([]*models.Report, error) {
	var (
		where []string
		args  []any
	)
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("site_id", filter.SiteID)
	add("operadora", filter.Operator)
	add("cidade", filter.City)

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit)

	query := `SELECT ` + reportColumns + ` FROM reports`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select reports: %w", err)
	}
	defer rows.Close()

	var result []*models.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, report)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// LatestDraft returns the most recently updated draft, for siteID when it
// is not empty. Ties on updated_at go to the greater ID.
func (r *PostgresRepository) LatestDraft(ctx context.Context, siteID string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE status = $1`
	args := []any{common.StatusDraft}
	if siteID != "" {
		query += ` AND site_id = $2`
		args = append(args, siteID)
	}
	query += ` ORDER BY updated_at DESC, id DESC LIMIT 1`
	return r.getOne(ctx, query, args...)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.Report, error) {
	report, err := scanReport(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return report, nil
}

func scanReport(s dbx.RowScanner) (*models.Report, error) {
	var (
		report models.Report
		blob   []byte
	)
	err := s.Scan(
		&report.ID, &report.UserID, &report.CreatedAt, &report.UpdatedAt, &report.TimestampISO,
		&report.SiteID, &report.Operator, &report.City, &report.Status, &report.Notes, &blob,
	)
	if err != nil {
		return nil, err
	}
	if len(blob) > 0 {
		if err := payload.Unmarshal(blob, &report.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of report %s: %w", report.ID, err)
		}
	}
	if report.Payload == nil {
		report.Payload = map[string]any{}
	}
	return &report, nil
}

func encodePayload(p map[string]any) (string, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(b), nil
}
