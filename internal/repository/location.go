package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"court-watcher/internal/domain"

	"github.com/rs/zerolog"
)

type LocationRepository struct {
	db     DBTX
	logger zerolog.Logger
}

func NewLocationRepository(sqlDB *sql.DB, logger zerolog.Logger) *LocationRepository {
	return &LocationRepository{db: sqlDB, logger: logger}
}

func (r *LocationRepository) WithTx(tx *sql.Tx) *LocationRepository {
	return &LocationRepository{db: tx, logger: r.logger}
}

// Upsert inserts or backfills a location. Populated columns are never
// overwritten with empty values.
func (r *LocationRepository) Upsert(ctx context.Context, loc *domain.Location) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO locations (id, name, address, timezone, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE locations.name END,
			address = CASE WHEN excluded.address != '' THEN excluded.address ELSE locations.address END,
			timezone = CASE WHEN excluded.timezone != '' THEN excluded.timezone ELSE locations.timezone END,
			image_url = CASE WHEN excluded.image_url != '' THEN excluded.image_url ELSE locations.image_url END,
			updated_at = excluded.updated_at`,
		loc.ID, loc.Name, loc.Address, loc.Timezone, loc.ImageURL, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert location %s: %w", loc.ID, err)
	}
	return nil
}

func (r *LocationRepository) Get(ctx context.Context, id string) (*domain.Location, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, address, timezone, image_url, created_at, updated_at
		FROM locations WHERE id = ?`, id)

	var loc domain.Location
	err := row.Scan(&loc.ID, &loc.Name, &loc.Address, &loc.Timezone, &loc.ImageURL, &loc.CreatedAt, &loc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// ListByName returns all locations ordered by display name.
func (r *LocationRepository) ListByName(ctx context.Context) ([]domain.Location, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, address, timezone, image_url, created_at, updated_at
		FROM locations ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []domain.Location
	for rows.Next() {
		var loc domain.Location
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Address, &loc.Timezone, &loc.ImageURL, &loc.CreatedAt, &loc.UpdatedAt); err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}
