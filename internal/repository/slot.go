package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"court-watcher/internal/domain"

	"github.com/rs/zerolog"
)

type SlotRepository struct {
	db     DBTX
	logger zerolog.Logger
}

func NewSlotRepository(sqlDB *sql.DB, logger zerolog.Logger) *SlotRepository {
	return &SlotRepository{db: sqlDB, logger: logger}
}

func (r *SlotRepository) WithTx(tx *sql.Tx) *SlotRepository {
	return &SlotRepository{db: tx, logger: r.logger}
}

const slotColumns = `id, location_id, court_id, court_name, sport_id, duration_minutes, slot_time_local, slot_time_utc, fetched_at`

func scanSlot(scanner interface{ Scan(...any) error }) (domain.AvailabilitySlot, error) {
	var slot domain.AvailabilitySlot
	var local string
	err := scanner.Scan(
		&slot.ID, &slot.LocationID, &slot.CourtID, &slot.CourtName, &slot.SportID,
		&slot.DurationMinutes, &local, &slot.SlotTimeUTC, &slot.FetchedAt,
	)
	if err != nil {
		return slot, err
	}
	slot.SlotTimeLocal, err = time.Parse(domain.TimeLayout, local)
	if err != nil {
		return slot, fmt.Errorf("failed to parse slot time %q: %w", local, err)
	}
	return slot, nil
}

// All loads every persisted slot for the in-memory reconciliation index.
func (r *SlotRepository) All(ctx context.Context) ([]domain.AvailabilitySlot, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+slotColumns+` FROM availability_slots`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []domain.AvailabilitySlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// ListByLocation returns a location's slots ordered by local time.
func (r *SlotRepository) ListByLocation(ctx context.Context, locationID string) ([]domain.AvailabilitySlot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+slotColumns+` FROM availability_slots
		WHERE location_id = ? ORDER BY slot_time_local ASC`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []domain.AvailabilitySlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func (r *SlotRepository) Insert(ctx context.Context, slot *domain.AvailabilitySlot) error {
	if slot.FetchedAt.IsZero() {
		slot.FetchedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO availability_slots
			(location_id, court_id, court_name, sport_id, duration_minutes, slot_time_local, slot_time_utc, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		slot.LocationID, slot.CourtID, slot.CourtName, slot.SportID, slot.DurationMinutes,
		slot.SlotTimeLocal.Format(domain.TimeLayout), slot.SlotTimeUTC, slot.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert slot: %w", err)
	}
	slot.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read slot id: %w", err)
	}
	return nil
}

// UpdateMetadata backfills mutable slot fields without touching identity.
func (r *SlotRepository) UpdateMetadata(ctx context.Context, id int64, durationMinutes int, sportID, courtName string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE availability_slots
		SET duration_minutes = ?, sport_id = ?, court_name = ?
		WHERE id = ?`,
		durationMinutes, sportID, courtName, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update slot %d: %w", id, err)
	}
	return nil
}

func (r *SlotRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM availability_slots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete slot %d: %w", id, err)
	}
	return nil
}

func (r *SlotRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM availability_slots`).Scan(&count)
	return count, err
}

// MaxFetchedAt returns the newest fetch timestamp, used as a fallback for the
// last-updated marker when the status row is missing.
func (r *SlotRepository) MaxFetchedAt(ctx context.Context) (time.Time, error) {
	var fetched sql.NullTime
	err := r.db.QueryRowContext(ctx, `SELECT MAX(fetched_at) FROM availability_slots`).Scan(&fetched)
	if err != nil {
		return time.Time{}, err
	}
	if !fetched.Valid {
		return time.Time{}, nil
	}
	return fetched.Time, nil
}
