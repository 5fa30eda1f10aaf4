package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"court-watcher/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type WatchRepository struct {
	db     DBTX
	logger zerolog.Logger
}

func NewWatchRepository(sqlDB *sql.DB, logger zerolog.Logger) *WatchRepository {
	return &WatchRepository{db: sqlDB, logger: logger}
}

func (r *WatchRepository) WithTx(tx *sql.Tx) *WatchRepository {
	return &WatchRepository{db: tx, logger: r.logger}
}

const watchColumns = `id, label, location_id, court_query, target_date, time_from, time_to, contact, notes, active, trigger_count, last_triggered_at, created_at, updated_at`

func scanWatch(scanner interface{ Scan(...any) error }) (domain.WatchRule, error) {
	var w domain.WatchRule
	var lastTriggered sql.NullTime
	err := scanner.Scan(
		&w.ID, &w.Label, &w.LocationID, &w.CourtQuery, &w.TargetDate, &w.TimeFrom, &w.TimeTo,
		&w.Contact, &w.Notes, &w.Active, &w.TriggerCount, &lastTriggered, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return w, err
	}
	if lastTriggered.Valid {
		w.LastTriggeredAt = lastTriggered.Time
	}
	return w, nil
}

func (r *WatchRepository) Insert(ctx context.Context, watch *domain.WatchRule) error {
	if watch.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		watch.ID = id
	}
	now := time.Now().UTC()
	watch.CreatedAt = now
	watch.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO watch_rules
			(id, label, location_id, court_query, target_date, time_from, time_to, contact, notes, active, trigger_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		watch.ID, watch.Label, watch.LocationID, watch.CourtQuery, watch.TargetDate,
		watch.TimeFrom, watch.TimeTo, watch.Contact, watch.Notes, watch.Active,
		watch.CreatedAt, watch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert watch rule: %w", err)
	}
	return nil
}

func (r *WatchRepository) Get(ctx context.Context, id string) (*domain.WatchRule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+watchColumns+` FROM watch_rules WHERE id = ?`, id)
	watch, err := scanWatch(row)
	if err != nil {
		return nil, err
	}
	return &watch, nil
}

// List returns all watch rules, newest first.
func (r *WatchRepository) List(ctx context.Context) ([]domain.WatchRule, error) {
	return r.list(ctx, `SELECT `+watchColumns+` FROM watch_rules ORDER BY created_at DESC`)
}

// ListActive returns rules eligible for alert evaluation.
func (r *WatchRepository) ListActive(ctx context.Context) ([]domain.WatchRule, error) {
	return r.list(ctx, `SELECT `+watchColumns+` FROM watch_rules WHERE active = 1 ORDER BY created_at DESC`)
}

func (r *WatchRepository) list(ctx context.Context, query string) ([]domain.WatchRule, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var watches []domain.WatchRule
	for rows.Next() {
		watch, err := scanWatch(rows)
		if err != nil {
			return nil, err
		}
		watches = append(watches, watch)
	}
	return watches, rows.Err()
}

func (r *WatchRepository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE watch_rules SET active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to toggle watch %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *WatchRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM watch_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete watch %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RecordTrigger bumps the trigger counter and stamps the firing time.
func (r *WatchRepository) RecordTrigger(ctx context.Context, id string, firedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE watch_rules
		SET trigger_count = trigger_count + 1, last_triggered_at = ?, updated_at = ?
		WHERE id = ?`,
		firedAt, firedAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to record trigger for watch %s: %w", id, err)
	}
	return nil
}
