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

type AlertRepository struct {
	db     DBTX
	logger zerolog.Logger
}

func NewAlertRepository(sqlDB *sql.DB, logger zerolog.Logger) *AlertRepository {
	return &AlertRepository{db: sqlDB, logger: logger}
}

func (r *AlertRepository) WithTx(tx *sql.Tx) *AlertRepository {
	return &AlertRepository{db: tx, logger: r.logger}
}

func (r *AlertRepository) Insert(ctx context.Context, alert *domain.Alert) error {
	if alert.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		alert.ID = id
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts
			(id, watch_id, location_id, court_id, court_name, slot_time_local, slot_time_utc, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.WatchID, alert.LocationID, alert.CourtID, alert.CourtName,
		alert.SlotTimeLocal.Format(domain.TimeLayout), alert.SlotTimeUTC, alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// Exists reports whether a watch has already fired for this court and local
// time. This is the dedup check that keeps alerts at-most-once.
func (r *AlertRepository) Exists(ctx context.Context, watchID, courtID string, slotTimeLocal time.Time) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM alerts
		WHERE watch_id = ? AND court_id = ? AND slot_time_local = ?`,
		watchID, courtID, slotTimeLocal.Format(domain.TimeLayout),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AlertWithWatch joins the owning watch's label for the read surface.
type AlertWithWatch struct {
	Alert      domain.Alert
	WatchLabel string
}

func (r *AlertRepository) ListRecent(ctx context.Context, limit int) ([]AlertWithWatch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.watch_id, a.location_id, a.court_id, a.court_name,
		       a.slot_time_local, a.slot_time_utc, a.created_at, w.label
		FROM alerts a
		JOIN watch_rules w ON w.id = a.watch_id
		ORDER BY a.created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []AlertWithWatch
	for rows.Next() {
		var item AlertWithWatch
		var local string
		err := rows.Scan(
			&item.Alert.ID, &item.Alert.WatchID, &item.Alert.LocationID, &item.Alert.CourtID,
			&item.Alert.CourtName, &local, &item.Alert.SlotTimeUTC, &item.Alert.CreatedAt,
			&item.WatchLabel,
		)
		if err != nil {
			return nil, err
		}
		item.Alert.SlotTimeLocal, err = time.Parse(domain.TimeLayout, local)
		if err != nil {
			return nil, fmt.Errorf("failed to parse alert time %q: %w", local, err)
		}
		alerts = append(alerts, item)
	}
	return alerts, rows.Err()
}

func (r *AlertRepository) CountForWatch(ctx context.Context, watchID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE watch_id = ?`, watchID).Scan(&count)
	return count, err
}
