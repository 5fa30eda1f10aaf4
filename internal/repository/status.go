package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"court-watcher/internal/domain"

	"github.com/rs/zerolog"
)

type StatusRepository struct {
	db     DBTX
	logger zerolog.Logger
}

func NewStatusRepository(sqlDB *sql.DB, logger zerolog.Logger) *StatusRepository {
	return &StatusRepository{db: sqlDB, logger: logger}
}

func (r *StatusRepository) WithTx(tx *sql.Tx) *StatusRepository {
	return &StatusRepository{db: tx, logger: r.logger}
}

func (r *StatusRepository) Get(ctx context.Context) (*domain.SystemStatus, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT last_successful_sync, last_error, last_error_at
		FROM system_status WHERE id = 1`)

	var status domain.SystemStatus
	var lastSync, lastErrorAt sql.NullTime
	err := row.Scan(&lastSync, &status.LastError, &lastErrorAt)
	if err == sql.ErrNoRows {
		return &domain.SystemStatus{}, nil
	}
	if err != nil {
		return nil, err
	}
	if lastSync.Valid {
		status.LastSuccessfulSync = lastSync.Time
	}
	if lastErrorAt.Valid {
		status.LastErrorAt = lastErrorAt.Time
	}
	return &status, nil
}

// RecordSuccess stamps a successful sync and clears any previous error.
func (r *StatusRepository) RecordSuccess(ctx context.Context, syncedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO system_status (id, last_successful_sync, last_error, last_error_at)
		VALUES (1, ?, '', NULL)
		ON CONFLICT(id) DO UPDATE SET
			last_successful_sync = excluded.last_successful_sync,
			last_error = '',
			last_error_at = NULL`,
		syncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync success: %w", err)
	}
	return nil
}

// RecordError stamps a cycle failure without touching the last success time.
func (r *StatusRepository) RecordError(ctx context.Context, message string, failedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO system_status (id, last_successful_sync, last_error, last_error_at)
		VALUES (1, NULL, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_error = excluded.last_error,
			last_error_at = excluded.last_error_at`,
		message, failedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync error: %w", err)
	}
	return nil
}
