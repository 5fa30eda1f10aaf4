package service

import (
	"context"
	"database/sql"
	"fmt"

	"court-watcher/internal/domain"
	"court-watcher/internal/repository"

	"github.com/rs/zerolog"
)

// Reconciler diffs an incoming canonical slot set against the persisted set.
// After Sync the persisted identity-key set exactly equals the incoming one,
// and only records that did not previously exist are returned.
type Reconciler struct {
	locations *repository.LocationRepository
	slots     *repository.SlotRepository
	logger    zerolog.Logger
}

func NewReconciler(locations *repository.LocationRepository, slots *repository.SlotRepository, logger zerolog.Logger) *Reconciler {
	return &Reconciler{locations: locations, slots: slots, logger: logger}
}

// Sync runs inside the caller's cycle transaction. Running it twice with the
// same snapshot is idempotent: the second pass inserts nothing and returns an
// empty new-set.
func (r *Reconciler) Sync(ctx context.Context, tx *sql.Tx, batch []NormalizedLocation) ([]domain.SlotRecord, error) {
	locationRepo := r.locations.WithTx(tx)
	slotRepo := r.slots.WithTx(tx)

	existing, err := slotRepo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted slots: %w", err)
	}

	index := make(map[domain.SlotKey]domain.AvailabilitySlot, len(existing))
	for _, slot := range existing {
		index[slot.Key()] = slot
	}

	touched := make(map[domain.SlotKey]bool, len(index))
	var newRecords []domain.SlotRecord

	for _, entry := range batch {
		loc := entry.Location
		if err := locationRepo.Upsert(ctx, &loc); err != nil {
			return nil, err
		}

		for _, record := range entry.Slots {
			key := record.Key()
			if touched[key] {
				// Duplicate identity within one snapshot; first wins.
				continue
			}
			touched[key] = true

			current, ok := index[key]
			if ok {
				if err := r.backfill(ctx, slotRepo, &current, &record); err != nil {
					return nil, err
				}
				continue
			}

			slot := domain.AvailabilitySlot{
				LocationID:      record.LocationID,
				CourtID:         record.CourtID,
				CourtName:       record.CourtName,
				SportID:         record.SportID,
				DurationMinutes: record.DurationMinutes,
				SlotTimeLocal:   record.SlotTimeLocal,
				SlotTimeUTC:     record.SlotTimeUTC,
			}
			if err := slotRepo.Insert(ctx, &slot); err != nil {
				return nil, err
			}
			newRecords = append(newRecords, record)
		}
	}

	removed := 0
	for key, slot := range index {
		if touched[key] {
			continue
		}
		if err := slotRepo.Delete(ctx, slot.ID); err != nil {
			return nil, err
		}
		removed++
	}

	r.logger.Debug().
		Int("incoming", len(touched)).
		Int("new", len(newRecords)).
		Int("removed", removed).
		Msg("reconciliation pass complete")

	return newRecords, nil
}

// backfill updates mutable metadata on an existing slot without altering its
// identity. Populated fields are never overwritten with empty values.
func (r *Reconciler) backfill(ctx context.Context, slots *repository.SlotRepository, current *domain.AvailabilitySlot, record *domain.SlotRecord) error {
	changed := false

	duration := current.DurationMinutes
	if record.DurationMinutes > 0 && record.DurationMinutes != current.DurationMinutes {
		duration = record.DurationMinutes
		changed = true
	}

	sportID := current.SportID
	if record.SportID != "" && record.SportID != current.SportID {
		sportID = record.SportID
		changed = true
	}

	courtName := current.CourtName
	if record.CourtName != "" && current.CourtName == "" {
		courtName = record.CourtName
		changed = true
	}

	if !changed {
		return nil
	}
	return slots.UpdateMetadata(ctx, current.ID, duration, sportID, courtName)
}
