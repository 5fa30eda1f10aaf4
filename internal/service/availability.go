package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"court-watcher/internal/api"
	"court-watcher/internal/config"
	"court-watcher/internal/constants"
	"court-watcher/internal/domain"
	"court-watcher/internal/repository"

	"github.com/rs/zerolog"
)

// SnapshotFetcher is the fetch collaborator: any failure means no snapshot
// this cycle.
type SnapshotFetcher interface {
	FetchLocations(ctx context.Context) ([]api.LocationAvailability, error)
}

// AvailabilityService orchestrates one fetch → reconcile → match → dispatch →
// status-update cycle, and serves the availability read model.
type AvailabilityService struct {
	db         *sql.DB
	fetcher    SnapshotFetcher
	normalizer *Normalizer
	reconciler *Reconciler
	alerts     *AlertService
	locations  *repository.LocationRepository
	slots      *repository.SlotRepository
	status     *repository.StatusRepository
	cfg        *config.Config
	logger     zerolog.Logger
}

func NewAvailabilityService(
	sqlDB *sql.DB,
	fetcher SnapshotFetcher,
	normalizer *Normalizer,
	reconciler *Reconciler,
	alerts *AlertService,
	locations *repository.LocationRepository,
	slots *repository.SlotRepository,
	status *repository.StatusRepository,
	cfg *config.Config,
	logger zerolog.Logger,
) *AvailabilityService {
	return &AvailabilityService{
		db:         sqlDB,
		fetcher:    fetcher,
		normalizer: normalizer,
		reconciler: reconciler,
		alerts:     alerts,
		locations:  locations,
		slots:      slots,
		status:     status,
		cfg:        cfg,
		logger:     logger,
	}
}

// RunCycle executes one sync cycle. Reconciliation, matching, and alert
// bookkeeping share a single transaction; a fetch failure aborts before any
// state is touched. Notifications go out only after the commit.
func (s *AvailabilityService) RunCycle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.CycleTimeout)
	defer cancel()

	fetchCtx, fetchCancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	payload, err := s.fetcher.FetchLocations(fetchCtx)
	fetchCancel()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to fetch availability snapshot")
		s.recordError(ctx, err)
		return fmt.Errorf("failed to fetch snapshot: %w", err)
	}

	normalized := s.normalizer.Normalize(payload)
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.recordError(ctx, err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	newRecords, err := s.reconciler.Sync(ctx, tx, normalized)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to reconcile availability")
		s.recordError(ctx, err)
		return err
	}

	firings, err := s.alerts.Evaluate(ctx, tx, newRecords, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to evaluate watch rules")
		s.recordError(ctx, err)
		return err
	}

	if err := s.status.WithTx(tx).RecordSuccess(ctx, now); err != nil {
		s.recordError(ctx, err)
		return err
	}

	if err := tx.Commit(); err != nil {
		s.recordError(ctx, err)
		return fmt.Errorf("failed to commit cycle: %w", err)
	}

	s.alerts.Deliver(ctx, firings)

	s.logger.Info().
		Int("new_slots", len(newRecords)).
		Int("alerts", len(firings)).
		Msg("sync cycle complete")
	return nil
}

// recordError writes the failure to the status row outside the (rolled back)
// cycle transaction.
func (s *AvailabilityService) recordError(ctx context.Context, cause error) {
	statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DatabaseTimeout)
	defer cancel()
	if err := s.status.RecordError(statusCtx, cause.Error(), time.Now().UTC()); err != nil {
		s.logger.Error().Err(err).Msg("failed to record sync error")
	}
}

// AvailabilityFilters narrows the read model. Empty fields are permissive.
type AvailabilityFilters struct {
	Date       string // DateLayout
	TimeFrom   string // ClockLayout
	TimeTo     string // ClockLayout
	CourtQuery string
}

// SlotView is one deduped availability entry: identical local times across
// courts collapse into a single row with a court count.
type SlotView struct {
	CourtID         string
	CourtName       string
	SportID         string
	DurationMinutes int
	SlotTimeLocal   time.Time
	SlotTimeUTC     time.Time
	CourtCount      int
	CourtNames      []string
}

type LocationAvailabilityView struct {
	Location domain.Location
	Slots    []SlotView
}

type Overview struct {
	LastUpdated time.Time
	Locations   []LocationAvailabilityView
}

// ListAvailability returns current availability grouped by location, ordered
// by location name.
func (s *AvailabilityService) ListAvailability(ctx context.Context, filters AvailabilityFilters) (*Overview, error) {
	locations, err := s.locations.ListByName(ctx)
	if err != nil {
		return nil, err
	}

	overview := &Overview{}
	for _, location := range locations {
		slots, err := s.slots.ListByLocation(ctx, location.ID)
		if err != nil {
			return nil, err
		}
		filtered := filterSlots(slots, filters, s.cfg.TargetSportID)
		overview.Locations = append(overview.Locations, LocationAvailabilityView{
			Location: location,
			Slots:    dedupeSlots(filtered),
		})
	}

	status, err := s.status.Get(ctx)
	if err != nil {
		return nil, err
	}
	overview.LastUpdated = status.LastSuccessfulSync
	if overview.LastUpdated.IsZero() {
		overview.LastUpdated, err = s.slots.MaxFetchedAt(ctx)
		if err != nil {
			return nil, err
		}
	}
	return overview, nil
}

func (s *AvailabilityService) Status(ctx context.Context) (*domain.SystemStatus, error) {
	return s.status.Get(ctx)
}

func filterSlots(slots []domain.AvailabilitySlot, filters AvailabilityFilters, sportFilter string) []domain.AvailabilitySlot {
	courtQuery := strings.ToLower(strings.TrimSpace(filters.CourtQuery))

	var filtered []domain.AvailabilitySlot
	for _, slot := range slots {
		if sportFilter != "" && slot.SportID != sportFilter {
			continue
		}
		if courtQuery != "" {
			name := slot.CourtName
			if name == "" {
				name = slot.CourtID
			}
			if !strings.Contains(strings.ToLower(name), courtQuery) {
				continue
			}
		}
		if filters.Date != "" && slot.SlotTimeLocal.Format(domain.DateLayout) != filters.Date {
			continue
		}
		slotSeconds := slot.SlotTimeLocal.Hour()*3600 + slot.SlotTimeLocal.Minute()*60 + slot.SlotTimeLocal.Second()
		if filters.TimeFrom != "" {
			if from, ok := clockSeconds(filters.TimeFrom); ok && slotSeconds < from {
				continue
			}
		}
		if filters.TimeTo != "" {
			if to, ok := clockSeconds(filters.TimeTo); ok && slotSeconds > to {
				continue
			}
		}
		filtered = append(filtered, slot)
	}
	return filtered
}

// dedupeSlots collapses slots sharing a local time into one view row while
// tracking how many courts offer it.
func dedupeSlots(slots []domain.AvailabilitySlot) []SlotView {
	grouped := make(map[string][]domain.AvailabilitySlot)
	for _, slot := range slots {
		key := slot.SlotTimeLocal.Format(domain.TimeLayout)
		grouped[key] = append(grouped[key], slot)
	}

	keys := make([]string, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var views []SlotView
	for _, key := range keys {
		items := grouped[key]
		sort.Slice(items, func(i, j int) bool {
			return displayName(&items[i]) < displayName(&items[j])
		})

		var names []string
		for _, item := range items {
			if name := displayName(&item); name != "" {
				names = append(names, name)
			}
		}

		first := items[0]
		duration := first.DurationMinutes
		if duration == 0 {
			duration = constants.DefaultDurationMinutes
		}
		view := SlotView{
			CourtID:         first.CourtID,
			CourtName:       first.CourtName,
			SportID:         first.SportID,
			DurationMinutes: duration,
			SlotTimeLocal:   first.SlotTimeLocal,
			SlotTimeUTC:     first.SlotTimeUTC,
			CourtCount:      len(items),
			CourtNames:      names,
		}
		if len(names) > 1 {
			view.CourtName = fmt.Sprintf("%s (+%d more)", names[0], len(names)-1)
		}
		views = append(views, view)
	}
	return views
}

func displayName(slot *domain.AvailabilitySlot) string {
	if slot.CourtName != "" {
		return slot.CourtName
	}
	return slot.CourtID
}
