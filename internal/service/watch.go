package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"court-watcher/internal/domain"
	"court-watcher/internal/repository"

	"github.com/rs/zerolog"
)

var (
	ErrWatchNotFound    = errors.New("watch not found")
	ErrLocationNotFound = errors.New("location not found")
)

// MatchWatch reports whether a slot satisfies a watch rule. Pure and
// side-effect-free; absent optional fields impose no constraint.
func MatchWatch(slot *domain.SlotRecord, watch *domain.WatchRule) bool {
	if !watch.Active {
		return false
	}
	if watch.LocationID != slot.LocationID {
		return false
	}
	if watch.CourtQuery != "" {
		court := strings.ToLower(slot.CourtName)
		if !strings.Contains(court, strings.ToLower(watch.CourtQuery)) {
			return false
		}
	}
	if watch.TargetDate != "" && slot.SlotTimeLocal.Format(domain.DateLayout) != watch.TargetDate {
		return false
	}

	slotSeconds := slot.SlotTimeLocal.Hour()*3600 + slot.SlotTimeLocal.Minute()*60 + slot.SlotTimeLocal.Second()
	if watch.TimeFrom != "" {
		if from, ok := clockSeconds(watch.TimeFrom); ok && slotSeconds < from {
			return false
		}
	}
	if watch.TimeTo != "" {
		if to, ok := clockSeconds(watch.TimeTo); ok && slotSeconds > to {
			return false
		}
	}
	return true
}

// clockSeconds parses "HH:MM" or "HH:MM:SS" into seconds since midnight.
func clockSeconds(value string) (int, bool) {
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	seconds := h*3600 + m*60
	if len(parts) == 3 {
		s, err := strconv.Atoi(parts[2])
		if err != nil {
			return 0, false
		}
		seconds += s
	}
	return seconds, true
}

// WatchService owns watch rule CRUD for the API surface.
type WatchService struct {
	watches   *repository.WatchRepository
	locations *repository.LocationRepository
	logger    zerolog.Logger
}

func NewWatchService(watches *repository.WatchRepository, locations *repository.LocationRepository, logger zerolog.Logger) *WatchService {
	return &WatchService{watches: watches, locations: locations, logger: logger}
}

// WatchWithLocation decorates a rule with its location's display name.
type WatchWithLocation struct {
	domain.WatchRule
	LocationName string
}

type WatchRuleInput struct {
	LocationID string
	Label      string
	CourtQuery string
	TargetDate string
	TimeFrom   string
	TimeTo     string
	Contact    string
	Notes      string
}

func (s *WatchService) Create(ctx context.Context, input WatchRuleInput) (*WatchWithLocation, error) {
	location, err := s.locations.Get(ctx, input.LocationID)
	if err == sql.ErrNoRows {
		return nil, ErrLocationNotFound
	}
	if err != nil {
		return nil, err
	}

	watch := domain.WatchRule{
		Label:      input.Label,
		LocationID: input.LocationID,
		CourtQuery: input.CourtQuery,
		TargetDate: input.TargetDate,
		TimeFrom:   input.TimeFrom,
		TimeTo:     input.TimeTo,
		Contact:    input.Contact,
		Notes:      input.Notes,
		Active:     true,
	}
	if err := s.watches.Insert(ctx, &watch); err != nil {
		return nil, err
	}

	s.logger.Info().Str("watch_id", watch.ID).Str("location_id", watch.LocationID).Msg("watch rule created")
	return &WatchWithLocation{WatchRule: watch, LocationName: location.Name}, nil
}

func (s *WatchService) List(ctx context.Context) ([]WatchWithLocation, error) {
	watches, err := s.watches.List(ctx)
	if err != nil {
		return nil, err
	}

	names, err := s.locationNames(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]WatchWithLocation, 0, len(watches))
	for _, watch := range watches {
		name := names[watch.LocationID]
		if name == "" {
			name = watch.LocationID
		}
		result = append(result, WatchWithLocation{WatchRule: watch, LocationName: name})
	}
	return result, nil
}

func (s *WatchService) Toggle(ctx context.Context, id string) (*WatchWithLocation, error) {
	watch, err := s.watches.Get(ctx, id)
	if err == sql.ErrNoRows {
		return nil, ErrWatchNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.watches.SetActive(ctx, id, !watch.Active); err != nil {
		return nil, err
	}
	watch.Active = !watch.Active

	name := watch.LocationID
	if location, err := s.locations.Get(ctx, watch.LocationID); err == nil {
		name = location.Name
	}

	s.logger.Info().Str("watch_id", id).Bool("active", watch.Active).Msg("watch rule toggled")
	return &WatchWithLocation{WatchRule: *watch, LocationName: name}, nil
}

func (s *WatchService) Delete(ctx context.Context, id string) error {
	err := s.watches.Delete(ctx, id)
	if err == sql.ErrNoRows {
		return ErrWatchNotFound
	}
	if err != nil {
		return err
	}
	s.logger.Info().Str("watch_id", id).Msg("watch rule deleted")
	return nil
}

func (s *WatchService) locationNames(ctx context.Context) (map[string]string, error) {
	locations, err := s.locations.ListByName(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(locations))
	for _, loc := range locations {
		names[loc.ID] = loc.Name
	}
	return names, nil
}
