package service

import (
	"time"

	"court-watcher/internal/api"
	"court-watcher/internal/config"
	"court-watcher/internal/constants"
	"court-watcher/internal/domain"

	"github.com/rs/zerolog"
)

// Normalizer turns raw Rec availability payloads into canonical slot records
// with resolved timezone, duration, and sport classification.
type Normalizer struct {
	cfg    *config.Config
	logger zerolog.Logger
}

func NewNormalizer(cfg *config.Config, logger zerolog.Logger) *Normalizer {
	return &Normalizer{cfg: cfg, logger: logger}
}

// NormalizedLocation pairs a location with the canonical slots of its courts.
type NormalizedLocation struct {
	Location domain.Location
	Slots    []domain.SlotRecord
}

// Normalize is pure with respect to the store: malformed slot entries are
// dropped with a log line, never escalated.
func (n *Normalizer) Normalize(payload []api.LocationAvailability) []NormalizedLocation {
	var result []NormalizedLocation

	for _, entry := range payload {
		loc := entry.Location
		if loc == nil || loc.ID == "" {
			continue
		}

		timezoneName := loc.Timezone
		if timezoneName == "" {
			timezoneName = n.cfg.Timezone
		}
		tz, err := time.LoadLocation(timezoneName)
		if err != nil {
			n.logger.Warn().Str("timezone", timezoneName).Str("location_id", loc.ID).
				Msg("unknown timezone, falling back to default")
			timezoneName = n.cfg.Timezone
			tz, err = time.LoadLocation(timezoneName)
			if err != nil {
				tz = time.Local
			}
		}

		normalized := NormalizedLocation{
			Location: domain.Location{
				ID:       loc.ID,
				Name:     loc.Name,
				Address:  loc.FormattedAddress,
				Timezone: loc.Timezone,
				ImageURL: loc.Images.Thumbnail,
			},
		}

		for _, court := range loc.Courts {
			if court.ID == "" {
				continue
			}
			courtName := court.Name
			if courtName == "" {
				courtName = court.DisplayName
			}

			sportID := ""
			if len(court.Sports) > 0 {
				sportID = court.Sports[0].Identifier()
			}
			if n.cfg.TargetSportID != "" && !declaresSport(court.Sports, n.cfg.TargetSportID) {
				continue
			}

			duration := resolveDuration(&court, loc)

			for _, raw := range court.AvailableSlots {
				local, err := time.ParseInLocation(domain.TimeLayout, raw, tz)
				if err != nil {
					n.logger.Debug().Str("slot", raw).Str("court_id", court.ID).
						Msg("dropping malformed slot timestamp")
					continue
				}

				normalized.Slots = append(normalized.Slots, domain.SlotRecord{
					LocationID:      loc.ID,
					LocationName:    loc.Name,
					LocationAddress: loc.FormattedAddress,
					ImageURL:        loc.Images.Thumbnail,
					Timezone:        timezoneName,
					CourtID:         court.ID,
					CourtName:       courtName,
					SportID:         sportID,
					SlotTimeLocal:   local,
					SlotTimeUTC:     local.UTC(),
					DurationMinutes: duration,
				})
			}
		}

		result = append(result, normalized)
	}

	return result
}

// declaresSport reports whether any of a court's sports matches the target.
// A court declaring zero sports never matches.
func declaresSport(sports []api.SportPayload, target string) bool {
	for _, sport := range sports {
		if sport.Identifier() == target {
			return true
		}
	}
	return false
}

// resolveDuration applies the duration policy, first match wins: maximum of
// the court's allowed-duration list, the court's HH:MM:SS max-reservation
// time, the location-level max-reservation time (clock string or bare
// minutes), then the fallback constant.
func resolveDuration(court *api.CourtPayload, loc *api.LocationPayload) int {
	if minutes := court.AllowedReservationDurations.Minutes; len(minutes) > 0 {
		longest := minutes[0]
		for _, m := range minutes[1:] {
			if m > longest {
				longest = m
			}
		}
		return longest
	}
	if minutes, ok := court.MaxReservationTime.ClockMinutes(); ok && minutes > 0 {
		return minutes
	}
	if minutes, ok := loc.MaxReservationTime.Minutes(); ok && minutes > 0 {
		return minutes
	}
	return constants.DefaultDurationMinutes
}
