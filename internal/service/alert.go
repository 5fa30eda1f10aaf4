package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"court-watcher/internal/constants"
	"court-watcher/internal/domain"
	"court-watcher/internal/notifier"
	"court-watcher/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const bookingURLFormat = "https://www.rec.us/locations/%s"

// AlertService evaluates watch rules against newly observed slots, persists
// at-most-once alert firings, and fans deliveries out to the notifier.
type AlertService struct {
	watches *repository.WatchRepository
	alerts  *repository.AlertRepository
	sender  notifier.Notifier
	logger  zerolog.Logger
}

func NewAlertService(watches *repository.WatchRepository, alerts *repository.AlertRepository, sender notifier.Notifier, logger zerolog.Logger) *AlertService {
	return &AlertService{watches: watches, alerts: alerts, sender: sender, logger: logger}
}

// Firing is a confirmed, persisted alert plus the context needed to render
// its notification.
type Firing struct {
	Alert domain.Alert
	Watch domain.WatchRule
	Slot  domain.SlotRecord
}

// Evaluate runs the full cross product of new slots and active watches inside
// the caller's cycle transaction. A (watch, court, local time) triple fires
// at most once, ever.
func (s *AlertService) Evaluate(ctx context.Context, tx *sql.Tx, slots []domain.SlotRecord, now time.Time) ([]Firing, error) {
	watchRepo := s.watches.WithTx(tx)
	alertRepo := s.alerts.WithTx(tx)

	active, err := watchRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active watches: %w", err)
	}
	if len(active) == 0 || len(slots) == 0 {
		return nil, nil
	}

	var firings []Firing
	for _, slot := range slots {
		for _, watch := range active {
			if !MatchWatch(&slot, &watch) {
				continue
			}

			exists, err := alertRepo.Exists(ctx, watch.ID, slot.CourtID, slot.SlotTimeLocal)
			if err != nil {
				return nil, fmt.Errorf("failed to check alert dedup: %w", err)
			}
			if exists {
				continue
			}

			alert := domain.Alert{
				WatchID:       watch.ID,
				LocationID:    slot.LocationID,
				CourtID:       slot.CourtID,
				CourtName:     slot.CourtName,
				SlotTimeLocal: slot.SlotTimeLocal,
				SlotTimeUTC:   slot.SlotTimeUTC,
				CreatedAt:     now,
			}
			if err := alertRepo.Insert(ctx, &alert); err != nil {
				return nil, err
			}
			if err := watchRepo.RecordTrigger(ctx, watch.ID, now); err != nil {
				return nil, err
			}

			s.logger.Info().
				Str("watch_id", watch.ID).
				Str("court_id", slot.CourtID).
				Str("slot_time", slot.SlotTimeLocal.Format(domain.TimeLayout)).
				Msg("alert fired")

			firings = append(firings, Firing{Alert: alert, Watch: watch, Slot: slot})
		}
	}
	return firings, nil
}

// Deliver sends notifications for persisted firings. Send failures are logged
// and swallowed: an alert counts as fired once durably recorded.
func (s *AlertService) Deliver(ctx context.Context, firings []Firing) {
	if len(firings) == 0 {
		return
	}

	g := new(errgroup.Group)
	for _, firing := range firings {
		firing := firing
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, constants.NotifyTimeout)
			defer cancel()

			subject, body := renderAlert(&firing.Slot)
			if err := s.sender.Send(sendCtx, firing.Watch.Contact, subject, body); err != nil {
				s.logger.Error().Err(err).
					Str("watch_id", firing.Watch.ID).
					Str("alert_id", firing.Alert.ID).
					Msg("failed to send notification")
			}
			return nil
		})
	}
	_ = g.Wait()
}

func renderAlert(slot *domain.SlotRecord) (subject, body string) {
	court := slot.CourtName
	if court == "" {
		court = slot.CourtID
	}
	subject = fmt.Sprintf("Court available at %s", slot.LocationName)
	body = fmt.Sprintf(
		"%s\nCourt: %s\nTime: %s %s\nReservation link: "+bookingURLFormat,
		slot.LocationName,
		court,
		slot.SlotTimeLocal.Format("2006-01-02 15:04"),
		slot.Timezone,
		slot.LocationID,
	)
	return subject, body
}

// ListRecent returns the latest alert firings for the read surface. The limit
// is clamped to the configured bounds.
func (s *AlertService) ListRecent(ctx context.Context, limit int) ([]repository.AlertWithWatch, error) {
	if limit < 1 {
		limit = constants.DefaultAlertLimit
	}
	if limit > constants.MaxAlertLimit {
		limit = constants.MaxAlertLimit
	}
	return s.alerts.ListRecent(ctx, limit)
}
