package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"court-watcher/internal/domain"
	"court-watcher/internal/repository"

	"github.com/rs/zerolog"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (f *fakeNotifier) Send(_ context.Context, contact, subject, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("smtp unreachable")
	}
	f.sent = append(f.sent, contact+": "+subject)
	return nil
}

type alertFixture struct {
	db       *sql.DB
	watches  *repository.WatchRepository
	alerts   *repository.AlertRepository
	notifier *fakeNotifier
	svc      *AlertService
}

func newAlertFixture(t *testing.T) *alertFixture {
	t.Helper()
	db := newTestDB(t)
	watches := repository.NewWatchRepository(db, zerolog.Nop())
	alerts := repository.NewAlertRepository(db, zerolog.Nop())
	sender := &fakeNotifier{}

	locations := repository.NewLocationRepository(db, zerolog.Nop())
	loc := testLocation()
	if err := locations.Upsert(context.Background(), &loc); err != nil {
		t.Fatalf("failed to seed location: %v", err)
	}

	return &alertFixture{
		db:       db,
		watches:  watches,
		alerts:   alerts,
		notifier: sender,
		svc:      NewAlertService(watches, alerts, sender, zerolog.Nop()),
	}
}

func (f *alertFixture) addWatch(t *testing.T, watch domain.WatchRule) domain.WatchRule {
	t.Helper()
	if err := f.watches.Insert(context.Background(), &watch); err != nil {
		t.Fatalf("failed to insert watch: %v", err)
	}
	return watch
}

func (f *alertFixture) evaluate(t *testing.T, slots []domain.SlotRecord) []Firing {
	t.Helper()
	tx, err := f.db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}
	firings, err := f.svc.Evaluate(context.Background(), tx, slots, time.Now().UTC())
	if err != nil {
		tx.Rollback()
		t.Fatalf("evaluate failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	return firings
}

func TestEvaluate_FiresAtMostOnce(t *testing.T) {
	f := newAlertFixture(t)
	watch := f.addWatch(t, domain.WatchRule{
		Label:      "weekend pickleball",
		LocationID: "loc-1",
		Contact:    "player@example.com",
		Active:     true,
	})

	slots := []domain.SlotRecord{record("court-1", "Court 1", "2025-10-27 09:00:00", 60)}

	first := f.evaluate(t, slots)
	if len(first) != 1 {
		t.Fatalf("expected 1 firing, got %d", len(first))
	}

	// The same slot surfacing as new again must not fire a second time.
	second := f.evaluate(t, slots)
	if len(second) != 0 {
		t.Errorf("expected no repeat firing, got %d", len(second))
	}

	count, err := f.alerts.CountForWatch(context.Background(), watch.ID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly 1 persisted alert, got %d", count)
	}
}

func TestEvaluate_RecordsTriggerBookkeeping(t *testing.T) {
	f := newAlertFixture(t)
	watch := f.addWatch(t, domain.WatchRule{
		LocationID: "loc-1",
		Contact:    "player@example.com",
		Active:     true,
	})

	f.evaluate(t, []domain.SlotRecord{
		record("court-1", "Court 1", "2025-10-27 09:00:00", 60),
		record("court-2", "Court 2", "2025-10-27 09:00:00", 60),
	})

	stored, err := f.watches.Get(context.Background(), watch.ID)
	if err != nil {
		t.Fatalf("failed to load watch: %v", err)
	}
	if stored.TriggerCount != 2 {
		t.Errorf("expected trigger_count 2, got %d", stored.TriggerCount)
	}
	if stored.LastTriggeredAt.IsZero() {
		t.Error("expected last_triggered_at stamped")
	}
}

func TestEvaluate_InactiveWatchDoesNotFire(t *testing.T) {
	f := newAlertFixture(t)
	f.addWatch(t, domain.WatchRule{LocationID: "loc-1", Active: false})

	firings := f.evaluate(t, []domain.SlotRecord{record("court-1", "Court 1", "2025-10-27 09:00:00", 60)})
	if len(firings) != 0 {
		t.Errorf("expected no firings for inactive watch, got %d", len(firings))
	}
}

func TestEvaluate_ConstraintsFilterSlots(t *testing.T) {
	f := newAlertFixture(t)
	f.addWatch(t, domain.WatchRule{
		LocationID: "loc-1",
		CourtQuery: "Court 2",
		TimeFrom:   "17:00",
		TimeTo:     "19:00",
		Active:     true,
	})

	firings := f.evaluate(t, []domain.SlotRecord{
		record("court-1", "Court 1", "2025-10-27 18:00:00", 60),
		record("court-2", "Court 2", "2025-10-27 12:00:00", 60),
		record("court-2", "Court 2", "2025-10-27 18:00:00", 60),
	})
	if len(firings) != 1 {
		t.Fatalf("expected 1 firing, got %d", len(firings))
	}
	if firings[0].Slot.CourtName != "Court 2" {
		t.Errorf("expected Court 2 firing, got %s", firings[0].Slot.CourtName)
	}
}

func TestDeliver_SendFailureKeepsAlertPersisted(t *testing.T) {
	f := newAlertFixture(t)
	f.notifier.fail = true
	watch := f.addWatch(t, domain.WatchRule{
		LocationID: "loc-1",
		Contact:    "player@example.com",
		Active:     true,
	})

	firings := f.evaluate(t, []domain.SlotRecord{record("court-1", "Court 1", "2025-10-27 09:00:00", 60)})
	f.svc.Deliver(context.Background(), firings)

	count, _ := f.alerts.CountForWatch(context.Background(), watch.ID)
	if count != 1 {
		t.Errorf("expected alert to stay persisted despite send failure, got %d", count)
	}

	// Dedup state survives too: a retry cycle does not re-fire.
	if again := f.evaluate(t, []domain.SlotRecord{record("court-1", "Court 1", "2025-10-27 09:00:00", 60)}); len(again) != 0 {
		t.Errorf("expected no re-fire after failed delivery, got %d", len(again))
	}
}

func TestDeliver_SendsOnePerFiring(t *testing.T) {
	f := newAlertFixture(t)
	f.addWatch(t, domain.WatchRule{
		LocationID: "loc-1",
		Contact:    "player@example.com",
		Active:     true,
	})

	firings := f.evaluate(t, []domain.SlotRecord{
		record("court-1", "Court 1", "2025-10-27 09:00:00", 60),
		record("court-2", "Court 2", "2025-10-27 10:00:00", 60),
	})
	f.svc.Deliver(context.Background(), firings)

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	if len(f.notifier.sent) != 2 {
		t.Errorf("expected 2 notifications, got %d", len(f.notifier.sent))
	}
}

func TestListRecent_ClampsLimit(t *testing.T) {
	f := newAlertFixture(t)
	f.addWatch(t, domain.WatchRule{LocationID: "loc-1", Active: true})
	f.evaluate(t, []domain.SlotRecord{record("court-1", "Court 1", "2025-10-27 09:00:00", 60)})

	// Zero and negative limits fall back to the default instead of erroring.
	for _, limit := range []int{0, -5, 1000} {
		alerts, err := f.svc.ListRecent(context.Background(), limit)
		if err != nil {
			t.Fatalf("list recent with limit %d failed: %v", limit, err)
		}
		if len(alerts) != 1 {
			t.Errorf("limit %d: expected 1 alert, got %d", limit, len(alerts))
		}
	}
}
