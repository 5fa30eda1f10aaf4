package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"court-watcher/internal/api"
	"court-watcher/internal/config"
	"court-watcher/internal/database"
	"court-watcher/internal/notifier"
	"court-watcher/internal/repository"
	"court-watcher/internal/service"

	"github.com/rs/zerolog"
)

type stubFetcher struct {
	payload []api.LocationAvailability
}

func (f *stubFetcher) FetchLocations(context.Context) ([]api.LocationAvailability, error) {
	return f.payload, nil
}

func (f *stubFetcher) set(payload []api.LocationAvailability) {
	f.payload = payload
}

type nopNotifier struct{}

func (nopNotifier) Send(context.Context, string, string, string) error { return nil }

type testServer struct {
	router       http.Handler
	availability *service.AvailabilityService
	fetcher      *stubFetcher
}

func snapshotPayload() []api.LocationAvailability {
	return []api.LocationAvailability{
		{
			Location: &api.LocationPayload{
				ID:               "loc-1",
				Name:             "Golden Gate Park",
				FormattedAddress: "501 Stanyan St",
				Timezone:         "America/Los_Angeles",
				Courts: []api.CourtPayload{
					{
						ID:             "court-1",
						Name:           "Court 1",
						Sports:         []api.SportPayload{{SportID: "sport-pickleball"}},
						AvailableSlots: []string{"2025-10-27 09:00:00", "2025-10-27 18:00:00"},
					},
					{
						ID:             "court-2",
						Name:           "Court 2",
						Sports:         []api.SportPayload{{SportID: "sport-pickleball"}},
						AvailableSlots: []string{"2025-10-27 09:00:00"},
					},
				},
			},
		},
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zerolog.Nop()
	cfg := &config.Config{
		DBPath:   filepath.Join(t.TempDir(), "test.db"),
		Timezone: "America/Los_Angeles",
	}

	db, err := database.New(cfg, log)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	locations := repository.NewLocationRepository(db, log)
	slots := repository.NewSlotRepository(db, log)
	watches := repository.NewWatchRepository(db, log)
	alerts := repository.NewAlertRepository(db, log)
	status := repository.NewStatusRepository(db, log)

	var sender notifier.Notifier = nopNotifier{}
	fetcher := &stubFetcher{payload: snapshotPayload()}
	alertSvc := service.NewAlertService(watches, alerts, sender, log)
	availability := service.NewAvailabilityService(
		db,
		fetcher,
		service.NewNormalizer(cfg, log),
		service.NewReconciler(locations, slots, log),
		alertSvc,
		locations, slots, status,
		cfg, log,
	)
	watchSvc := service.NewWatchService(watches, locations, log)

	srv := New(availability, watchSvc, alertSvc, cfg, log)
	return &testServer{router: srv.Router(), availability: availability, fetcher: fetcher}
}

func (ts *testServer) runCycle(t *testing.T) {
	t.Helper()
	if err := ts.availability.RunCycle(context.Background()); err != nil {
		t.Fatalf("sync cycle failed: %v", err)
	}
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLocations_AfterSyncCycle(t *testing.T) {
	ts := newTestServer(t)
	ts.runCycle(t)

	rec := ts.do(t, http.MethodGet, "/api/locations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	envelope := decode[locationsEnvelope](t, rec)
	if envelope.LastUpdated == "" {
		t.Error("expected last_updated set after a successful cycle")
	}
	if len(envelope.Locations) != 1 {
		t.Fatalf("expected 1 location, got %d", len(envelope.Locations))
	}

	loc := envelope.Locations[0]
	if loc.Name != "Golden Gate Park" {
		t.Errorf("unexpected location name %q", loc.Name)
	}
	// Two courts share 09:00: one deduped row with court_count 2, plus 18:00.
	if len(loc.Slots) != 2 {
		t.Fatalf("expected 2 deduped slot rows, got %d", len(loc.Slots))
	}
	if loc.Slots[0].CourtCount != 2 {
		t.Errorf("expected 09:00 row to span 2 courts, got %d", loc.Slots[0].CourtCount)
	}
	if loc.Slots[0].CourtName != "Court 1 (+1 more)" {
		t.Errorf("unexpected collapsed court name %q", loc.Slots[0].CourtName)
	}
}

func TestLocations_Filters(t *testing.T) {
	ts := newTestServer(t)
	ts.runCycle(t)

	rec := ts.do(t, http.MethodGet, "/api/locations?time_from=17:00", "")
	envelope := decode[locationsEnvelope](t, rec)
	if len(envelope.Locations[0].Slots) != 1 {
		t.Fatalf("expected only the 18:00 slot, got %d rows", len(envelope.Locations[0].Slots))
	}

	rec = ts.do(t, http.MethodGet, "/api/locations?court=Court+2", "")
	envelope = decode[locationsEnvelope](t, rec)
	if len(envelope.Locations[0].Slots) != 1 {
		t.Fatalf("expected 1 row for Court 2, got %d", len(envelope.Locations[0].Slots))
	}
	if envelope.Locations[0].Slots[0].CourtCount != 1 {
		t.Errorf("expected single-court row, got count %d", envelope.Locations[0].Slots[0].CourtCount)
	}
}

func TestCreateWatcher_Validation(t *testing.T) {
	ts := newTestServer(t)
	ts.runCycle(t)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"missing location", `{}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
		{"bad date", `{"location_id":"loc-1","target_date":"27-10-2025"}`, http.StatusBadRequest},
		{"bad clock", `{"location_id":"loc-1","time_from":"5pm"}`, http.StatusBadRequest},
		{"unknown location", `{"location_id":"loc-nope"}`, http.StatusNotFound},
		{"valid", `{"location_id":"loc-1","court_query":"Court 2","time_from":"17:00","time_to":"19:00"}`, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/watchers", tc.body)
			if rec.Code != tc.code {
				t.Errorf("expected %d, got %d: %s", tc.code, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestWatcherLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.runCycle(t)

	rec := ts.do(t, http.MethodPost, "/api/watchers", `{"location_id":"loc-1","label":"morning pickleball"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create failed: %d %s", rec.Code, rec.Body.String())
	}
	created := decode[watchRuleResponse](t, rec)
	if created.ID == "" || !created.Active {
		t.Fatalf("expected active watcher with id, got %+v", created)
	}
	if created.LocationName != "Golden Gate Park" {
		t.Errorf("expected location name resolved, got %q", created.LocationName)
	}

	rec = ts.do(t, http.MethodGet, "/api/watchers", "")
	listed := decode[[]watchRuleResponse](t, rec)
	if len(listed) != 1 {
		t.Fatalf("expected 1 watcher listed, got %d", len(listed))
	}

	rec = ts.do(t, http.MethodPost, "/api/watchers/"+created.ID+"/toggle", "")
	toggled := decode[watchRuleResponse](t, rec)
	if toggled.Active {
		t.Error("expected watcher inactive after toggle")
	}

	rec = ts.do(t, http.MethodDelete, "/api/watchers/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete failed: %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/watchers", "")
	if listed = decode[[]watchRuleResponse](t, rec); len(listed) != 0 {
		t.Errorf("expected empty list after delete, got %d", len(listed))
	}
}

func TestWatcherNotFound(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodPost, "/api/watchers/nope/toggle", ""); rec.Code != http.StatusNotFound {
		t.Errorf("toggle: expected 404, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodDelete, "/api/watchers/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("delete: expected 404, got %d", rec.Code)
	}
}

func TestAlerts_FiredDuringCycle(t *testing.T) {
	ts := newTestServer(t)
	ts.runCycle(t)

	ts.do(t, http.MethodPost, "/api/watchers", `{"location_id":"loc-1","court_query":"Court 2","label":"court two"}`)
	// The watch existed before this cycle, but these slots are already known:
	// nothing new, so nothing fires.
	ts.runCycle(t)

	rec := ts.do(t, http.MethodGet, "/api/alerts", "")
	alerts := decode[[]alertResponse](t, rec)
	if len(alerts) != 0 {
		t.Fatalf("expected no alerts for previously seen slots, got %d", len(alerts))
	}
}

func TestAlerts_FireForFreshSlots(t *testing.T) {
	ts := newTestServer(t)
	ts.runCycle(t)
	ts.do(t, http.MethodPost, "/api/watchers", `{"location_id":"loc-1","court_query":"Court 2","label":"court two"}`)

	// A 10:00 slot on Court 2 shows up in the next snapshot.
	payload := snapshotPayload()
	payload[0].Location.Courts[1].AvailableSlots = append(
		payload[0].Location.Courts[1].AvailableSlots, "2025-10-27 10:00:00",
	)
	ts.fetcher.set(payload)
	ts.runCycle(t)

	rec := ts.do(t, http.MethodGet, "/api/alerts", "")
	alerts := decode[[]alertResponse](t, rec)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert for the fresh slot, got %d", len(alerts))
	}
	if alerts[0].CourtName != "Court 2" || alerts[0].SlotTimeLocal != "2025-10-27 10:00:00" {
		t.Errorf("unexpected alert %+v", alerts[0])
	}
	if alerts[0].WatchLabel != "court two" {
		t.Errorf("expected watch label joined, got %q", alerts[0].WatchLabel)
	}
}

func TestAlerts_LimitValidation(t *testing.T) {
	ts := newTestServer(t)

	for _, target := range []string{"/api/alerts?limit=abc", "/api/alerts?limit=0", "/api/alerts?limit=-3"} {
		if rec := ts.do(t, http.MethodGet, target, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
	}

	if rec := ts.do(t, http.MethodGet, "/api/alerts?limit=1000", ""); rec.Code != http.StatusOK {
		t.Errorf("oversized limit must clamp, not error; got %d", rec.Code)
	}
}

func TestStatus_ReflectsLastSync(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/status", "")
	status := decode[statusResponse](t, rec)
	if status.LastSuccessfulSync != "" {
		t.Errorf("expected empty status before first cycle, got %q", status.LastSuccessfulSync)
	}

	ts.runCycle(t)

	rec = ts.do(t, http.MethodGet, "/api/status", "")
	status = decode[statusResponse](t, rec)
	if status.LastSuccessfulSync == "" {
		t.Error("expected last_successful_sync after cycle")
	}
	if status.LastError != "" {
		t.Errorf("expected no error recorded, got %q", status.LastError)
	}
}
