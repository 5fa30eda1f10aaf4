package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"court-watcher/internal/constants"
	"court-watcher/internal/domain"
	"court-watcher/internal/service"

	"github.com/go-chi/chi/v5"
)

type slotResponse struct {
	CourtID         string   `json:"court_id"`
	CourtName       string   `json:"court_name,omitempty"`
	SportID         string   `json:"sport_id,omitempty"`
	DurationMinutes int      `json:"duration_minutes"`
	SlotTimeLocal   string   `json:"slot_time_local"`
	SlotTimeUTC     string   `json:"slot_time_utc"`
	CourtCount      int      `json:"court_count"`
	CourtNames      []string `json:"court_names,omitempty"`
}

type locationResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Address  string         `json:"address,omitempty"`
	ImageURL string         `json:"image_url,omitempty"`
	Slots    []slotResponse `json:"slots"`
}

type locationsEnvelope struct {
	LastUpdated string             `json:"last_updated,omitempty"`
	Locations   []locationResponse `json:"locations"`
}

type watchRuleRequest struct {
	LocationID string `json:"location_id"`
	Label      string `json:"label"`
	CourtQuery string `json:"court_query"`
	TargetDate string `json:"target_date"`
	TimeFrom   string `json:"time_from"`
	TimeTo     string `json:"time_to"`
	Contact    string `json:"contact"`
	Notes      string `json:"notes"`
}

type watchRuleResponse struct {
	ID              string `json:"id"`
	Label           string `json:"label,omitempty"`
	LocationID      string `json:"location_id"`
	LocationName    string `json:"location_name"`
	CourtQuery      string `json:"court_query,omitempty"`
	TargetDate      string `json:"target_date,omitempty"`
	TimeFrom        string `json:"time_from,omitempty"`
	TimeTo          string `json:"time_to,omitempty"`
	Contact         string `json:"contact,omitempty"`
	Notes           string `json:"notes,omitempty"`
	Active          bool   `json:"active"`
	TriggerCount    int    `json:"trigger_count"`
	CreatedAt       string `json:"created_at"`
	LastTriggeredAt string `json:"last_triggered_at,omitempty"`
}

type alertResponse struct {
	ID            string `json:"id"`
	WatchID       string `json:"watch_id"`
	LocationID    string `json:"location_id"`
	CourtID       string `json:"court_id"`
	CourtName     string `json:"court_name,omitempty"`
	SlotTimeLocal string `json:"slot_time_local"`
	SlotTimeUTC   string `json:"slot_time_utc"`
	CreatedAt     string `json:"created_at"`
	WatchLabel    string `json:"watch_label,omitempty"`
}

type statusResponse struct {
	LastSuccessfulSync string `json:"last_successful_sync,omitempty"`
	LastError          string `json:"last_error,omitempty"`
	LastErrorAt        string `json:"last_error_at,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := service.AvailabilityFilters{
		Date:       query.Get("date"),
		TimeFrom:   query.Get("time_from"),
		TimeTo:     query.Get("time_to"),
		CourtQuery: query.Get("court"),
	}

	overview, err := s.availability.ListAvailability(r.Context(), filters)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list availability")
		writeError(w, http.StatusInternalServerError, "failed to list availability")
		return
	}

	envelope := locationsEnvelope{
		LastUpdated: formatUTC(overview.LastUpdated),
		Locations:   make([]locationResponse, 0, len(overview.Locations)),
	}
	for _, entry := range overview.Locations {
		loc := locationResponse{
			ID:       entry.Location.ID,
			Name:     entry.Location.Name,
			Address:  entry.Location.Address,
			ImageURL: entry.Location.ImageURL,
			Slots:    make([]slotResponse, 0, len(entry.Slots)),
		}
		for _, slot := range entry.Slots {
			loc.Slots = append(loc.Slots, slotResponse{
				CourtID:         slot.CourtID,
				CourtName:       slot.CourtName,
				SportID:         slot.SportID,
				DurationMinutes: slot.DurationMinutes,
				SlotTimeLocal:   slot.SlotTimeLocal.Format(domain.TimeLayout),
				SlotTimeUTC:     formatUTC(slot.SlotTimeUTC),
				CourtCount:      slot.CourtCount,
				CourtNames:      slot.CourtNames,
			})
		}
		envelope.Locations = append(envelope.Locations, loc)
	}

	writeJSON(w, http.StatusOK, envelope)
}

func (s *Server) handleListWatchers(w http.ResponseWriter, r *http.Request) {
	watches, err := s.watches.List(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list watch rules")
		writeError(w, http.StatusInternalServerError, "failed to list watchers")
		return
	}

	responses := make([]watchRuleResponse, 0, len(watches))
	for _, watch := range watches {
		responses = append(responses, toWatchResponse(&watch))
	}
	writeJSON(w, http.StatusOK, responses)
}

func (s *Server) handleCreateWatcher(w http.ResponseWriter, r *http.Request) {
	var req watchRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.LocationID == "" {
		writeError(w, http.StatusBadRequest, "location_id is required")
		return
	}
	if req.TargetDate != "" {
		if _, err := time.Parse(domain.DateLayout, req.TargetDate); err != nil {
			writeError(w, http.StatusBadRequest, "target_date must be YYYY-MM-DD")
			return
		}
	}
	if !validClock(req.TimeFrom) || !validClock(req.TimeTo) {
		writeError(w, http.StatusBadRequest, "time bounds must be HH:MM")
		return
	}

	watch, err := s.watches.Create(r.Context(), service.WatchRuleInput{
		LocationID: req.LocationID,
		Label:      req.Label,
		CourtQuery: req.CourtQuery,
		TargetDate: req.TargetDate,
		TimeFrom:   req.TimeFrom,
		TimeTo:     req.TimeTo,
		Contact:    req.Contact,
		Notes:      req.Notes,
	})
	if errors.Is(err, service.ErrLocationNotFound) {
		writeError(w, http.StatusNotFound, "location not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to create watch rule")
		writeError(w, http.StatusInternalServerError, "failed to create watcher")
		return
	}

	writeJSON(w, http.StatusOK, toWatchResponse(watch))
}

func (s *Server) handleToggleWatcher(w http.ResponseWriter, r *http.Request) {
	watchID := chi.URLParam(r, "watchID")

	watch, err := s.watches.Toggle(r.Context(), watchID)
	if errors.Is(err, service.ErrWatchNotFound) {
		writeError(w, http.StatusNotFound, "watch not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("watch_id", watchID).Msg("failed to toggle watch rule")
		writeError(w, http.StatusInternalServerError, "failed to toggle watcher")
		return
	}

	writeJSON(w, http.StatusOK, toWatchResponse(watch))
}

func (s *Server) handleDeleteWatcher(w http.ResponseWriter, r *http.Request) {
	watchID := chi.URLParam(r, "watchID")

	err := s.watches.Delete(r.Context(), watchID)
	if errors.Is(err, service.ErrWatchNotFound) {
		writeError(w, http.StatusNotFound, "watch not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("watch_id", watchID).Msg("failed to delete watch rule")
		writeError(w, http.StatusInternalServerError, "failed to delete watcher")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := constants.DefaultAlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	alerts, err := s.alerts.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list alerts")
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	responses := make([]alertResponse, 0, len(alerts))
	for _, item := range alerts {
		responses = append(responses, alertResponse{
			ID:            item.Alert.ID,
			WatchID:       item.Alert.WatchID,
			LocationID:    item.Alert.LocationID,
			CourtID:       item.Alert.CourtID,
			CourtName:     item.Alert.CourtName,
			SlotTimeLocal: item.Alert.SlotTimeLocal.Format(domain.TimeLayout),
			SlotTimeUTC:   formatUTC(item.Alert.SlotTimeUTC),
			CreatedAt:     formatUTC(item.Alert.CreatedAt),
			WatchLabel:    item.WatchLabel,
		})
	}
	writeJSON(w, http.StatusOK, responses)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.availability.Status(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read system status")
		writeError(w, http.StatusInternalServerError, "failed to read status")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		LastSuccessfulSync: formatUTC(status.LastSuccessfulSync),
		LastError:          status.LastError,
		LastErrorAt:        formatUTC(status.LastErrorAt),
	})
}

func toWatchResponse(watch *service.WatchWithLocation) watchRuleResponse {
	return watchRuleResponse{
		ID:              watch.ID,
		Label:           watch.Label,
		LocationID:      watch.LocationID,
		LocationName:    watch.LocationName,
		CourtQuery:      watch.CourtQuery,
		TargetDate:      watch.TargetDate,
		TimeFrom:        watch.TimeFrom,
		TimeTo:          watch.TimeTo,
		Contact:         watch.Contact,
		Notes:           watch.Notes,
		Active:          watch.Active,
		TriggerCount:    watch.TriggerCount,
		CreatedAt:       formatUTC(watch.CreatedAt),
		LastTriggeredAt: formatUTC(watch.LastTriggeredAt),
	}
}

func validClock(value string) bool {
	if value == "" {
		return true
	}
	if _, err := time.Parse(domain.ClockLayout, value); err == nil {
		return true
	}
	_, err := time.Parse("15:04:05", value)
	return err == nil
}

func formatUTC(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}
