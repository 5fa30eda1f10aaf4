package domain

import (
	"time"
)

// TimeLayout is the wire and storage format for naive local slot times.
const TimeLayout = "2006-01-02 15:04:05"

// DateLayout is the format for watch target dates.
const DateLayout = "2006-01-02"

// ClockLayout is the format for watch time-of-day bounds.
const ClockLayout = "15:04"

type Location struct {
	ID        string
	Name      string
	Address   string
	Timezone  string
	ImageURL  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailabilitySlot is a persisted bookable time window at one court. A row's
// existence means the slot was present in the most recent successful sync.
type AvailabilitySlot struct {
	ID              int64
	LocationID      string
	CourtID         string
	CourtName       string
	SportID         string
	DurationMinutes int
	SlotTimeLocal   time.Time // naive wall-clock time in the location's timezone
	SlotTimeUTC     time.Time
	FetchedAt       time.Time
}

// SlotKey is the natural identity of a slot: location, court, and the local
// wall-clock time with timezone stripped.
type SlotKey struct {
	LocationID string
	CourtID    string
	LocalTime  string
}

func (s *AvailabilitySlot) Key() SlotKey {
	return SlotKey{
		LocationID: s.LocationID,
		CourtID:    s.CourtID,
		LocalTime:  s.SlotTimeLocal.Format(TimeLayout),
	}
}

// SlotRecord is the canonical, provider-agnostic representation of one slot
// produced by the normalizer. It carries location metadata so alerts can be
// rendered without another lookup.
type SlotRecord struct {
	LocationID      string
	LocationName    string
	LocationAddress string
	ImageURL        string
	Timezone        string
	CourtID         string
	CourtName       string
	SportID         string
	SlotTimeLocal   time.Time
	SlotTimeUTC     time.Time
	DurationMinutes int
}

func (s *SlotRecord) Key() SlotKey {
	return SlotKey{
		LocationID: s.LocationID,
		CourtID:    s.CourtID,
		LocalTime:  s.SlotTimeLocal.Format(TimeLayout),
	}
}

// WatchRule is a standing user subscription. Empty optional fields impose no
// constraint when matching.
type WatchRule struct {
	ID              string
	Label           string
	LocationID      string
	CourtQuery      string
	TargetDate      string // DateLayout, empty when unset
	TimeFrom        string // ClockLayout, empty when unset
	TimeTo          string // ClockLayout, empty when unset
	Contact         string
	Notes           string
	Active          bool
	TriggerCount    int
	LastTriggeredAt time.Time // zero when never triggered
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Alert is an immutable firing record, unique per (watch, court, local time).
type Alert struct {
	ID            string
	WatchID       string
	LocationID    string
	CourtID       string
	CourtName     string
	SlotTimeLocal time.Time
	SlotTimeUTC   time.Time
	CreatedAt     time.Time
}

// SystemStatus is the singleton sync heartbeat row.
type SystemStatus struct {
	LastSuccessfulSync time.Time
	LastError          string
	LastErrorAt        time.Time
}
