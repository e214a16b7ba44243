package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the tracker facade.
const (
	TypeClick      = "click"
	TypeScreenView = "screen_view"
)

// Event is one tracked occurrence. It is both the outbound request body and
// the element of the persisted queue file.
//
// Everything except Attempts is fixed at creation. Attempts counts failed
// delivery attempts and only ever grows for a given ID.
type Event struct {
	ID       uuid.UUID `json:"id"`
	Type     string    `json:"type"`
	Name     string    `json:"name"`
	TS       float64   `json:"ts"` // epoch seconds
	Attempts int       `json:"attempts"`
}

// NewEvent stamps a fresh id and the given creation time.
func NewEvent(eventType, name string, now time.Time) Event {
	return Event{
		ID:   uuid.New(),
		Type: eventType,
		Name: name,
		TS:   float64(now.UnixNano()) / float64(time.Second),
	}
}

// Time returns the creation timestamp.
func (e Event) Time() time.Time {
	sec := int64(e.TS)
	nsec := int64((e.TS - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// EventIngestResponse is returned by the collector's POST /events.
// Duplicate indicates idempotent success (the event already existed).
type EventIngestResponse struct {
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// CountResponse is returned by the collector's GET /metrics.
type CountResponse struct {
	Type  string `json:"type"`
	Name  string `json:"name,omitempty"`
	Count int64  `json:"count"`
}
