package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a round domain event.
type EventType string

const (
	EventTypeRoundCreated       EventType = "RoundCreated"
	EventTypeRoundStatusChanged EventType = "RoundStatusChanged"
	EventTypeRoundPointsUpdated EventType = "RoundPointsUpdated"
)

// Event is a round domain event. Payload holds one of the *Payload types below as JSON.
type Event struct {
	ID        uuid.UUID       `json:"eventId"`
	Type      EventType       `json:"eventType"`
	RoundID   uuid.UUID       `json:"roundId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// RoundCreatedPayload is the payload for a RoundCreated event
type RoundCreatedPayload struct {
	CooldownStartAt time.Time `json:"cooldown_start_at"`
	StartAt         time.Time `json:"start_at"`
	EndAt           time.Time `json:"end_at"`
	CreatedBy       string    `json:"created_by"`
}

// RoundStatusChangedPayload is the payload for a RoundStatusChanged event
type RoundStatusChangedPayload struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`
}

// RoundPointsUpdatedPayload is the payload for a RoundPointsUpdated event.
// It carries only the round aggregate; per-user scores never leave through events.
type RoundPointsUpdatedPayload struct {
	TotalPoints int64     `json:"total_points"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// New builds an event with a fresh ID, marshalling payload to JSON.
func New(eventType EventType, roundID uuid.UUID, at time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		RoundID:   roundID,
		Timestamp: at.UTC(),
		Payload:   data,
	}, nil
}

// Decode parses an event envelope.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if ev.Type == "" || ev.RoundID == uuid.Nil {
		return Event{}, fmt.Errorf("event envelope missing type or round id")
	}
	return ev, nil
}
