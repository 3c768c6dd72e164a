package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/taprounds/go/internal/events"
)

// RoundEvent is the message pushed to WebSocket clients.
type RoundEvent struct {
	ID        string          `json:"id"`
	RoundID   string          `json:"round_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType represents the type of message sent to clients
type EventType string

const (
	EventTypeRoundCreated       EventType = "RoundCreated"
	EventTypeRoundStatusChanged EventType = "RoundStatusChanged"
	EventTypeRoundPointsUpdated EventType = "RoundPointsUpdated"
	// EventTypeRoundSnapshot carries the full round state, sent once on connect.
	EventTypeRoundSnapshot EventType = "RoundSnapshot"
)

// FromDomainEvent converts a domain event into the client wire format.
func FromDomainEvent(ev events.Event) (*RoundEvent, error) {
	var t EventType
	switch ev.Type {
	case events.EventTypeRoundCreated:
		t = EventTypeRoundCreated
	case events.EventTypeRoundStatusChanged:
		t = EventTypeRoundStatusChanged
	case events.EventTypeRoundPointsUpdated:
		t = EventTypeRoundPointsUpdated
	default:
		return nil, fmt.Errorf("unknown event type: %s", ev.Type)
	}

	return &RoundEvent{
		ID:        ev.ID.String(),
		RoundID:   ev.RoundID.String(),
		Type:      t,
		Timestamp: ev.Timestamp,
		Data:      ev.Payload,
	}, nil
}
