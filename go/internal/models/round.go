package models

import (
	"time"

	"github.com/google/uuid"
)

// RoundStatus defines the lifecycle phase of a round.
type RoundStatus string

const (
	RoundStatusCooldown  RoundStatus = "COOLDOWN"
	RoundStatusActive    RoundStatus = "ACTIVE"
	RoundStatusCompleted RoundStatus = "COMPLETED"
)

// Valid reports whether s is one of the known phases.
func (s RoundStatus) Valid() bool {
	switch s {
	case RoundStatusCooldown, RoundStatusActive, RoundStatusCompleted:
		return true
	}
	return false
}

// Round represents a timed tap round.
//
// Status is the last phase persisted by the lifecycle sweeper. It may lag behind
// the phase derived from the timestamps and must not be used for correctness checks.
type Round struct {
	ID              uuid.UUID   `json:"id"`
	Status          RoundStatus `json:"status"`
	CooldownStartAt time.Time   `json:"cooldown_start_at"`
	StartAt         time.Time   `json:"start_at"`
	EndAt           time.Time   `json:"end_at"`
	TotalPoints     int64       `json:"total_points"`
	CreatedBy       uuid.UUID   `json:"created_by"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}
