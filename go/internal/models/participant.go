package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant holds one user's taps within one round.
type Participant struct {
	ID           uuid.UUID  `json:"id"`
	RoundID      uuid.UUID  `json:"round_id"`
	UserID       uuid.UUID  `json:"user_id"`
	Username     string     `json:"username"`
	TapCount     int64      `json:"tap_count"`
	Score        int64      `json:"score"`
	LastTappedAt *time.Time `json:"last_tapped_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
