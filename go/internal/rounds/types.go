package rounds

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/taprounds/go/internal/models"
)

const (
	// DefaultLeaderboardLimit is used when the caller does not ask for a size.
	DefaultLeaderboardLimit = 10
	// MaxLeaderboardLimit caps the leaderboard size.
	MaxLeaderboardLimit = 50

	// MaxCooldownSeconds is the longest cooldown override that fits in a time.Duration.
	MaxCooldownSeconds = math.MaxInt64 / int64(time.Second)
)

// CreateRoundRequest represents a request to create a round.
// CooldownSeconds overrides the configured cooldown; it must be a non-negative whole number.
type CreateRoundRequest struct {
	CreatedBy       uuid.UUID
	CooldownSeconds *float64
}

// TapRequest represents an absolute tap report from a participant.
// Score is what the client believes the score is; the server recomputes it from TapCount.
type TapRequest struct {
	RoundID  uuid.UUID
	UserID   uuid.UUID
	Username string
	TapCount int64
	Score    *int64
}

// TapResult is returned after a tap has been committed.
type TapResult struct {
	TapCount         int64 `json:"tap_count"`
	Score            int64 `json:"score"`
	RoundTotalPoints int64 `json:"round_total_points"`
}

// TapFunc computes the participant's next state from the round and the current
// participant state. It runs inside the repository's unit of work, once the
// participant row is locked, so its clock reading is the acceptance instant of the
// tap. Returning an error aborts the unit without writing anything.
type TapFunc func(round models.Round, current models.Participant) (models.Participant, error)

// TapOutcome is what the repository committed.
type TapOutcome struct {
	Participant      models.Participant
	RoundTotalPoints int64
}

// RoundView is a round with its phase derived at a given instant.
type RoundView struct {
	Round          models.Round
	Phase          models.RoundStatus
	TimeUntilStart *int64
	TimeRemaining  *int64
	TotalPoints    int64
	ComputedAt     time.Time
}

// RoundDetail is a round view enriched with participant data.
type RoundDetail struct {
	RoundView
	Me          *models.Participant
	Leaderboard []models.Participant
	Winner      *models.Participant
}

// SweepReport summarises one lifecycle sweep.
type SweepReport struct {
	Checked int
	Updated int
	Failed  int
}
