package rounds

import (
	"time"

	"github.com/mcdev12/taprounds/go/internal/models"
)

// Timeline holds the three instants that define a round's phases.
type Timeline struct {
	CooldownStartAt time.Time
	StartAt         time.Time
	EndAt           time.Time
}

// NewTimeline computes a round timeline starting its cooldown at now.
func NewTimeline(now time.Time, cooldown, duration time.Duration) Timeline {
	start := now.Add(cooldown)
	return Timeline{
		CooldownStartAt: now,
		StartAt:         start,
		EndAt:           start.Add(duration),
	}
}

// ComputePhase derives the phase of r at now from its timestamps alone.
// ACTIVE includes StartAt and excludes EndAt. Instants before CooldownStartAt count as COOLDOWN.
func ComputePhase(r models.Round, now time.Time) models.RoundStatus {
	switch {
	case !now.Before(r.EndAt):
		return models.RoundStatusCompleted
	case !now.Before(r.StartAt):
		return models.RoundStatusActive
	default:
		return models.RoundStatusCooldown
	}
}

// TimeUntilStart returns whole seconds until the round starts, or nil once it has started.
func TimeUntilStart(r models.Round, now time.Time) *int64 {
	if !now.Before(r.StartAt) {
		return nil
	}
	return wholeSeconds(r.StartAt.Sub(now))
}

// TimeRemaining returns whole seconds until the round ends, or nil outside the active phase.
func TimeRemaining(r models.Round, now time.Time) *int64 {
	if now.Before(r.StartAt) || !now.Before(r.EndAt) {
		return nil
	}
	return wholeSeconds(r.EndAt.Sub(now))
}

// IsForwardTransition reports whether moving from one phase to another follows
// COOLDOWN -> ACTIVE -> COMPLETED.
func IsForwardTransition(from, to models.RoundStatus) bool {
	return phaseRank(to) > phaseRank(from)
}

func phaseRank(s models.RoundStatus) int {
	switch s {
	case models.RoundStatusCooldown:
		return 1
	case models.RoundStatusActive:
		return 2
	case models.RoundStatusCompleted:
		return 3
	default:
		return 0
	}
}

func wholeSeconds(d time.Duration) *int64 {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	return &secs
}
