package rounds_test

import (
	"testing"
	"time"

	"github.com/mcdev12/taprounds/go/internal/models"
	"github.com/mcdev12/taprounds/go/internal/rounds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRound(start time.Time, cooldown, duration time.Duration) models.Round {
	tl := rounds.NewTimeline(start.Add(-cooldown), cooldown, duration)
	return models.Round{
		CooldownStartAt: tl.CooldownStartAt,
		StartAt:         tl.StartAt,
		EndAt:           tl.EndAt,
	}
}

func TestNewTimeline(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tl := rounds.NewTimeline(now, 30*time.Second, 60*time.Second)

	assert.Equal(t, now, tl.CooldownStartAt)
	assert.Equal(t, int64(30000), tl.StartAt.Sub(tl.CooldownStartAt).Milliseconds())
	assert.Equal(t, int64(60000), tl.EndAt.Sub(tl.StartAt).Milliseconds())
}

func TestComputePhase(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	r := testRound(start, 30*time.Second, time.Minute)

	tests := []struct {
		name string
		now  time.Time
		want models.RoundStatus
	}{
		{"before cooldown start", r.CooldownStartAt.Add(-time.Hour), models.RoundStatusCooldown},
		{"at cooldown start", r.CooldownStartAt, models.RoundStatusCooldown},
		{"just before start", start.Add(-time.Nanosecond), models.RoundStatusCooldown},
		{"at start", start, models.RoundStatusActive},
		{"just before end", r.EndAt.Add(-time.Nanosecond), models.RoundStatusActive},
		{"at end", r.EndAt, models.RoundStatusCompleted},
		{"long after end", r.EndAt.Add(24 * time.Hour), models.RoundStatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rounds.ComputePhase(r, tt.now))
			// Persisted status never influences the result.
			r.Status = models.RoundStatusCompleted
			assert.Equal(t, tt.want, rounds.ComputePhase(r, tt.now))
			r.Status = ""
		})
	}
}

func TestTimers(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	r := testRound(start, 30*time.Second, time.Minute)

	untilStart := rounds.TimeUntilStart(r, start.Add(-1500*time.Millisecond))
	require.NotNil(t, untilStart)
	assert.Equal(t, int64(1), *untilStart)
	assert.Nil(t, rounds.TimeRemaining(r, start.Add(-time.Second)))

	untilStart = rounds.TimeUntilStart(r, start.Add(-time.Millisecond))
	require.NotNil(t, untilStart)
	assert.Equal(t, int64(0), *untilStart)

	assert.Nil(t, rounds.TimeUntilStart(r, start))
	remaining := rounds.TimeRemaining(r, start)
	require.NotNil(t, remaining)
	assert.Equal(t, int64(60), *remaining)

	remaining = rounds.TimeRemaining(r, r.EndAt.Add(-999*time.Millisecond))
	require.NotNil(t, remaining)
	assert.Equal(t, int64(0), *remaining)

	assert.Nil(t, rounds.TimeRemaining(r, r.EndAt))
	assert.Nil(t, rounds.TimeUntilStart(r, r.EndAt))
}

func TestIsForwardTransition(t *testing.T) {
	assert.True(t, rounds.IsForwardTransition(models.RoundStatusCooldown, models.RoundStatusActive))
	assert.True(t, rounds.IsForwardTransition(models.RoundStatusCooldown, models.RoundStatusCompleted))
	assert.True(t, rounds.IsForwardTransition(models.RoundStatusActive, models.RoundStatusCompleted))
	assert.False(t, rounds.IsForwardTransition(models.RoundStatusActive, models.RoundStatusCooldown))
	assert.False(t, rounds.IsForwardTransition(models.RoundStatusCompleted, models.RoundStatusActive))
	assert.False(t, rounds.IsForwardTransition(models.RoundStatusActive, models.RoundStatusActive))
}
