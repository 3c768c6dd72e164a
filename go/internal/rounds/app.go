package rounds

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/taprounds/go/internal/events"
	"github.com/mcdev12/taprounds/go/internal/models"
	"github.com/rs/zerolog/log"
)

// RoundsRepository defines what the app layer needs from the repository
type RoundsRepository interface {
	CreateRound(ctx context.Context, round models.Round) (*models.Round, error)
	GetRound(ctx context.Context, id uuid.UUID) (*models.Round, error)
	ListRounds(ctx context.Context) ([]models.Round, error)
	ListSchedulableRounds(ctx context.Context) ([]models.Round, error)
	UpdateRoundStatus(ctx context.Context, id uuid.UUID, from, to models.RoundStatus) (bool, error)
	GetParticipant(ctx context.Context, roundID, userID uuid.UUID) (*models.Participant, error)
	ListTopParticipants(ctx context.Context, roundID uuid.UUID, limit int) ([]models.Participant, error)
	// ApplyTap runs fn and the resulting participant upsert plus round total
	// increment as one unit of work, serialized per (round, user). fn checks the
	// phase at the instant it runs, after the participant lock is held and before
	// the writes; a tap accepted just before endAt may commit a moment after it.
	ApplyTap(ctx context.Context, roundID, userID uuid.UUID, username string, fn TapFunc) (*TapOutcome, error)
}

// Settings holds round timing defaults.
type Settings struct {
	CooldownDuration time.Duration
	RoundDuration    time.Duration
}

// App handles round business logic
type App struct {
	repo      RoundsRepository
	clock     clockwork.Clock
	publisher events.Publisher
	settings  Settings
}

// NewApp creates a new rounds App
func NewApp(repo RoundsRepository, clock clockwork.Clock, publisher events.Publisher, settings Settings) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &App{
		repo:      repo,
		clock:     clock,
		publisher: publisher,
		settings:  settings,
	}
}

// Clock returns the clock the app derives phases from.
func (a *App) Clock() clockwork.Clock { return a.clock }

// CreateRound creates a round in cooldown, starting now.
func (a *App) CreateRound(ctx context.Context, req CreateRoundRequest) (*models.Round, error) {
	cooldown, err := a.resolveCooldown(req)
	if err != nil {
		return nil, err
	}
	if a.settings.RoundDuration <= 0 {
		return nil, fmt.Errorf("%w: round duration must be positive", ErrValidation)
	}

	now := a.clock.Now().UTC()
	timeline := NewTimeline(now, cooldown, a.settings.RoundDuration)

	round, err := a.repo.CreateRound(ctx, models.Round{
		ID:              uuid.New(),
		Status:          models.RoundStatusCooldown,
		CooldownStartAt: timeline.CooldownStartAt,
		StartAt:         timeline.StartAt,
		EndAt:           timeline.EndAt,
		TotalPoints:     0,
		CreatedBy:       req.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create round: %w", err)
	}

	log.Info().
		Str("round_id", round.ID.String()).
		Str("created_by", round.CreatedBy.String()).
		Time("start_at", round.StartAt).
		Time("end_at", round.EndAt).
		Msg("round created")

	a.publish(ctx, events.EventTypeRoundCreated, round.ID, events.RoundCreatedPayload{
		CooldownStartAt: round.CooldownStartAt,
		StartAt:         round.StartAt,
		EndAt:           round.EndAt,
		CreatedBy:       round.CreatedBy.String(),
	})

	return round, nil
}

// GetRoundView returns the round with its phase derived at now.
func (a *App) GetRoundView(ctx context.Context, roundID uuid.UUID, now time.Time) (*RoundView, error) {
	round, err := a.repo.GetRound(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	view := NewRoundView(*round, now)
	return &view, nil
}

// ListRounds returns every round, optionally keeping only those whose computed phase matches.
func (a *App) ListRounds(ctx context.Context, phase *models.RoundStatus) ([]RoundView, error) {
	rounds, err := a.repo.ListRounds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}

	now := a.clock.Now()
	views := make([]RoundView, 0, len(rounds))
	for _, r := range rounds {
		view := NewRoundView(r, now)
		if phase != nil && view.Phase != *phase {
			continue
		}
		views = append(views, view)
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Round.StartAt.After(views[j].Round.StartAt)
	})
	return views, nil
}

// GetRoundDetail returns the round view, the caller's participant row, the leaderboard
// and, once the round has completed, its winner.
func (a *App) GetRoundDetail(ctx context.Context, roundID uuid.UUID, userID *uuid.UUID, leaderboardLimit int) (*RoundDetail, error) {
	view, err := a.GetRoundView(ctx, roundID, a.clock.Now())
	if err != nil {
		return nil, err
	}

	detail := &RoundDetail{RoundView: *view}

	if userID != nil {
		me, err := a.repo.GetParticipant(ctx, roundID, *userID)
		if err != nil {
			return nil, fmt.Errorf("failed to get participant: %w", err)
		}
		detail.Me = me
	}

	leaderboard, err := a.repo.ListTopParticipants(ctx, roundID, ClampLeaderboardLimit(leaderboardLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to list leaderboard: %w", err)
	}
	detail.Leaderboard = leaderboard

	if view.Phase == models.RoundStatusCompleted && len(leaderboard) > 0 && leaderboard[0].Score > 0 {
		winner := leaderboard[0]
		detail.Winner = &winner
	}

	return detail, nil
}

// SubmitTap records an absolute tap count for a participant.
func (a *App) SubmitTap(ctx context.Context, req TapRequest) (*TapResult, error) {
	if err := a.validateTapRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return a.applyTap(ctx, req.RoundID, req.UserID, req.Username, func(current models.Participant) (int64, error) {
		if req.TapCount < current.TapCount {
			return 0, fmt.Errorf("%w: current %d, provided %d", ErrMonotonicityViolation, current.TapCount, req.TapCount)
		}
		return req.TapCount, nil
	})
}

// Tap registers n more taps for a participant.
func (a *App) Tap(ctx context.Context, roundID, userID uuid.UUID, username string, n int64) (*TapResult, error) {
	if roundID == uuid.Nil || userID == uuid.Nil {
		return nil, fmt.Errorf("%w: round_id and user_id are required", ErrValidation)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: tap increment must be positive", ErrValidation)
	}
	if n > MaxTapCount {
		return nil, fmt.Errorf("%w: tap increment cannot exceed %d", ErrValidation, MaxTapCount)
	}

	return a.applyTap(ctx, roundID, userID, username, func(current models.Participant) (int64, error) {
		if n > MaxTapCount-current.TapCount {
			return 0, fmt.Errorf("%w: tap count cannot exceed %d", ErrValidation, MaxTapCount)
		}
		return current.TapCount + n, nil
	})
}

// applyTap runs the shared tap unit of work. nextCount decides the participant's new tap
// count from its locked current state.
func (a *App) applyTap(ctx context.Context, roundID, userID uuid.UUID, username string, nextCount func(models.Participant) (int64, error)) (*TapResult, error) {
	outcome, err := a.repo.ApplyTap(ctx, roundID, userID, username, func(round models.Round, current models.Participant) (models.Participant, error) {
		now := a.clock.Now().UTC()
		if phase := ComputePhase(round, now); phase != models.RoundStatusActive {
			return models.Participant{}, fmt.Errorf("%w: current status is %s", ErrRoundNotActive, phase)
		}

		count, err := nextCount(current)
		if err != nil {
			return models.Participant{}, err
		}

		next := current
		next.TapCount = count
		next.Score = ScoreForTaps(count)
		if username != "" {
			next.Username = username
		}
		next.LastTappedAt = &now
		next.UpdatedAt = now
		return next, nil
	})
	if err != nil {
		if IsDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to apply tap: %w", err)
	}

	log.Debug().
		Str("round_id", roundID.String()).
		Str("user_id", userID.String()).
		Int64("tap_count", outcome.Participant.TapCount).
		Int64("score", outcome.Participant.Score).
		Int64("round_total_points", outcome.RoundTotalPoints).
		Msg("tap applied")

	a.publish(ctx, events.EventTypeRoundPointsUpdated, roundID, events.RoundPointsUpdatedPayload{
		TotalPoints: outcome.RoundTotalPoints,
		UpdatedAt:   a.clock.Now().UTC(),
	})

	return &TapResult{
		TapCount:         outcome.Participant.TapCount,
		Score:            outcome.Participant.Score,
		RoundTotalPoints: outcome.RoundTotalPoints,
	}, nil
}

// publish emits an event without failing the caller; the state change has already been committed.
func (a *App) publish(ctx context.Context, eventType events.EventType, roundID uuid.UUID, payload any) {
	ev, err := events.New(eventType, roundID, a.clock.Now(), payload)
	if err == nil {
		err = a.publisher.Publish(ctx, ev)
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("round_id", roundID.String()).
			Str("event_type", string(eventType)).
			Msg("failed to publish round event")
	}
}

// NewRoundView derives the phase and timers of r at now.
func NewRoundView(r models.Round, now time.Time) RoundView {
	return RoundView{
		Round:          r,
		Phase:          ComputePhase(r, now),
		TimeUntilStart: TimeUntilStart(r, now),
		TimeRemaining:  TimeRemaining(r, now),
		TotalPoints:    r.TotalPoints,
		ComputedAt:     now,
	}
}

// ClampLeaderboardLimit applies the default and maximum leaderboard sizes.
func ClampLeaderboardLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		return MaxLeaderboardLimit
	}
	return limit
}

// Validation methods

func (a *App) resolveCooldown(req CreateRoundRequest) (time.Duration, error) {
	if req.CreatedBy == uuid.Nil {
		return 0, fmt.Errorf("%w: created_by is required", ErrValidation)
	}
	if req.CooldownSeconds == nil {
		if a.settings.CooldownDuration < 0 {
			return 0, fmt.Errorf("%w: configured cooldown cannot be negative", ErrValidation)
		}
		return a.settings.CooldownDuration, nil
	}

	secs := *req.CooldownSeconds
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("%w: cooldown must be a finite number", ErrValidation)
	}
	if secs < 0 {
		return 0, fmt.Errorf("%w: cooldown cannot be negative", ErrValidation)
	}
	if secs != math.Trunc(secs) {
		return 0, fmt.Errorf("%w: cooldown must be a whole number of seconds", ErrValidation)
	}
	if secs > float64(MaxCooldownSeconds) {
		return 0, fmt.Errorf("%w: cooldown cannot exceed %d seconds", ErrValidation, MaxCooldownSeconds)
	}
	return time.Duration(secs) * time.Second, nil
}

func (a *App) validateTapRequest(req TapRequest) error {
	if req.RoundID == uuid.Nil {
		return fmt.Errorf("round_id is required")
	}
	if req.UserID == uuid.Nil {
		return fmt.Errorf("user_id is required")
	}
	if req.TapCount < 0 {
		return fmt.Errorf("tap_count cannot be negative")
	}
	if req.TapCount > MaxTapCount {
		return fmt.Errorf("tap_count cannot exceed %d", MaxTapCount)
	}
	if req.Score != nil {
		if want := ScoreForTaps(req.TapCount); *req.Score != want {
			return fmt.Errorf("score %d does not match %d taps (expected %d)", *req.Score, req.TapCount, want)
		}
	}
	return nil
}
