package rounds_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/taprounds/go/internal/events"
	"github.com/mcdev12/taprounds/go/internal/models"
	"github.com/mcdev12/taprounds/go/internal/rounds"
	"github.com/mcdev12/taprounds/go/internal/rounds/sqlite"
	"github.com/mcdev12/taprounds/go/internal/sqlutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type testEnv struct {
	app       *rounds.App
	store     *sqlite.Store
	clock     *clockwork.FakeClock
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := clockwork.NewFakeClockAt(testEpoch)
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "rounds.db"), clock, sqlutil.DefaultRetryPolicy())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	publisher := &recordingPublisher{}
	app := rounds.NewApp(store, clock, publisher, rounds.Settings{
		CooldownDuration: 30 * time.Second,
		RoundDuration:    60 * time.Second,
	})
	return &testEnv{app: app, store: store, clock: clock, publisher: publisher}
}

func cooldown(secs float64) *float64 { return &secs }

func score(n int64) *int64 { return &n }

// activeRound creates a round with no cooldown so it is active immediately.
func (e *testEnv) activeRound(t *testing.T) *models.Round {
	t.Helper()
	round, err := e.app.CreateRound(context.Background(), rounds.CreateRoundRequest{
		CreatedBy:       uuid.New(),
		CooldownSeconds: cooldown(0),
	})
	require.NoError(t, err)
	return round
}

func TestApp_CreateRound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := uuid.New()

	round, err := env.app.CreateRound(ctx, rounds.CreateRoundRequest{CreatedBy: admin})
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusCooldown, round.Status)
	assert.Equal(t, int64(0), round.TotalPoints)
	assert.Equal(t, admin, round.CreatedBy)
	assert.True(t, round.CooldownStartAt.Equal(testEpoch))
	assert.Equal(t, int64(30000), round.StartAt.Sub(round.CooldownStartAt).Milliseconds())
	assert.Equal(t, int64(60000), round.EndAt.Sub(round.StartAt).Milliseconds())

	round, err = env.app.CreateRound(ctx, rounds.CreateRoundRequest{CreatedBy: admin, CooldownSeconds: cooldown(60)})
	require.NoError(t, err)
	assert.Equal(t, int64(60000), round.StartAt.Sub(round.CooldownStartAt).Milliseconds())
	assert.Equal(t, int64(60000), round.EndAt.Sub(round.StartAt).Milliseconds())

	assert.Equal(t, []events.EventType{events.EventTypeRoundCreated, events.EventTypeRoundCreated}, env.publisher.types())
}

func TestApp_CreateRoundValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  rounds.CreateRoundRequest
	}{
		{"missing creator", rounds.CreateRoundRequest{}},
		{"negative cooldown", rounds.CreateRoundRequest{CreatedBy: uuid.New(), CooldownSeconds: cooldown(-1)}},
		{"fractional cooldown", rounds.CreateRoundRequest{CreatedBy: uuid.New(), CooldownSeconds: cooldown(1.5)}},
		{"cooldown past duration range", rounds.CreateRoundRequest{CreatedBy: uuid.New(), CooldownSeconds: cooldown(1e10)}},
		{"cooldown wrapping to positive", rounds.CreateRoundRequest{CreatedBy: uuid.New(), CooldownSeconds: cooldown(2e10)}},
		{"infinite cooldown", rounds.CreateRoundRequest{CreatedBy: uuid.New(), CooldownSeconds: cooldown(math.Inf(1))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.app.CreateRound(ctx, tt.req)
			assert.ErrorIs(t, err, rounds.ErrValidation)
		})
	}

	all, err := env.store.ListRounds(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestApp_TapRejectedOutsideActivePhase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	round, err := env.app.CreateRound(ctx, rounds.CreateRoundRequest{CreatedBy: uuid.New()})
	require.NoError(t, err)

	_, err = env.app.SubmitTap(ctx, rounds.TapRequest{RoundID: round.ID, UserID: userID, TapCount: 5})
	assert.ErrorIs(t, err, rounds.ErrRoundNotActive)

	// Persisted status is stale on purpose; the phase comes from the clock.
	env.clock.Advance(30 * time.Second)
	res, err := env.app.SubmitTap(ctx, rounds.TapRequest{RoundID: round.ID, UserID: userID, TapCount: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.RoundTotalPoints)

	env.clock.Advance(60 * time.Second)
	_, err = env.app.Tap(ctx, round.ID, userID, "", 1)
	assert.ErrorIs(t, err, rounds.ErrRoundNotActive)

	got, err := env.store.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.TotalPoints)
}

func TestApp_TapBeforeStartCreatesNoParticipant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	round, err := env.app.CreateRound(ctx, rounds.CreateRoundRequest{CreatedBy: uuid.New()})
	require.NoError(t, err)

	_, err = env.app.Tap(ctx, round.ID, userID, "early", 3)
	require.ErrorIs(t, err, rounds.ErrRoundNotActive)

	p, err := env.store.GetParticipant(ctx, round.ID, userID)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestApp_SubmitTap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	round := env.activeRound(t)
	userID := uuid.New()

	res, err := env.app.SubmitTap(ctx, rounds.TapRequest{RoundID: round.ID, UserID: userID, Username: "alice", TapCount: 10, Score: score(10)})
	require.NoError(t, err)
	assert.Equal(t, rounds.TapResult{TapCount: 10, Score: 10, RoundTotalPoints: 10}, *res)

	res, err = env.app.SubmitTap(ctx, rounds.TapRequest{RoundID: round.ID, UserID: userID, Username: "alice", TapCount: 11})
	require.NoError(t, err)
	assert.Equal(t, rounds.TapResult{TapCount: 11, Score: 20, RoundTotalPoints: 20}, *res)

	// Re-sending the same count is accepted and adds nothing.
	res, err = env.app.SubmitTap(ctx, rounds.TapRequest{RoundID: round.ID, UserID: userID, Username: "alice", TapCount: 11})
	require.NoError(t, err)
	assert.Equal(t, int64(20), res.RoundTotalPoints)

	other := uuid.New()
	res, err = env.app.SubmitTap(ctx, rounds.TapRequest{RoundID: round.ID, UserID: other, Username: "bob", TapCount: 22})
	require.NoError(t, err)
	assert.Equal(t, int64(40), res.Score)
	assert.Equal(t, int64(60), res.RoundTotalPoints)
}

func TestApp_SubmitTapMonotonicity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	round := env.activeRound(t)
	userID := uuid.New()

	_, err := env.app.SubmitTap(ctx, rounds.TapRequest{RoundID: round.ID, UserID: userID, TapCount: 10})
	require.NoError(t, err)

	_, err = env.app.SubmitTap(ctx, rounds.TapRequest{RoundID: round.ID, UserID: userID, TapCount: 5})
	assert.ErrorIs(t, err, rounds.ErrMonotonicityViolation)

	p, err := env.store.GetParticipant(ctx, round.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.TapCount)
	assert.Equal(t, int64(10), p.Score)

	got, err := env.store.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.TotalPoints)
}

func TestApp_SubmitTapValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	round := env.activeRound(t)
	userID := uuid.New()

	tests := []struct {
		name string
		req  rounds.TapRequest
	}{
		{"missing round", rounds.TapRequest{UserID: userID, TapCount: 1}},
		{"missing user", rounds.TapRequest{RoundID: round.ID, TapCount: 1}},
		{"negative count", rounds.TapRequest{RoundID: round.ID, UserID: userID, TapCount: -1}},
		{"score mismatch", rounds.TapRequest{RoundID: round.ID, UserID: userID, TapCount: 11, Score: score(11)}},
		{"count too large", rounds.TapRequest{RoundID: round.ID, UserID: userID, TapCount: rounds.MaxTapCount + 1}},
		{"count at int64 limit", rounds.TapRequest{RoundID: round.ID, UserID: userID, TapCount: math.MaxInt64}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.app.SubmitTap(ctx, tt.req)
			assert.ErrorIs(t, err, rounds.ErrValidation)
		})
	}

	_, err := env.app.Tap(ctx, round.ID, userID, "", 0)
	assert.ErrorIs(t, err, rounds.ErrValidation)
	_, err = env.app.Tap(ctx, round.ID, userID, "", math.MaxInt64)
	assert.ErrorIs(t, err, rounds.ErrValidation)

	p, err := env.store.GetParticipant(ctx, round.ID, userID)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestApp_CreateRoundLongestCooldown(t *testing.T) {
	env := newTestEnv(t)

	round, err := env.app.CreateRound(context.Background(), rounds.CreateRoundRequest{
		CreatedBy:       uuid.New(),
		CooldownSeconds: cooldown(float64(rounds.MaxCooldownSeconds)),
	})
	require.NoError(t, err)
	assert.Equal(t, time.Duration(rounds.MaxCooldownSeconds)*time.Second, round.StartAt.Sub(round.CooldownStartAt))
	assert.Equal(t, 60*time.Second, round.EndAt.Sub(round.StartAt))
}

func TestApp_TapCannotPassMaxTapCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	round := env.activeRound(t)
	userID := uuid.New()

	res, err := env.app.SubmitTap(ctx, rounds.TapRequest{RoundID: round.ID, UserID: userID, TapCount: rounds.MaxTapCount})
	require.NoError(t, err)
	assert.Equal(t, rounds.ScoreForTaps(rounds.MaxTapCount), res.Score)
	assert.Positive(t, res.RoundTotalPoints)

	_, err = env.app.Tap(ctx, round.ID, userID, "", 1)
	assert.ErrorIs(t, err, rounds.ErrValidation)

	p, err := env.store.GetParticipant(ctx, round.ID, userID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, rounds.MaxTapCount, p.TapCount)

	got, err := env.store.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, res.RoundTotalPoints, got.TotalPoints)
}

// lateRepo advances the clock between taking the participant lock and running the tap check.
type lateRepo struct {
	rounds.RoundsRepository
	clock *clockwork.FakeClock
	delay time.Duration
}

func (r lateRepo) ApplyTap(ctx context.Context, roundID, userID uuid.UUID, username string, fn rounds.TapFunc) (*rounds.TapOutcome, error) {
	return r.RoundsRepository.ApplyTap(ctx, roundID, userID, username, func(round models.Round, current models.Participant) (models.Participant, error) {
		r.clock.Advance(r.delay)
		return fn(round, current)
	})
}

func TestApp_TapPhaseCheckedInsideUnitOfWork(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	round := env.activeRound(t)

	app := rounds.NewApp(lateRepo{RoundsRepository: env.store, clock: env.clock, delay: 60 * time.Second}, env.clock, nil, rounds.Settings{RoundDuration: time.Minute})

	_, err := app.Tap(ctx, round.ID, uuid.New(), "late", 1)
	assert.ErrorIs(t, err, rounds.ErrRoundNotActive)

	got, err := env.store.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalPoints)
}

func TestApp_TapUnknownRound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.app.Tap(context.Background(), uuid.New(), uuid.New(), "", 1)
	assert.ErrorIs(t, err, rounds.ErrRoundNotFound)
}

func TestApp_ConcurrentIncrementalTaps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	round := env.activeRound(t)
	userID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.app.Tap(ctx, round.ID, userID, "dave", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := env.store.GetParticipant(ctx, round.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), p.TapCount)
	assert.Equal(t, int64(86), p.Score)

	got, err := env.store.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(86), got.TotalPoints)
}

func TestApp_ConcurrentAbsoluteSubmissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	round := env.activeRound(t)
	userID := uuid.New()

	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func(count int64) {
			defer wg.Done()
			_, err := env.app.SubmitTap(ctx, rounds.TapRequest{RoundID: round.ID, UserID: userID, TapCount: count})
			if err != nil {
				assert.ErrorIs(t, err, rounds.ErrMonotonicityViolation)
			}
		}(i)
	}
	wg.Wait()

	p, err := env.store.GetParticipant(ctx, round.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), p.TapCount)
	assert.Equal(t, int64(86), p.Score)

	got, err := env.store.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(86), got.TotalPoints)
}

func TestApp_PublishFailureDoesNotFailTap(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "rounds.db"), clock, sqlutil.DefaultRetryPolicy())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	failing := events.PublisherFunc(func(context.Context, events.Event) error {
		return errors.New("bus down")
	})
	app := rounds.NewApp(store, clock, failing, rounds.Settings{RoundDuration: time.Minute})
	ctx := context.Background()

	round, err := app.CreateRound(ctx, rounds.CreateRoundRequest{CreatedBy: uuid.New()})
	require.NoError(t, err)

	res, err := app.Tap(ctx, round.ID, uuid.New(), "erin", 11)
	require.NoError(t, err)
	assert.Equal(t, int64(20), res.RoundTotalPoints)
}

func TestApp_ListRounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cooling, err := env.app.CreateRound(ctx, rounds.CreateRoundRequest{CreatedBy: uuid.New(), CooldownSeconds: cooldown(120)})
	require.NoError(t, err)
	active := env.activeRound(t)

	all, err := env.app.ListRounds(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, cooling.ID, all[0].Round.ID)
	assert.Equal(t, active.ID, all[1].Round.ID)

	status := models.RoundStatusActive
	filtered, err := env.app.ListRounds(ctx, &status)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, active.ID, filtered[0].Round.ID)
	require.NotNil(t, filtered[0].TimeRemaining)
	assert.Equal(t, int64(60), *filtered[0].TimeRemaining)
	assert.Nil(t, filtered[0].TimeUntilStart)

	status = models.RoundStatusCompleted
	filtered, err = env.app.ListRounds(ctx, &status)
	require.NoError(t, err)
	assert.Empty(t, filtered)
}

func TestApp_GetRoundDetail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	round := env.activeRound(t)

	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	_, err := env.app.Tap(ctx, round.ID, bob, "bob", 11)
	require.NoError(t, err)
	env.clock.Advance(time.Second)
	_, err = env.app.Tap(ctx, round.ID, alice, "alice", 11)
	require.NoError(t, err)
	_, err = env.app.Tap(ctx, round.ID, carol, "carol", 2)
	require.NoError(t, err)

	detail, err := env.app.GetRoundDetail(ctx, round.ID, &alice, 2)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusActive, detail.Phase)
	assert.Equal(t, int64(42), detail.TotalPoints)
	require.NotNil(t, detail.Me)
	assert.Equal(t, int64(20), detail.Me.Score)
	require.Len(t, detail.Leaderboard, 2)
	assert.Equal(t, bob, detail.Leaderboard[0].UserID)
	assert.Nil(t, detail.Winner)

	env.clock.Advance(time.Minute)
	stranger := uuid.New()
	detail, err = env.app.GetRoundDetail(ctx, round.ID, &stranger, 0)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusCompleted, detail.Phase)
	assert.Nil(t, detail.Me)
	assert.Len(t, detail.Leaderboard, 3)
	require.NotNil(t, detail.Winner)
	assert.Equal(t, bob, detail.Winner.UserID)

	_, err = env.app.GetRoundDetail(ctx, uuid.New(), nil, 0)
	assert.ErrorIs(t, err, rounds.ErrRoundNotFound)
}

func TestApp_CompletedRoundWithoutPointsHasNoWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	round := env.activeRound(t)

	env.clock.Advance(2 * time.Minute)
	detail, err := env.app.GetRoundDetail(ctx, round.ID, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusCompleted, detail.Phase)
	assert.Empty(t, detail.Leaderboard)
	assert.Nil(t, detail.Winner)
}

func TestClampLeaderboardLimit(t *testing.T) {
	assert.Equal(t, rounds.DefaultLeaderboardLimit, rounds.ClampLeaderboardLimit(0))
	assert.Equal(t, rounds.DefaultLeaderboardLimit, rounds.ClampLeaderboardLimit(-4))
	assert.Equal(t, 7, rounds.ClampLeaderboardLimit(7))
	assert.Equal(t, rounds.MaxLeaderboardLimit, rounds.ClampLeaderboardLimit(500))
}
