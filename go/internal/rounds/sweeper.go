package rounds

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/taprounds/go/internal/events"
	"github.com/mcdev12/taprounds/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultSweepInterval is how often the sweeper re-evaluates phases.
const DefaultSweepInterval = time.Second

// StatusRepository is the subset of the repository the sweeper needs.
type StatusRepository interface {
	ListSchedulableRounds(ctx context.Context) ([]models.Round, error)
	UpdateRoundStatus(ctx context.Context, id uuid.UUID, from, to models.RoundStatus) (bool, error)
}

// Sweeper keeps the persisted status column in step with the derived phase.
// The column is only an index for filtering; correctness checks always call ComputePhase.
type Sweeper struct {
	repo      StatusRepository
	clock     clockwork.Clock
	publisher events.Publisher
	interval  time.Duration

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewSweeper creates a lifecycle sweeper.
func NewSweeper(repo StatusRepository, clock clockwork.Clock, publisher events.Publisher, interval time.Duration) *Sweeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		repo:      repo,
		clock:     clock,
		publisher: publisher,
		interval:  interval,
	}
}

// Start runs the sweep loop in the background until ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("round lifecycle sweeper already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	log.Info().Dur("interval", s.interval).Msg("round lifecycle sweeper started")
	return nil
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("round lifecycle sweeper not running")
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	log.Info().Msg("round lifecycle sweeper stopped")
	return nil
}

// Running reports whether the loop is active.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.Chan():
			if _, err := s.SweepOnce(ctx); err != nil {
				log.Error().Err(err).Msg("round lifecycle sweep failed")
			}
		}
	}
}

// SweepOnce re-evaluates every non-completed round and persists phase changes.
// A failure on one round is logged and does not stop the others.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	rounds, err := s.repo.ListSchedulableRounds(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list schedulable rounds: %w", err)
	}

	now := s.clock.Now()
	for _, round := range rounds {
		report.Checked++

		computed := ComputePhase(round, now)
		if computed == round.Status || !IsForwardTransition(round.Status, computed) {
			continue
		}

		updated, err := s.repo.UpdateRoundStatus(ctx, round.ID, round.Status, computed)
		if err != nil {
			report.Failed++
			log.Error().
				Err(err).
				Str("round_id", round.ID.String()).
				Str("old_status", string(round.Status)).
				Str("new_status", string(computed)).
				Msg("failed to update round status")
			continue
		}
		if !updated {
			// Another sweeper got there first.
			continue
		}

		report.Updated++
		log.Info().
			Str("round_id", round.ID.String()).
			Str("old_status", string(round.Status)).
			Str("new_status", string(computed)).
			Msg("round status updated")

		s.publishStatusChanged(ctx, round, computed, now)
	}

	return report, nil
}

func (s *Sweeper) publishStatusChanged(ctx context.Context, round models.Round, to models.RoundStatus, at time.Time) {
	ev, err := events.New(events.EventTypeRoundStatusChanged, round.ID, at, events.RoundStatusChangedPayload{
		From:      string(round.Status),
		To:        string(to),
		ChangedAt: at.UTC(),
	})
	if err == nil {
		err = s.publisher.Publish(ctx, ev)
	}
	if err != nil {
		log.Error().Err(err).Str("round_id", round.ID.String()).Msg("failed to publish status change")
	}
}
