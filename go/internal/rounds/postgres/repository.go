package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/taprounds/go/internal/models"
	"github.com/mcdev12/taprounds/go/internal/rounds"
	"github.com/mcdev12/taprounds/go/internal/sqlutil"
)

const (
	roundColumns       = `id, status, cooldown_start_at, start_at, end_at, total_points, created_by, created_at, updated_at`
	participantColumns = `id, round_id, user_id, username, tap_count, score, last_tapped_at, created_at, updated_at`
)

// Repository handles round and participant persistence on Postgres.
type Repository struct {
	pool  *pgxpool.Pool
	clock clockwork.Clock
	retry sqlutil.RetryPolicy
}

// NewRepository creates a new Postgres rounds repository. A nil clock uses the real clock.
func NewRepository(pool *pgxpool.Pool, clock clockwork.Clock, retry sqlutil.RetryPolicy) *Repository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Repository{
		pool:  pool,
		clock: clock,
		retry: retry,
	}
}

var _ rounds.RoundsRepository = (*Repository)(nil)

func (r *Repository) CreateRound(ctx context.Context, round models.Round) (*models.Round, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO rounds (`+roundColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+roundColumns,
		round.ID,
		string(round.Status),
		round.CooldownStartAt,
		round.StartAt,
		round.EndAt,
		round.TotalPoints,
		round.CreatedBy,
		round.CreatedAt,
		round.UpdatedAt,
	)

	created, err := scanRound(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert round: %w", err)
	}
	return created, nil
}

func (r *Repository) GetRound(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1`, id)

	round, err := scanRound(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", rounds.ErrRoundNotFound, id)
		}
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return round, nil
}

func (r *Repository) ListRounds(ctx context.Context) ([]models.Round, error) {
	return r.queryRounds(ctx, `SELECT `+roundColumns+` FROM rounds ORDER BY start_at DESC`)
}

// ListSchedulableRounds returns rounds whose persisted status has not reached COMPLETED.
func (r *Repository) ListSchedulableRounds(ctx context.Context) ([]models.Round, error) {
	return r.queryRounds(ctx, `SELECT `+roundColumns+` FROM rounds WHERE status <> $1 ORDER BY start_at ASC`,
		string(models.RoundStatusCompleted))
}

// UpdateRoundStatus moves a round from one status to another. It reports false when the
// round is no longer in the from status.
func (r *Repository) UpdateRoundStatus(ctx context.Context, id uuid.UUID, from, to models.RoundStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE rounds SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), r.clock.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update round status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) GetParticipant(ctx context.Context, roundID, userID uuid.UUID) (*models.Participant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+participantColumns+` FROM round_participants
		WHERE round_id = $1 AND user_id = $2`,
		roundID, userID,
	)

	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

// ListTopParticipants orders by score, earliest last tap first on ties.
func (r *Repository) ListTopParticipants(ctx context.Context, roundID uuid.UUID, limit int) ([]models.Participant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+participantColumns+` FROM round_participants
		WHERE round_id = $1
		ORDER BY score DESC, last_tapped_at ASC NULLS LAST, created_at ASC
		LIMIT $2`,
		roundID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return participants, nil
}

// ApplyTap locks the participant row (creating it on first tap), lets fn decide the next
// state and writes it back together with the round total increment. Serialization failures
// and deadlocks re-run the whole unit.
func (r *Repository) ApplyTap(ctx context.Context, roundID, userID uuid.UUID, username string, fn rounds.TapFunc) (*rounds.TapOutcome, error) {
	var outcome *rounds.TapOutcome
	err := sqlutil.WithRetry(ctx, r.retry, isTransient, func() error {
		var err error
		outcome, err = r.applyTapOnce(ctx, roundID, userID, username, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (r *Repository) applyTapOnce(ctx context.Context, roundID, userID uuid.UUID, username string, fn rounds.TapFunc) (*rounds.TapOutcome, error) {
	var outcome rounds.TapOutcome

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		round, err := scanRound(tx.QueryRow(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1`, roundID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s", rounds.ErrRoundNotFound, roundID)
			}
			return fmt.Errorf("failed to load round: %w", err)
		}

		now := r.clock.Now().UTC()
		if _, err := tx.Exec(ctx, `
			INSERT INTO round_participants (id, round_id, user_id, username, tap_count, score, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 0, 0, $5, $5)
			ON CONFLICT (round_id, user_id) DO NOTHING`,
			uuid.New(), roundID, userID, username, now,
		); err != nil {
			return fmt.Errorf("failed to ensure participant: %w", err)
		}

		current, err := scanParticipant(tx.QueryRow(ctx, `
			SELECT `+participantColumns+` FROM round_participants
			WHERE round_id = $1 AND user_id = $2
			FOR UPDATE`,
			roundID, userID,
		))
		if err != nil {
			return fmt.Errorf("failed to lock participant: %w", err)
		}

		next, err := fn(*round, *current)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE round_participants
			SET username = $2, tap_count = $3, score = $4, last_tapped_at = $5, updated_at = $6
			WHERE id = $1`,
			current.ID, next.Username, next.TapCount, next.Score, next.LastTappedAt, next.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to update participant: %w", err)
		}

		var total int64
		if delta := rounds.ScoreDelta(current.TapCount, next.TapCount); delta > 0 {
			err = tx.QueryRow(ctx, `
				UPDATE rounds SET total_points = total_points + $2, updated_at = $3
				WHERE id = $1
				RETURNING total_points`,
				roundID, delta, next.UpdatedAt,
			).Scan(&total)
		} else {
			err = tx.QueryRow(ctx, `SELECT total_points FROM rounds WHERE id = $1`, roundID).Scan(&total)
		}
		if err != nil {
			return fmt.Errorf("failed to update round total: %w", err)
		}

		next.ID = current.ID
		next.RoundID = roundID
		next.UserID = userID
		next.CreatedAt = current.CreatedAt
		outcome = rounds.TapOutcome{Participant: next, RoundTotalPoints: total}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

func (r *Repository) queryRounds(ctx context.Context, query string, args ...any) ([]models.Round, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	defer rows.Close()

	var result []models.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		result = append(result, *round)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rounds: %w", err)
	}
	return result, nil
}

// Helper methods

func scanRound(row pgx.Row) (*models.Round, error) {
	var (
		round  models.Round
		status string
	)
	if err := row.Scan(
		&round.ID,
		&status,
		&round.CooldownStartAt,
		&round.StartAt,
		&round.EndAt,
		&round.TotalPoints,
		&round.CreatedBy,
		&round.CreatedAt,
		&round.UpdatedAt,
	); err != nil {
		return nil, err
	}
	round.Status = models.RoundStatus(status)
	round.CooldownStartAt = round.CooldownStartAt.UTC()
	round.StartAt = round.StartAt.UTC()
	round.EndAt = round.EndAt.UTC()
	return &round, nil
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	if err := row.Scan(
		&p.ID,
		&p.RoundID,
		&p.UserID,
		&p.Username,
		&p.TapCount,
		&p.Score,
		&p.LastTappedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if p.LastTappedAt != nil {
		t := p.LastTappedAt.UTC()
		p.LastTappedAt = &t
	}
	return &p, nil
}

// isTransient reports serialization failures and deadlocks.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return true
		}
	}
	return false
}
