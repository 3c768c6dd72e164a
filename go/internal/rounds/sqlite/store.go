// Package sqlite provides a SQLite-backed rounds repository for single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/taprounds/go/internal/models"
	"github.com/mcdev12/taprounds/go/internal/rounds"
	"github.com/mcdev12/taprounds/go/internal/sqlutil"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schema string

const (
	roundColumns       = `id, status, cooldown_start_at, start_at, end_at, total_points, created_by, created_at, updated_at`
	participantColumns = `id, round_id, user_id, username, tap_count, score, last_tapped_at, created_at, updated_at`
)

// Store persists rounds and participants in SQLite.
// All access goes through a single connection, so write transactions never interleave.
type Store struct {
	sqlDB *sql.DB
	clock clockwork.Clock
	retry sqlutil.RetryPolicy
}

var _ rounds.RoundsRepository = (*Store)(nil)

// Open opens a SQLite rounds store and applies the schema. A nil clock uses the real clock.
func Open(path string, clock clockwork.Clock, retry sqlutil.RetryPolicy) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{sqlDB: sqlDB, clock: clock, retry: retry}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) CreateRound(ctx context.Context, round models.Round) (*models.Round, error) {
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO rounds (`+roundColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		round.ID.String(),
		string(round.Status),
		sqlutil.ToMillis(round.CooldownStartAt),
		sqlutil.ToMillis(round.StartAt),
		sqlutil.ToMillis(round.EndAt),
		round.TotalPoints,
		round.CreatedBy.String(),
		sqlutil.ToMillis(round.CreatedAt),
		sqlutil.ToMillis(round.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert round: %w", err)
	}
	return s.GetRound(ctx, round.ID)
}

func (s *Store) GetRound(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	round, err := scanRound(s.sqlDB.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", rounds.ErrRoundNotFound, id)
		}
		return nil, fmt.Errorf("get round: %w", err)
	}
	return round, nil
}

func (s *Store) ListRounds(ctx context.Context) ([]models.Round, error) {
	return s.queryRounds(ctx, `SELECT `+roundColumns+` FROM rounds ORDER BY start_at DESC`)
}

func (s *Store) ListSchedulableRounds(ctx context.Context) ([]models.Round, error) {
	return s.queryRounds(ctx, `SELECT `+roundColumns+` FROM rounds WHERE status <> ? ORDER BY start_at ASC`,
		string(models.RoundStatusCompleted))
}

func (s *Store) UpdateRoundStatus(ctx context.Context, id uuid.UUID, from, to models.RoundStatus) (bool, error) {
	res, err := s.sqlDB.ExecContext(ctx, `
		UPDATE rounds SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), sqlutil.ToMillis(s.clock.Now()), id.String(), string(from),
	)
	if err != nil {
		return false, fmt.Errorf("update round status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update round status: %w", err)
	}
	return n == 1, nil
}

func (s *Store) GetParticipant(ctx context.Context, roundID, userID uuid.UUID) (*models.Participant, error) {
	p, err := scanParticipant(s.sqlDB.QueryRowContext(ctx, `
		SELECT `+participantColumns+` FROM round_participants
		WHERE round_id = ? AND user_id = ?`,
		roundID.String(), userID.String(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

func (s *Store) ListTopParticipants(ctx context.Context, roundID uuid.UUID, limit int) ([]models.Participant, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT `+participantColumns+` FROM round_participants
		WHERE round_id = ?
		ORDER BY score DESC, last_tapped_at IS NULL, last_tapped_at ASC, created_at ASC
		LIMIT ?`,
		roundID.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return participants, nil
}

// ApplyTap runs fn and its writes in one transaction. Busy or locked databases re-run the unit.
func (s *Store) ApplyTap(ctx context.Context, roundID, userID uuid.UUID, username string, fn rounds.TapFunc) (*rounds.TapOutcome, error) {
	var outcome *rounds.TapOutcome
	err := sqlutil.WithRetry(ctx, s.retry, isBusy, func() error {
		var err error
		outcome, err = s.applyTapOnce(ctx, roundID, userID, username, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *Store) applyTapOnce(ctx context.Context, roundID, userID uuid.UUID, username string, fn rounds.TapFunc) (*rounds.TapOutcome, error) {
	var outcome rounds.TapOutcome

	err := sqlutil.Run(ctx, s.sqlDB, func(tx *sql.Tx) error {
		round, err := scanRound(tx.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = ?`, roundID.String()))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", rounds.ErrRoundNotFound, roundID)
			}
			return fmt.Errorf("load round: %w", err)
		}

		now := sqlutil.ToMillis(s.clock.Now())
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO round_participants (id, round_id, user_id, username, tap_count, score, created_at, updated_at)
			VALUES (?, ?, ?, ?, 0, 0, ?, ?)
			ON CONFLICT (round_id, user_id) DO NOTHING`,
			uuid.NewString(), roundID.String(), userID.String(), username, now, now,
		); err != nil {
			return fmt.Errorf("ensure participant: %w", err)
		}

		current, err := scanParticipant(tx.QueryRowContext(ctx, `
			SELECT `+participantColumns+` FROM round_participants
			WHERE round_id = ? AND user_id = ?`,
			roundID.String(), userID.String(),
		))
		if err != nil {
			return fmt.Errorf("load participant: %w", err)
		}

		next, err := fn(*round, *current)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE round_participants
			SET username = ?, tap_count = ?, score = ?, last_tapped_at = ?, updated_at = ?
			WHERE id = ?`,
			next.Username, next.TapCount, next.Score,
			sqlutil.ToNullMillis(next.LastTappedAt), sqlutil.ToMillis(next.UpdatedAt),
			current.ID.String(),
		); err != nil {
			return fmt.Errorf("update participant: %w", err)
		}

		var total int64
		if delta := rounds.ScoreDelta(current.TapCount, next.TapCount); delta > 0 {
			err = tx.QueryRowContext(ctx, `
				UPDATE rounds SET total_points = total_points + ?, updated_at = ?
				WHERE id = ?
				RETURNING total_points`,
				delta, sqlutil.ToMillis(next.UpdatedAt), roundID.String(),
			).Scan(&total)
		} else {
			err = tx.QueryRowContext(ctx, `SELECT total_points FROM rounds WHERE id = ?`, roundID.String()).Scan(&total)
		}
		if err != nil {
			return fmt.Errorf("update round total: %w", err)
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

func (s *Store) queryRounds(ctx context.Context, query string, args ...any) ([]models.Round, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer rows.Close()

	var result []models.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		result = append(result, *round)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rounds: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRound(row rowScanner) (*models.Round, error) {
	var (
		round                              models.Round
		status                             string
		cooldownStart, start, end, created int64
		updated                            int64
	)
	if err := row.Scan(
		&round.ID,
		&status,
		&cooldownStart,
		&start,
		&end,
		&round.TotalPoints,
		&round.CreatedBy,
		&created,
		&updated,
	); err != nil {
		return nil, err
	}
	round.Status = models.RoundStatus(status)
	round.CooldownStartAt = sqlutil.FromMillis(cooldownStart)
	round.StartAt = sqlutil.FromMillis(start)
	round.EndAt = sqlutil.FromMillis(end)
	round.CreatedAt = sqlutil.FromMillis(created)
	round.UpdatedAt = sqlutil.FromMillis(updated)
	return &round, nil
}

func scanParticipant(row rowScanner) (*models.Participant, error) {
	var (
		p                models.Participant
		lastTapped       sql.NullInt64
		created, updated int64
	)
	if err := row.Scan(
		&p.ID,
		&p.RoundID,
		&p.UserID,
		&p.Username,
		&p.TapCount,
		&p.Score,
		&lastTapped,
		&created,
		&updated,
	); err != nil {
		return nil, err
	}
	p.LastTappedAt = sqlutil.FromNullMillis(lastTapped)
	p.CreatedAt = sqlutil.FromMillis(created)
	p.UpdatedAt = sqlutil.FromMillis(updated)
	return &p, nil
}

func isBusy(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return true
		}
	}
	return false
}
