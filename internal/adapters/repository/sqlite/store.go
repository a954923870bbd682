// Package sqlite implements repository.Store on SQLite. Every conditional
// write is a single statement or runs inside one transaction on a single
// connection, so racing callers observe the same outcomes as with the
// in-memory store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/gauntlet/internal/adapters/repository"
	"github.com/okian/gauntlet/internal/adapters/repository/sqlite/migrations"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/domain/model"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store is the SQLite-backed repository.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var _ repository.Store = (*Store)(nil)

// Open opens the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serialises writers; conditional updates stay atomic
	// without SQLITE_BUSY retries.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func millis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// withTx runs fn in a transaction and commits when it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

const matchColumns = `id, status, theme, round, champion, seed, created_at, updated_at`

func scanMatch(row scanner) (match.Match, error) {
	var (
		m                match.Match
		status           string
		seed             int64
		created, updated int64
	)
	if err := row.Scan(&m.ID, &status, &m.Theme, &m.Round, &m.Champion, &seed, &created, &updated); err != nil {
		return match.Match{}, err
	}
	m.Status = match.Status(status)
	m.Seed = uint64(seed)
	m.CreatedAt, m.UpdatedAt = fromMillis(created), fromMillis(updated)
	return m, nil
}

// CreateMatch implements repository.MatchStore.
func (s *Store) CreateMatch(ctx context.Context, m match.Match) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO matches (`+matchColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, string(m.Status), m.Theme, m.Round, m.Champion, int64(m.Seed), millis(m.CreatedAt), millis(now),
	)
	if isConstraintError(err) {
		return fmt.Errorf("match %s: %w", m.ID, repository.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

// GetMatch implements repository.MatchStore.
func (s *Store) GetMatch(ctx context.Context, id string) (match.Match, error) {
	if err := ctx.Err(); err != nil {
		return match.Match{}, err
	}
	return getMatch(ctx, s.sqlDB, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getMatch(ctx context.Context, q queryRower, id string) (match.Match, error) {
	m, err := scanMatch(q.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return match.Match{}, fmt.Errorf("match %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return match.Match{}, fmt.Errorf("get match: %w", err)
	}
	return m, nil
}

// ListMatches implements repository.MatchStore.
func (s *Store) ListMatches(ctx context.Context) ([]match.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+matchColumns+` FROM matches ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()
	var out []match.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// TransitionStatus implements repository.MatchStore.
func (s *Store) TransitionStatus(ctx context.Context, id string, expected []match.Status, next match.Status) (match.Match, error) {
	if err := ctx.Err(); err != nil {
		return match.Match{}, err
	}
	if len(expected) == 0 {
		m, err := s.GetMatch(ctx, id)
		if err != nil {
			return match.Match{}, err
		}
		return m, fmt.Errorf("match %s: no expected status: %w", id, repository.ErrTransitionConflict)
	}

	round, keepRound := next.RoundNumber(), 1
	if round > 0 {
		keepRound = 0
	}
	reset := next == match.StatusWaiting
	if reset {
		round, keepRound = 0, 0
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(expected)), ", ")
	args := []any{string(next), keepRound, round, boolInt(reset), millis(s.now()), id}
	for _, st := range expected {
		args = append(args, string(st))
	}

	var out match.Match
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE matches SET
	status = ?,
	round = CASE WHEN ? = 1 THEN round ELSE ? END,
	champion = CASE WHEN ? = 1 THEN '' ELSE champion END,
	updated_at = ?
WHERE id = ? AND status IN (`+placeholders+`)`, args...)
		if err != nil {
			return fmt.Errorf("transition match: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("transition match: %w", err)
		}
		current, err := getMatch(ctx, tx, id)
		if err != nil {
			return err
		}
		out = current
		if n == 0 {
			return fmt.Errorf("match %s is %s, want one of %v: %w", id, current.Status, expected, repository.ErrTransitionConflict)
		}
		return nil
	})
	return out, err
}

// SetChampion implements repository.MatchStore.
func (s *Store) SetChampion(ctx context.Context, id, entrantID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.GetMatch(ctx, id); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`UPDATE matches SET champion = ?, updated_at = ? WHERE id = ? AND champion = ''`,
		entrantID, millis(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("set champion: %w", err)
	}
	return nil
}

// PutEntrants implements repository.EntrantStore.
func (s *Store) PutEntrants(ctx context.Context, matchID string, entrants []model.Entrant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entrants {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encode entrant %s: %w", e.ID, err)
			}
			_, err = tx.ExecContext(ctx, `
INSERT INTO entrants (match_id, id, position, data)
VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM entrants WHERE match_id = ?), ?)
ON CONFLICT (match_id, id) DO UPDATE SET data = excluded.data`,
				matchID, e.ID, matchID, string(data),
			)
			if err != nil {
				return fmt.Errorf("put entrant %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

// ListEntrants implements repository.EntrantStore.
func (s *Store) ListEntrants(ctx context.Context, matchID string) ([]model.Entrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT data FROM entrants WHERE match_id = ? ORDER BY position`, matchID)
	if err != nil {
		return nil, fmt.Errorf("list entrants: %w", err)
	}
	defer rows.Close()
	var out []model.Entrant
	for rows.Next() {
		var e model.Entrant
		if err := scanJSON(rows, &e); err != nil {
			return nil, fmt.Errorf("scan entrant: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanJSON(row scanner, dest any) error {
	var data string
	if err := row.Scan(&data); err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// AppendEvents implements repository.EventStore.
func (s *Store) AppendEvents(ctx context.Context, matchID string, stage match.Status, events []model.Event) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if events == nil {
		events = []model.Event{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return false, fmt.Errorf("encode events: %w", err)
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO event_batches (match_id, stage, data) VALUES (?, ?, ?) ON CONFLICT (match_id, stage) DO NOTHING`,
		matchID, string(stage), string(data),
	)
	if err != nil {
		return false, fmt.Errorf("append events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append events: %w", err)
	}
	return n == 1, nil
}

// ListEvents implements repository.EventStore.
func (s *Store) ListEvents(ctx context.Context, matchID string, stage match.Status) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []model.Event
	err := scanJSON(s.sqlDB.QueryRowContext(ctx,
		`SELECT data FROM event_batches WHERE match_id = ? AND stage = ?`, matchID, string(stage)), &out)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

// PutSnapshot implements repository.SnapshotStore.
func (s *Store) PutSnapshot(ctx context.Context, snap model.Snapshot) (model.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, false, err
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = s.now().UTC()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return model.Snapshot{}, false, fmt.Errorf("encode snapshot: %w", err)
	}
	res, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO snapshots (match_id, stage, stage_index, data, created_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (match_id, stage) DO NOTHING`,
		snap.MatchID, string(snap.Stage), snap.Stage.Index(), string(data), millis(snap.CreatedAt),
	)
	if err != nil {
		return model.Snapshot{}, false, fmt.Errorf("put snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Snapshot{}, false, fmt.Errorf("put snapshot: %w", err)
	}
	stored, err := s.GetSnapshot(ctx, snap.MatchID, snap.Stage)
	if err != nil {
		return model.Snapshot{}, false, err
	}
	return stored, n == 1, nil
}

// GetSnapshot implements repository.SnapshotStore.
func (s *Store) GetSnapshot(ctx context.Context, matchID string, stage match.Status) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, err
	}
	var snap model.Snapshot
	err := scanJSON(s.sqlDB.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE match_id = ? AND stage = ?`, matchID, string(stage)), &snap)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Snapshot{}, fmt.Errorf("snapshot %s/%s: %w", matchID, stage, repository.ErrNotFound)
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots implements repository.SnapshotStore.
func (s *Store) ListSnapshots(ctx context.Context, matchID string) ([]model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT data FROM snapshots WHERE match_id = ? ORDER BY stage_index`, matchID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()
	var out []model.Snapshot
	for rows.Next() {
		var snap model.Snapshot
		if err := scanJSON(rows, &snap); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
