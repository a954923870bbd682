package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/gauntlet/internal/adapters/repository"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/domain/model"
)

const jobColumns = `id, match_id, target, progress, state, attempts, last_error, created_at, updated_at`

// PutJob implements repository.JobStore.
func (s *Store) PutJob(ctx context.Context, job model.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	match_id = excluded.match_id,
	target = excluded.target,
	progress = excluded.progress,
	state = excluded.state,
	attempts = excluded.attempts,
	last_error = excluded.last_error,
	updated_at = excluded.updated_at`,
		job.ID, job.MatchID, string(job.Target), string(job.Progress), string(job.State),
		job.Attempts, job.LastError, millis(job.CreatedAt), millis(now),
	)
	if err != nil {
		return fmt.Errorf("put job: %w", err)
	}
	return nil
}

func scanJob(row scanner) (model.Job, error) {
	var (
		j                       model.Job
		target, progress, state string
		created, updated        int64
	)
	if err := row.Scan(&j.ID, &j.MatchID, &target, &progress, &state, &j.Attempts, &j.LastError, &created, &updated); err != nil {
		return model.Job{}, err
	}
	j.Target, j.Progress = match.Status(target), match.Status(progress)
	j.State = model.JobState(state)
	j.CreatedAt, j.UpdatedAt = fromMillis(created), fromMillis(updated)
	return j, nil
}

// GetJob implements repository.JobStore.
func (s *Store) GetJob(ctx context.Context, id string) (model.Job, error) {
	if err := ctx.Err(); err != nil {
		return model.Job{}, err
	}
	j, err := scanJob(s.sqlDB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, fmt.Errorf("job %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// ListJobs implements repository.JobStore.
func (s *Store) ListJobs(ctx context.Context, states ...model.JobState) ([]model.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		query += ` WHERE state IN (` + strings.TrimSuffix(strings.Repeat("?, ", len(states)), ", ") + `)`
		for _, st := range states {
			args = append(args, string(st))
		}
	}
	rows, err := s.sqlDB.QueryContext(ctx, query+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var out []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
