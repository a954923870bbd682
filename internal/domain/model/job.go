package model

import (
	"time"

	"github.com/okian/gauntlet/internal/domain/match"
)

// JobState is the lifecycle of a batch advance job.
type JobState string

// Job states.
const (
	JobPending JobState = "pending"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// Job advances a match toward Target one stage at a time, persisting
// Progress after each completed stage so a failed run resumes there.
type Job struct {
	ID        string       `json:"id"`
	MatchID   string       `json:"match_id"`
	Target    match.Status `json:"target"`
	Progress  match.Status `json:"progress"`
	State     JobState     `json:"state"`
	Attempts  int          `json:"attempts"`
	LastError string       `json:"last_error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Finished reports whether the job needs no more runs.
func (j Job) Finished() bool {
	return j.State == JobDone
}
