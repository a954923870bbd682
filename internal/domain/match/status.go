// Package match models the match lifecycle: the status enum and the
// transition table that gates every phase advance.
package match

import (
	"fmt"
	"strconv"
	"strings"
)

// Status is the canonical phase of a match.
type Status string

// Match statuses in lifecycle order.
const (
	StatusWaiting           Status = "waiting"
	StatusCountdown         Status = "countdown"
	StatusIntro             Status = "intro"
	StatusRound1            Status = "round_1"
	StatusRound2            Status = "round_2"
	StatusRound3            Status = "round_3"
	StatusRound4            Status = "round_4"
	StatusRound5            Status = "round_5"
	StatusSemifinalBracket  Status = "semifinal_bracket"
	StatusArtifactSelection Status = "artifact_selection"
	StatusFinalBracket      Status = "final_bracket"
	StatusEnding            Status = "ending"
	StatusEnded             Status = "ended"
)

// MaxRounds is the number of elimination rounds before the bracket.
const MaxRounds = 5

const roundPrefix = "round_"

// All lists every status in lifecycle order.
var All = []Status{
	StatusWaiting, StatusCountdown, StatusIntro,
	StatusRound1, StatusRound2, StatusRound3, StatusRound4, StatusRound5,
	StatusSemifinalBracket, StatusArtifactSelection, StatusFinalBracket,
	StatusEnding, StatusEnded,
}

// Round returns the status of elimination round n (1-based).
func Round(n int) Status {
	return Status(roundPrefix + strconv.Itoa(n))
}

// Parse validates s as a status.
func Parse(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	for _, known := range All {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// IsRound reports whether s is one of the elimination rounds.
func (s Status) IsRound() bool {
	return s.RoundNumber() > 0
}

// RoundNumber returns the 1-based round for round statuses, 0 otherwise.
func (s Status) RoundNumber() int {
	if !strings.HasPrefix(string(s), roundPrefix) {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(string(s), roundPrefix))
	if err != nil || n < 1 || n > MaxRounds {
		return 0
	}
	return n
}

// HasOutput reports whether entering s produces a persisted stage output
// that must exist before the match may advance past s.
func (s Status) HasOutput() bool {
	switch {
	case s.IsRound():
		return true
	case s == StatusSemifinalBracket, s == StatusFinalBracket, s == StatusEnding:
		return true
	default:
		return false
	}
}

// IsFinal reports whether s is terminal.
func (s Status) IsFinal() bool { return s == StatusEnded }

// Index returns the lifecycle position of s, or -1 if unknown.
func (s Status) Index() int {
	for i, known := range All {
		if known == s {
			return i
		}
	}
	return -1
}

// Before reports whether s comes strictly before other in the lifecycle.
func (s Status) Before(other Status) bool {
	return s.Index() >= 0 && other.Index() >= 0 && s.Index() < other.Index()
}

func (s Status) String() string { return string(s) }
