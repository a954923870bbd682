// Package simulation drives complete matches through the HTTP API and
// verifies what the service stored for them.
package simulation

import (
	"errors"
	"fmt"
	"time"
)

// ErrVerification marks a match whose stored outcome breaks an invariant.
var ErrVerification = errors.New("simulation verification failed")

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL  string        // Base URL of the service
	Matches  int           // Number of matches to play
	Workers  int           // Matches played concurrently
	Bettors  int           // Bettor accounts per match
	Stake    int64         // Amount each bettor stakes
	Balance  int64         // Opening balance of each bettor
	Triggers int           // Concurrent duplicate triggers per stage
	Timeout  time.Duration // HTTP request timeout
	Verbose  bool          // Log every stage
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return errors.New("base url is required")
	case c.Matches < 1 || c.Workers < 1:
		return fmt.Errorf("matches (%d) and workers (%d) must be positive", c.Matches, c.Workers)
	case c.Bettors < 0 || c.Stake < 0 || c.Balance < 0:
		return errors.New("bettors, stake and balance must not be negative")
	case c.Triggers < 1:
		return fmt.Errorf("triggers (%d) must be positive", c.Triggers)
	case c.Timeout <= 0:
		return errors.New("timeout must be positive")
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	MatchesPlayed   int
	MatchesVerified int
	Stages          int
	Triggers        int
	Conflicts       int
	Bets            int
	Gifts           int
	Payouts         int64
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}

// Outcome is the verified result of one match.
type Outcome struct {
	MatchID   string
	Champion  string
	Stages    int
	Triggers  int
	Conflicts int
	Bets      int
	Gifts     int
	Payouts   int64
}
