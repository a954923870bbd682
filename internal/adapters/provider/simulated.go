package provider

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/gauntlet/internal/domain/combat"
	"github.com/okian/gauntlet/internal/domain/decision"
	"github.com/okian/gauntlet/internal/domain/model"
)

const (
	defaultMinLatency = 80 * time.Millisecond
	defaultMaxLatency = 150 * time.Millisecond
	defaultSimSeed    = 42
)

// SimulatedProvider stands in for remote agents: it answers after a random
// latency in a configured range and fails at a configured rate.
type SimulatedProvider struct {
	minLatency  time.Duration
	maxLatency  time.Duration
	failureRate float64
	seed        uint64

	mu  sync.Mutex
	rng *rand.Rand
}

var _ decision.Provider = (*SimulatedProvider)(nil)

// NewSimulatedProvider creates a simulated provider.
func NewSimulatedProvider(opts ...SimOption) *SimulatedProvider {
	s := &SimulatedProvider{
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		seed:       defaultSimSeed,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rng = combat.NewRNG(s.seed, "simulated-provider")
	return s
}

// Decide implements decision.Provider.
func (s *SimulatedProvider) Decide(ctx context.Context, req decision.Request) (decision.Response, error) {
	s.mu.Lock()
	latency := s.minLatency
	if span := s.maxLatency - s.minLatency; span > 0 {
		latency += time.Duration(s.rng.Int64N(int64(span)))
	}
	fail := s.rng.Float64() < s.failureRate
	allowed := req.Allowed
	if len(allowed) == 0 {
		allowed = model.RoundActions
	}
	resp := decision.Response{Action: combat.Pick(s.rng, allowed), Flavor: "simulated"}
	if resp.Action.NeedsTarget() {
		switch {
		case req.OpponentID != "":
			resp.TargetID = req.OpponentID
		case len(req.Others) > 0:
			resp.TargetID = combat.Pick(s.rng, req.Others).ID
		default:
			resp.Action = model.ActionDefend
		}
	}
	s.mu.Unlock()

	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return decision.Response{}, fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-timer.C:
	}
	if fail {
		return decision.Response{}, ErrSimulated
	}
	return resp, nil
}
