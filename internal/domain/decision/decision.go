// Package decision gathers one action per entrant per round, from the bot
// policy or from a remote provider with refresh-retry and random fallback.
package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/gauntlet/internal/domain/combat"
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/pkg/logger"
	"github.com/okian/gauntlet/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Default collector configuration constants.
const (
	defaultTimeout     = 2 * time.Second
	defaultConcurrency = 16
	recentEventWindow  = 10
)

// Request is the context a provider receives for one entrant.
type Request struct {
	MatchID string          `json:"match_id"`
	Stage   string          `json:"stage"`
	Round   int             `json:"round"`
	Entrant model.Entrant   `json:"entrant"`
	Others  []model.Entrant `json:"others"`
	Recent  []model.Event   `json:"recent,omitempty"`
	Allowed []model.Action  `json:"allowed"`
	// OpponentID is set for bracket exchanges.
	OpponentID string `json:"opponent_id,omitempty"`
}

// Response is a provider's answer.
type Response struct {
	Action   model.Action `json:"action"`
	TargetID string       `json:"target_id,omitempty"`
	Object   string       `json:"object,omitempty"`
	Flavor   string       `json:"flavor,omitempty"`
}

// Provider is a remote decision source for human-backed entrants.
type Provider interface {
	Decide(ctx context.Context, req Request) (Response, error)
}

// Refresher is implemented by providers whose credential can be renewed.
type Refresher interface {
	RefreshCredential(ctx context.Context) error
}

// RoundRequest describes one elimination round to collect for.
type RoundRequest struct {
	MatchID  string
	Seed     uint64
	Stage    string
	Round    int
	Entrants []model.Entrant
	Recent   []model.Event
}

// MoveRequest describes one bracket exchange.
type MoveRequest struct {
	MatchID string
	Seed    uint64
	Stage   string
	Round   int
	A, B    model.Entrant
	HPA     int
	HPB     int
}

// Collector fans decisions out concurrently. One entrant's slow or failing
// provider never blocks the others beyond the per-call timeout.
type Collector struct {
	provider    Provider
	bots        *BotPolicy
	timeout     time.Duration
	concurrency int
	logger      logger.Logger
}

// NewCollector creates a collector. Without a provider every human entrant
// receives the random fallback.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		bots:        NewBotPolicy(),
		timeout:     defaultTimeout,
		concurrency: defaultConcurrency,
		logger:      logger.Get().Named("decision"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect returns one decision per alive entrant, in roster order.
func (c *Collector) Collect(ctx context.Context, req RoundRequest) []model.Decision {
	start := time.Now()
	defer func() {
		metrics.RecordCollectionDuration(float64(time.Since(start).Milliseconds()))
	}()

	alive := make([]model.Entrant, 0, len(req.Entrants))
	for _, e := range req.Entrants {
		if e.Alive() {
			alive = append(alive, e)
		}
	}
	recent := req.Recent
	if len(recent) > recentEventWindow {
		recent = recent[len(recent)-recentEventWindow:]
	}

	out := make([]model.Decision, len(alive))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i := range alive {
		g.Go(func() error {
			e := alive[i]
			others := make([]model.Entrant, 0, len(alive)-1)
			for j := range alive {
				if j != i {
					others = append(others, alive[j])
				}
			}
			out[i] = c.decide(gctx, req.Seed, Request{
				MatchID: req.MatchID,
				Stage:   req.Stage,
				Round:   req.Round,
				Entrant: e,
				Others:  others,
				Recent:  recent,
				Allowed: model.RoundActions,
			})
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// CollectMoves returns both fighters' moves for one bracket exchange.
func (c *Collector) CollectMoves(ctx context.Context, req MoveRequest) (model.Action, model.Action) {
	var moves [2]model.Action
	pair := [2]model.Entrant{req.A, req.B}
	g, gctx := errgroup.WithContext(ctx)
	for i := range pair {
		g.Go(func() error {
			self, opp := pair[i], pair[1-i]
			hp := req.HPA
			if i == 1 {
				hp = req.HPB
			}
			self.HP = hp
			d := c.decide(gctx, req.Seed, Request{
				MatchID:    req.MatchID,
				Stage:      fmt.Sprintf("%s:%d", req.Stage, req.Round),
				Round:      req.Round,
				Entrant:    self,
				Others:     []model.Entrant{opp},
				Allowed:    model.BracketMoves,
				OpponentID: opp.ID,
			})
			moves[i] = d.Action
			return nil
		})
	}
	_ = g.Wait()
	return moves[0], moves[1]
}

// decide never fails: provider errors end in the seeded fallback.
func (c *Collector) decide(ctx context.Context, seed uint64, req Request) model.Decision {
	rng := combat.NewRNG(seed, "decide", req.MatchID, req.Stage, req.Entrant.ID)
	if req.Entrant.Bot || c.provider == nil {
		var d model.Decision
		if req.Entrant.Bot {
			d = c.bots.Decide(rng, req)
		} else {
			d = Fallback(rng, req)
		}
		metrics.RecordDecision(string(d.Source))
		return d
	}

	resp, err := c.call(ctx, req)
	if err != nil {
		c.logger.Warn(ctx, "provider failed, using fallback",
			logger.String("match_id", req.MatchID),
			logger.String("entrant_id", req.Entrant.ID),
			logger.String("stage", req.Stage),
			logger.Error(err))
		d := Fallback(rng, req)
		metrics.RecordDecision(string(d.Source))
		return d
	}
	d := model.Decision{
		EntrantID: req.Entrant.ID,
		Action:    resp.Action,
		TargetID:  resp.TargetID,
		Object:    resp.Object,
		Flavor:    resp.Flavor,
		Source:    model.SourceProvider,
	}
	metrics.RecordDecision(string(d.Source))
	return d
}

// call makes one provider attempt and, on failure, one credential refresh
// followed by one retry.
func (c *Collector) call(ctx context.Context, req Request) (Response, error) {
	resp, err := c.attempt(ctx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return Response{}, fmt.Errorf("collect decision: %w", ctx.Err())
	}
	refresher, ok := c.provider.(Refresher)
	if !ok {
		return Response{}, err
	}
	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	rerr := refresher.RefreshCredential(rctx)
	cancel()
	metrics.RecordCredentialRefresh(rerr == nil)
	if rerr != nil {
		return Response{}, errors.Join(err, fmt.Errorf("refresh credential: %w", rerr))
	}
	return c.attempt(ctx, req)
}

func (c *Collector) attempt(ctx context.Context, req Request) (Response, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	resp, err := c.provider.Decide(cctx, req)
	metrics.RecordProviderLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		kind := "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
			kind = "timeout"
			err = fmt.Errorf("%w: %w", ErrProviderTimeout, err)
		}
		metrics.RecordProviderError(kind)
		return Response{}, err
	}
	if !allowed(resp.Action, req.Allowed) {
		metrics.RecordProviderError("invalid")
		return Response{}, fmt.Errorf("%w: action %q", ErrInvalidResponse, resp.Action)
	}
	return resp, nil
}

// Fallback picks a uniformly random allowed action and, when the action
// needs one, a uniformly random target.
func Fallback(rng combat.RNG, req Request) model.Decision {
	allowedActions := req.Allowed
	if len(allowedActions) == 0 {
		allowedActions = model.RoundActions
	}
	d := model.Decision{
		EntrantID: req.Entrant.ID,
		Action:    combat.Pick(rng, allowedActions),
		Source:    model.SourceFallback,
	}
	if d.Action.NeedsTarget() && len(req.Others) > 0 {
		d.TargetID = combat.Pick(rng, req.Others).ID
	}
	if d.Action == model.ActionScavenge {
		d.Object = combat.Pick(rng, scavengeObjects)
	}
	return d
}

func allowed(a model.Action, set []model.Action) bool {
	for _, x := range set {
		if x == a {
			return true
		}
	}
	return false
}
