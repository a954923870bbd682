// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	service "github.com/okian/gauntlet/internal/app"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/domain/model"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. *service.Engine satisfies it.
type Dependencies interface {
	CreateMatch(ctx context.Context, theme string, humans []model.Entrant) (match.Match, error)
	ListMatches(ctx context.Context) ([]match.Match, error)
	Summary(ctx context.Context, id string) (service.Summary, error)
	Snapshots(ctx context.Context, id string) ([]model.Snapshot, error)
	Replay(ctx context.Context, id string) (service.ReplayReport, error)
	Advance(ctx context.Context, id string) (service.Result, error)
	AdvanceFrom(ctx context.Context, id string, from match.Status) (service.Result, error)
	Reset(ctx context.Context, id string) (match.Match, error)
	SubmitJob(ctx context.Context, matchID string, target match.Status) (model.Job, error)
	GetJob(ctx context.Context, id string) (model.Job, error)
}

// Wagers is the betting surface. *ledger.Ledger satisfies it.
type Wagers interface {
	Catalog() []model.Artifact
	OpenAccount(ctx context.Context, id string, bot bool, balance int64) (model.Account, error)
	Account(ctx context.Context, id string) (model.Account, error)
	PlaceBet(ctx context.Context, matchID, bettorID, entrantID string, amount int64) (model.Bet, int64, error)
	GiftArtifact(ctx context.Context, matchID, bettorID, entrantID, artifactID string) (model.ArtifactGift, int64, error)
}

// Server wires HTTP routes for the match API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	matchesHandler *MatchesHandler
	jobsHandler    *JobsHandler
	wagersHandler  *WagersHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, wagers Wagers, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		matchesHandler: NewMatchesHandler(deps),
		jobsHandler:    NewJobsHandler(deps),
		wagersHandler:  NewWagersHandler(wagers),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /matches", MetricsMiddleware(s.matchesHandler.HandleCreate, "matches"))
	mux.HandleFunc("GET /matches", MetricsMiddleware(s.matchesHandler.HandleList, "matches"))
	mux.HandleFunc("GET /matches/{id}", MetricsMiddleware(s.matchesHandler.HandleSummary, "match"))
	mux.HandleFunc("GET /matches/{id}/snapshots", MetricsMiddleware(s.matchesHandler.HandleSnapshots, "snapshots"))
	mux.HandleFunc("GET /matches/{id}/replay", MetricsMiddleware(s.matchesHandler.HandleReplay, "replay"))
	mux.HandleFunc("POST /matches/{id}/advance", MetricsMiddleware(s.matchesHandler.HandleAdvance, "advance"))
	mux.HandleFunc("POST /matches/{id}/reset", MetricsMiddleware(s.matchesHandler.HandleReset, "reset"))

	mux.HandleFunc("POST /matches/{id}/jobs", MetricsMiddleware(s.jobsHandler.HandleSubmit, "jobs"))
	mux.HandleFunc("GET /jobs/{id}", MetricsMiddleware(s.jobsHandler.HandleGet, "job"))

	mux.HandleFunc("GET /artifacts", MetricsMiddleware(s.wagersHandler.HandleCatalog, "artifacts"))
	mux.HandleFunc("POST /accounts", MetricsMiddleware(s.wagersHandler.HandleOpenAccount, "accounts"))
	mux.HandleFunc("GET /accounts/{id}", MetricsMiddleware(s.wagersHandler.HandleGetAccount, "account"))
	mux.HandleFunc("POST /matches/{id}/bets", MetricsMiddleware(s.wagersHandler.HandlePlaceBet, "bets"))
	mux.HandleFunc("POST /matches/{id}/gifts", MetricsMiddleware(s.wagersHandler.HandleGift, "gifts"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps a service error onto its status and code.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

// decode reads a JSON body into v and runs its validation. An empty body
// validates the zero request.
func decode(w http.ResponseWriter, r *http.Request, v interface{ validate() error }) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if err := v.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}
