package api

import (
	"fmt"
	"net/http"
	"strings"

	service "github.com/okian/gauntlet/internal/app"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/internal/domain/roster"
)

// createMatchRequest mirrors the OpenAPI schema for POST /matches.
type createMatchRequest struct {
	Theme    string           `json:"theme"`
	Entrants []entrantRequest `json:"entrants"`
}

type entrantRequest struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Stats *model.Stats `json:"stats,omitempty"`
}

func (c createMatchRequest) validate() error {
	for i, e := range c.Entrants {
		if strings.TrimSpace(e.ID) == "" {
			return fmt.Errorf("entrants[%d]: missing id", i)
		}
		if e.Stats == nil {
			continue
		}
		for _, v := range []int{e.Stats.Strength, e.Stats.Agility, e.Stats.Wisdom, e.Stats.Charisma, e.Stats.Stamina, e.Stats.Luck} {
			if v < roster.StatMin || v > roster.StatMax {
				return fmt.Errorf("entrants[%d]: stats must be within [%d, %d]", i, roster.StatMin, roster.StatMax)
			}
		}
	}
	return nil
}

func (c createMatchRequest) humans() []model.Entrant {
	out := make([]model.Entrant, 0, len(c.Entrants))
	for _, e := range c.Entrants {
		h := model.Entrant{ID: strings.TrimSpace(e.ID), Name: e.Name}
		if e.Stats != nil {
			h.Stats = *e.Stats
		} else {
			d := (roster.StatMin + roster.StatMax) / 2
			h.Stats = model.Stats{Strength: d, Agility: d, Wisdom: d, Charisma: d, Stamina: d, Luck: d}
		}
		out = append(out, h)
	}
	return out
}

// MatchesHandler serves match lifecycle requests.
type MatchesHandler struct {
	deps Dependencies
}

// NewMatchesHandler creates a new matches handler.
func NewMatchesHandler(deps Dependencies) *MatchesHandler {
	return &MatchesHandler{deps: deps}
}

// HandleCreate handles POST /matches.
func (h *MatchesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := decode(w, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	m, err := h.deps.CreateMatch(r.Context(), req.Theme, req.humans())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// HandleList handles GET /matches.
func (h *MatchesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ms, err := h.deps.ListMatches(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	if ms == nil {
		ms = []match.Match{}
	}
	writeJSON(w, http.StatusOK, ms)
}

// HandleSummary handles GET /matches/{id}.
func (h *MatchesHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.deps.Summary(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleSnapshots handles GET /matches/{id}/snapshots.
func (h *MatchesHandler) HandleSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.deps.Snapshots(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	if snaps == nil {
		snaps = []model.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

// HandleReplay handles GET /matches/{id}/replay.
func (h *MatchesHandler) HandleReplay(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Replay(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleAdvance handles POST /matches/{id}/advance. With ?from=<status> the
// call is a trigger for leaving that status: a repeated trigger observes the
// stage already produced instead of moving the match again.
func (h *MatchesHandler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var (
		res service.Result
		err error
	)
	if from := r.URL.Query().Get("from"); from != "" {
		status, perr := match.Parse(from)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "bad_request", perr)
			return
		}
		res, err = h.deps.AdvanceFrom(r.Context(), id, status)
	} else {
		res, err = h.deps.Advance(r.Context(), id)
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	status := http.StatusOK
	if res.Pending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// HandleReset handles POST /matches/{id}/reset.
func (h *MatchesHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	m, err := h.deps.Reset(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
