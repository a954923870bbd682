package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/gauntlet/internal/domain/model"
)

// accountRequest mirrors the OpenAPI schema for POST /accounts.
type accountRequest struct {
	ID      string `json:"id"`
	Bot     bool   `json:"bot"`
	Balance int64  `json:"balance"`
}

func (a accountRequest) validate() error {
	switch {
	case strings.TrimSpace(a.ID) == "":
		return errors.New("missing id")
	case a.Balance < 0:
		return errors.New("balance must not be negative")
	}
	return nil
}

// betRequest mirrors the OpenAPI schema for POST /matches/{id}/bets.
type betRequest struct {
	BettorID  string `json:"bettor_id"`
	EntrantID string `json:"entrant_id"`
	Amount    int64  `json:"amount"`
}

func (b betRequest) validate() error {
	switch {
	case strings.TrimSpace(b.BettorID) == "":
		return errors.New("missing bettor_id")
	case strings.TrimSpace(b.EntrantID) == "":
		return errors.New("missing entrant_id")
	}
	return nil
}

// giftRequest mirrors the OpenAPI schema for POST /matches/{id}/gifts.
type giftRequest struct {
	BettorID   string `json:"bettor_id"`
	EntrantID  string `json:"entrant_id"`
	ArtifactID string `json:"artifact_id"`
}

func (g giftRequest) validate() error {
	switch {
	case strings.TrimSpace(g.BettorID) == "":
		return errors.New("missing bettor_id")
	case strings.TrimSpace(g.EntrantID) == "":
		return errors.New("missing entrant_id")
	case strings.TrimSpace(g.ArtifactID) == "":
		return errors.New("missing artifact_id")
	}
	return nil
}

type betResponse struct {
	Bet     model.Bet `json:"bet"`
	Balance int64     `json:"balance"`
}

type giftResponse struct {
	Gift    model.ArtifactGift `json:"gift"`
	Balance int64              `json:"balance"`
}

// WagersHandler serves accounts, bets and artifact gifts.
type WagersHandler struct {
	wagers Wagers
}

// NewWagersHandler creates a new wagers handler.
func NewWagersHandler(wagers Wagers) *WagersHandler {
	return &WagersHandler{wagers: wagers}
}

// HandleCatalog handles GET /artifacts.
func (h *WagersHandler) HandleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.wagers.Catalog())
}

// HandleOpenAccount handles POST /accounts. Opening an existing account
// returns it unchanged.
func (h *WagersHandler) HandleOpenAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decode(w, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	acc, err := h.wagers.OpenAccount(r.Context(), strings.TrimSpace(req.ID), req.Bot, req.Balance)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// HandleGetAccount handles GET /accounts/{id}.
func (h *WagersHandler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.wagers.Account(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// HandlePlaceBet handles POST /matches/{id}/bets.
func (h *WagersHandler) HandlePlaceBet(w http.ResponseWriter, r *http.Request) {
	var req betRequest
	if err := decode(w, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	bet, balance, err := h.wagers.PlaceBet(r.Context(), r.PathValue("id"), req.BettorID, req.EntrantID, req.Amount)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, betResponse{Bet: bet, Balance: balance})
}

// HandleGift handles POST /matches/{id}/gifts.
func (h *WagersHandler) HandleGift(w http.ResponseWriter, r *http.Request) {
	var req giftRequest
	if err := decode(w, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	gift, balance, err := h.wagers.GiftArtifact(r.Context(), r.PathValue("id"), req.BettorID, req.EntrantID, req.ArtifactID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, giftResponse{Gift: gift, Balance: balance})
}
