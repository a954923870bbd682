package api

import (
	"errors"
	"net/http"

	"github.com/okian/gauntlet/internal/adapters/repository"
	service "github.com/okian/gauntlet/internal/app"
	"github.com/okian/gauntlet/internal/domain/ledger"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/domain/roster"
)

// Sentinel kinds for API errors.
var (
	ErrServe      = errors.New("http serve failed")
	ErrBadRequest = errors.New("bad request")
)

// classify maps an error to an HTTP status and a stable error code.
// Ledger kinds are checked before store kinds since they wrap them.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, match.ErrUnknownStatus),
		errors.Is(err, roster.ErrInvalidEntrant),
		errors.Is(err, roster.ErrTooManyEntrants),
		errors.Is(err, roster.ErrTooFewEntrants):
		return http.StatusBadRequest, "bad_request"

	case errors.Is(err, ledger.ErrUnknownAccount):
		return http.StatusNotFound, "unknown_account"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, ledger.ErrDuplicateAction):
		return http.StatusConflict, "duplicate_wager"
	case errors.Is(err, ledger.ErrWindowClosed):
		return http.StatusUnprocessableEntity, "window_closed"
	case errors.Is(err, ledger.ErrNotFinalist):
		return http.StatusUnprocessableEntity, "not_finalist"
	case errors.Is(err, ledger.ErrUnknownEntrant):
		return http.StatusUnprocessableEntity, "unknown_entrant"
	case errors.Is(err, ledger.ErrUnknownArtifact):
		return http.StatusUnprocessableEntity, "unknown_artifact"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "invalid_amount"

	case errors.Is(err, service.ErrMatchEnded):
		return http.StatusConflict, "match_ended"
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, service.ErrUnreachableTarget):
		return http.StatusConflict, "unreachable_target"
	case errors.Is(err, service.ErrDataIntegrity):
		return http.StatusInternalServerError, "data_integrity"

	case errors.Is(err, roster.ErrDuplicateEntrant), errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
