package api

import (
	"errors"
	"net/http"

	"challenge-desk-go/internal/challenge"
	"challenge-desk-go/internal/market"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps a domain error to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	var ve *challenge.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, ve.Code
	}

	switch market.KindOf(err) {
	case market.KindInvalidSymbol:
		return http.StatusBadRequest, string(market.KindInvalidSymbol)
	case market.KindRateLimited:
		return http.StatusTooManyRequests, string(market.KindRateLimited)
	case market.KindSymbolNotFound:
		return http.StatusNotFound, string(market.KindSymbolNotFound)
	case market.KindUpstream:
		return http.StatusBadGateway, string(market.KindUpstream)
	case market.KindNetwork, market.KindScrapeFailure:
		return http.StatusServiceUnavailable, string(market.KindOf(err))
	}

	switch {
	case errors.Is(err, challenge.ErrUnknownPlan):
		return http.StatusBadRequest, "unknown_plan"
	case errors.Is(err, challenge.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, challenge.ErrChallengeInactive):
		return http.StatusConflict, "challenge_inactive"
	case errors.Is(err, challenge.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, challenge.ErrActiveChallengeExists):
		return http.StatusConflict, "active_challenge_exists"
	}
	return http.StatusInternalServerError, "internal_error"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal error"
	}
	s.writeJSON(w, status, errorResponse{Error: code, Message: msg})
}

func (s *Server) badRequest(w http.ResponseWriter, message string) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: message})
}
