package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/simaogato/tradeflow-backend/internal/domain"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) respond(w http.ResponseWriter, _ *http.Request, data interface{}, status int) {
	res, err := json.Marshal(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(res)
}

// HandleErrors writes err as a JSON error with the status its class maps to
func (s *Server) HandleErrors(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", code),
			zap.Error(err),
		)
	}
	s.respond(w, r, ErrorResponse{Code: code, Message: err.Error()}, status)
}

func classify(err error) (int, string) {
	switch {
	case domain.IsReconciliationFailed(err):
		return http.StatusInternalServerError, "reconciliation_failed"
	case errors.Is(err, domain.ErrLedgerInvariantViolation):
		return http.StatusInternalServerError, "ledger_invariant_violation"
	case domain.IsExecutionFailed(err):
		return http.StatusBadGateway, "execution_failed"
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict, "user_exists"
	case errors.Is(err, domain.ErrInsufficientHoldings):
		return http.StatusUnprocessableEntity, "insufficient_holdings"
	case errors.Is(err, domain.ErrUnknownSymbol), errors.Is(err, domain.ErrNoHistoricalData):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable, "ledger_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal"
}
