package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jobrunner/spatialquery/internal/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("writing response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: http.StatusText(status), Message: message})
}

// statusFor maps a domain error to an HTTP status and a client message.
// Unknown errors yield 500 and are logged by the caller.
func statusFor(err error) (int, string) {
	var (
		validation *domain.ValidationError
		cfg        *domain.ConfigError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Message
	case errors.As(err, &cfg), errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrPackageNotFound):
		return http.StatusNotFound, "package not found"
	case errors.Is(err, domain.ErrLayerNotFound):
		return http.StatusNotFound, "layer not found"
	case errors.Is(err, domain.ErrRelationNotApplicable),
		errors.Is(err, domain.ErrUnsupportedGeometryType),
		errors.Is(err, domain.ErrUnsupportedProjection):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, domain.ErrNotReady):
		return http.StatusServiceUnavailable, "package not ready"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "query timed out"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "query cancelled"
	default:
		return http.StatusInternalServerError, "query failed"
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeError(w, status, message)
}
