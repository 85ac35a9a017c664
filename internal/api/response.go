package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
	"github.com/dhruvsoni1802/browser-bidi/internal/pool"
	"github.com/dhruvsoni1802/browser-bidi/internal/session"
)

// writeJSON writes v as the JSON body with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// writeError writes the standard error envelope
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			RequestID: middleware.GetReqID(r.Context()),
		},
	})
}

// decodeJSON reads the request body into v. An empty body leaves v as is.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// errorStatus maps manager and protocol errors to a status and error code
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, ErrCodeSessionNotFound
	case errors.Is(err, session.ErrContextNotFound):
		return http.StatusNotFound, ErrCodeContextNotFound
	case errors.Is(err, session.ErrAgentRequired),
		errors.Is(err, session.ErrInvalidSessionName),
		errors.Is(err, bidi.ErrInvalidParams),
		errors.Is(err, bidi.ErrInvalidIdentifier):
		return http.StatusBadRequest, ErrCodeInvalidRequest
	case errors.Is(err, session.ErrSessionLimitReached):
		return http.StatusTooManyRequests, ErrCodeSessionLimit
	case errors.Is(err, session.ErrSessionNameConflict):
		return http.StatusConflict, ErrCodeSessionNameConflict
	case errors.Is(err, session.ErrSessionUnavailable):
		return http.StatusConflict, ErrCodeSessionUnavailable
	case errors.Is(err, session.ErrScriptException):
		return http.StatusUnprocessableEntity, ErrCodeScriptException
	case errors.Is(err, session.ErrNoPersistence):
		return http.StatusNotImplemented, ErrCodePersistenceDisabled
	case errors.Is(err, pool.ErrNoEndpoints), errors.Is(err, pool.ErrNoHealthyEndpoints),
		errors.Is(err, pool.ErrEndpointUnavailable):
		return http.StatusServiceUnavailable, ErrCodeNoEndpoint
	case errors.Is(err, bidi.ErrCommandTimeout):
		return http.StatusGatewayTimeout, ErrCodeTimeout
	case errors.Is(err, bidi.ErrRemoteCommandFailed),
		errors.Is(err, bidi.ErrTransportClosed),
		errors.Is(err, bidi.ErrSessionClosed):
		return http.StatusBadGateway, ErrCodeRemoteFailed
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}

// writeManagerError writes err with the status errorStatus picks
func writeManagerError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", middleware.GetReqID(r.Context()))
	}
	writeError(w, r, status, code, err.Error())
}
