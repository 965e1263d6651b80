package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"previsioni/internal/amqp"
	"previsioni/internal/core"
	"previsioni/internal/log"
	"previsioni/internal/middleware/trace"
	"previsioni/internal/services"
)

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
	// Set for insufficient data.
	Required  *int `json:"required,omitempty"`
	Available *int `json:"available,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: trace.GetRequestID(r.Context())})
}

// writeServiceError maps a service error to a status code. Server-side
// failures are logged and their details are not returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var insufficient *core.InsufficientDataError
	if errors.As(err, &insufficient) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:     "insufficient data",
			RequestID: trace.GetRequestID(r.Context()),
			Required:  &insufficient.Required,
			Available: &insufficient.Available,
		})
		return
	}

	status, msg := statusFor(err)
	if status >= 500 {
		ctx := r.Context()
		log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, "Request failed", err, log.ComponentHTTP, op,
			log.NewFields().WithRequestID(trace.GetRequestID(ctx)))
	}
	writeError(w, r, status, msg)
}

func statusFor(err error) (int, string) {
	switch {
	case core.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrSnapshotNotFound):
		return http.StatusNotFound, "no forecast snapshot for this owner"
	case errors.Is(err, services.ErrSnapshotsDisabled):
		return http.StatusNotImplemented, "forecast snapshots are not configured"
	case core.IsDataAvailability(err):
		return http.StatusServiceUnavailable, rootMessage(err)
	case errors.Is(err, amqp.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "refresh queue unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	case errors.Is(err, core.ErrModelFailure):
		return http.StatusInternalServerError, "model failure"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// rootMessage returns the sentinel text of a data availability error,
// hiding file paths and driver details.
func rootMessage(err error) string {
	for _, target := range []error{core.ErrCorpusUnavailable, core.ErrCorpusMalformed, core.ErrLedgerUnavailable} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "service unavailable"
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		default:
			return fmt.Errorf("invalid JSON body: %v", err)
		}
	}
	return nil
}

// ownerID reads the owner from the X-Owner-ID header, falling back to the
// owner query parameter.
func ownerID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-Owner-ID")); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("owner"))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
