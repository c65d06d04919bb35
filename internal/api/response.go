package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alecgard/okrtracker/internal/apperr"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// envelope is the success response shape.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// errorEnvelope is the failure response shape. Detail carries the
// underlying error text and is only filled in debug mode.
type errorEnvelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
	Detail  string              `json:"detail,omitempty"`
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeSuccess(w http.ResponseWriter, statusCode int, message string, data any) {
	writeJSON(w, statusCode, envelope{Success: true, Message: message, Data: data})
}

// responder turns errors into error envelopes. Typed errors keep their
// status and message; anything else is logged and reported as a 500.
type responder struct {
	debug bool
}

func (rs responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	body := errorEnvelope{Message: "Internal server error"}
	status := http.StatusInternalServerError

	if e, ok := apperr.As(err); ok && e.Kind != apperr.KindInternal {
		status = e.Kind.Status()
		body.Message = e.Message
		body.Errors = e.Fields
	} else {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
	}
	if rs.debug && err != nil {
		body.Detail = err.Error()
	}
	writeJSON(w, status, body)
}

// readJSON decodes the request body into v, enforcing a size limit.
// Decoding failures are reported as BadRequest.
func readJSON(r *http.Request, v any) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	if err := json.NewDecoder(lr).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.BadRequest("Request body is required")
		}
		return apperr.Wrap(apperr.KindBadRequest, "Invalid JSON body", err)
	}
	return nil
}
