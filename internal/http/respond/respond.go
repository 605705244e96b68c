// Package respond writes JSON bodies and the error envelope shared by every handler.
package respond

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/waylio/waylio-platform/internal/apperr"
	"github.com/waylio/waylio-platform/pkg/logging"
)

// ErrorBody is the payload under the "error" key.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp string         `json:"timestamp"`
	RequestID string         `json:"requestId"`
}

// ErrorEnvelope is the wire shape of every error response.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// JSON writes payload with the given status.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Error maps err to a status and envelope. Unknown errors are logged and
// collapse to INTERNAL_ERROR without leaking their text.
func Error(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	if logger == nil {
		logger = logging.Default()
	}
	reqID := middleware.GetReqID(r.Context())
	if reqID == "" {
		reqID = uuid.NewString()
	}

	body := ErrorBody{
		Code:      "INTERNAL_ERROR",
		Message:   "An unexpected error occurred. Please try again later.",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RequestID: reqID,
	}
	status := http.StatusInternalServerError

	if appErr, ok := apperr.As(err); ok && appErr.Kind != apperr.KindInternal {
		status = apperr.HTTPStatus(appErr.Kind)
		body.Code = appErr.Code
		body.Message = appErr.Message
		body.Details = appErr.Details
		logger.Warn("request failed",
			"request_id", reqID,
			"code", appErr.Code,
			"path", r.URL.Path,
		)
	} else {
		logger.Error("request failed",
			"request_id", reqID,
			"error", err,
			"path", r.URL.Path,
		)
	}

	JSON(w, status, ErrorEnvelope{Error: body})
}

// DecodeJSON reads a JSON body into dst; malformed input becomes a validation error.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperr.Validation("Request body is required", nil)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("Request body is required", nil)
		}
		return apperr.Validation("Invalid request body", map[string]string{"body": err.Error()})
	}
	return nil
}
