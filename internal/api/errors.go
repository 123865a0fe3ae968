package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/paddy-dryer-core/internal/auth"
	"github.com/nerrad567/paddy-dryer-core/internal/batch"
)

// Error represents a structured error response.
type Error struct {
	Status  int            `json:"status"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeNotFound          = "not_found"
	ErrCodeUnauthorized      = "unauthorised"
	ErrCodeForbidden         = "forbidden"
	ErrCodeConflict          = "conflict"
	ErrCodeInternal          = "internal_error"
	ErrCodeValidation        = "validation_error"
	ErrCodeInvalidPIN        = "invalid_pin"
	ErrCodeLockedOut         = "locked_out"
	ErrCodeDryerBusy         = "dryer_busy"
	ErrCodeDuplicateCode     = "duplicate_code"
	ErrCodeBatchTerminal     = "batch_terminal"
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeNoReading         = "no_reading"
	ErrCodeUpstream          = "upstream_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// errorFor maps a domain error onto its HTTP response. Unknown errors
// become 500 with a generic message so store details never leak.
func errorFor(err error) Error {
	var (
		invalidPIN *auth.InvalidPINError
		lockedOut  *auth.LockedOutError
		permErr    *auth.PermissionError
		validation *batch.ValidationError
		busy       *batch.DryerBusyError
	)

	switch {
	case errors.As(err, &invalidPIN):
		return Error{
			Status:  http.StatusUnauthorized,
			Code:    ErrCodeInvalidPIN,
			Message: "incorrect PIN",
			Details: map[string]any{"attempts_remaining": invalidPIN.AttemptsRemaining},
		}
	case errors.As(err, &lockedOut):
		return Error{
			Status:  http.StatusTooManyRequests,
			Code:    ErrCodeLockedOut,
			Message: lockedOut.Error(),
			Details: map[string]any{"remaining_seconds": lockedOut.RemainingSeconds},
		}
	case errors.Is(err, auth.ErrNotAuthenticated):
		return Error{Status: http.StatusUnauthorized, Code: ErrCodeUnauthorized, Message: "login required"}
	case errors.As(err, &permErr):
		return Error{
			Status:  http.StatusForbidden,
			Code:    ErrCodeForbidden,
			Message: permErr.Error(),
			Details: map[string]any{"permission": string(permErr.Permission)},
		}
	case errors.As(err, &validation):
		return Error{
			Status:  http.StatusBadRequest,
			Code:    ErrCodeValidation,
			Message: validation.Message,
			Field:   validation.Field,
			Details: map[string]any{"reason": reasonOf(validation.Reason)},
		}
	case errors.As(err, &busy):
		return Error{
			Status:  http.StatusConflict,
			Code:    ErrCodeDryerBusy,
			Message: busy.Error(),
			Details: map[string]any{"existing_batch_code": busy.ExistingBatchCode},
		}
	case errors.Is(err, batch.ErrDuplicateCode):
		return Error{Status: http.StatusConflict, Code: ErrCodeDuplicateCode, Message: "batch code already exists"}
	case errors.Is(err, batch.ErrBatchTerminal):
		return Error{Status: http.StatusConflict, Code: ErrCodeBatchTerminal, Message: "batch is completed or cancelled"}
	case errors.Is(err, batch.ErrInvalidTransition):
		return Error{Status: http.StatusConflict, Code: ErrCodeInvalidTransition, Message: err.Error()}
	case errors.Is(err, batch.ErrNoReading):
		return Error{Status: http.StatusConflict, Code: ErrCodeNoReading, Message: "record a reading before completing the batch"}
	case errors.Is(err, batch.ErrBatchNotFound):
		return Error{Status: http.StatusNotFound, Code: ErrCodeNotFound, Message: "batch not found"}
	case errors.Is(err, batch.ErrExternal):
		return Error{Status: http.StatusBadGateway, Code: ErrCodeUpstream, Message: "storage failure"}
	default:
		return Error{Status: http.StatusInternalServerError, Code: ErrCodeInternal, Message: "internal server error"}
	}
}

// reasonOf names a validation reason sentinel for clients.
func reasonOf(reason error) string {
	switch {
	case errors.Is(reason, batch.ErrOutOfRange):
		return "out_of_range"
	case errors.Is(reason, batch.ErrFutureTimestamp):
		return "future_timestamp"
	case errors.Is(reason, batch.ErrBeforeBatchStart):
		return "before_batch_start"
	case errors.Is(reason, batch.ErrBatchCodeTooShort):
		return "batch_code_too_short"
	case errors.Is(reason, batch.ErrConfirmationRequired):
		return "confirmation_required"
	default:
		return "invalid"
	}
}

// writeDomainError writes the response for err and logs unexpected failures.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	e := errorFor(err)
	if e.Status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
	}
	writeJSON(w, e.Status, e)
}
