// Package api provides common HTTP API utilities including error handling.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/familyaccess"
	"github.com/chikitsa-cloud/chikitsa-go/internal/components/records"
)

// Deterministic reason codes for stable error classification.
// These codes should remain stable across versions for client compatibility.
const (
	// Authentication and authorization
	ReasonUnauthenticated = "unauthenticated"
	ReasonTokenInvalid    = "token_invalid"
	ReasonForbidden       = "forbidden"

	// Rate limiting
	ReasonRateLimited = "rate_limited"

	// Request validation
	ReasonBadRequest   = "bad_request"
	ReasonMissingField = "missing_field"
	ReasonInvalidField = "invalid_field"
	ReasonNotFound     = "not_found"

	// Family access workflow
	ReasonSelfReference    = "self_reference"
	ReasonAlreadyPending   = "already_pending"
	ReasonAlreadyGranted   = "already_granted"
	ReasonAlreadyResponded = "already_responded"
	ReasonTokenExpired     = "token_expired"
	ReasonTokenConsumed    = "token_consumed"
	ReasonNotOwner         = "not_owner"

	// Server errors
	ReasonInternalError = "internal_error"
)

// ErrorEnvelope is the standard error response format.
// All error responses should use this structure for consistency.
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code       string `json:"code"`        // HTTP status text (e.g., "Forbidden")
	ReasonCode string `json:"reason_code"` // Deterministic reason code
	Message    string `json:"message"`     // Human-readable message
}

// WriteError writes a standardized JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, reasonCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	_ = json.NewEncoder(w).Encode(ErrorEnvelope{
		Error: ErrorDetail{
			Code:       http.StatusText(statusCode),
			ReasonCode: reasonCode,
			Message:    message,
		},
	})
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteUnauthorized writes a 401 Unauthorized error.
func WriteUnauthorized(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusUnauthorized, reasonCode, message)
}

// WriteBadRequest writes a 400 Bad Request error.
func WriteBadRequest(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusBadRequest, reasonCode, message)
}

// WriteNotFound writes a 404 Not Found error.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ReasonNotFound, message)
}

// WriteTooManyRequests writes a 429 Too Many Requests error.
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, ReasonRateLimited, message)
}

// WriteInternalError writes a 500 Internal Server Error.
// Be careful not to leak sensitive information in the message.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ReasonInternalError, message)
}

type errorMapping struct {
	err     error
	status  int
	reason  string
	message string
}

// domainErrors is the single table from workflow sentinels to responses.
// Order matters only where one error wraps another.
var domainErrors = []errorMapping{
	{familyaccess.ErrSelfReference, http.StatusBadRequest, ReasonSelfReference, "cannot target your own account"},
	{familyaccess.ErrDuplicatePending, http.StatusConflict, ReasonAlreadyPending, "an access request is already pending"},
	{familyaccess.ErrDuplicateGrant, http.StatusConflict, ReasonAlreadyGranted, "access has already been granted"},
	{familyaccess.ErrNotFound, http.StatusNotFound, ReasonNotFound, "not found"},
	{familyaccess.ErrForbidden, http.StatusForbidden, ReasonForbidden, "you do not have access to these records"},
	{familyaccess.ErrAlreadyResponded, http.StatusConflict, ReasonAlreadyResponded, "request has already been responded to"},
	{familyaccess.ErrExpired, http.StatusGone, ReasonTokenExpired, "invite token has expired"},
	{familyaccess.ErrTokenConsumed, http.StatusConflict, ReasonTokenConsumed, "invite token has already been used"},
	{familyaccess.ErrInvalidArgument, http.StatusBadRequest, ReasonInvalidField, ""},
	{records.ErrRecordNotFound, http.StatusNotFound, ReasonNotFound, "record not found"},
	{records.ErrNotOwner, http.StatusForbidden, ReasonNotOwner, "only the owner may modify this record"},
	{records.ErrInvalidRecord, http.StatusBadRequest, ReasonInvalidField, ""},
}

// StatusFor returns the HTTP status and reason code err maps to.
func StatusFor(err error) (int, string) {
	for _, m := range domainErrors {
		if errors.Is(err, m.err) {
			return m.status, m.reason
		}
	}
	return http.StatusInternalServerError, ReasonInternalError
}

// WriteDomainError maps a workflow or catalog error onto the error envelope.
// Unmapped errors are logged and reported as 500 without detail.
func WriteDomainError(w http.ResponseWriter, log *slog.Logger, err error) {
	for _, m := range domainErrors {
		if !errors.Is(err, m.err) {
			continue
		}
		msg := m.message
		if msg == "" {
			// Validation errors carry their own wording.
			msg = err.Error()
		}
		WriteError(w, m.status, m.reason, msg)
		return
	}
	if log != nil {
		log.Error("request failed", "error", err)
	}
	WriteInternalError(w, "internal error")
}
