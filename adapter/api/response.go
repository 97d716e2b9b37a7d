package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	payments "github.com/felixgeelhaar/therapia/internal/payments/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

const maxBodyBytes = 1 << 20

var (
	errInvalidBody  = sharedDomain.NewValidationError("INVALID_BODY", "request body is not valid JSON")
	errInvalidID    = sharedDomain.NewValidationError("INVALID_ID", "path parameter is not a valid UUID")
	errInvalidToken = &sharedDomain.Error{
		Code:    sharedDomain.CodeInvalidSignature,
		Reason:  "INVALID_TOKEN",
		Message: "bearer token is invalid or expired",
	}
	errRateLimited = &sharedDomain.Error{
		Code:    "RATE_LIMITED",
		Reason:  "RATE_LIMITED",
		Message: "too many requests, try again later",
	}
)

// errorBody is the JSON envelope of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// statusFor maps an error code to its HTTP status.
func statusFor(code sharedDomain.ErrorCode) int {
	switch code {
	case sharedDomain.CodeNotFound:
		return http.StatusNotFound
	case sharedDomain.CodeValidation, sharedDomain.CodeBusinessRuleViolation:
		return http.StatusUnprocessableEntity
	case sharedDomain.CodeForbidden:
		return http.StatusForbidden
	case sharedDomain.CodeConflict:
		return http.StatusConflict
	case sharedDomain.CodeInvalidSignature:
		return http.StatusUnauthorized
	case sharedDomain.CodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case sharedDomain.CodeTimeout:
		return http.StatusGatewayTimeout
	case errRateLimited.Code:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}

// writeError classifies err and writes the error envelope. Internal details
// of unclassified failures are logged, never returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorStatus(w, r, err, 0)
}

func (s *Server) writeErrorStatus(w http.ResponseWriter, r *http.Request, err error, status int) {
	de := sharedDomain.AsError(err)
	if status == 0 {
		status = statusFor(de.Code)
	}
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	} else {
		s.logger.DebugContext(r.Context(), "request rejected",
			"path", r.URL.Path,
			"status", status,
			"reason", de.Reason,
		)
	}

	message := de.Message
	if de.Code == sharedDomain.CodeInternal {
		message = "internal error"
	}
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:    string(de.Code),
		Reason:  de.Reason,
		Message: message,
	}})
}

// webhookStatus differs from statusFor only for malformed bodies, which the
// provider must see as a client error rather than a validation failure.
func webhookStatus(err error) int {
	if errors.Is(err, payments.ErrMalformedWebhook) {
		return http.StatusBadRequest
	}
	return statusFor(sharedDomain.CodeOf(err))
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errInvalidBody.WithMessage("request body is empty")
		}
		return errInvalidBody.WithMessage("invalid request body: %v", err)
	}
	return nil
}

func invalidParam(name string, err error) error {
	return sharedDomain.NewValidationError("INVALID_PARAMETER", fmt.Sprintf("invalid %s: %v", name, err))
}
