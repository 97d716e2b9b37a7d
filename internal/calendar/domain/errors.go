package domain

import (
	"errors"
	"net/http"

	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

var (
	// ErrTransientUpstream covers failures worth retrying: network errors,
	// 5xx, 429 and an open circuit.
	ErrTransientUpstream = sharedDomain.NewUpstreamError("CALENDAR_UNAVAILABLE", "calendar provider unavailable")
	// ErrPermanentUpstream covers rejected requests and malformed responses.
	ErrPermanentUpstream = sharedDomain.NewInternalError("CALENDAR_REJECTED", "calendar provider rejected the request")
)

// Transient wraps err as a retryable upstream failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return ErrTransientUpstream.Wrap(err)
}

// Permanent wraps err as a non-retryable upstream failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return ErrPermanentUpstream.Wrap(err)
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientUpstream)
}

// IsTransientStatus classifies an HTTP status code returned by a provider.
func IsTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Classify leaves classified errors untouched and treats anything else as
// transient, which is how raw transport errors surface.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransientUpstream) || errors.Is(err, ErrPermanentUpstream) {
		return err
	}
	return Transient(err)
}
