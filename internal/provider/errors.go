package provider

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/quillworks/quill/internal/apperr"
)

// markers of retryable upstream responses as they appear in client
// error strings.
var transientMarkers = []string{
	"429",
	"rate limit",
	"overloaded",
	"internal server error",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"connection reset",
	"status code: 5",
}

// IsTransient reports whether err is a retryable upstream failure:
// a timeout, a 429, or a 5xx.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if apperr.IsTransient(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Classify wraps a provider error with the kind retry logic keys on.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return apperr.Wrap(apperr.KindTransient, "provider call failed", err)
	}
	return apperr.Wrap(apperr.KindInternal, "provider call failed", err)
}
