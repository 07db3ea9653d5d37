// Package fault defines the error taxonomy shared by the document pipeline,
// the external API clients, and the chat service. Callers classify failures
// with errors.Is and decide retry behaviour with Retryable.
package fault

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrUnsupportedFormat is returned when a file's declared type has no parser.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrCorruptFile is returned when a parser cannot read a file of its own format.
	ErrCorruptFile = errors.New("corrupt file")
	// ErrEmptyContent is returned when extraction yields no usable text.
	ErrEmptyContent = errors.New("document has no text content")
	// ErrInvalidConfig is returned for configuration that fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrRateLimited is returned when a hosted API rejects a call with a rate limit.
	ErrRateLimited = errors.New("rate limited by provider")
	// ErrAuth is returned when a hosted API rejects the configured credentials.
	ErrAuth = errors.New("provider authentication failed")
	// ErrContextTooLarge is returned when even a bare prompt exceeds the generation limit.
	ErrContextTooLarge = errors.New("prompt exceeds context limit")
	// ErrNetworkTimeout is returned when an external call exceeds its deadline.
	ErrNetworkTimeout = errors.New("network timeout")
	// ErrIndexNotFound is returned when the vector index rejects a query for a
	// collection that does not exist yet.
	ErrIndexNotFound = errors.New("vector index not found")
)

// Retryable reports whether err is transient and worth retrying with backoff.
// Only rate limits and timeouts qualify; everything else is fatal to the
// current operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNetworkTimeout)
}

// Timeout normalizes deadline-style failures to ErrNetworkTimeout so the
// retry policy can treat provider timeouts uniformly. Non-timeout errors are
// returned unchanged.
func Timeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrNetworkTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrNetworkTimeout
	}
	return err
}
