package intake

import "errors"

var (
	ErrMalformedRequest = errors.New("malformed delivery request")
	ErrUnknownBackoff   = errors.New("unknown backoff strategy")
	ErrQueueUnavailable = errors.New("delivery queue unavailable")
	ErrTimeoutTooLong   = errors.New("timeout must be shorter than the queue lock timeout")

	ErrInvalidCorrelationID = errors.New("correlation id must be 1-128 characters of letters, digits, '_', '-', '.' or ':'")
)
