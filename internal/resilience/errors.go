package resilience

import (
	"context"
	"errors"
	"regexp"
)

type permanentError struct {
	cause error
}

func (e permanentError) Error() string {
	if e.cause == nil {
		return "permanent error"
	}
	return e.cause.Error()
}

func (e permanentError) Unwrap() error {
	return e.cause
}

// Permanent marks an error as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{cause: err}
}

// IsPermanent reports whether err was explicitly marked as non-retryable.
func IsPermanent(err error) bool {
	var target permanentError
	return errors.As(err, &target)
}

// nonRetryableStatus matches request-class status codes that will not succeed
// on retry, only where the text formats them as a status: "status 400",
// "status code: 401", "HTTP/1.1 403", or a code with its reason phrase.
var nonRetryableStatus = regexp.MustCompile(`(?i)` +
	`\b(?:status(?:\s+code)?:?|http(?:/\d(?:\.\d)?)?)\s*(?:400|401|403)\b` +
	`|\b(?:400 bad request|401 unauthorized|403 forbidden)\b`)

// IsRetryable classifies a failed attempt. Explicitly permanent errors,
// caller cancellation, and bad-request/auth failures are not retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return !nonRetryableStatus.MatchString(err.Error())
}
