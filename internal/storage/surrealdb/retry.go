package surrealdb

import (
	"strings"
	"time"
)

const writeRetryAttempts = 3

// writeRetryBackoff is the base delay between write retries.
var writeRetryBackoff = 500 * time.Millisecond

// retryWrite runs fn up to three times with linear backoff between attempts.
// Only connection-class failures are retried; database rejections surface
// immediately.
func retryWrite(fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= writeRetryAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(time.Duration(attempt-1) * writeRetryBackoff)
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// isTransientError reports whether the error looks like a connection failure
// rather than a database rejection.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection", "timeout", "timed out", "broken pipe", "eof", "reset by peer"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
