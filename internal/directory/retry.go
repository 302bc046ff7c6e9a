package directory

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
)

var retryableStatus = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

var retryableReasonSubstrings = []string{
	"rateLimitExceeded",
	"userRateLimitExceeded",
}

// isRetryable reports whether err represents a transient upstream failure
// (spec.md §4.1): a status in {429,500,502,503,504}, or an error message
// containing a quota-exceeded phrase. It is a pure function of err — the
// caller owns the attempt counter and sleep (spec.md §9 "Retry policy as
// a strategy, not a keyword").
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := err.(*googleapi.Error); ok && retryableStatus[apiErr.Code] {
		return true
	}
	msg := err.Error()
	for _, s := range retryableReasonSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// isNotFound reports whether err is a 404 from the Directory API (spec.md
// §4.1 "A 404 during member listing yields an empty membership list").
func isNotFound(err error) bool {
	apiErr, ok := err.(*googleapi.Error)
	return ok && apiErr.Code == 404
}

// backoff returns the sleep duration before retry attempt n (0-indexed,
// matching original_source's min(32, 2^attempt) starting at attempt 0):
// min(32, 2^n) seconds plus up to 1s of uniform jitter (spec.md §4.1).
func backoff(attempt int) time.Duration {
	secs := math.Min(32, math.Pow(2, float64(attempt)))
	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	return time.Duration(secs*float64(time.Second)) + jitter
}
