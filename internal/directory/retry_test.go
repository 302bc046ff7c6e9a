package directory

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestIsRetryable_StatusCodes(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		err := &googleapi.Error{Code: code}
		require.True(t, isRetryable(err), "status %d should be retryable", code)
	}
}

func TestIsRetryable_NonRetryableStatus(t *testing.T) {
	err := &googleapi.Error{Code: 403}
	require.False(t, isRetryable(err))
}

func TestIsRetryable_QuotaMessage(t *testing.T) {
	err := errors.New(`Domain Shared Contacts read not consented: userRateLimitExceeded`)
	require.True(t, isRetryable(err))
}

func TestIsRetryable_NilError(t *testing.T) {
	require.False(t, isRetryable(nil))
}

func TestIsNotFound(t *testing.T) {
	require.True(t, isNotFound(&googleapi.Error{Code: 404}))
	require.False(t, isNotFound(&googleapi.Error{Code: 403}))
	require.False(t, isNotFound(errors.New("boom")))
}

func TestBackoff_CapsAtThirtyTwoSeconds(t *testing.T) {
	d := backoff(10) // 2^10 would be far beyond the 32s cap
	require.Less(t, d, 34*time.Second)
	require.GreaterOrEqual(t, d, 32*time.Second)
}

func TestBackoff_GrowsWithAttempt(t *testing.T) {
	require.Less(t, backoff(1).Truncate(time.Second), backoff(4).Truncate(time.Second)+time.Second)
}
