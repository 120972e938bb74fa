package carrier

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chrismessina/delivery-tracker/internal/trackerr"
)

func TestResponseError(t *testing.T) {
	cases := []struct {
		code int
		want trackerr.Category
	}{
		{401, trackerr.CategoryAuthentication},
		{403, trackerr.CategoryAuthentication},
		{404, trackerr.CategoryInvalidTracking},
		{429, trackerr.CategoryRateLimit},
		{500, trackerr.CategoryCarrierAPI},
		{503, trackerr.CategoryCarrierAPI},
	}
	for _, tc := range cases {
		err := ResponseError("ups", &http.Response{StatusCode: tc.code, Header: http.Header{}})
		var te *trackerr.TrackingError
		require.True(t, errors.As(err, &te), "code %d", tc.code)
		require.Equal(t, tc.want, te.Category, "code %d", tc.code)
	}

	require.NoError(t, ResponseError("ups", &http.Response{StatusCode: 204}))
}

func TestResponseError_RetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "90")
	err := ResponseError("ups", &http.Response{StatusCode: 429, Header: h})

	var te *trackerr.TrackingError
	require.True(t, errors.As(err, &te))
	require.Equal(t, 90*time.Second, te.RetryAfter)
	require.Equal(t, "Rate limit exceeded. Please try again in 2 minutes.", te.UserMessage)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	require.Equal(t, 30*time.Second, parseRetryAfter("30", now))
	require.Zero(t, parseRetryAfter("", now))
	require.Zero(t, parseRetryAfter("-5", now))
	require.Equal(t, 2*time.Minute, parseRetryAfter(now.Add(2*time.Minute).Format(http.TimeFormat), now))
	require.Zero(t, parseRetryAfter("garbage", now))
}

func TestTransportError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := TransportError("ups", cause)
	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, trackerr.ErrNetwork)
}
