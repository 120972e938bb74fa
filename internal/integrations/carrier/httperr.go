package carrier

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chrismessina/delivery-tracker/internal/trackerr"
)

// ResponseError maps a non-2xx carrier response onto a typed tracking error.
// It returns nil for 2xx.
func ResponseError(source string, resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}

	msg := fmt.Sprintf("%s http %d", source, resp.StatusCode)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return trackerr.NewAuthenticationError(msg)
	case http.StatusTooManyRequests:
		return trackerr.NewRateLimitError(msg, parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	case http.StatusNotFound:
		return trackerr.NewInvalidTrackingError(msg, "")
	default:
		return trackerr.NewCarrierAPIError(msg, resp.StatusCode)
	}
}

// TransportError wraps a failed round trip as a network error.
func TransportError(source string, err error) error {
	return trackerr.NewNetworkError(fmt.Sprintf("%s: %v", source, err), err)
}

// Retry-After is either delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
