package trackerr

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Failure is the raw material for classification: the error text and, when
// the transport knows it, the HTTP status code.
type Failure struct {
	Message    string
	StatusCode int
}

var (
	networkKeywords = []string{
		"network", "econnrefused", "enotfound", "timeout", "etimedout",
		"fetch failed", "connection",
	}
	authKeywords = []string{
		"unauthorized", "401", "403", "forbidden", "authentication",
		"invalid credentials", "api key",
	}
	rateLimitKeywords = []string{"rate limit", "429", "too many requests"}
	invalidKeywords   = []string{
		"invalid tracking", "tracking number not found", "not found", "404",
	}

	retryAfterRe = regexp.MustCompile(`(?i)retry.*?(\d+)`)
	statusCodeRe = regexp.MustCompile(`\b([45]\d{2})\b`)
)

// Classify applies the ordered rules to a failure. First match wins.
func Classify(f Failure, deliveryName string) *TrackingError {
	msg := f.Message
	lower := strings.ToLower(msg)

	switch {
	case containsAny(lower, networkKeywords):
		return withDelivery(NewNetworkError(msg, nil), deliveryName)
	case containsAny(lower, authKeywords):
		return withDelivery(NewAuthenticationError(msg), deliveryName)
	case containsAny(lower, rateLimitKeywords):
		return withDelivery(NewRateLimitError(msg, retryAfterFrom(msg)), deliveryName)
	case containsAny(lower, invalidKeywords):
		return NewInvalidTrackingError(msg, deliveryName)
	}

	if f.StatusCode >= 400 && f.StatusCode < 600 {
		return withDelivery(NewCarrierAPIError(msg, f.StatusCode), deliveryName)
	}
	if m := statusCodeRe.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		return withDelivery(NewCarrierAPIError(msg, code), deliveryName)
	}

	return withDelivery(NewUnknownError(msg, nil), deliveryName)
}

// Categorize converts any error into a *TrackingError. Errors that already
// are (or wrap) a TrackingError are returned as is.
func Categorize(err error, deliveryName string) *TrackingError {
	if err == nil {
		return nil
	}

	var te *TrackingError
	if errors.As(err, &te) {
		if te.DeliveryName == "" && deliveryName != "" {
			cp := *te
			cp.DeliveryName = deliveryName
			return &cp
		}
		return te
	}

	f := Failure{Message: err.Error()}
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		f.StatusCode = sc.StatusCode()
	}

	out := Classify(f, deliveryName)
	out.cause = err
	return out
}

func retryAfterFrom(msg string) time.Duration {
	m := retryAfterRe.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	secs, err := strconv.Atoi(m[1])
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func withDelivery(e *TrackingError, name string) *TrackingError {
	e.DeliveryName = name
	return e
}
