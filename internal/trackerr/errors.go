// Package trackerr turns carrier and network failures into a closed set of
// categories with user-facing guidance.
package trackerr

import (
	"fmt"
	"math"
	"time"
)

type Category string

const (
	CategoryNetwork         Category = "network"
	CategoryAuthentication  Category = "authentication"
	CategoryRateLimit       Category = "rate_limit"
	CategoryInvalidTracking Category = "invalid_tracking"
	CategoryCarrierAPI      Category = "carrier_api"
	CategoryUnknown         Category = "unknown"
)

// Categories lists every category in classification order.
var Categories = []Category{
	CategoryNetwork,
	CategoryAuthentication,
	CategoryRateLimit,
	CategoryInvalidTracking,
	CategoryCarrierAPI,
	CategoryUnknown,
}

const (
	msgNetwork         = "Network connection issue. Check your internet connection and try again."
	msgAuthentication  = "Authentication failed. Please check your API credentials in settings."
	msgRateLimitLater  = "Rate limit exceeded. Please try again later."
	msgInvalidTracking = "Invalid tracking number. Please verify the tracking number is correct."
	msgCarrierAPI      = "Carrier API error. The service may be temporarily unavailable."
	msgUnknown         = "An unexpected error occurred. Please try again."
)

// TrackingError is a categorized failure. Message is the original error
// text, UserMessage is the guidance shown to the user.
type TrackingError struct {
	Category    Category
	Message     string
	UserMessage string

	// DeliveryName is the delivery the failure was raised for, if known.
	DeliveryName string
	// RetryAfter is set for rate_limit errors when the carrier told us.
	RetryAfter time.Duration
	// StatusCode is set for carrier_api errors.
	StatusCode int

	cause error
}

func (e *TrackingError) Error() string {
	return e.Message
}

func (e *TrackingError) Unwrap() error {
	return e.cause
}

func (e *TrackingError) Is(target error) bool {
	t, ok := target.(*TrackingError)
	if !ok {
		return false
	}
	return t.Category == e.Category && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is matching by category.
var (
	ErrNetwork         = &TrackingError{Category: CategoryNetwork}
	ErrAuthentication  = &TrackingError{Category: CategoryAuthentication}
	ErrRateLimit       = &TrackingError{Category: CategoryRateLimit}
	ErrInvalidTracking = &TrackingError{Category: CategoryInvalidTracking}
	ErrCarrierAPI      = &TrackingError{Category: CategoryCarrierAPI}
	ErrUnknown         = &TrackingError{Category: CategoryUnknown}
)

func NewNetworkError(message string, cause error) *TrackingError {
	return &TrackingError{
		Category:    CategoryNetwork,
		Message:     message,
		UserMessage: msgNetwork,
		cause:       cause,
	}
}

func NewAuthenticationError(message string) *TrackingError {
	return &TrackingError{
		Category:    CategoryAuthentication,
		Message:     message,
		UserMessage: msgAuthentication,
	}
}

// NewRateLimitError builds a rate_limit error. A zero retryAfter means the
// carrier gave no hint.
func NewRateLimitError(message string, retryAfter time.Duration) *TrackingError {
	user := msgRateLimitLater
	if retryAfter > 0 {
		minutes := int(math.Ceil(retryAfter.Minutes()))
		user = fmt.Sprintf("Rate limit exceeded. Please try again in %d minutes.", minutes)
	}
	return &TrackingError{
		Category:    CategoryRateLimit,
		Message:     message,
		UserMessage: user,
		RetryAfter:  retryAfter,
	}
}

func NewInvalidTrackingError(message, deliveryName string) *TrackingError {
	return &TrackingError{
		Category:     CategoryInvalidTracking,
		Message:      message,
		UserMessage:  msgInvalidTracking,
		DeliveryName: deliveryName,
	}
}

func NewCarrierAPIError(message string, statusCode int) *TrackingError {
	return &TrackingError{
		Category:    CategoryCarrierAPI,
		Message:     message,
		UserMessage: msgCarrierAPI,
		StatusCode:  statusCode,
	}
}

func NewUnknownError(message string, cause error) *TrackingError {
	return &TrackingError{
		Category:    CategoryUnknown,
		Message:     message,
		UserMessage: msgUnknown,
		cause:       cause,
	}
}

// UserMessageFor returns the canonical guidance for a category.
func UserMessageFor(c Category) string {
	switch c {
	case CategoryNetwork:
		return msgNetwork
	case CategoryAuthentication:
		return msgAuthentication
	case CategoryRateLimit:
		return msgRateLimitLater
	case CategoryInvalidTracking:
		return msgInvalidTracking
	case CategoryCarrierAPI:
		return msgCarrierAPI
	default:
		return msgUnknown
	}
}
