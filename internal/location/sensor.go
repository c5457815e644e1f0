// ABOUTME: Geolocation sensor abstraction and its error taxonomy
// ABOUTME: Sensors deliver one-shot fixes, continuous readings and a permission state

package location

import (
	"context"
	"errors"
	"fmt"
)

// Permission is the user's answer to the location permission prompt.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionPrompt  Permission = "prompt"
)

// Reading is one item of a continuous subscription: a sample or an error.
type Reading struct {
	Sample Sample
	Err    error
}

// Sensor is a platform geolocation capability.
type Sensor interface {
	// Current returns a single fix.
	Current(ctx context.Context, opts Options) (Sample, error)
	// Watch delivers readings until ctx is cancelled, then closes the channel.
	Watch(ctx context.Context, opts Options) (<-chan Reading, error)
	// Permission reports the current permission state.
	Permission(ctx context.Context) (Permission, error)
}

var (
	ErrPermissionDenied     = errors.New("location permission denied")
	ErrSensorUnavailable    = errors.New("location sensor unavailable")
	ErrSensorTimeout        = errors.New("location sensor timeout")
	ErrSensorTimeoutAtFloor = errors.New("location sensor timed out at lowest accuracy")
)

// ErrorCode classifies sensor failures.
type ErrorCode int

const (
	CodePermissionDenied ErrorCode = 1
	CodeUnavailable      ErrorCode = 2
	CodeTimeout          ErrorCode = 3
)

// SensorError is a failure reported by a Sensor.
type SensorError struct {
	Code    ErrorCode
	Message string
}

// NewSensorError creates an error with the stock message for code.
func NewSensorError(code ErrorCode) *SensorError {
	return &SensorError{Code: code, Message: messageFor(code)}
}

func (e *SensorError) Error() string {
	return fmt.Sprintf("sensor error %d: %s", e.Code, e.Message)
}

// Is matches the package sentinels by code.
func (e *SensorError) Is(target error) bool {
	switch target {
	case ErrPermissionDenied:
		return e.Code == CodePermissionDenied
	case ErrSensorUnavailable:
		return e.Code == CodeUnavailable
	case ErrSensorTimeout:
		return e.Code == CodeTimeout
	}
	return false
}

func messageFor(code ErrorCode) string {
	switch code {
	case CodePermissionDenied:
		return "location access was denied; allow access for a better experience"
	case CodeUnavailable:
		return "location unavailable; check your connection and try again"
	case CodeTimeout:
		return "timed out obtaining location"
	default:
		return "unknown error accessing location"
	}
}
