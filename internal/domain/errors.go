package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies capture and submission failures.
type ErrorKind string

const (
	KindPermissionDenied   ErrorKind = "permission_denied"
	KindDeviceUnavailable  ErrorKind = "device_unavailable"
	KindCaptureInitFailure ErrorKind = "capture_init_failure"
	KindNetworkFailure     ErrorKind = "network_failure"
	KindHTTPFailure        ErrorKind = "http_failure"
	KindParseFailure       ErrorKind = "parse_failure"
)

// CaptureError is returned when a device cannot be opened or a capture cannot start.
type CaptureError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *CaptureError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *CaptureError) Unwrap() error { return e.Err }

// NewCaptureError builds a CaptureError.
func NewCaptureError(kind ErrorKind, message string, err error) error {
	return &CaptureError{Kind: kind, Message: message, Err: err}
}

// DetectionError is the typed failure of a submission. Message is what the UI shows.
type DetectionError struct {
	Kind    ErrorKind `json:"kind"`
	Status  int       `json:"status,omitempty"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *DetectionError) Error() string { return e.Message }

func (e *DetectionError) Unwrap() error { return e.Err }

// ErrorKindOf reports the kind of a capture or detection error, or "" for anything else.
func ErrorKindOf(err error) ErrorKind {
	var captureErr *CaptureError
	if errors.As(err, &captureErr) {
		return captureErr.Kind
	}
	var detectionErr *DetectionError
	if errors.As(err, &detectionErr) {
		return detectionErr.Kind
	}
	return ""
}

// IsPermissionError reports whether err means the camera was refused.
func IsPermissionError(err error) bool {
	return ErrorKindOf(err) == KindPermissionDenied
}
