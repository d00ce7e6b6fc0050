// Package domain contains the core business concepts for pdfhub.
// Keep this package free of transport (HTTP) and infrastructure
// (Redis/Chrome) concerns.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conversion pipeline. Every failure surfaced to a
// caller is classified as exactly one of these kinds.
var (
	// ErrLaunchFailed signals that the browser engine process could not start.
	ErrLaunchFailed = errors.New("browser engine failed to launch")
	// ErrNavigationFailed signals that the page content could not be loaded.
	ErrNavigationFailed = errors.New("page content could not be loaded")
	// ErrRenderTimeout signals that the page did not settle or render in time.
	ErrRenderTimeout = errors.New("render timed out waiting for the page to settle")
	// ErrEngineRejectedOptions signals that the engine refused the resolved
	// render options at print time.
	ErrEngineRejectedOptions = errors.New("engine rejected render options")
	// ErrStoreUnavailable signals that the log store could not be opened.
	ErrStoreUnavailable = errors.New("log store unavailable")
	// ErrConversionFailed is the catch-all for anything unanticipated.
	ErrConversionFailed = errors.New("conversion failed")
)

// Kind names for failure payloads.
const (
	KindLaunchFailed          = "LaunchFailed"
	KindNavigationFailed      = "NavigationFailed"
	KindRenderTimeout         = "RenderTimeout"
	KindEngineRejectedOptions = "EngineRejectedOptions"
	KindStoreUnavailable      = "StoreUnavailable"
	KindConversionFailed      = "ConversionFailed"
)

// KindOf classifies err into one of the failure kind names. Unrecognized
// errors map to the ConversionFailed catch-all.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrLaunchFailed):
		return KindLaunchFailed
	case errors.Is(err, ErrNavigationFailed):
		return KindNavigationFailed
	case errors.Is(err, ErrRenderTimeout):
		return KindRenderTimeout
	case errors.Is(err, ErrEngineRejectedOptions):
		return KindEngineRejectedOptions
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	default:
		return KindConversionFailed
	}
}

// IsClassified reports whether err already carries one of the sentinel kinds.
func IsClassified(err error) bool {
	return errors.Is(err, ErrLaunchFailed) ||
		errors.Is(err, ErrNavigationFailed) ||
		errors.Is(err, ErrRenderTimeout) ||
		errors.Is(err, ErrEngineRejectedOptions) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrConversionFailed)
}

// ConversionError is the uniform failure payload produced at the orchestrator
// boundary. Message is safe to show to a caller; the underlying error is kept
// for logging only.
type ConversionError struct {
	Kind      string
	RequestID string
	Message   string
	Err       error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s: %s (request %s)", e.Kind, e.Message, e.RequestID)
}

func (e *ConversionError) Unwrap() error { return e.Err }
