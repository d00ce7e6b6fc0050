package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "launch", err: ErrLaunchFailed, want: KindLaunchFailed},
		{name: "navigation wrapped", err: fmt.Errorf("%w: dns lookup failed", ErrNavigationFailed), want: KindNavigationFailed},
		{name: "timeout", err: ErrRenderTimeout, want: KindRenderTimeout},
		{name: "options", err: ErrEngineRejectedOptions, want: KindEngineRejectedOptions},
		{name: "store", err: ErrStoreUnavailable, want: KindStoreUnavailable},
		{name: "unknown", err: errors.New("boom"), want: KindConversionFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsClassified(t *testing.T) {
	if IsClassified(errors.New("random")) {
		t.Fatalf("random error must not be classified")
	}
	if !IsClassified(fmt.Errorf("wrap: %w", ErrRenderTimeout)) {
		t.Fatalf("wrapped sentinel must be classified")
	}
}

func TestConversionError_MessageAndUnwrap(t *testing.T) {
	inner := fmt.Errorf("%w: exec: chrome not found", ErrLaunchFailed)
	ce := &ConversionError{
		Kind:      KindOf(inner),
		RequestID: "req-1",
		Message:   ErrLaunchFailed.Error(),
		Err:       inner,
	}
	if !errors.Is(ce, ErrLaunchFailed) {
		t.Fatalf("expected errors.Is to reach the sentinel through ConversionError")
	}
	if ce.Error() == "" || ce.Kind != KindLaunchFailed {
		t.Fatalf("unexpected conversion error: %+v", ce)
	}
}
