// Package biometric defines the contract for on-device biometric
// verification and helpers for describing a device's capability.
package biometric

import (
	"context"
	"fmt"
	"slices"
)

// AuthType is a kind of biometric sensor.
type AuthType string

const (
	Facial      AuthType = "facial"
	Fingerprint AuthType = "fingerprint"
	Other       AuthType = "other"
)

// Prompt holds the text shown by the system biometric dialog.
type Prompt struct {
	Message       string
	FallbackLabel string
	CancelLabel   string
}

// DefaultPrompt returns the prompt used for the biometric fast path.
func DefaultPrompt() Prompt {
	return Prompt{
		Message:       "Authenticate to access Nommy",
		FallbackLabel: "Use password",
		CancelLabel:   "Cancel",
	}
}

// Result is the outcome of a biometric challenge. A false Success is not an
// error: the user cancelled, chose the fallback, or did not match.
type Result struct {
	Success bool
	Reason  string
}

// Verifier is implemented by the platform biometric service.
type Verifier interface {
	HasHardware(ctx context.Context) (bool, error)
	IsEnrolled(ctx context.Context) (bool, error)
	SupportedTypes(ctx context.Context) ([]AuthType, error)
	Authenticate(ctx context.Context, prompt Prompt) (Result, error)
}

// Capability summarizes what a device can do.
type Capability struct {
	HasHardware bool
	IsEnrolled  bool
	Types       []AuthType
}

// Available reports whether a biometric challenge can be offered.
func (c Capability) Available() bool {
	return c.HasHardware && c.IsEnrolled
}

// Check queries v for hardware, enrollment and supported sensor types.
// Enrollment and types are only queried when hardware is present.
func Check(ctx context.Context, v Verifier) (Capability, error) {
	var c Capability
	if v == nil {
		return c, nil
	}
	hw, err := v.HasHardware(ctx)
	if err != nil {
		return c, fmt.Errorf("checking biometric hardware: %w", err)
	}
	c.HasHardware = hw
	if !hw {
		return c, nil
	}
	enrolled, err := v.IsEnrolled(ctx)
	if err != nil {
		return c, fmt.Errorf("checking biometric enrollment: %w", err)
	}
	c.IsEnrolled = enrolled
	types, err := v.SupportedTypes(ctx)
	if err != nil {
		return c, fmt.Errorf("listing biometric types: %w", err)
	}
	c.Types = types
	return c, nil
}

// Platform selects platform-specific wording.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformOther   Platform = "other"
)

// Label names the biometric method for display, preferring face over
// fingerprint when both are supported.
func Label(types []AuthType, platform Platform) string {
	switch {
	case slices.Contains(types, Facial):
		return "Face ID"
	case slices.Contains(types, Fingerprint):
		if platform == PlatformIOS {
			return "Touch ID"
		}
		return "Fingerprint"
	default:
		return "Biometric"
	}
}
