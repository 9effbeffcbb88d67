package biometric

import (
	"context"
	"sync/atomic"
)

// Static is a Verifier with fixed answers. It backs the simulated device of
// the command line client and is convenient in tests.
type Static struct {
	Hardware bool
	Enrolled bool
	Types    []AuthType
	// Succeed is the outcome of every Authenticate call.
	Succeed bool
	// Err, when set, is returned by every method.
	Err error

	calls atomic.Int64
}

var _ Verifier = (*Static)(nil)

// Unavailable returns a verifier for a device without biometric hardware.
func Unavailable() *Static {
	return &Static{}
}

// Enrolled returns a verifier with the given sensor enrolled whose
// challenges succeed.
func Enrolled(t AuthType) *Static {
	return &Static{Hardware: true, Enrolled: true, Types: []AuthType{t}, Succeed: true}
}

func (s *Static) HasHardware(context.Context) (bool, error) {
	return s.Hardware, s.Err
}

func (s *Static) IsEnrolled(context.Context) (bool, error) {
	return s.Enrolled, s.Err
}

func (s *Static) SupportedTypes(context.Context) ([]AuthType, error) {
	return append([]AuthType(nil), s.Types...), s.Err
}

func (s *Static) Authenticate(ctx context.Context, _ Prompt) (Result, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if s.Err != nil {
		return Result{}, s.Err
	}
	if !s.Succeed {
		return Result{Reason: "user_cancel"}, nil
	}
	return Result{Success: true}, nil
}

// Challenges returns how many times Authenticate was called.
func (s *Static) Challenges() int64 {
	return s.calls.Load()
}
