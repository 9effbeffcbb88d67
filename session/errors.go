package session

import (
	"errors"
	"fmt"

	"github.com/jmcleod/ironsession/auth"
	"github.com/jmcleod/ironsession/authapi"
)

var (
	// ErrBusy is returned when a mutating operation is already in flight.
	ErrBusy = errors.New("session operation already in progress")
	// ErrMissingCredentials is returned when the email or password is empty.
	ErrMissingCredentials = auth.ErrMissingCredentials
	// ErrBiometricUnavailable is returned when the device lacks biometric
	// hardware or has no enrolled biometric.
	ErrBiometricUnavailable = errors.New("biometric authentication not available")
	// ErrNoStoredCredentials is returned by a biometric login when no
	// enrolled credentials are stored on the device.
	ErrNoStoredCredentials = errors.New("no stored credentials found")
	// ErrUnknownProfile is returned when selecting a profile that is not
	// among the session's profiles.
	ErrUnknownProfile = errors.New("profile is not available to this user")
	// ErrNotAuthenticated is returned by operations that need a signed-in user.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrLoginFailed is matched by every *LoginError.
	ErrLoginFailed = errors.New("login failed")
)

// GenericLoginMessage is shown when the server gave no usable detail.
const GenericLoginMessage = "Please check your credentials and try again."

// LoginError reports a failed login. Message is suitable for display.
type LoginError struct {
	Message string
	Err     error
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("%v: %v", ErrLoginFailed, e.Err)
}

func (e *LoginError) Unwrap() []error {
	return []error{ErrLoginFailed, e.Err}
}

func newLoginError(err error) *LoginError {
	msg, ok := authapi.ServerMessage(err)
	if !ok {
		msg = GenericLoginMessage
	}
	return &LoginError{Message: msg, Err: err}
}
