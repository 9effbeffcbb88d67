// Package auth defines the data contracts exchanged between the session
// manager, the remote auth API and the secure credential store.
package auth

import (
	"errors"
	"log/slog"

	"github.com/jmcleod/ironsession/internal/util"
)

// ErrMissingCredentials indicates an empty email or password.
var ErrMissingCredentials = errors.New("email and password are required")

// User is the identity record of the signed-in person.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// Profile is one role-at-a-company binding a user can act under.
// Profiles are immutable once received; identity is the ID.
type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	CompanyName string `json:"companyName"`
	CompanyID   string `json:"companyId"`
	Avatar      string `json:"avatar,omitempty"`
}

// Profiles is an ordered list of profiles available to a user.
type Profiles []Profile

// Find returns the profile with the given id.
func (ps Profiles) Find(id string) (Profile, bool) {
	for _, p := range ps {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}

// Contains reports whether a profile with the given id is present.
func (ps Profiles) Contains(id string) bool {
	_, ok := ps.Find(id)
	return ok
}

// Clone returns a copy that shares no backing array with ps.
func (ps Profiles) Clone() Profiles {
	if ps == nil {
		return Profiles{}
	}
	return append(Profiles(make([]Profile, 0, len(ps))), ps...)
}

// Credentials is a transient email/password pair.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize returns a copy with the email canonicalized. The password is
// left untouched.
func (c Credentials) Normalize() Credentials {
	return Credentials{Email: util.NormalizeIdentifier(c.Email), Password: c.Password}
}

// Validate fails with ErrMissingCredentials if either field is empty.
func (c Credentials) Validate() error {
	if c.Email == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

func (c Credentials) String() string {
	return "Credentials{Email: " + c.Email + ", Password: [REDACTED]}"
}

// LogValue keeps the password out of structured logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(slog.String("email", c.Email))
}

// TokenPair holds the opaque access and refresh tokens.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Present reports whether both tokens are non-empty. Token contents are
// never inspected.
func (t TokenPair) Present() bool {
	return t.AccessToken != "" && t.RefreshToken != ""
}

// LoginResponse is the payload returned by a successful login.
type LoginResponse struct {
	User         *User    `json:"user"`
	Profiles     Profiles `json:"profiles"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}

// Tokens returns the token pair carried by the response.
func (r *LoginResponse) Tokens() TokenPair {
	return TokenPair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

// Validate rejects a response without a user or without both tokens.
func (r *LoginResponse) Validate() error {
	switch {
	case r.User == nil || r.User.ID == "":
		return errors.New("login response has no user")
	case !r.Tokens().Present():
		return errors.New("login response is missing tokens")
	}
	for _, p := range r.Profiles {
		if p.ID == "" {
			return errors.New("login response has a profile without an id")
		}
	}
	return nil
}
