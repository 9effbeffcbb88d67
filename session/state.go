package session

import "github.com/jmcleod/ironsession/auth"

// State is a snapshot of the in-memory session.
type State struct {
	User             *auth.User
	Profiles         auth.Profiles
	SelectedProfile  *auth.Profile
	BiometricEnabled bool
	Loading          bool
}

// IsAuthenticated reports whether a user is signed in.
func (s State) IsAuthenticated() bool {
	return s.User != nil
}

// Phase derives the lifecycle phase of the session.
func (s State) Phase() Phase {
	switch {
	case s.User == nil:
		return Unauthenticated
	case s.SelectedProfile != nil:
		return Authenticated
	case len(s.Profiles) == 0:
		return NoAccess
	default:
		return ProfileSelectionPending
	}
}

func (s State) clone() State {
	out := State{
		Profiles:         s.Profiles.Clone(),
		BiometricEnabled: s.BiometricEnabled,
		Loading:          s.Loading,
	}
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	if s.SelectedProfile != nil {
		p := *s.SelectedProfile
		out.SelectedProfile = &p
	}
	return out
}

// Phase is a session lifecycle phase.
type Phase int

const (
	Unauthenticated Phase = iota
	ProfileSelectionPending
	Authenticated
	// NoAccess is a signed-in user with no profiles at all.
	NoAccess
)

func (p Phase) String() string {
	switch p {
	case Unauthenticated:
		return "unauthenticated"
	case ProfileSelectionPending:
		return "profile_selection_pending"
	case Authenticated:
		return "authenticated"
	case NoAccess:
		return "no_access"
	default:
		return "unknown"
	}
}

// Intent tells the presentation layer where to navigate next.
type Intent int

const (
	IntentNone Intent = iota
	IntentHome
	IntentProfileSelection
	IntentLogin
)

func (i Intent) String() string {
	switch i {
	case IntentHome:
		return "home"
	case IntentProfileSelection:
		return "select-profile"
	case IntentLogin:
		return "login"
	default:
		return "none"
	}
}

// Event is delivered to listeners for every committed state change.
type Event struct {
	State  State
	Intent Intent
}

// Listener receives session events. It must not call back into mutating
// Manager operations synchronously; those would fail with ErrBusy.
type Listener func(Event)
