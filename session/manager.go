// Package session holds the client-side authentication session: who is
// signed in, which profile they act under and whether biometric sign-in is
// enabled. It coordinates the secure credential store, the biometric
// verifier and the remote auth API, and reports navigation intents instead
// of driving a UI router.
package session

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmcleod/ironsession/auth"
	"github.com/jmcleod/ironsession/authapi"
	"github.com/jmcleod/ironsession/biometric"
	"github.com/jmcleod/ironsession/securestore"
)

// Store is the secure credential store used to persist the session.
type Store interface {
	Get(ctx context.Context, key securestore.Key) (string, bool, error)
	Set(ctx context.Context, key securestore.Key, value string) error
	Delete(ctx context.Context, key securestore.Key) error
	SetAll(ctx context.Context, values map[securestore.Key]string) error
	DeleteAll(ctx context.Context, keys ...securestore.Key) error
}

// API is the remote auth service.
type API interface {
	Login(ctx context.Context, creds auth.Credentials) (*auth.LoginResponse, error)
	Logout(ctx context.Context, refreshToken string) error
}

var (
	_ Store = (*securestore.Store)(nil)
	_ API   = (*authapi.Client)(nil)
)

// sessionKeys are removed on logout. Biometric credentials are kept so the
// fast path keeps working for the next sign-in.
var sessionKeys = []securestore.Key{
	securestore.KeyAccessToken,
	securestore.KeyRefreshToken,
	securestore.KeyUser,
	securestore.KeyProfiles,
	securestore.KeySelectedProfile,
	securestore.KeyBiometricEnabled,
}

// Manager owns the in-memory session. Reads are safe from any goroutine;
// mutating operations are admitted one at a time.
type Manager struct {
	store    Store
	verifier biometric.Verifier
	api      API
	prompt   biometric.Prompt
	logger   *slog.Logger
	audit    *auditLogger
	metrics  *metrics

	busy atomic.Bool

	mu    sync.RWMutex
	state State

	listenersMu  sync.Mutex
	listeners    []listenerEntry
	nextListener uint64
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// New returns a Manager with an empty session. A nil verifier behaves like
// a device without biometric hardware.
func New(store Store, verifier biometric.Verifier, api API, opts ...Option) *Manager {
	o := options{
		logger: slog.Default(),
		prompt: biometric.DefaultPrompt(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if verifier == nil {
		verifier = biometric.Unavailable()
	}
	m := &Manager{
		store:    store,
		verifier: verifier,
		api:      api,
		prompt:   o.prompt,
		logger:   o.logger,
		audit:    newAuditLogger(o.logger, o.now),
		metrics:  newMetrics(o.registerer),
		state:    State{Profiles: auth.Profiles{}},
	}
	m.metrics.setAuthenticated(false)
	return m
}

// State returns a copy of the current session.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// Subscribe registers l for session events and returns a function that
// removes it. Listeners run in registration order on the goroutine that
// committed the change, outside the state lock.
func (m *Manager) Subscribe(l Listener) (unsubscribe func()) {
	m.listenersMu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: l})
	m.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.listenersMu.Lock()
			defer m.listenersMu.Unlock()
			m.listeners = slices.DeleteFunc(m.listeners, func(e listenerEntry) bool {
				return e.id == id
			})
		})
	}
}

func (m *Manager) acquire(operation string) error {
	if !m.busy.CompareAndSwap(false, true) {
		m.metrics.observe(operation, outcomeBusy)
		return ErrBusy
	}
	return nil
}

func (m *Manager) release() {
	m.busy.Store(false)
}

// commit applies mutate under the state lock and then notifies listeners
// with the resulting snapshot.
func (m *Manager) commit(intent Intent, mutate func(*State)) {
	m.mu.Lock()
	mutate(&m.state)
	snapshot := m.state.clone()
	m.mu.Unlock()

	m.metrics.setAuthenticated(snapshot.IsAuthenticated())
	m.notify(Event{State: snapshot, Intent: intent})
}

func (m *Manager) notify(ev Event) {
	m.listenersMu.Lock()
	listeners := slices.Clone(m.listeners)
	m.listenersMu.Unlock()

	for _, l := range listeners {
		l.fn(Event{State: ev.State.clone(), Intent: ev.Intent})
	}
}

func (m *Manager) startLoading() {
	m.commit(IntentNone, func(s *State) { s.Loading = true })
}

// stopLoading clears the loading flag unless the operation's final commit
// already did.
func (m *Manager) stopLoading() {
	m.mu.RLock()
	loading := m.state.Loading
	m.mu.RUnlock()
	if loading {
		m.commit(IntentNone, func(s *State) { s.Loading = false })
	}
}

func (m *Manager) currentUserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.User == nil {
		return ""
	}
	return m.state.User.ID
}

func (m *Manager) capability(ctx context.Context) (biometric.Capability, error) {
	return biometric.Check(ctx, m.verifier)
}

// EnrollmentOffer reports whether the presentation layer should offer
// biometric enrollment: a user is signed in, the device is capable and
// biometric sign-in is not yet enabled. The offer must still be accepted
// explicitly before SaveBiometricCredentials is called.
func (m *Manager) EnrollmentOffer(ctx context.Context) bool {
	st := m.State()
	if !st.IsAuthenticated() || st.BiometricEnabled {
		return false
	}
	c, err := m.capability(ctx)
	if err != nil {
		m.logger.Debug("biometric capability check failed", "error", err)
		return false
	}
	return c.Available()
}

// BiometricLoginAvailable reports whether the biometric fast path can be
// offered on the login screen.
func (m *Manager) BiometricLoginAvailable(ctx context.Context) bool {
	c, err := m.capability(ctx)
	if err != nil || !c.Available() {
		return false
	}
	_, ok, err := m.store.Get(ctx, securestore.KeyBiometricCredentials)
	if err != nil {
		m.logger.Warn("reading biometric credentials", "error", err)
		return false
	}
	return ok
}

// BiometricLabel names the device's biometric method for display.
func (m *Manager) BiometricLabel(ctx context.Context, platform biometric.Platform) string {
	c, err := m.capability(ctx)
	if err != nil {
		m.logger.Debug("biometric capability check failed", "error", err)
	}
	return biometric.Label(c.Types, platform)
}
