package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironsession/auth"
	"github.com/jmcleod/ironsession/authapi"
	"github.com/jmcleod/ironsession/biometric"
	"github.com/jmcleod/ironsession/internal/authtest"
	"github.com/jmcleod/ironsession/internal/util"
	"github.com/jmcleod/ironsession/securestore"
	"github.com/jmcleod/ironsession/storage/memory"
)

var errStoreDown = errors.New("keystore unavailable")

// faultyStore injects failures per key into a real secure store.
type faultyStore struct {
	Store

	mu        sync.Mutex
	getErr    map[securestore.Key]error
	setErr    map[securestore.Key]error
	deleteErr map[securestore.Key]error
}

func (f *faultyStore) failGet(key securestore.Key, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr[key] = err
}

func (f *faultyStore) failSet(key securestore.Key, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setErr[key] = err
}

func (f *faultyStore) failDelete(key securestore.Key, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteErr[key] = err
}

func (f *faultyStore) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.getErr)
	clear(f.setErr)
	clear(f.deleteErr)
}

func (f *faultyStore) Get(ctx context.Context, key securestore.Key) (string, bool, error) {
	f.mu.Lock()
	err := f.getErr[key]
	f.mu.Unlock()
	if err != nil {
		return "", false, err
	}
	return f.Store.Get(ctx, key)
}

func (f *faultyStore) Set(ctx context.Context, key securestore.Key, value string) error {
	f.mu.Lock()
	err := f.setErr[key]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Set(ctx, key, value)
}

func (f *faultyStore) Delete(ctx context.Context, key securestore.Key) error {
	f.mu.Lock()
	err := f.deleteErr[key]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Delete(ctx, key)
}

func (f *faultyStore) SetAll(ctx context.Context, values map[securestore.Key]string) error {
	f.mu.Lock()
	var err error
	for key := range values {
		if e := f.setErr[key]; e != nil {
			err = e
		}
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.SetAll(ctx, values)
}

func (f *faultyStore) DeleteAll(ctx context.Context, keys ...securestore.Key) error {
	f.mu.Lock()
	var err error
	for _, key := range keys {
		if e := f.deleteErr[key]; e != nil {
			err = e
		}
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.DeleteAll(ctx, keys...)
}

// countingAPI counts calls and can replace the remote with a fixed error.
type countingAPI struct {
	API

	mu        sync.Mutex
	logins    int
	logouts   int
	loginErr  error
	logoutErr error
}

func (c *countingAPI) Login(ctx context.Context, creds auth.Credentials) (*auth.LoginResponse, error) {
	c.mu.Lock()
	c.logins++
	err := c.loginErr
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.API.Login(ctx, creds)
}

func (c *countingAPI) Logout(ctx context.Context, refreshToken string) error {
	c.mu.Lock()
	c.logouts++
	err := c.logoutErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.API.Logout(ctx, refreshToken)
}

func (c *countingAPI) calls() (logins, logouts int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logins, c.logouts
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	manager  *Manager
	store    *faultyStore
	secure   *securestore.Store
	api      *countingAPI
	fake     *authtest.Server
	verifier *biometric.Static
	registry *prometheus.Registry
	logs     *lockedBuffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	key, err := util.NewAESKey()
	require.NoError(t, err)
	secure, err := securestore.Open(memory.NewRepository(), key)
	require.NoError(t, err)
	t.Cleanup(secure.Close)

	fake := authtest.NewServer(authtest.SingleProfile(), authtest.MultiProfile(), authtest.NoProfiles())
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)

	h := &harness{
		store: &faultyStore{
			Store:     secure,
			getErr:    make(map[securestore.Key]error),
			setErr:    make(map[securestore.Key]error),
			deleteErr: make(map[securestore.Key]error),
		},
		secure:   secure,
		api:      &countingAPI{API: authapi.New(srv.URL)},
		fake:     fake,
		verifier: biometric.Enrolled(biometric.Fingerprint),
		registry: prometheus.NewRegistry(),
		logs:     &lockedBuffer{},
	}
	h.manager = h.newManager()
	return h
}

// newManager builds another manager over the same store, as a restarted
// process would.
func (h *harness) newManager(opts ...Option) *Manager {
	logger := slog.New(slog.NewJSONHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	base := []Option{WithLogger(logger), WithRegisterer(h.registry)}
	return New(h.store, h.verifier, h.api, append(base, opts...)...)
}

func (h *harness) stored(t *testing.T, key securestore.Key) (string, bool) {
	t.Helper()
	v, ok, err := h.secure.Get(t.Context(), key)
	require.NoError(t, err)
	return v, ok
}

func (h *harness) storeJSON(t *testing.T, key securestore.Key, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, h.secure.Set(t.Context(), key, string(data)))
}

func (h *harness) storedProfile(t *testing.T) (auth.Profile, bool) {
	t.Helper()
	raw, ok := h.stored(t, securestore.KeySelectedProfile)
	if !ok {
		return auth.Profile{}, false
	}
	var p auth.Profile
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return p, true
}

// requireSelectionInvariant checks that a selected profile is always one of
// the session's profiles.
func requireSelectionInvariant(t *testing.T, st State) {
	t.Helper()
	if st.SelectedProfile != nil {
		require.True(t, st.Profiles.Contains(st.SelectedProfile.ID),
			"selected profile %q not among profiles", st.SelectedProfile.ID)
	}
}

func emptyState() State {
	return State{Profiles: auth.Profiles{}}
}
