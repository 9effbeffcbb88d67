package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmcleod/ironsession/auth"
	"github.com/jmcleod/ironsession/securestore"
)

func (m *Manager) getJSON(ctx context.Context, key securestore.Key, out any) (bool, error) {
	raw, ok, err := m.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

func (m *Manager) setJSON(ctx context.Context, key securestore.Key, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := m.store.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// loadPersisted reads the stored session. A missing user yields the empty
// state; a stored selection that is not among the stored profiles is
// dropped.
func (m *Manager) loadPersisted(ctx context.Context) (State, error) {
	st := State{Profiles: auth.Profiles{}}

	var user auth.User
	ok, err := m.getJSON(ctx, securestore.KeyUser, &user)
	if err != nil || !ok {
		return st, err
	}

	var profiles auth.Profiles
	if _, err := m.getJSON(ctx, securestore.KeyProfiles, &profiles); err != nil {
		return st, err
	}

	var selected auth.Profile
	hasSelected, err := m.getJSON(ctx, securestore.KeySelectedProfile, &selected)
	if err != nil {
		return st, err
	}

	enabled, _, err := m.store.Get(ctx, securestore.KeyBiometricEnabled)
	if err != nil {
		return st, fmt.Errorf("reading %s: %w", securestore.KeyBiometricEnabled, err)
	}

	st.User = &user
	st.Profiles = profiles.Clone()
	st.BiometricEnabled = enabled == "true"
	if hasSelected {
		if profiles.Contains(selected.ID) {
			st.SelectedProfile = &selected
		} else {
			m.logger.Warn("dropping stored profile selection not among stored profiles",
				"profile_id", selected.ID)
		}
	}
	return st, nil
}

// persistLogin stores the tokens, user and profiles of a login in one atomic
// write. On failure the previously stored session is left untouched.
func (m *Manager) persistLogin(ctx context.Context, resp *auth.LoginResponse) error {
	user, err := json.Marshal(resp.User)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", securestore.KeyUser, err)
	}
	profiles := resp.Profiles
	if profiles == nil {
		profiles = auth.Profiles{}
	}
	encodedProfiles, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", securestore.KeyProfiles, err)
	}
	err = m.store.SetAll(ctx, map[securestore.Key]string{
		securestore.KeyAccessToken:  resp.AccessToken,
		securestore.KeyRefreshToken: resp.RefreshToken,
		securestore.KeyUser:         string(user),
		securestore.KeyProfiles:     string(encodedProfiles),
	})
	if err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// clearSession removes the stored session keys in one batch, falling back to
// per-key deletes when the batch fails. It reports whether every key is gone.
func (m *Manager) clearSession(ctx context.Context) bool {
	err := m.store.DeleteAll(ctx, sessionKeys...)
	if err == nil {
		return true
	}
	m.logger.Warn("batch removal of stored session failed, removing keys one by one", "error", err)
	clean := true
	for _, key := range sessionKeys {
		if err := m.store.Delete(ctx, key); err != nil {
			m.logger.Error("removing stored session key", "key", key.String(), "error", err)
			clean = false
		}
	}
	return clean
}

func (m *Manager) persistSelection(ctx context.Context, p auth.Profile) {
	if err := m.setJSON(ctx, securestore.KeySelectedProfile, p); err != nil {
		m.logger.Error("persisting selected profile", "profile_id", p.ID, "error", err)
	}
}

// storedSelection returns the persisted profile selection, if readable.
func (m *Manager) storedSelection(ctx context.Context) *auth.Profile {
	var p auth.Profile
	ok, err := m.getJSON(ctx, securestore.KeySelectedProfile, &p)
	if err != nil {
		m.logger.Warn("reading stored profile selection", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &p
}

func (m *Manager) storedCredentials(ctx context.Context) (auth.Credentials, error) {
	var creds auth.Credentials
	ok, err := m.getJSON(ctx, securestore.KeyBiometricCredentials, &creds)
	if err != nil {
		return creds, fmt.Errorf("%w: %w", ErrNoStoredCredentials, err)
	}
	if !ok || creds.Validate() != nil {
		return creds, ErrNoStoredCredentials
	}
	return creds, nil
}
