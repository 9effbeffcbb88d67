package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmcleod/ironsession/auth"
	"github.com/jmcleod/ironsession/securestore"
)

// BiometricResult is the outcome of LoginWithBiometric. Completed is false
// when the user cancelled or failed the challenge; callers fall back to
// manual login without showing an error.
type BiometricResult struct {
	Completed bool
	Intent    Intent
}

// Restore loads the persisted session. It never fails: an unreadable store
// is logged and leaves the session as it was.
func (m *Manager) Restore(ctx context.Context) Intent {
	if err := m.acquire(opRestore); err != nil {
		m.logger.Warn("restore skipped", "error", err)
		return IntentNone
	}
	defer m.release()
	m.startLoading()
	defer m.stopLoading()

	restored, err := m.loadPersisted(ctx)
	if err != nil {
		m.logger.Error("restoring session", "error", err)
		m.metrics.observe(opRestore, outcomeFailure)
		return IntentNone
	}
	if restored.User == nil {
		m.metrics.observe(opRestore, outcomeEmpty)
		return IntentNone
	}

	intent := IntentNone
	switch {
	case restored.SelectedProfile != nil:
		intent = IntentHome
	case len(restored.Profiles) > 0:
		intent = IntentProfileSelection
	}
	m.commit(intent, func(s *State) { *s = restored })
	m.audit.logEvent(ctx, AuditSessionRestored, restored.User.ID,
		slog.String("phase", restored.Phase().String()))
	m.metrics.observe(opRestore, outcomeSuccess)
	return intent
}

// Login signs in with an email and password. A single returned profile is
// selected automatically. Failures leave the session unchanged and are
// reported as *LoginError, except ErrMissingCredentials and ErrBusy.
func (m *Manager) Login(ctx context.Context, creds auth.Credentials) (Intent, error) {
	if err := m.acquire(opLogin); err != nil {
		return IntentNone, err
	}
	defer m.release()

	creds = creds.Normalize()
	if err := creds.Validate(); err != nil {
		m.metrics.observe(opLogin, outcomeFailure)
		return IntentNone, err
	}

	m.startLoading()
	defer m.stopLoading()

	intent, user, err := m.authenticate(ctx, creds, loginPlan{})
	if err != nil {
		m.audit.logFailure(ctx, AuditLoginFailure, "login_rejected")
		m.metrics.observe(opLogin, outcomeFailure)
		return IntentNone, err
	}
	m.audit.logEvent(ctx, AuditLoginSuccess, user.ID, slog.String("intent", intent.String()))
	m.metrics.observe(opLogin, outcomeSuccess)
	return intent, nil
}

// LoginWithBiometric runs the biometric challenge and signs in with the
// credentials enrolled on this device.
func (m *Manager) LoginWithBiometric(ctx context.Context) (BiometricResult, error) {
	if err := m.acquire(opBiometricLogin); err != nil {
		return BiometricResult{}, err
	}
	defer m.release()

	c, err := m.capability(ctx)
	if err != nil {
		m.metrics.observe(opBiometricLogin, outcomeUnavailable)
		return BiometricResult{}, fmt.Errorf("%w: %w", ErrBiometricUnavailable, err)
	}
	if !c.Available() {
		m.metrics.observe(opBiometricLogin, outcomeUnavailable)
		return BiometricResult{}, ErrBiometricUnavailable
	}

	m.startLoading()
	defer m.stopLoading()

	res, err := m.verifier.Authenticate(ctx, m.prompt)
	if err != nil {
		m.metrics.observe(opBiometricLogin, outcomeFailure)
		return BiometricResult{}, fmt.Errorf("biometric challenge: %w", err)
	}
	if !res.Success {
		m.audit.logFailure(ctx, AuditBiometricNotCompleted, res.Reason)
		m.metrics.observe(opBiometricLogin, outcomeNotCompleted)
		return BiometricResult{}, nil
	}

	creds, err := m.storedCredentials(ctx)
	if err != nil {
		m.metrics.observe(opBiometricLogin, outcomeFailure)
		return BiometricResult{}, err
	}

	plan := loginPlan{preferred: m.storedSelection(ctx), biometric: true}
	intent, user, err := m.authenticate(ctx, creds, plan)
	if err != nil {
		m.audit.logFailure(ctx, AuditLoginFailure, "biometric_login_rejected")
		m.metrics.observe(opBiometricLogin, outcomeFailure)
		return BiometricResult{}, err
	}
	m.audit.logEvent(ctx, AuditBiometricLoginSuccess, user.ID, slog.String("intent", intent.String()))
	m.metrics.observe(opBiometricLogin, outcomeSuccess)
	return BiometricResult{Completed: true, Intent: intent}, nil
}

type loginPlan struct {
	// preferred is restored when it is among the returned profiles.
	preferred *auth.Profile
	// biometric marks biometric sign-in enabled on success.
	biometric bool
}

// authenticate is the login path shared by password and biometric sign-in.
// Nothing is committed to memory unless the remote login and the
// persistence of tokens, user and profiles both succeed.
func (m *Manager) authenticate(ctx context.Context, creds auth.Credentials, plan loginPlan) (Intent, *auth.User, error) {
	resp, err := m.api.Login(ctx, creds)
	if err != nil {
		return IntentNone, nil, newLoginError(err)
	}
	if err := resp.Validate(); err != nil {
		return IntentNone, nil, newLoginError(err)
	}
	if err := m.persistLogin(ctx, resp); err != nil {
		// The server session was never stored, so nothing could revoke it later.
		if rerr := m.api.Logout(context.WithoutCancel(ctx), resp.RefreshToken); rerr != nil {
			m.logger.Warn("revoking unstored session", "error", rerr)
		}
		return IntentNone, nil, newLoginError(fmt.Errorf("persisting session: %w", err))
	}

	user := *resp.User
	profiles := resp.Profiles.Clone()

	var selected *auth.Profile
	if plan.preferred != nil {
		if p, ok := profiles.Find(plan.preferred.ID); ok {
			selected = &p
		}
	}
	if selected == nil && len(profiles) == 1 {
		p := profiles[0]
		selected = &p
	}

	intent := IntentProfileSelection
	if selected != nil {
		intent = IntentHome
		m.persistSelection(ctx, *selected)
	} else if err := m.store.Delete(ctx, securestore.KeySelectedProfile); err != nil {
		m.logger.Error("clearing stale profile selection", "error", err)
	}

	if plan.biometric {
		if err := m.store.Set(ctx, securestore.KeyBiometricEnabled, "true"); err != nil {
			m.logger.Error("persisting biometric flag", "error", err)
		}
	}

	m.commit(intent, func(s *State) {
		s.User = &user
		s.Profiles = profiles
		s.SelectedProfile = selected
		if plan.biometric {
			s.BiometricEnabled = true
		}
		s.Loading = false
	})
	if selected != nil {
		m.audit.logEvent(ctx, AuditProfileSelected, user.ID, slog.String("profile_id", selected.ID))
	}
	return intent, &user, nil
}

// SelectProfile makes profile the active one. The in-memory selection
// holds even if persisting it fails.
func (m *Manager) SelectProfile(ctx context.Context, profile auth.Profile) error {
	if err := m.acquire(opSelectProfile); err != nil {
		return err
	}
	defer m.release()

	m.mu.RLock()
	p, ok := m.state.Profiles.Find(profile.ID)
	m.mu.RUnlock()
	if !ok {
		m.metrics.observe(opSelectProfile, outcomeFailure)
		return fmt.Errorf("%w: %s", ErrUnknownProfile, profile.ID)
	}

	m.commit(IntentHome, func(s *State) {
		sel := p
		s.SelectedProfile = &sel
	})
	m.persistSelection(ctx, p)
	m.audit.logEvent(ctx, AuditProfileSelected, m.currentUserID(), slog.String("profile_id", p.ID))
	m.metrics.observe(opSelectProfile, outcomeSuccess)
	return nil
}

// EnableBiometric turns biometric sign-in on or off. Enabling requires a
// capable device and only sets the in-memory flag; credentials are stored
// by SaveBiometricCredentials after the user consents. Disabling removes
// the stored credentials and never fails.
func (m *Manager) EnableBiometric(ctx context.Context, enable bool) error {
	if enable {
		return m.enableBiometric(ctx)
	}
	return m.disableBiometric(ctx)
}

func (m *Manager) enableBiometric(ctx context.Context) error {
	if err := m.acquire(opEnableBiometric); err != nil {
		return err
	}
	defer m.release()

	c, err := m.capability(ctx)
	if err != nil {
		m.metrics.observe(opEnableBiometric, outcomeUnavailable)
		return fmt.Errorf("%w: %w", ErrBiometricUnavailable, err)
	}
	if !c.Available() {
		m.metrics.observe(opEnableBiometric, outcomeUnavailable)
		return ErrBiometricUnavailable
	}
	m.commit(IntentNone, func(s *State) { s.BiometricEnabled = true })
	m.audit.logEvent(ctx, AuditBiometricEnabled, m.currentUserID())
	m.metrics.observe(opEnableBiometric, outcomeSuccess)
	return nil
}

func (m *Manager) disableBiometric(ctx context.Context) error {
	if err := m.acquire(opDisableBiometric); err != nil {
		return err
	}
	defer m.release()

	outcome := outcomeSuccess
	if err := m.store.Delete(ctx, securestore.KeyBiometricCredentials); err != nil {
		m.logger.Error("removing biometric credentials", "error", err)
		outcome = outcomeDegraded
	}
	if err := m.store.Set(ctx, securestore.KeyBiometricEnabled, "false"); err != nil {
		m.logger.Error("persisting biometric flag", "error", err)
		outcome = outcomeDegraded
	}
	m.commit(IntentNone, func(s *State) { s.BiometricEnabled = false })
	m.audit.logEvent(ctx, AuditBiometricDisabled, m.currentUserID())
	m.metrics.observe(opDisableBiometric, outcome)
	return nil
}

// SaveBiometricCredentials stores creds for biometric sign-in and enables
// it. Call it only after the user accepted the enrollment offer.
func (m *Manager) SaveBiometricCredentials(ctx context.Context, creds auth.Credentials) error {
	if err := m.acquire(opSaveBiometric); err != nil {
		return err
	}
	defer m.release()

	creds = creds.Normalize()
	if err := creds.Validate(); err != nil {
		m.metrics.observe(opSaveBiometric, outcomeFailure)
		return err
	}
	userID := m.currentUserID()
	if userID == "" {
		m.metrics.observe(opSaveBiometric, outcomeFailure)
		return ErrNotAuthenticated
	}
	c, err := m.capability(ctx)
	if err != nil {
		m.metrics.observe(opSaveBiometric, outcomeUnavailable)
		return fmt.Errorf("%w: %w", ErrBiometricUnavailable, err)
	}
	if !c.Available() {
		m.metrics.observe(opSaveBiometric, outcomeUnavailable)
		return ErrBiometricUnavailable
	}

	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encoding biometric credentials: %w", err)
	}
	if err := m.store.Set(ctx, securestore.KeyBiometricCredentials, string(data)); err != nil {
		m.metrics.observe(opSaveBiometric, outcomeFailure)
		return fmt.Errorf("storing biometric credentials: %w", err)
	}
	if err := m.store.Set(ctx, securestore.KeyBiometricEnabled, "true"); err != nil {
		m.metrics.observe(opSaveBiometric, outcomeFailure)
		return fmt.Errorf("storing biometric flag: %w", err)
	}
	m.commit(IntentNone, func(s *State) { s.BiometricEnabled = true })
	m.audit.logEvent(ctx, AuditBiometricEnabled, userID, slog.Bool("credentials_stored", true))
	m.metrics.observe(opSaveBiometric, outcomeSuccess)
	return nil
}

// Logout ends the session. The remote logout is best effort; the stored
// session keys are always removed and the in-memory session is always
// reset. Only ErrBusy is returned.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.acquire(opLogout); err != nil {
		return err
	}
	defer m.release()
	m.startLoading()
	defer m.stopLoading()

	userID := m.currentUserID()
	cleanup := context.WithoutCancel(ctx)

	refresh, ok, err := m.store.Get(cleanup, securestore.KeyRefreshToken)
	if err != nil {
		m.logger.Warn("reading refresh token for logout", "error", err)
	}
	if ok && refresh != "" {
		if err := m.api.Logout(ctx, refresh); err != nil {
			m.logger.Warn("remote logout failed", "error", err)
			m.audit.logEvent(ctx, AuditLogoutRemoteFailed, userID)
		}
	}

	outcome := outcomeSuccess
	if !m.clearSession(cleanup) {
		outcome = outcomeDegraded
	}

	m.commit(IntentLogin, func(s *State) { *s = State{Profiles: auth.Profiles{}} })
	m.audit.logEvent(ctx, AuditLogout, userID)
	m.metrics.observe(opLogout, outcome)
	return nil
}
