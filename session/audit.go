package session

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent identifies a security-relevant session action.
type AuditEvent string

const (
	AuditLoginSuccess          AuditEvent = "login_success"
	AuditLoginFailure          AuditEvent = "login_failure"
	AuditBiometricLoginSuccess AuditEvent = "biometric_login_success"
	AuditBiometricNotCompleted AuditEvent = "biometric_not_completed"
	AuditProfileSelected       AuditEvent = "profile_selected"
	AuditBiometricEnabled      AuditEvent = "biometric_enabled"
	AuditBiometricDisabled     AuditEvent = "biometric_disabled"
	AuditSessionRestored       AuditEvent = "session_restored"
	AuditLogout                AuditEvent = "logout"
	AuditLogoutRemoteFailed    AuditEvent = "logout_remote_failed"
)

// auditLogger wraps slog.Logger for structured audit logging. Entries carry
// the user id only; emails, passwords and tokens never reach it.
type auditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

func newAuditLogger(logger *slog.Logger, now func() time.Time) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
		now:    now,
	}
}

func (al *auditLogger) log(ctx context.Context, event AuditEvent, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", baseAttrs...)
}

// logEvent is a convenience for events about a known user.
func (al *auditLogger) logEvent(ctx context.Context, event AuditEvent, userID string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("user_id", userID),
	}
	attrs = append(attrs, extra...)
	al.log(ctx, event, attrs...)
}

// logFailure logs a failed or abandoned authentication attempt.
func (al *auditLogger) logFailure(ctx context.Context, event AuditEvent, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(ctx, event, attrs...)
}
