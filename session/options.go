package session

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jmcleod/ironsession/biometric"
)

type options struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	prompt     biometric.Prompt
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*options)

// WithLogger sets the logger for operational and audit logs.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegisterer registers session metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithPrompt overrides the biometric prompt text.
func WithPrompt(p biometric.Prompt) Option {
	return func(o *options) {
		o.prompt = p
	}
}

// WithClock sets the time source used for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
