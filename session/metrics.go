package session

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	opRestore          = "restore"
	opLogin            = "login"
	opBiometricLogin   = "biometric_login"
	opSelectProfile    = "select_profile"
	opEnableBiometric  = "enable_biometric"
	opDisableBiometric = "disable_biometric"
	opSaveBiometric    = "save_biometric_credentials"
	opLogout           = "logout"

	outcomeSuccess      = "success"
	outcomeFailure      = "failure"
	outcomeBusy         = "busy"
	outcomeUnavailable  = "unavailable"
	outcomeNotCompleted = "not_completed"
	outcomeEmpty        = "empty"
	outcomeDegraded     = "degraded"
)

type metrics struct {
	operations    *prometheus.CounterVec
	authenticated prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ironsession",
			Subsystem: "session",
			Name:      "operations_total",
			Help:      "Session manager operations by outcome.",
		}, []string{"operation", "outcome"}),
		authenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ironsession",
			Subsystem: "session",
			Name:      "authenticated",
			Help:      "1 while a user is signed in.",
		}),
	}
	if reg != nil {
		m.operations = register(reg, m.operations)
		m.authenticated = register(reg, m.authenticated)
	}
	return m
}

// register adds c to reg, reusing an identical collector registered by an
// earlier Manager.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (m *metrics) observe(operation, outcome string) {
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *metrics) setAuthenticated(ok bool) {
	if ok {
		m.authenticated.Set(1)
		return
	}
	m.authenticated.Set(0)
}
