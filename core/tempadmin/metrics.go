package tempadmin

import (
	"github.com/prometheus/client_golang/prometheus"
)

// revocation triggers
const (
	triggerManual     = "manual"
	triggerValidation = "validation"
	triggerSweep      = "sweep"
)

// validation results
const (
	resultValid   = "valid"
	resultInvalid = "invalid"
	resultError   = "error"
)

var (
	grantsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shule_tempadmin_grants_created_total",
		Help: "Temporary admin grants created.",
	})

	grantsRevoked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shule_tempadmin_grants_revoked_total",
		Help: "Temporary admin grants revoked, by trigger.",
	}, []string{"trigger"})

	validations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shule_tempadmin_validations_total",
		Help: "Temporary admin validations, by result.",
	}, []string{"result"})

	auditWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shule_tempadmin_audit_write_failures_total",
		Help: "Audit events that could not be written.",
	})

	identityDisableFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shule_tempadmin_identity_disable_failures_total",
		Help: "Identities that could not be disabled after a revocation.",
	})

	identityRollbackFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shule_tempadmin_identity_rollback_failures_total",
		Help: "Identities that could not be deleted after a failed grant creation.",
	})

	sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shule_tempadmin_sweep_duration_seconds",
		Help:    "Duration of the expired grants sweep.",
		Buckets: prometheus.DefBuckets,
	})
)

// RegisterMetrics registers the temporary admin metrics on the given registry (or default if nil).
func RegisterMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		grantsCreated,
		grantsRevoked,
		validations,
		auditWriteFailures,
		identityDisableFailures,
		identityRollbackFailures,
		sweepDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
