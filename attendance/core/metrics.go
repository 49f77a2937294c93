package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_operations_total",
		Help: "Check-in, check-out and heartbeat requests by outcome code.",
	}, []string{"operation", "code"})

	sweepSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_autocheckout_sessions_processed_total",
		Help: "Open sessions evaluated by the auto-checkout sweep.",
	})

	sweepActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_autocheckout_actions_total",
		Help: "Auto-checkout decisions applied, by action and trigger reason.",
	}, []string{"action", "reason"})

	sweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_autocheckout_errors_total",
		Help: "Sessions or companies the auto-checkout sweep failed to process.",
	})
)

func observeOperation(operation string, err error) {
	code := "OK"
	if err != nil {
		code = string(CodeServerError)
		if f, ok := AsFailure(err); ok {
			code = string(f.Code)
		}
	}
	operationOutcomes.WithLabelValues(operation, code).Inc()
}
