// Package metrics exposes the service's prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	loanOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circulate_loan_operations_total",
		Help: "Lifecycle operations by name and outcome.",
	}, []string{"operation", "outcome"})

	sweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "circulate_sweep_runs_total",
		Help: "Overdue sweeps started.",
	})

	sweepLoansScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "circulate_sweep_loans_scanned_total",
		Help: "Active loans examined by sweeps.",
	})

	sweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "circulate_sweep_errors_total",
		Help: "Per-loan failures collected during sweeps.",
	})

	accountsBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "circulate_accounts_blocked_total",
		Help: "Accounts blocked by the fine cap escalation.",
	})

	accountsUnblocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "circulate_accounts_unblocked_total",
		Help: "Accounts unblocked after fine settlement.",
	})
)

func LoanOperation(operation, outcome string) {
	loanOperations.WithLabelValues(operation, outcome).Inc()
}

func SweepRun()         { sweepRuns.Inc() }
func SweepLoanScanned() { sweepLoansScanned.Inc() }
func SweepError()       { sweepErrors.Inc() }

func AccountBlocked()   { accountsBlocked.Inc() }
func AccountUnblocked() { accountsUnblocked.Inc() }

// Handler serves the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
