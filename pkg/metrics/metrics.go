package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's prometheus instruments.
type Metrics struct {
	DepositsDetected     prometheus.Counter
	DepositsDuplicate    prometheus.Counter
	WithdrawalsAdmitted  prometheus.Counter
	WithdrawalsSent      prometheus.Counter
	WithdrawalsSucceeded prometheus.Counter
	WithdrawalsFailed    prometheus.Counter
	SweepRuns            *prometheus.CounterVec
	SweepErrors          *prometheus.CounterVec
	SweepDuration        *prometheus.HistogramVec
}

// New registers the engine's metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DepositsDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_deposits_detected_total",
			Help: "Deposits persisted by reconciliation.",
		}),
		DepositsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_deposits_duplicate_total",
			Help: "Deposit inserts skipped as replays.",
		}),
		WithdrawalsAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_withdrawals_admitted_total",
			Help: "Withdrawal requests accepted into PENDING.",
		}),
		WithdrawalsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_withdrawals_sent_total",
			Help: "Withdrawals broadcast and moved to IN_PROGRESS.",
		}),
		WithdrawalsSucceeded: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_withdrawals_succeeded_total",
			Help: "Withdrawals finalized as SUCCESS.",
		}),
		WithdrawalsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_withdrawals_failed_total",
			Help: "Withdrawals finalized as FAILED.",
		}),
		SweepRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_sweep_runs_total",
			Help: "Sweep executions by kind.",
		}, []string{"sweep"}),
		SweepErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_sweep_errors_total",
			Help: "Per-item sweep failures by kind.",
		}, []string{"sweep"}),
		SweepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_sweep_duration_seconds",
			Help:    "Sweep run duration by kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"sweep"}),
	}
}

// NewNop returns metrics bound to a throwaway registry (for tests).
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
