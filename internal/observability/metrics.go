package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the simulation engine.
// Registered once per process: engines running without metrics (tests)
// pass nil and every recording site checks for it.
type Metrics struct {
	// --- Pipeline ---
	PhasesTotal  *prometheus.CounterVec
	StepsTotal   *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	RunsTotal    *prometheus.CounterVec
	RunCursor    prometheus.Gauge

	// --- Loans ---
	LoansAccepted   prometheus.Counter
	LoansPaidOff    prometheus.Counter
	LoansDefaulted  prometheus.Counter
	LoansCancelled  prometheus.Counter
	PaymentsApplied prometheus.Counter
	PaymentVolume   prometheus.Counter

	// --- CLO ---
	CLOsBundled         prometheus.Counter
	TrancheTokensMinted *prometheus.CounterVec
	YieldDistributed    *prometheus.CounterVec

	// --- External collaborators ---
	GatewayErrors      *prometheus.CounterVec
	CheckpointsSaved   prometheus.Counter
	CheckpointDuration prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	stepBuckets := []float64{
		0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0,
	}

	return &Metrics{
		PhasesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "closim_phases_total",
			Help: "Phases finished, by name and outcome",
		}, []string{"phase", "status"}),

		StepsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "closim_steps_total",
			Help: "Steps executed, by kind and outcome",
		}, []string{"kind", "status"}),

		StepDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "closim_step_duration_seconds",
			Help:    "Time to execute a single step",
			Buckets: stepBuckets,
		}, []string{"kind"}),

		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "closim_runs_total",
			Help: "Runs finished, by outcome (completed/failed/paused)",
		}, []string{"outcome"}),

		RunCursor: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "closim_run_cursor",
			Help: "Index of the next phase to execute",
		}),

		LoansAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "closim_loans_accepted_total",
			Help: "Loan contracts accepted by a borrower",
		}),

		LoansPaidOff: promauto.NewCounter(prometheus.CounterOpts{
			Name: "closim_loans_paid_off_total",
			Help: "Loans that reached full repayment",
		}),

		LoansDefaulted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "closim_loans_defaulted_total",
			Help: "Loans closed by payment default",
		}),

		LoansCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "closim_loans_cancelled_total",
			Help: "Loans cancelled before acceptance",
		}),

		PaymentsApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "closim_payments_applied_total",
			Help: "Installment payments applied to loan balances",
		}),

		PaymentVolume: promauto.NewCounter(prometheus.CounterOpts{
			Name: "closim_payment_volume_lovelace",
			Help: "Total payment volume in smallest currency units",
		}),

		CLOsBundled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "closim_clos_bundled_total",
			Help: "CLO contracts bundled from accepted loans",
		}),

		TrancheTokensMinted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "closim_tranche_tokens_minted_total",
			Help: "Tranche tokens minted, by tranche",
		}, []string{"tranche"}),

		YieldDistributed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "closim_yield_distributed_lovelace",
			Help: "Yield distributed through the waterfall, by tranche",
		}, []string{"tranche"}),

		GatewayErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "closim_gateway_errors_total",
			Help: "External gateway call failures, by operation",
		}, []string{"op"}),

		CheckpointsSaved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "closim_checkpoints_saved_total",
			Help: "Run state checkpoints persisted",
		}),

		CheckpointDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "closim_checkpoint_duration_seconds",
			Help:    "Time to snapshot and persist a checkpoint",
			Buckets: stepBuckets,
		}),
	}
}
