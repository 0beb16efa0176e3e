package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fruitchain_ledger_executes_total",
		Help: "Mutating ledger calls by contract method and outcome.",
	}, []string{"method", "outcome"})

	guardViolationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fruitchain_guard_violations_total",
		Help: "Units of work blocked by the environment guard.",
	})

	divergencesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fruitchain_sync_divergences_total",
		Help: "Mirror writes that failed after on-chain confirmation.",
	})

	reconciledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fruitchain_sync_tasks_reconciled_total",
		Help: "Divergence tasks repaired by the reconciliation pass.",
	})
)
