// Package metrics exposes the trading-core prometheus series, grounded on
// the teacher's custom-registry pattern: a package-level Registry, grouped
// promauto.With(Registry) vectors, and thin Record/Update helper functions
// instead of exposing the raw vectors to callers.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registry is the custom prometheus registry for tradingcore metrics.
	Registry = prometheus.NewRegistry()

	mu sync.RWMutex

	// ============================================
	// Guard / Gate Metrics
	// ============================================

	GuardEvaluationsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradingcore",
			Subsystem: "guard",
			Name:      "evaluations_total",
			Help:      "Guard evaluations, labeled by guard name and outcome",
		},
		[]string{"guard", "outcome"},
	)

	GuardBlockedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradingcore",
			Subsystem: "guard",
			Name:      "blocked_total",
			Help:      "Execution attempts blocked by at least one failing guard",
		},
		[]string{"tenant_id", "symbol"},
	)

	// ============================================
	// Execution Metrics
	// ============================================

	ExecutionsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradingcore",
			Subsystem: "execution",
			Name:      "total",
			Help:      "Execution attempts, labeled by mode and status",
		},
		[]string{"mode", "status"},
	)

	ExecutionDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tradingcore",
			Subsystem: "execution",
			Name:      "duration_seconds",
			Help:      "Execution engine wall-clock time per attempt",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	StopLossFailuresTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradingcore",
			Subsystem: "execution",
			Name:      "stop_loss_failures_total",
			Help:      "Stop-loss placements that failed after the market entry already filled",
		},
		[]string{"symbol"},
	)

	// ============================================
	// Trailing Stop Metrics
	// ============================================

	TrailingStopAdjustmentsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradingcore",
			Subsystem: "trailing_stop",
			Name:      "adjustments_total",
			Help:      "Trailing-stop adjustments applied, labeled by reason",
		},
		[]string{"reason"},
	)

	TrailingStopDuplicatesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradingcore",
			Subsystem: "trailing_stop",
			Name:      "duplicate_tokens_total",
			Help:      "Adjustment attempts rejected for an already-seen adjustment token",
		},
		[]string{"position_id"},
	)

	// ============================================
	// Policy / Drawdown Metrics
	// ============================================

	PolicyStatus = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tradingcore",
			Subsystem: "policy",
			Name:      "status",
			Help:      "PolicyState status as a gauge: 0=ACTIVE, 1=PAUSED, 2=SUSPENDED",
		},
		[]string{"tenant_id"},
	)

	PolicyDrawdownPercent = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tradingcore",
			Subsystem: "policy",
			Name:      "drawdown_percent",
			Help:      "Current monthly drawdown percent against starting capital",
		},
		[]string{"tenant_id"},
	)

	PolicyAutoPausesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradingcore",
			Subsystem: "policy",
			Name:      "auto_pauses_total",
			Help:      "Times a tenant's policy auto-paused on a drawdown breach",
		},
		[]string{"tenant_id"},
	)

	// ============================================
	// Margin Metrics
	// ============================================

	MarginLevelGauge = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tradingcore",
			Subsystem: "margin",
			Name:      "level",
			Help:      "Last observed isolated-margin level",
		},
		[]string{"symbol"},
	)

	MarginLiquidationsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradingcore",
			Subsystem: "margin",
			Name:      "defensive_closes_total",
			Help:      "Defensive closes triggered by the margin monitor crossing the liquidation threshold",
		},
		[]string{"symbol"},
	)

	// ============================================
	// Exchange Port Metrics
	// ============================================

	ExchangeCallDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tradingcore",
			Subsystem: "exchange",
			Name:      "call_duration_seconds",
			Help:      "Exchange port call latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"venue", "op"},
	)

	ExchangeErrorsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradingcore",
			Subsystem: "exchange",
			Name:      "errors_total",
			Help:      "Exchange port errors, labeled by venue and error kind",
		},
		[]string{"venue", "kind"},
	)
)

// RecordGuardEvaluation records one guard's pass/fail outcome.
func RecordGuardEvaluation(guard string, passed bool) {
	outcome := "fail"
	if passed {
		outcome = "pass"
	}
	GuardEvaluationsTotal.WithLabelValues(guard, outcome).Inc()
}

// RecordGuardBlocked increments the blocked-execution counter for a tenant/symbol.
func RecordGuardBlocked(tenantID, symbol string) {
	GuardBlockedTotal.WithLabelValues(tenantID, symbol).Inc()
}

// RecordExecution records one execution attempt's mode/status and duration.
func RecordExecution(mode, status string, durationSeconds float64) {
	mu.Lock()
	defer mu.Unlock()

	ExecutionsTotal.WithLabelValues(mode, status).Inc()
	ExecutionDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordStopLossFailure counts a stop-loss placement that failed after the
// market entry already succeeded (spec §4.11: a hard alert condition).
func RecordStopLossFailure(symbol string) {
	StopLossFailuresTotal.WithLabelValues(symbol).Inc()
}

// RecordTrailingStopAdjustment counts one applied trailing-stop adjustment.
func RecordTrailingStopAdjustment(reason string) {
	TrailingStopAdjustmentsTotal.WithLabelValues(reason).Inc()
}

// RecordTrailingStopDuplicate counts a rejected duplicate adjustment token.
func RecordTrailingStopDuplicate(positionID string) {
	TrailingStopDuplicatesTotal.WithLabelValues(positionID).Inc()
}

// policyStatusValue maps a PolicyState status string to the gauge encoding
// documented on PolicyStatus.
func policyStatusValue(status string) float64 {
	switch status {
	case "PAUSED":
		return 1
	case "SUSPENDED":
		return 2
	default:
		return 0
	}
}

// UpdatePolicyMetrics refreshes the status/drawdown gauges for one tenant.
func UpdatePolicyMetrics(tenantID, status string, drawdownPercent float64) {
	mu.Lock()
	defer mu.Unlock()

	PolicyStatus.WithLabelValues(tenantID).Set(policyStatusValue(status))
	PolicyDrawdownPercent.WithLabelValues(tenantID).Set(drawdownPercent)
}

// RecordPolicyAutoPause counts a drawdown-triggered auto-pause for a tenant.
func RecordPolicyAutoPause(tenantID string) {
	PolicyAutoPausesTotal.WithLabelValues(tenantID).Inc()
}

// UpdateMarginLevel refreshes the last-observed margin level for a symbol.
func UpdateMarginLevel(symbol string, level float64) {
	MarginLevelGauge.WithLabelValues(symbol).Set(level)
}

// RecordMarginLiquidation counts a defensive close triggered by the margin monitor.
func RecordMarginLiquidation(symbol string) {
	MarginLiquidationsTotal.WithLabelValues(symbol).Inc()
}

// RecordExchangeCall records one exchange.Port call's latency and, if kind is
// non-empty, tallies it against the error-kind counter.
func RecordExchangeCall(venue, op string, durationSeconds float64, kind string) {
	ExchangeCallDuration.WithLabelValues(venue, op).Observe(durationSeconds)
	if kind != "" {
		ExchangeErrorsTotal.WithLabelValues(venue, kind).Inc()
	}
}

// Init registers the default prometheus process/go collectors.
func Init() {
	Registry.MustRegister(prometheus.NewGoCollector())
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}
