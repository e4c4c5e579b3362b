package metrics

import "github.com/prometheus/client_golang/prometheus"

// LifecycleMetrics exposes counters for pipeline evaluation.
type LifecycleMetrics struct {
	transitions *prometheus.CounterVec
	markedDead  prometheus.Counter
	evaluations *prometheus.CounterVec
}

func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	m := &LifecycleMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "lifecycle",
			Name:      "status_transitions_total",
			Help:      "Lead status transitions applied by lifecycle rules",
		}, []string{"from", "to"}),
		markedDead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "lifecycle",
			Name:      "marked_dead_total",
			Help:      "Leads marked dead for inactivity",
		}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "lifecycle",
			Name:      "evaluations_total",
			Help:      "Lifecycle evaluations by trigger source",
		}, []string{"source"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitions, m.markedDead, m.evaluations)
	return m
}

func (m *LifecycleMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *LifecycleMetrics) ObserveMarkedDead() {
	if m == nil {
		return
	}
	m.markedDead.Inc()
}

func (m *LifecycleMetrics) ObserveEvaluation(source string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(source).Inc()
}

// AutomationMetrics exposes counters/histograms for workflow execution.
type AutomationMetrics struct {
	runsStarted   *prometheus.CounterVec
	runsFinished  *prometheus.CounterVec
	actionsTotal  *prometheus.CounterVec
	stepLatency   *prometheus.HistogramVec
	stepsRetried  prometheus.Counter
	triggersTotal *prometheus.CounterVec
}

func NewAutomationMetrics(reg prometheus.Registerer) *AutomationMetrics {
	m := &AutomationMetrics{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "automation",
			Name:      "runs_started_total",
			Help:      "Workflow runs started",
		}, []string{"workflow_id"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "automation",
			Name:      "runs_finished_total",
			Help:      "Workflow runs finished by terminal status",
		}, []string{"workflow_id", "status"}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "automation",
			Name:      "actions_total",
			Help:      "Workflow actions executed by type and outcome",
		}, []string{"action", "outcome"}),
		stepLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadflow",
			Subsystem: "automation",
			Name:      "step_lag_seconds",
			Help:      "Delay between a step's scheduled time and its execution",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"action"}),
		stepsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "automation",
			Name:      "steps_retried_total",
			Help:      "Steps rescheduled after a dispatch failure",
		}),
		triggersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "automation",
			Name:      "triggers_total",
			Help:      "Workflow trigger evaluations that fired or were deduplicated",
		}, []string{"workflow_id", "result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.runsStarted, m.runsFinished, m.actionsTotal, m.stepLatency, m.stepsRetried, m.triggersTotal)
	return m
}

func (m *AutomationMetrics) ObserveRunStarted(workflowID string) {
	if m == nil {
		return
	}
	m.runsStarted.WithLabelValues(workflowID).Inc()
}

func (m *AutomationMetrics) ObserveRunFinished(workflowID, status string) {
	if m == nil {
		return
	}
	m.runsFinished.WithLabelValues(workflowID, status).Inc()
}

func (m *AutomationMetrics) ObserveAction(action, outcome string) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *AutomationMetrics) ObserveStepLag(action string, seconds float64) {
	if m == nil {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	m.stepLatency.WithLabelValues(action).Observe(seconds)
}

func (m *AutomationMetrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.stepsRetried.Inc()
}

func (m *AutomationMetrics) ObserveTrigger(workflowID, result string) {
	if m == nil {
		return
	}
	m.triggersTotal.WithLabelValues(workflowID, result).Inc()
}
