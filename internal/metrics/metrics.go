// Package metrics wires Prometheus instrumentation into flock's scheduler,
// migration engine, and channel subsystem via a promauto-registered
// CounterVec/HistogramVec recorder.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the capability interface the rest of flock depends on,
// letting tests substitute a no-op implementation without touching the
// default Prometheus registry.
type Recorder interface {
	ObserveTick(agentID string, success bool, duration time.Duration)
	ObserveMigrationPhase(phase string, success bool, duration time.Duration)
	IncFrozenGuardRejection(agentID string)
	ObserveChannelAppend(channelID string)
	IncAuditEntry(level string)
}

// PrometheusRecorder is the production Recorder.
type PrometheusRecorder struct {
	ticksTotal          *prometheus.CounterVec
	tickDuration        *prometheus.HistogramVec
	migrationPhaseTotal *prometheus.CounterVec
	migrationPhaseDur   *prometheus.HistogramVec
	frozenGuardRejects  *prometheus.CounterVec
	channelAppends      *prometheus.CounterVec
	auditEntries        *prometheus.CounterVec
}

// NewPrometheusRecorder registers and returns a PrometheusRecorder using
// promauto.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		ticksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_scheduler_ticks_total",
			Help: "Total number of work-loop ticks dispatched, by agent and outcome.",
		}, []string{"agent_id", "status"}),
		tickDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flock_scheduler_tick_duration_seconds",
			Help:    "Duration of a single tick dispatch.",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent_id"}),
		migrationPhaseTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_migration_phase_total",
			Help: "Total number of migration phase advances, by phase and outcome.",
		}, []string{"phase", "status"}),
		migrationPhaseDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flock_migration_phase_duration_seconds",
			Help:    "Duration spent in a migration phase.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase"}),
		frozenGuardRejects: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_frozen_guard_rejections_total",
			Help: "Total number of operations rejected by the frozen guard, by agent.",
		}, []string{"agent_id"}),
		channelAppends: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_channel_messages_appended_total",
			Help: "Total number of channel messages appended, by channel.",
		}, []string{"channel_id"}),
		auditEntries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_audit_entries_total",
			Help: "Total number of audit entries, by level.",
		}, []string{"level"}),
	}
}

func (r *PrometheusRecorder) ObserveTick(agentID string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	r.ticksTotal.WithLabelValues(agentID, status).Inc()
	r.tickDuration.WithLabelValues(agentID).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) ObserveMigrationPhase(phase string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	r.migrationPhaseTotal.WithLabelValues(phase, status).Inc()
	r.migrationPhaseDur.WithLabelValues(phase).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) IncFrozenGuardRejection(agentID string) {
	r.frozenGuardRejects.WithLabelValues(agentID).Inc()
}

func (r *PrometheusRecorder) ObserveChannelAppend(channelID string) {
	r.channelAppends.WithLabelValues(channelID).Inc()
}

func (r *PrometheusRecorder) IncAuditEntry(level string) {
	r.auditEntries.WithLabelValues(level).Inc()
}

// Noop is a Recorder that discards everything; used by tests.
type Noop struct{}

func (Noop) ObserveTick(string, bool, time.Duration)          {}
func (Noop) ObserveMigrationPhase(string, bool, time.Duration) {}
func (Noop) IncFrozenGuardRejection(string)                   {}
func (Noop) ObserveChannelAppend(string)                      {}
func (Noop) IncAuditEntry(string)                             {}
