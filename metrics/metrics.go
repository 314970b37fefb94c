// Package metrics holds the prometheus collectors shared across the bot and
// the helper that supervises detached background tasks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WorkflowsCreated counts submitted workflows by project.
	WorkflowsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deploybot",
			Subsystem: "workflow",
			Name:      "created_total",
			Help:      "Total number of workflows created",
		},
		[]string{"project"},
	)

	// WorkflowsResolved counts terminal approval decisions.
	WorkflowsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deploybot",
			Subsystem: "workflow",
			Name:      "resolved_total",
			Help:      "Total number of workflows approved or rejected",
		},
		[]string{"status"},
	)

	// SSOSubmissions counts release ticket submissions by outcome.
	SSOSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deploybot",
			Subsystem: "sso",
			Name:      "submissions_total",
			Help:      "Total number of SSO ticket submissions",
		},
		[]string{"status"},
	)

	// SSOBuildsFinished counts SSO release pollers reaching an end state.
	SSOBuildsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deploybot",
			Subsystem: "sso",
			Name:      "builds_finished_total",
			Help:      "Total number of SSO builds reaching a final state",
		},
		[]string{"status"},
	)

	// JenkinsTriggers counts Jenkins build triggers by outcome.
	JenkinsTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deploybot",
			Subsystem: "jenkins",
			Name:      "triggers_total",
			Help:      "Total number of Jenkins build triggers",
		},
		[]string{"outcome"},
	)

	// JenkinsBuildsFinished counts Jenkins pollers reaching an end state.
	JenkinsBuildsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deploybot",
			Subsystem: "jenkins",
			Name:      "builds_finished_total",
			Help:      "Total number of Jenkins builds reaching a final state",
		},
		[]string{"status"},
	)

	// ChatSends counts outgoing chat messages by delivery result.
	ChatSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deploybot",
			Subsystem: "chat",
			Name:      "sends_total",
			Help:      "Total number of chat send attempts",
		},
		[]string{"result"},
	)

	// APISyncs counts external API sync attempts by outcome.
	APISyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deploybot",
			Subsystem: "apisync",
			Name:      "syncs_total",
			Help:      "Total number of external API sync attempts",
		},
		[]string{"outcome"},
	)

	// BackgroundTasks counts detached task completions by name and outcome.
	BackgroundTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deploybot",
			Subsystem: "tasks",
			Name:      "completed_total",
			Help:      "Total number of background tasks completed",
		},
		[]string{"task", "outcome"},
	)

	// BackgroundInFlight tracks currently running detached tasks.
	BackgroundInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "deploybot",
			Subsystem: "tasks",
			Name:      "in_flight",
			Help:      "Number of currently running background tasks",
		},
		[]string{"task"},
	)

	// DownstreamDuration observes latency of downstream HTTP calls.
	DownstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "deploybot",
			Subsystem: "downstream",
			Name:      "request_duration_seconds",
			Help:      "Downstream HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"system", "operation"},
	)
)
