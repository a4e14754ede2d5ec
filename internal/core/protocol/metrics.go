package protocol

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelinesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "peerex",
		Subsystem: "protocol",
		Name:      "pipelines_started_total",
		Help:      "Number of task pipelines started.",
	})
	pipelinesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "peerex",
		Subsystem: "protocol",
		Name:      "pipelines_completed_total",
		Help:      "Number of task pipelines that ran to completion.",
	})
	pipelinesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peerex",
		Subsystem: "protocol",
		Name:      "pipelines_failed_total",
		Help:      "Number of task pipelines aborted by a task failure.",
	}, []string{"task"})
	timeoutsFired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "peerex",
		Subsystem: "protocol",
		Name:      "step_timeouts_total",
		Help:      "Number of protocol step timeouts.",
	})
)
