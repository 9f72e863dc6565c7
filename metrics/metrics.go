// Package metrics exposes app-master counters and gauges through a
// prometheus registry. All updates happen on the event-dispatcher goroutine;
// prometheus collectors are safe to scrape concurrently.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type AppMasterMetrics struct {
	CompletedContainers prometheus.Counter
	FailedContainers    prometheus.Counter
	ReleasedContainers  prometheus.Counter
	SurplusContainers   prometheus.Counter
	ContainerRequests   prometheus.Counter

	NeededContainers prometheus.Gauge
	RunningTasks     prometheus.Gauge
	UnclaimedTasks   prometheus.Gauge
	FinishedTasks    prometheus.Gauge
	JobStatus        prometheus.Gauge
}

func New(reg prometheus.Registerer) *AppMasterMetrics {
	m := &AppMasterMetrics{
		CompletedContainers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "am_containers_completed_total",
			Help: "Containers that exited cleanly.",
		}),
		FailedContainers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "am_containers_failed_total",
			Help: "Containers that exited with a non-zero, non-released code.",
		}),
		ReleasedContainers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "am_containers_released_total",
			Help: "Containers released or lost by the cluster.",
		}),
		SurplusContainers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "am_containers_surplus_total",
			Help: "Allocations returned because no task was waiting.",
		}),
		ContainerRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "am_container_requests_total",
			Help: "Container requests submitted to the resource manager.",
		}),
		NeededContainers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "am_containers_needed",
			Help: "Outstanding container requests not yet satisfied.",
		}),
		RunningTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "am_tasks_running",
			Help: "Task groups currently bound to a container.",
		}),
		UnclaimedTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "am_tasks_unclaimed",
			Help: "Task groups waiting for a container.",
		}),
		FinishedTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "am_tasks_finished",
			Help: "Task groups that completed with exit status 0.",
		}),
		JobStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "am_job_status",
			Help: "Current job status: 0 undefined, 1 succeeded, 2 failed.",
		}),
	}

	reg.MustRegister(
		m.CompletedContainers,
		m.FailedContainers,
		m.ReleasedContainers,
		m.SurplusContainers,
		m.ContainerRequests,
		m.NeededContainers,
		m.RunningTasks,
		m.UnclaimedTasks,
		m.FinishedTasks,
		m.JobStatus,
	)
	return m
}
