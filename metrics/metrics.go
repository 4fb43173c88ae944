package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SessionsSpawned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framerender",
		Subsystem: "pool",
		Name:      "sessions_spawned_total",
		Help:      "sessions spawned",
	}, []string{"pool"})

	SessionsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framerender",
		Subsystem: "pool",
		Name:      "sessions_failed_total",
		Help:      "sessions terminated after a failed operation",
	}, []string{"pool"})

	SessionsBusy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "framerender",
		Subsystem: "pool",
		Name:      "sessions_busy",
		Help:      "sessions currently running an operation",
	}, []string{"pool"})

	SessionsIdle = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "framerender",
		Subsystem: "pool",
		Name:      "sessions_idle",
		Help:      "sessions waiting for work",
	}, []string{"pool"})

	AcquireSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "framerender",
		Subsystem: "pool",
		Name:      "acquire_seconds",
		Help:      "time waiting for a session",
		Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
	}, []string{"pool"})

	RenderSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "framerender",
		Subsystem: "pool",
		Name:      "render_seconds",
		Help:      "time to render one frame",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"pool"})

	FramesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "framerender",
		Subsystem: "pipeline",
		Name:      "frames_written_total",
		Help:      "frames forwarded to sinks",
	})

	PoolRebuilds = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "framerender",
		Subsystem: "server",
		Name:      "pool_rebuilds_total",
		Help:      "pools created because the render configuration changed",
	})

	Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framerender",
		Subsystem: "server",
		Name:      "requests_total",
		Help:      "requests by endpoint and status code",
	}, []string{"endpoint", "code"})
)

func init() {
	prometheus.MustRegister(
		SessionsSpawned,
		SessionsFailed,
		SessionsBusy,
		SessionsIdle,
		AcquireSeconds,
		RenderSeconds,
		FramesWritten,
		PoolRebuilds,
		Requests,
	)
}

// DeletePool drops every series labelled with a pool's name.
func DeletePool(name string) {
	for _, vec := range []interface{ DeleteLabelValues(...string) bool }{
		SessionsSpawned,
		SessionsFailed,
		SessionsBusy,
		SessionsIdle,
		AcquireSeconds,
		RenderSeconds,
	} {
		vec.DeleteLabelValues(name)
	}
}
