package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_cycles_total",
		Help: "Completed capture cycles, successful or not.",
	})

	CaptureFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_capture_failures_total",
		Help: "Frames that could not be captured from the camera.",
	})

	InferenceTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_inference_timeouts_total",
		Help: "Frames skipped because inference exceeded its budget.",
	})

	DetectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_detections_total",
		Help: "Individual objects detected across all frames.",
	})

	EventsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_events_triggered_total",
		Help: "Events that passed the trigger policy, by class.",
	}, []string{"class"})

	ArtifactsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_artifacts_persisted_total",
		Help: "Artifacts written to the image store.",
	})

	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_persist_failures_total",
		Help: "Triggered events whose artifact could not be written.",
	})

	RetentionDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_retention_deleted_total",
		Help: "Artifacts removed by the retention sweep.",
	})

	LoopState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_loop_state",
		Help: "Current loop state: 0 starting, 1 running, 2 degraded, 3 stopping, 4 stopped.",
	})
)

// Handler serves the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
