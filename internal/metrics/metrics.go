// Package metrics holds the Prometheus collectors for the prediction pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	predictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "deepcatcher", Name: "predictions_total", Help: "Images classified, by label."},
		[]string{"label"},
	)
	failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "deepcatcher", Name: "pipeline_failures_total", Help: "Per-image pipeline failures, by stage."},
		[]string{"stage"},
	)
	refusals = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "deepcatcher", Name: "refused_actions_total", Help: "Actions refused for unauthenticated sessions."},
		[]string{"action"},
	)
	inference = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "deepcatcher", Name: "inference_seconds", Help: "Model inference latency.", Buckets: prometheus.DefBuckets},
	)
	userService = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "deepcatcher", Subsystem: "userservice", Name: "requests_total", Help: "User-service calls, by operation and HTTP status."},
		[]string{"op", "code"},
	)
)

// Registry collects every metric above. It is separate from the default
// registry so tests and embedders get a clean set.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(predictions, failures, refusals, inference, userService)
}

// Stage names used with Failure.
const (
	StageNormalize = "normalize"
	StageClassify  = "classify"
	StagePersist   = "persist"
)

func Prediction(label string) { predictions.WithLabelValues(label).Inc() }

func Failure(stage string) { failures.WithLabelValues(stage).Inc() }

func Refused(action string) { refusals.WithLabelValues(action).Inc() }

func Inference(d time.Duration) { inference.Observe(d.Seconds()) }

// UserServiceCall records one request; code 0 means no response was received.
func UserServiceCall(op string, code int) {
	userService.WithLabelValues(op, strconv.Itoa(code)).Inc()
}
