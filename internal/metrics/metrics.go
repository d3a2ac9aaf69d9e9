// Package metrics exposes Prometheus instrumentation for the session core
// and its collaborators.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TelemetrySamples counts samples by outcome: processed while a set is
	// active, or dropped because no set was active.
	TelemetrySamples = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cable_trainer_telemetry_samples_total",
		Help: "Telemetry samples received, by outcome",
	}, []string{"outcome"})

	// RepsCounted counts reps by kind (warmup, working).
	RepsCounted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cable_trainer_reps_total",
		Help: "Reps counted, by kind",
	}, []string{"kind"})

	// SetsCompleted counts finished sets by completion reason.
	SetsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cable_trainer_sets_completed_total",
		Help: "Sets completed, by reason",
	}, []string{"reason"})

	// DeviceCommandFailures counts failed device commands by command name.
	DeviceCommandFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cable_trainer_device_command_failures_total",
		Help: "Device commands that returned an error",
	}, []string{"command"})

	// StorageFailures counts failed repository calls by operation.
	StorageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cable_trainer_storage_failures_total",
		Help: "Repository operations that returned an error",
	}, []string{"operation"})

	// SetDuration tracks how long active sets last.
	SetDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cable_trainer_set_duration_seconds",
		Help:    "Duration of completed sets",
		Buckets: []float64{5, 10, 20, 30, 45, 60, 90, 120, 180, 300},
	})

	// ExecutorQueueDepth is the number of tasks waiting on the session executor.
	ExecutorQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cable_trainer_executor_queue_depth",
		Help: "Tasks queued on the session executor",
	})
)

// ObserveSample records one telemetry sample outcome.
func ObserveSample(processed bool) {
	if processed {
		TelemetrySamples.WithLabelValues("processed").Inc()
		return
	}
	TelemetrySamples.WithLabelValues("dropped").Inc()
}

// ObserveRep records one counted rep.
func ObserveRep(warmup bool) {
	if warmup {
		RepsCounted.WithLabelValues("warmup").Inc()
		return
	}
	RepsCounted.WithLabelValues("working").Inc()
}

// ObserveSetCompleted records a finished set.
func ObserveSetCompleted(reason string, seconds float64) {
	SetsCompleted.WithLabelValues(reason).Inc()
	SetDuration.Observe(seconds)
}

// ObserveDeviceFailure records a failed device command.
func ObserveDeviceFailure(command string) {
	DeviceCommandFailures.WithLabelValues(command).Inc()
}

// ObserveStorageFailure records a failed repository call.
func ObserveStorageFailure(operation string) {
	StorageFailures.WithLabelValues(operation).Inc()
}
