// Package metrics exposes Prometheus collectors for predictions, training
// runs and data refreshes.
package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the service collectors.
type Recorder struct {
	registry *prometheus.Registry

	Predictions      *prometheus.CounterVec
	TrainingRuns     *prometheus.CounterVec
	TrainingDuration prometheus.Histogram
	LastTraining     prometheus.Gauge
	RefreshAppended  prometheus.Counter
}

// NewRecorder creates the collectors and registers them, along with the Go
// runtime and process collectors, on a dedicated registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		Predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crop_price_predictions_total",
				Help: "Price predictions served, by crop and outcome",
			},
			[]string{"crop", "outcome"},
		),
		TrainingRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crop_price_training_runs_total",
				Help: "Model training runs, by outcome",
			},
			[]string{"outcome"},
		),
		TrainingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crop_price_training_duration_seconds",
				Help:    "Wall time of model training runs",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		LastTraining: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crop_price_last_training_timestamp_seconds",
				Help: "Unix time of the last successful training run",
			},
		),
		RefreshAppended: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crop_price_refresh_records_total",
				Help: "Price records appended by daily refreshes",
			},
		),
	}
	r.registry.MustRegister(
		r.Predictions,
		r.TrainingRuns,
		r.TrainingDuration,
		r.LastTraining,
		r.RefreshAppended,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the registry the collectors live on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObservePrediction counts a served prediction.
func (r *Recorder) ObservePrediction(crop, outcome string) {
	if crop == "" {
		crop = "unknown"
	}
	r.Predictions.WithLabelValues(crop, outcome).Inc()
}

// ObserveTraining records a training run. Only successes move the
// last-training gauge.
func (r *Recorder) ObserveTraining(outcome string, took time.Duration, at time.Time) {
	r.TrainingRuns.WithLabelValues(outcome).Inc()
	r.TrainingDuration.Observe(took.Seconds())
	if outcome == "success" {
		r.LastTraining.Set(float64(at.Unix()))
	}
}

// ObserveRefresh counts appended refresh records.
func (r *Recorder) ObserveRefresh(appended int) {
	r.RefreshAppended.Add(float64(appended))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
}
