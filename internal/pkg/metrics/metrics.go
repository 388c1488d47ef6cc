package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "location_engine"

// Step labels для ошибок конвейера
const (
	StepUpload   = "upload"
	StepZones    = "zones"
	StepExit     = "exit"
	StepCoverage = "coverage"
	StepPublish  = "publish"
)

type EngineMetrics interface {
	IncPointsProcessed()
	IncUploads(result string)
	IncExits(outcome string)
	IncTilesUncovered()
	ObservePersistenceDuration(store string, duration time.Duration)
	IncStepErrors(step string)
}

type Prometheus struct {
	pointsProcessed     prometheus.Counter
	uploads             *prometheus.CounterVec
	exits               *prometheus.CounterVec
	tilesUncovered      prometheus.Counter
	persistenceDuration *prometheus.HistogramVec
	stepErrors          *prometheus.CounterVec
}

// NewPrometheus регистрирует метрики в reg. activeSessions может быть nil
func NewPrometheus(reg prometheus.Registerer, activeSessions func() float64) *Prometheus {
	factory := promauto.With(reg)

	m := &Prometheus{
		pointsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_processed_total",
			Help:      "Total number of location points processed",
		}),
		uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_uploads_total",
			Help:      "Location uploads to the profile store by result",
		}, []string{"result"}),
		exits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zone_exits_total",
			Help:      "Detected zone exits by record outcome",
		}, []string{"outcome"}),
		tilesUncovered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tiles_uncovered_total",
			Help:      "Total number of newly uncovered coverage tiles",
		}),
		persistenceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persistence_duration_seconds",
			Help:      "Duration of persistence operations in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"store"}),
		stepErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_errors_total",
			Help:      "Pipeline step failures by step",
		}, []string{"step"}),
	}

	if activeSessions != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Current number of active profile sessions",
		}, activeSessions)
	}

	return m
}

func (m *Prometheus) IncPointsProcessed() {
	m.pointsProcessed.Inc()
}

func (m *Prometheus) IncUploads(result string) {
	m.uploads.WithLabelValues(result).Inc()
}

func (m *Prometheus) IncExits(outcome string) {
	m.exits.WithLabelValues(outcome).Inc()
}

func (m *Prometheus) IncTilesUncovered() {
	m.tilesUncovered.Inc()
}

func (m *Prometheus) ObservePersistenceDuration(store string, duration time.Duration) {
	m.persistenceDuration.WithLabelValues(store).Observe(duration.Seconds())
}

func (m *Prometheus) IncStepErrors(step string) {
	m.stepErrors.WithLabelValues(step).Inc()
}

// Noop is a no-op implementation for when metrics are disabled.
type Noop struct{}

func (Noop) IncPointsProcessed()                                  {}
func (Noop) IncUploads(_ string)                                  {}
func (Noop) IncExits(_ string)                                    {}
func (Noop) IncTilesUncovered()                                   {}
func (Noop) ObservePersistenceDuration(_ string, _ time.Duration) {}
func (Noop) IncStepErrors(_ string)                               {}
