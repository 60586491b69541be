// Package metrics exposes Prometheus metrics for sessions, turns and the
// overlay detection loop.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-go/midas/pkg/core"
	"github.com/vango-go/midas/pkg/repair/session"
)

// Metrics holds all Prometheus metrics for MIDAS.
type Metrics struct {
	registry *prometheus.Registry

	// Turn metrics
	TurnsTotal   *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec
	StepsTotal   prometheus.Counter
	SpokenTotal  prometheus.Counter

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Overlay metrics
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	Detections    prometheus.Histogram

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// New creates a Metrics instance with every metric registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "midas"
	}

	registry := prometheus.NewRegistry()

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of settled turns",
		},
		[]string{"kind", "outcome"},
	)

	turnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Turn duration from start to settlement",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"kind"},
	)

	stepsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checklist_steps_total",
			Help:      "Total number of checklist steps extracted from replies",
		},
	)

	spokenTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spoken_replies_total",
			Help:      "Total number of replies that started playback",
		},
	)

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions in the active phase",
		},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of finished sessions",
		},
		[]string{"result"},
	)

	sessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Session duration from start to end",
			Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
		},
	)

	cyclesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlay_cycles_total",
			Help:      "Total number of overlay detection cycles",
		},
		[]string{"status"},
	)

	cycleDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "overlay_cycle_duration_seconds",
			Help:      "Overlay detection cycle duration",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	detections := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "overlay_detections",
			Help:      "Detections kept per overlay cycle",
			Buckets:   []float64{0, 1, 2, 3},
		},
	)

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"route"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of turn errors",
		},
		[]string{"stage", "error_type"},
	)

	registry.MustRegister(
		turnsTotal,
		turnDuration,
		stepsTotal,
		spokenTotal,
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		cyclesTotal,
		cycleDuration,
		detections,
		requestsTotal,
		requestDuration,
		errorsTotal,
	)

	return &Metrics{
		registry:        registry,
		TurnsTotal:      turnsTotal,
		TurnDuration:    turnDuration,
		StepsTotal:      stepsTotal,
		SpokenTotal:     spokenTotal,
		SessionsActive:  sessionsActive,
		SessionsTotal:   sessionsTotal,
		SessionDuration: sessionDuration,
		CyclesTotal:     cyclesTotal,
		CycleDuration:   cycleDuration,
		Detections:      detections,
		RequestsTotal:   requestsTotal,
		RequestDuration: requestDuration,
		ErrorsTotal:     errorsTotal,
	}
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// OnTurn is a session.Hooks.OnTurn callback.
func (m *Metrics) OnTurn(r session.TurnReport) {
	m.TurnsTotal.WithLabelValues(string(r.Kind), string(r.Outcome)).Inc()
	m.TurnDuration.WithLabelValues(string(r.Kind)).Observe(r.Duration.Seconds())
	if r.StepAdded {
		m.StepsTotal.Inc()
	}
	if r.Spoken {
		m.SpokenTotal.Inc()
	}
	if r.Err != nil {
		m.RecordError(r.Err)
	}
}

// RecordError counts a turn error by stage and provider error type.
func (m *Metrics) RecordError(err error) {
	stage := "unknown"
	var se *session.StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}
	errType := "other"
	var ce *core.Error
	if errors.As(err, &ce) {
		errType = string(ce.Type)
	}
	m.ErrorsTotal.WithLabelValues(stage, errType).Inc()
}

// RecordSessionStart records a session entering the active phase.
func (m *Metrics) RecordSessionStart() {
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session leaving the active phase.
func (m *Metrics) RecordSessionEnd(result string, duration time.Duration) {
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(result).Inc()
	if duration > 0 {
		m.SessionDuration.Observe(duration.Seconds())
	}
}

// ObserveCycle implements overlay.CycleObserver.
func (m *Metrics) ObserveCycle(detections int, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.CyclesTotal.WithLabelValues(status).Inc()
	m.CycleDuration.Observe(elapsed.Seconds())
	if err == nil {
		m.Detections.Observe(float64(detections))
	}
}

// RecordRequest records a completed HTTP request.
func (m *Metrics) RecordRequest(route string, status int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// SessionObserver returns a session.Hooks.OnChange callback that turns phase
// changes into session start and end metrics.
func (m *Metrics) SessionObserver() func(session.Snapshot) {
	var (
		mu   sync.Mutex
		last session.Phase
	)
	return func(snap session.Snapshot) {
		mu.Lock()
		prev := last
		last = snap.Phase
		mu.Unlock()
		if prev == snap.Phase {
			return
		}
		switch {
		case snap.Phase == session.PhaseActive:
			m.RecordSessionStart()
		case prev == session.PhaseActive && snap.Phase == session.PhaseComplete:
			var d time.Duration
			if !snap.StartedAt.IsZero() && !snap.EndedAt.IsZero() {
				d = snap.EndedAt.Sub(snap.StartedAt)
			}
			m.RecordSessionEnd("complete", d)
		case prev == session.PhaseActive:
			m.RecordSessionEnd("reset", 0)
		}
	}
}
