// Package metrics exports chat stream, recipe and thumbnail counters to
// Prometheus. Every method is safe on a nil *Metrics, so callers can run
// without metrics in tests.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "recipe_assistant"

// Metrics holds the service's collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	chunksForwarded   *prometheus.CounterVec
	chunksDropped     *prometheus.CounterVec
	recipesCreated    *prometheus.CounterVec
	chatRequests      *prometheus.CounterVec
	thumbnailDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses a fresh registry, so
// repeated calls in tests never collide.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{gatherer: reg}
	var err error

	if m.chunksForwarded, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "chunks_forwarded_total",
		Help:      "Chunks written to chat stream responses, by wire kind.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if m.chunksDropped, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "chunks_dropped_total",
		Help:      "Agent chunks not forwarded to the client, by reason.",
	}, []string{"reason"})); err != nil {
		return nil, err
	}
	if m.recipesCreated, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recipes_created_total",
		Help:      "Recipes persisted on behalf of users, by chat path.",
	}, []string{"path"})); err != nil {
		return nil, err
	}
	if m.chatRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chat_requests_total",
		Help:      "Chat turns handled, by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})); err != nil {
		return nil, err
	}
	if m.thumbnailDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "thumbnail_duration_seconds",
		Help:      "Latency of thumbnail generation and upload, by outcome.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing an identical collector registered earlier.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("register metric: %w", err)
	}
	return c, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ChunkForwarded(kind string) {
	if m == nil {
		return
	}
	m.chunksForwarded.WithLabelValues(kind).Inc()
}

func (m *Metrics) ChunkDropped(reason string) {
	if m == nil {
		return
	}
	m.chunksDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecipesCreated(path string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recipesCreated.WithLabelValues(path).Add(float64(n))
}

func (m *Metrics) ChatRequest(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.chatRequests.WithLabelValues(endpoint, outcome).Inc()
}

// RecordThumbnail observes one thumbnail attempt.
func (m *Metrics) RecordThumbnail(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.thumbnailDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
