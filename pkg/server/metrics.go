package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meshwatch/mesh-topo/pkg/topoengine"
)

// Collector bundles the Prometheus metrics for the topology service.
type Collector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	Recomputes        prometheus.Counter
	RecomputeDuration prometheus.Histogram

	Edges      prometheus.Gauge
	TrunkLines prometheus.Gauge
	Clusters   prometheus.Gauge
	WSClients  prometheus.Gauge

	FeedEvents *prometheus.CounterVec
}

// NewCollector registers the service metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meshtopo_http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by route, method, and status code.",
	}, []string{"route", "method", "code"})
	requests, err := registerCounterVec(reg, requests, "meshtopo_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meshtopo_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"route", "method"})
	durations, err = registerHistogramVec(reg, durations, "meshtopo_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	recomputes, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meshtopo_recomputes_total",
		Help: "Total number of topology recomputations.",
	}), "meshtopo_recomputes_total")
	if err != nil {
		return nil, err
	}

	recomputeDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "meshtopo_recompute_duration_seconds",
		Help:    "Topology recomputation latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}), "meshtopo_recompute_duration_seconds")
	if err != nil {
		return nil, err
	}

	edges, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meshtopo_edges",
		Help: "Distinct undirected edges in the latest topology result.",
	}), "meshtopo_edges")
	if err != nil {
		return nil, err
	}
	trunkLines, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meshtopo_trunk_lines",
		Help: "Trunk lines in the latest topology result.",
	}), "meshtopo_trunk_lines")
	if err != nil {
		return nil, err
	}
	clusters, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meshtopo_clusters",
		Help: "Geographic clusters in the latest topology result.",
	}), "meshtopo_clusters")
	if err != nil {
		return nil, err
	}
	wsClients, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meshtopo_ws_clients",
		Help: "Connected websocket subscribers.",
	}), "meshtopo_ws_clients")
	if err != nil {
		return nil, err
	}

	feedEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meshtopo_feed_events_total",
		Help: "Total number of feed events applied, labeled by type.",
	}, []string{"type"})
	feedEvents, err = registerCounterVec(reg, feedEvents, "meshtopo_feed_events_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		HTTPRequests:      requests,
		HTTPDurations:     durations,
		Recomputes:        recomputes,
		RecomputeDuration: recomputeDuration,
		Edges:             edges,
		TrunkLines:        trunkLines,
		Clusters:          clusters,
		WSClients:         wsClients,
		FeedEvents:        feedEvents,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveRequest records one handled HTTP request.
func (c *Collector) ObserveRequest(route, method string, code int, elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.HTTPRequests != nil {
		c.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	}
	if c.HTTPDurations != nil {
		c.HTTPDurations.WithLabelValues(route, method).Observe(elapsed.Seconds())
	}
}

// ObserveRecompute records one engine run and refreshes the result gauges.
func (c *Collector) ObserveRecompute(elapsed time.Duration, summary topoengine.Summary) {
	if c == nil {
		return
	}
	if c.Recomputes != nil {
		c.Recomputes.Inc()
	}
	if c.RecomputeDuration != nil {
		c.RecomputeDuration.Observe(elapsed.Seconds())
	}
	if c.Edges != nil {
		c.Edges.Set(float64(summary.TotalEdges))
	}
	if c.TrunkLines != nil {
		c.TrunkLines.Set(float64(summary.TrunkLines))
	}
	if c.Clusters != nil {
		c.Clusters.Set(float64(summary.Clusters))
	}
}

// CountFeedEvent records one applied feed event by type.
func (c *Collector) CountFeedEvent(kind string) {
	if c == nil || c.FeedEvents == nil {
		return
	}
	c.FeedEvents.WithLabelValues(kind).Inc()
}

// SetWSClients updates the subscriber gauge.
func (c *Collector) SetWSClients(n int) {
	if c == nil || c.WSClients == nil {
		return
	}
	c.WSClients.Set(float64(n))
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, histogram prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(histogram); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return histogram, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
