package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the SDK.
type Metrics struct {
	AttributeResolutions *prometheus.CounterVec
	AttributeLatency     *prometheus.HistogramVec

	TransportRequests *prometheus.CounterVec
	TransportLatency  prometheus.Histogram

	ProfileSyncs *prometheus.CounterVec

	EventsTracked     prometheus.Counter
	EventAttempts     prometheus.Counter
	EventsDelivered   prometheus.Counter
	EventsDropped     *prometheus.CounterVec
	EventQueueDepth   prometheus.Gauge
	EventDeliveryTime prometheus.Histogram
}

// New creates all metrics and registers them with reg. Passing a fresh
// prometheus.NewRegistry() keeps instances isolated (one per client or test).
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AttributeResolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paykit_attribute_resolutions_total",
			Help: "Underlying attribute resolutions by attribute and result",
		}, []string{"attribute", "result"}),
		AttributeLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paykit_attribute_latency_seconds",
			Help:    "Time spent waiting for an attribute while composing metadata",
			Buckets: prometheus.DefBuckets,
		}, []string{"attribute"}),
		TransportRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paykit_transport_requests_total",
			Help: "Backend requests by method and outcome",
		}, []string{"method", "outcome"}),
		TransportLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "paykit_transport_latency_seconds",
			Help:    "Backend request latency",
			Buckets: prometheus.DefBuckets,
		}),
		ProfileSyncs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paykit_profile_syncs_total",
			Help: "Profile create/fetch round trips by kind and result",
		}, []string{"kind", "result"}),
		EventsTracked: f.NewCounter(prometheus.CounterOpts{
			Name: "paykit_events_tracked_total",
			Help: "Analytics events accepted by Track",
		}),
		EventAttempts: f.NewCounter(prometheus.CounterOpts{
			Name: "paykit_event_delivery_attempts_total",
			Help: "Individual analytics delivery attempts",
		}),
		EventsDelivered: f.NewCounter(prometheus.CounterOpts{
			Name: "paykit_events_delivered_total",
			Help: "Analytics events delivered successfully",
		}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paykit_events_dropped_total",
			Help: "Analytics events dropped by reason",
		}, []string{"reason"}),
		EventQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "paykit_event_queue_depth",
			Help: "Analytics events waiting for delivery",
		}),
		EventDeliveryTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "paykit_event_delivery_seconds",
			Help:    "Time from first attempt to success or drop for one event",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "unavailable"
}

// ObserveAttributeResolution records one underlying attribute resolution.
func (m *Metrics) ObserveAttributeResolution(attribute string, ok bool) {
	m.AttributeResolutions.WithLabelValues(attribute, result(ok)).Inc()
}

// ObserveAttributeLatency records how long compose waited for an attribute.
func (m *Metrics) ObserveAttributeLatency(attribute string, d time.Duration) {
	m.AttributeLatency.WithLabelValues(attribute).Observe(d.Seconds())
}

// ObserveTransport records one backend request.
func (m *Metrics) ObserveTransport(method, outcome string, d time.Duration) {
	m.TransportRequests.WithLabelValues(method, outcome).Inc()
	m.TransportLatency.Observe(d.Seconds())
}

// IncProfileSync records a profile create or fetch.
func (m *Metrics) IncProfileSync(kind string, err error) {
	r := "ok"
	if err != nil {
		r = "error"
	}
	m.ProfileSyncs.WithLabelValues(kind, r).Inc()
}

func (m *Metrics) IncEventsTracked() {
	m.EventsTracked.Inc()
}

func (m *Metrics) IncEventAttempts() {
	m.EventAttempts.Inc()
}

func (m *Metrics) IncEventsDelivered() {
	m.EventsDelivered.Inc()
}

// IncEventsDropped records a dropped event. reason is "retries_exhausted" or "closed".
func (m *Metrics) IncEventsDropped(reason string) {
	m.EventsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetEventQueueDepth(n int) {
	m.EventQueueDepth.Set(float64(n))
}

func (m *Metrics) ObserveEventDelivery(d time.Duration) {
	m.EventDeliveryTime.Observe(d.Seconds())
}
