package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ProviderMetrics tracks generation traffic per provider.
//
// Metrics:
//   - <ns>_provider_requests_total: generation calls by provider and model
//   - <ns>_provider_errors_total: failed calls by provider and error kind
//   - <ns>_provider_latency_seconds: call latency by provider and model
//   - <ns>_provider_available: capability probe result (1=ok, 0=failed)
//
// A nil *ProviderMetrics is valid and records nothing.
type ProviderMetrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	available *prometheus.GaugeVec
}

// New creates provider metrics on a private registry.
func New(namespace string) *ProviderMetrics {
	pm := &ProviderMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Total number of generation requests sent to each provider",
			},
			[]string{"provider", "model"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Total number of provider errors by kind",
			},
			[]string{"provider", "kind"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_latency_seconds",
				Help:      "Provider generation latency in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"provider", "model"},
		),
		available: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_available",
				Help:      "Result of the provider capability probe (1=ok, 0=failed)",
			},
			[]string{"provider"},
		),
	}
	pm.registry.MustRegister(
		pm.requests,
		pm.errors,
		pm.latency,
		pm.available,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return pm
}

// ObserveRequest records one finished generation call. kind is empty on success.
func (pm *ProviderMetrics) ObserveRequest(provider, model, kind string, seconds float64) {
	if pm == nil {
		return
	}
	pm.requests.WithLabelValues(provider, model).Inc()
	pm.latency.WithLabelValues(provider, model).Observe(seconds)
	if kind != "" {
		pm.errors.WithLabelValues(provider, kind).Inc()
	}
}

// SetAvailable records the outcome of a capability probe.
func (pm *ProviderMetrics) SetAvailable(provider string, ok bool) {
	if pm == nil {
		return
	}
	value := 0.0
	if ok {
		value = 1.0
	}
	pm.available.WithLabelValues(provider).Set(value)
}

// Registry exposes the underlying registry.
func (pm *ProviderMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (pm *ProviderMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}
