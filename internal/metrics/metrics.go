package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for try-on requests
const (
	OutcomeSuccess       = "success"
	OutcomeMissingImages = "missing_images"
	OutcomeBadRequest    = "bad_request"
	OutcomeFetchFailed   = "product_fetch_failed"
	OutcomeModelFailed   = "model_failed"
)

// Proxy holds the try-on proxy collectors
type Proxy struct {
	requests      *prometheus.CounterVec
	duration      prometheus.Histogram
	modelDuration prometheus.Histogram
}

// NewProxy registers the proxy collectors with reg
func NewProxy(reg prometheus.Registerer) *Proxy {
	f := promauto.With(reg)
	return &Proxy{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tryon",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Try-on requests by outcome.",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tryon",
			Subsystem: "proxy",
			Name:      "request_duration_seconds",
			Help:      "End-to-end try-on request latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}),
		modelDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tryon",
			Subsystem: "vertex",
			Name:      "predict_duration_seconds",
			Help:      "Latency of the try-on model predict call.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}),
	}
}

// Observe records one finished request
func (p *Proxy) Observe(outcome string, d time.Duration) {
	p.requests.WithLabelValues(outcome).Inc()
	p.duration.Observe(d.Seconds())
}

// ObserveModel records one predict call
func (p *Proxy) ObserveModel(d time.Duration) {
	p.modelDuration.Observe(d.Seconds())
}

// Handler exposes the collectors gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
