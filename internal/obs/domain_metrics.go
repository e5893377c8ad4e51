package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentRedirectTotal counts outbound redirect builds by result.
	PaymentRedirectTotal *prometheus.CounterVec
	// PaymentCallbackTotal counts inbound processor callbacks by result.
	PaymentCallbackTotal *prometheus.CounterVec
	// PaymentCallbackLatency records callback processing latency in milliseconds.
	PaymentCallbackLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentRedirectTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_redirect_total",
			Help:      "Count of outbound payment redirect builds by result.",
		}, []string{"result"}))
		PaymentCallbackTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_callback_total",
			Help:      "Count of processed payment processor callbacks by result.",
		}, []string{"result"}))
		PaymentCallbackLatency = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_callback_duration_ms",
			Help:      "Latency for payment callback processing in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"result"}))
	})
}

// ObserveRedirect records an outbound redirect result when metrics are registered.
func ObserveRedirect(result string) {
	if PaymentRedirectTotal != nil {
		PaymentRedirectTotal.WithLabelValues(result).Inc()
	}
}

// ObserveCallback records an inbound callback result and its latency in milliseconds.
func ObserveCallback(result string, millis float64) {
	if PaymentCallbackTotal != nil {
		PaymentCallbackTotal.WithLabelValues(result).Inc()
	}
	if PaymentCallbackLatency != nil {
		PaymentCallbackLatency.WithLabelValues(result).Observe(millis)
	}
}
