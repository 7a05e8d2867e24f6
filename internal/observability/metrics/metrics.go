package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shop_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	purchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_purchases_total",
		Help: "Purchase attempts by outcome",
	}, []string{"result"})

	purchaseLockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shop_purchase_lock_wait_seconds",
		Help:    "Time spent waiting for the purchase lock",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	})

	registrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_registrations_total",
		Help: "Registration attempts by outcome",
	}, []string{"result"})

	itemsSold = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_items_sold_total",
		Help: "Units sold across all successful purchases",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObservePurchase counts a purchase attempt. Units are added to the sold counter on success.
func ObservePurchase(result string, units int) {
	purchasesTotal.WithLabelValues(result).Inc()
	if result == "success" && units > 0 {
		itemsSold.Add(float64(units))
	}
}

// ObservePurchaseLockWait records how long a purchase waited for the lock.
func ObservePurchaseLockWait(d time.Duration) {
	purchaseLockWait.Observe(d.Seconds())
}

// ObserveRegistration counts a registration attempt.
func ObserveRegistration(result string) {
	registrationsTotal.WithLabelValues(result).Inc()
}
