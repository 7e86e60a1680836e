package middlewares

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketplace_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	orderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_order_operations_total",
			Help: "Total number of order, delivery and ledger operations",
		},
		[]string{"operation", "status"},
	)

	orderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_order_transitions_total",
			Help: "Order status changes by target status",
		},
		[]string{"to"},
	)

	deliveryStatusChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_delivery_status_total",
			Help: "Delivery status changes by target status",
		},
		[]string{"to"},
	)

	commissionPaidOrders = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_commission_paid_orders_total",
			Help: "Orders whose commission was marked paid",
		},
	)
)

// PrometheusMiddleware collects request counts and latencies.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
	}
}

func RecordOrderOperation(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	orderOperations.WithLabelValues(operation, status).Inc()
}

func RecordOrderTransition(to string) {
	orderTransitions.WithLabelValues(to).Inc()
}

func RecordDeliveryStatus(to string) {
	deliveryStatusChanges.WithLabelValues(to).Inc()
}

func RecordCommissionPaid(orders int64) {
	commissionPaidOrders.Add(float64(orders))
}
