package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Purchases by outcome: reserved, insufficient, not_found, error.
	Purchases = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_purchases_total",
		Help: "Purchase attempts by partition and outcome",
	}, []string{"partition", "outcome"})

	Restocks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_restocks_total",
		Help: "Restock operations by partition and outcome",
	}, []string{"partition", "outcome"})

	// Purchase records handed to the prediction pipeline per flush.
	DispatchedPurchases = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "purchase_log_dispatched_total",
		Help: "Purchase records drained from the purchase log",
	}, []string{"partition"})

	DispatchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "purchase_log_dispatch_errors_total",
		Help: "Flush ticks whose prediction call failed",
	}, []string{"partition"})

	ScorerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scorer_request_duration_seconds",
		Help:    "Latency of batch score requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"client"})

	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lowstock_notifications_total",
		Help: "Low-stock notification batches by outcome",
	}, []string{"outcome"})

	WireMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wire_messages_total",
		Help: "Envelope messages handled by operation and result",
	}, []string{"operation", "result"})

	RPCRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rpc_retries_total",
		Help: "Gateway RPC retries by error kind",
	}, []string{"kind"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func Init() {
	prometheus.MustRegister(
		Purchases,
		Restocks,
		DispatchedPurchases,
		DispatchErrors,
		ScorerLatency,
		Notifications,
		WireMessages,
		RPCRetries,
		HTTPRequestDuration,
	)
}

// Partition formats a partition id as a label value.
func Partition(id int) string { return strconv.Itoa(id) }

// Middleware records request latency per matched route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		HTTPRequestDuration.
			WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(c.Response().StatusCode())).
			Observe(time.Since(start).Seconds())
		return err
	}
}
