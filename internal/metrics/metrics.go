package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pos"

// Collector groups the business and HTTP metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	Orders             *prometheus.CounterVec
	Movements          *prometheus.CounterVec
	StockRejections    prometheus.Counter
	OrderNumberRetries prometheus.Counter
	RelayedEvents      *prometheus.CounterVec
	Requests           *prometheus.CounterVec
	LatencyMS          *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Orders created or moved to a new status.",
		}, []string{"status"}),
		Movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_movements_total",
			Help:      "Inventory movements appended to the ledger.",
		}, []string{"type"}),
		StockRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insufficient_stock_total",
			Help:      "Decrements rejected because stock would go negative.",
		}),
		OrderNumberRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_number_retries_total",
			Help:      "Order creations retried after an order number collision.",
		}),
		RelayedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_total",
			Help:      "Outbox events handled by the relay.",
		}, []string{"result"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
	}

	reg.MustRegister(c.Orders, c.Movements, c.StockRejections, c.OrderNumberRetries, c.RelayedEvents, c.Requests, c.LatencyMS)
	return c
}

func (c *Collector) OrderTransition(status string) {
	if c == nil {
		return
	}
	c.Orders.WithLabelValues(status).Inc()
}

func (c *Collector) Movement(movementType string) {
	if c == nil {
		return
	}
	c.Movements.WithLabelValues(movementType).Inc()
}

func (c *Collector) InsufficientStock() {
	if c == nil {
		return
	}
	c.StockRejections.Inc()
}

func (c *Collector) OrderNumberRetry() {
	if c == nil {
		return
	}
	c.OrderNumberRetries.Inc()
}

func (c *Collector) Relayed(ok bool) {
	if c == nil {
		return
	}
	result := "sent"
	if !ok {
		result = "failed"
	}
	c.RelayedEvents.WithLabelValues(result).Inc()
}

func (c *Collector) ObserveRequest(handler string, status int, ms float64) {
	if c == nil {
		return
	}
	c.Requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
	c.LatencyMS.WithLabelValues(handler).Observe(ms)
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
