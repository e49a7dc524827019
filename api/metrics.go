package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bündelt die Prometheus-Metriken der API. Alle Methoden sind nil-sicher.
type Metrics struct {
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	dessertsCreated prometheus.Counter
	dessertsUpdated prometheus.Counter
	dessertsDeleted prometheus.Counter
	imagesStored    prometheus.Counter
}

// NewMetrics registriert alle Metriken an reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		dessertsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "desserts_created_total",
			Help: "Total number of desserts created.",
		}),
		dessertsUpdated: f.NewCounter(prometheus.CounterOpts{
			Name: "desserts_updated_total",
			Help: "Total number of desserts updated.",
		}),
		dessertsDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "desserts_deleted_total",
			Help: "Total number of desserts deleted.",
		}),
		imagesStored: f.NewCounter(prometheus.CounterOpts{
			Name: "dessert_images_stored_total",
			Help: "Total number of uploaded dessert images written to the upload store.",
		}),
	}
}

func (m *Metrics) DessertCreated() {
	if m != nil {
		m.dessertsCreated.Inc()
	}
}

func (m *Metrics) DessertUpdated() {
	if m != nil {
		m.dessertsUpdated.Inc()
	}
}

func (m *Metrics) DessertDeleted() {
	if m != nil {
		m.dessertsDeleted.Inc()
	}
}

func (m *Metrics) ImageStored() {
	if m != nil {
		m.imagesStored.Inc()
	}
}

// Middleware misst Anzahl und Dauer aller Requests.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
