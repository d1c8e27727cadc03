package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "messenger_ws_connections",
		Help: "Current number of registered websocket connections",
	})
	MessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messenger_messages_total",
		Help: "Total number of messages persisted",
	})
	DuplicateSubmissions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messenger_duplicate_submissions_total",
		Help: "Submissions dropped because their client_id was already stored",
	})
	ReadReceiptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messenger_read_receipts_total",
		Help: "Read receipts processed, by chat type",
	}, []string{"chat_type"})
	BroadcastDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messenger_broadcast_drops_total",
		Help: "Connections removed because their send buffer was full",
	})
	RelayEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messenger_relay_events_total",
		Help: "Events exchanged with other instances, by direction",
	}, []string{"direction"})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections, MessagesTotal, DuplicateSubmissions, ReadReceiptsTotal,
		BroadcastDrops, RelayEvents, HttpRequestsTotal, HttpRequestDuration,
	)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
