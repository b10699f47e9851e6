package observ

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatwire_ws_connections",
		Help: "Current number of live websocket connections",
	})
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatwire_online_users",
		Help: "Users with at least one live connection",
	})
	InboundEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatwire_ws_inbound_events_total",
		Help: "Client events received, by event name",
	}, []string{"event"})
	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatwire_messages_sent_total",
		Help: "Messages persisted and fanned out, by message type",
	}, []string{"type"})
	FanoutDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatwire_fanout_drops_total",
		Help: "Outbound events dropped because a connection buffer was full",
	})
	CallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatwire_calls_total",
		Help: "Calls reaching a terminal or unavailable state, by outcome",
	}, []string{"outcome"})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WSConnections,
		OnlineUsers,
		InboundEvents,
		MessagesSent,
		FanoutDrops,
		CallsTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// GinMiddleware records request counts and latencies per route.
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
		HTTPRequestsTotal.With(labels).Inc()
		HTTPRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
