// Package metrics holds Prometheus instruments that are used across the
// service.  All collectors are registered with the global registry, so
// mounting promhttp.Handler() in main.go is enough to expose them on
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CountdownActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "countdown_active",
			Help: "1 while a running countdown keeps the site locked, else 0.",
		})

	CountdownExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "countdown_expired_total",
			Help: "Cumulative number of countdowns deactivated on expiry.",
		})

	StatusQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_queries_total",
			Help: "Status API reads, by endpoint.",
		}, []string{"endpoint"})

	StoreFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "store_fallback_total",
			Help: "Cumulative number of switches from the external store to memory.",
		})

	StoreExternalActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_external_active",
			Help: "1 while the external database serves requests, 0 on memory.",
		})

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Chat notifications, by result (sent, failed, dropped).",
		}, []string{"result"})

	BotCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Chat-bot commands handled, by command.",
		}, []string{"command"})

	VisitorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitors_total",
			Help: "Tracked visitors, by whether a notification was queued.",
		}, []string{"notified"})
)

func init() {
	prometheus.MustRegister(
		CountdownActive,
		CountdownExpiredTotal,
		StatusQueriesTotal,
		StoreFallbackTotal,
		StoreExternalActive,
		NotificationsTotal,
		BotCommandsTotal,
		VisitorsTotal,
	)
}
