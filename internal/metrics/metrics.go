// Package metrics defines the forum's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	LikesToggled    *prometheus.CounterVec
	Created         *prometheus.CounterVec
	Deleted         *prometheus.CounterVec
	AuthEvents      *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New builds the collectors and registers them on a private registry, so
// several instances can coexist in tests.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forum_http_requests_total",
				Help: "Total number of HTTP requests by route and status code",
			},
			[]string{"method", "route", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forum_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		LikesToggled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forum_likes_toggled_total",
				Help: "Like toggles by target (post, comment) and action (like, unlike)",
			},
			[]string{"target", "action"},
		),
		Created: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forum_entities_created_total",
				Help: "Entities created by kind",
			},
			[]string{"kind"},
		),
		Deleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forum_entities_deleted_total",
				Help: "Entities deleted by kind",
			},
			[]string{"kind"},
		),
		AuthEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forum_auth_events_total",
				Help: "Authentication events (register, login, login_failed, logout)",
			},
			[]string{"event"},
		),
		gatherer: reg,
	}

	reg.MustRegister(m.Requests)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(m.LikesToggled)
	reg.MustRegister(m.Created)
	reg.MustRegister(m.Deleted)
	reg.MustRegister(m.AuthEvents)
	reg.MustRegister(collectors.NewGoCollector())

	return m
}

// Like records a toggle outcome.
func (m *Metrics) Like(target string, liked bool) {
	action := "unlike"
	if liked {
		action = "like"
	}
	m.LikesToggled.WithLabelValues(target, action).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
