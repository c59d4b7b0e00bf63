// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topicboard_http_requests_total",
		Help: "HTTP requests by route pattern, method and status code.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "topicboard_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	PostActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topicboard_post_actions_total",
		Help: "Post interactions by action and outcome.",
	}, []string{"action", "outcome"})

	PostsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topicboard_posts_created_total",
		Help: "Posts created.",
	})

	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topicboard_auth_attempts_total",
		Help: "Registration and login attempts by outcome.",
	}, []string{"kind", "outcome"})

	EventPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topicboard_event_publish_failures_total",
		Help: "Post events that could not be published.",
	})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topicboard_rate_limited_total",
		Help: "Requests rejected by the rate limiter by bucket.",
	}, []string{"bucket"})
)
