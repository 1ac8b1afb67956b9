package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minilink_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// FeedRefreshes counts feed refreshes by outcome (ok, fetch_failure, store_failure).
	FeedRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minilink_feed_refreshes_total",
		Help: "Total number of feed refreshes by outcome",
	}, []string{"outcome"})

	// FeedRefreshLatency records end-to-end refresh latency.
	FeedRefreshLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "minilink_feed_refresh_latency_seconds",
		Help:    "Feed refresh latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// SeededEntries counts engagement entries created by write-through seeding.
	SeededEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minilink_engagement_seeded_entries_total",
		Help: "Total number of engagement entries seeded with defaults",
	})

	// EngagementMutations counts local engagement mutations by kind (like, unlike, comment).
	EngagementMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minilink_engagement_mutations_total",
		Help: "Total number of local engagement mutations by kind",
	}, []string{"kind"})

	// Invalidations counts cross-view invalidation events by topic and origin (local, remote).
	Invalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minilink_invalidations_total",
		Help: "Total number of cross-view invalidation events",
	}, []string{"topic", "origin"})

	// RemoteCalls counts post API calls by operation and result.
	RemoteCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minilink_remote_calls_total",
		Help: "Total number of post API calls by operation and result",
	}, []string{"operation", "result"})

	// PostsCreated counts posts created on the server.
	PostsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minilink_posts_created_total",
		Help: "Total number of posts created",
	})
)
