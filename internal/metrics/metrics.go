// Package metrics holds the Prometheus collectors for the follow graph and
// slug resolution. Collectors register with the default registry at init,
// and the server exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TxAttempts counts every attempt of a store transaction, so retries
	// show up as attempts beyond the number of transactions.
	TxAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neuro_store_tx_attempts_total",
		Help: "Store transaction attempts, retries included",
	})
	// TxConflicts counts attempts that lost to a concurrent writer.
	TxConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neuro_store_tx_conflicts_total",
		Help: "Store transaction attempts aborted by a concurrent writer",
	})

	// FollowOps counts follow and unfollow calls, labeled by op and by
	// outcome (changed, noop or error).
	FollowOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neuro_follow_operations_total",
		Help: "Follow and unfollow calls by outcome",
	}, []string{"op", "outcome"})
	// FollowDuration observes how long follow and unfollow calls take.
	FollowDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "neuro_follow_duration_seconds",
		Help:    "Follow and unfollow latency, precondition checks and retries included",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"op"})

	// SlugResolutions counts slug lookups by the path that answered them:
	// the slug index, the fallback scan, or neither.
	SlugResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neuro_slug_resolutions_total",
		Help: "Slug lookups by the path that answered them",
	}, []string{"path"})

	// SlugsAssigned counts slugs written to users that had none, labeled by
	// whether a read path or the backfill wrote them.
	SlugsAssigned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neuro_slugs_assigned_total",
		Help: "Slugs written to users that had none",
	}, []string{"source"})
)

// Label values for the collectors above.
const (
	OpFollow   = "follow"
	OpUnfollow = "unfollow"

	OutcomeChanged = "changed"
	OutcomeNoop    = "noop"
	OutcomeError   = "error"

	PathIndex    = "index"
	PathScan     = "scan"
	PathNotFound = "not_found"

	SourceEnsure   = "ensure"
	SourceBackfill = "backfill"
)
