package pubsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Commit modes for commitsTotal.
const (
	modeSelect = "select"
	modeResync = "resync"
)

var (
	previewsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pubsync_previews_total",
		Help: "Number of sync previews built.",
	})
	commitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pubsync_commits_total",
		Help: "Number of successful sync commits by mode.",
	}, []string{"mode"})
	recordsInsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pubsync_records_inserted_total",
		Help: "Number of external records inserted by sync.",
	})
	fetchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pubsync_fetch_failures_total",
		Help: "Number of provider fetches that failed.",
	})
	storeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pubsync_store_failures_total",
		Help: "Number of sync operations aborted by a store failure.",
	})
)
