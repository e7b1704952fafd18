package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the PnL engine.
type Metrics struct {
	// --- Replay ---
	WalletsReplayed          prometheus.Counter
	ReplayDuration           prometheus.Histogram
	EventsReplayed           prometheus.Counter
	EventsDropped            *prometheus.CounterVec
	DuplicatesCollapsed      prometheus.Counter
	InventoryClamps          prometheus.Counter
	RedeemsWithoutResolution prometheus.Counter

	// --- Batch preload ---
	PreloadDuration   *prometheus.HistogramVec
	PreloadRows       *prometheus.CounterVec
	PreloadChunkRetry prometheus.Counter
	BatchesCompleted  prometheus.Counter
	BatchesFailed     prometheus.Counter

	// --- Feed ingestion ---
	FeedEventsReceived *prometheus.CounterVec
	FeedEventsRejected *prometheus.CounterVec
	FeedDedupHits      prometheus.Counter
	FeedAppendDuration prometheus.Histogram

	// --- Persistence ---
	ReportsWritten prometheus.Counter
	WriteDuration  prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		WalletsReplayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outcome_wallets_replayed_total",
			Help: "Wallet replays completed.",
		}),
		ReplayDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "outcome_replay_duration_seconds",
			Help:    "Wall time of a single wallet replay.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		EventsReplayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outcome_events_replayed_total",
			Help: "Events applied to position books.",
		}),
		EventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "outcome_events_dropped_total",
			Help: "Events dropped at normalization, by reason.",
		}, []string{"reason"}),
		DuplicatesCollapsed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outcome_duplicates_collapsed_total",
			Help: "Duplicate event deliveries collapsed at read time.",
		}),
		InventoryClamps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outcome_inventory_clamps_total",
			Help: "Disposals clamped by the inventory guard. A high rate means an incomplete feed, not an engine fault.",
		}),
		RedeemsWithoutResolution: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outcome_redeems_without_resolution_total",
			Help: "Redeem events replayed as ordinary sells because the oracle had no payout.",
		}),

		PreloadDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "outcome_preload_duration_seconds",
			Help:    "Warehouse preload fetch duration, by dataset.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"dataset"}),
		PreloadRows: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "outcome_preload_rows_total",
			Help: "Rows fetched during batch preload, by dataset.",
		}, []string{"dataset"}),
		PreloadChunkRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outcome_preload_chunk_retries_total",
			Help: "Preload fetches retried with reduced chunk size.",
		}),
		BatchesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outcome_batches_completed_total",
			Help: "Batch runs completed end to end.",
		}),
		BatchesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outcome_batches_failed_total",
			Help: "Batch runs aborted by batch-level failure.",
		}),

		FeedEventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "outcome_feed_events_received_total",
			Help: "Events received from the feed, by kind.",
		}, []string{"kind"}),
		FeedEventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "outcome_feed_events_rejected_total",
			Help: "Feed events rejected before storage, by reason.",
		}, []string{"reason"}),
		FeedDedupHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outcome_feed_dedup_hits_total",
			Help: "Feed deliveries skipped by the ingest dedup cache.",
		}),
		FeedAppendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "outcome_feed_append_duration_seconds",
			Help:    "Warehouse append latency for feed events.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),

		ReportsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "outcome_reports_written_total",
			Help: "Wallet reports persisted.",
		}),
		WriteDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "outcome_report_write_duration_seconds",
			Help:    "Report persistence latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
	}
}
