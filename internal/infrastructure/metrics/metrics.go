package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Movement metrics
	MovementsCreated     prometheus.Counter
	MovementsReplayed    prometheus.Counter
	MovementsSplit       prometheus.Counter
	SplitsUpdated        prometheus.Counter
	MovementsUnsplit     prometheus.Counter
	MovementsDistributed prometheus.Counter
	MovementsDeleted     prometheus.Counter
	ChildrenCreated      *prometheus.CounterVec
	MovementAmount       *prometheus.HistogramVec

	// Engine metrics
	OperationDuration *prometheus.HistogramVec
	OperationErrors   *prometheus.CounterVec

	// Notification metrics
	NotificationsPublished prometheus.Counter
	NotificationsDropped   *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Retry metrics
	Retries *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics on the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates all metrics and registers them on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Movement metrics
		MovementsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "splitledger_movements_created_total",
			Help: "Total number of movements created",
		}),
		MovementsReplayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "splitledger_movements_replayed_total",
			Help: "Total number of create calls answered from an existing idempotency key",
		}),
		MovementsSplit: factory.NewCounter(prometheus.CounterOpts{
			Name: "splitledger_movements_split_total",
			Help: "Total number of movements split",
		}),
		SplitsUpdated: factory.NewCounter(prometheus.CounterOpts{
			Name: "splitledger_splits_updated_total",
			Help: "Total number of split allocations replaced",
		}),
		MovementsUnsplit: factory.NewCounter(prometheus.CounterOpts{
			Name: "splitledger_movements_unsplit_total",
			Help: "Total number of splits removed",
		}),
		MovementsDistributed: factory.NewCounter(prometheus.CounterOpts{
			Name: "splitledger_movements_distributed_total",
			Help: "Total number of expenses distributed across areas",
		}),
		MovementsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "splitledger_movements_deleted_total",
			Help: "Total number of movements soft-deleted",
		}),
		ChildrenCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitledger_children_created_total",
				Help: "Total child movements created by operation",
			},
			[]string{"operation"},
		),
		MovementAmount: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "splitledger_movement_amount_minor_units",
				Help:    "Movement amounts in minor units",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000, 100000000},
			},
			[]string{"type"},
		),

		// Engine metrics
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "splitledger_operation_duration_seconds",
				Help:    "Duration of engine operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		OperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitledger_operation_errors_total",
				Help: "Total engine errors by operation and kind",
			},
			[]string{"operation", "kind"},
		),

		// Notification metrics
		NotificationsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "splitledger_notifications_published_total",
			Help: "Total change notifications delivered to the broadcaster",
		}),
		NotificationsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitledger_notifications_dropped_total",
				Help: "Total change notifications dropped by reason",
			},
			[]string{"reason"},
		),

		// API metrics
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitledger_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "splitledger_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// Retry metrics
		Retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitledger_retries_total",
				Help: "Total retried operations by outcome",
			},
			[]string{"outcome"},
		),
	}
}
