package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// System metrics
	SystemMemoryUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_memory_bytes",
		Help: "Current system memory usage",
	})

	SystemGoroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_goroutines",
		Help: "Number of goroutines",
	})

	// Pipeline metrics
	PipelineQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_queue_length",
		Help: "Number of work units submitted but not finished",
	})

	PipelineUnits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_units_total",
			Help: "Work units processed by phase and outcome",
		},
		[]string{"phase", "outcome"},
	)

	PartitionsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "publication_partitions_committed_total",
		Help: "Number of publication partitions committed",
	})

	// Graph metrics
	GraphNodeCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "graph_nodes_total",
			Help: "Total number of nodes in the graph",
		},
		[]string{"node_type"},
	)

	GraphEdgeCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "graph_edges_total",
			Help: "Total number of edges in the graph",
		},
		[]string{"edge_type"},
	)

	GraphNodesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_nodes_created_total",
			Help: "Nodes created by upserts",
		},
		[]string{"node_type"},
	)

	GraphRelationshipsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_relationships_created_total",
			Help: "Relationships created by upserts",
		},
		[]string{"edge_type"},
	)

	GraphOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_operation_errors_total",
			Help: "Graph store operations that failed",
		},
		[]string{"operation"},
	)

	// Linking metrics
	LexicalIndexSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lexical_index_entries",
		Help: "Exact entries in the lexical form index",
	})

	SentenceLinks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentence_links_total",
			Help: "Lexical form matches by tier",
		},
		[]string{"relationship"},
	)
)

// UpdateSystemMetrics updates system-level metrics
func UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	SystemMemoryUsage.Set(float64(m.Alloc))
	SystemGoroutines.Set(float64(runtime.NumGoroutine()))
}
