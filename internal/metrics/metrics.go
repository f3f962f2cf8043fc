package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	verticesLoaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "graphload_vertices_loaded_total",
		Help: "Total number of vertex records published by the bulk loader",
	})
	edgesLoaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "graphload_edges_loaded_total",
		Help: "Total number of edge records published by the bulk loader",
	})
	verticesEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "graphload_vertices_emitted_total",
		Help: "Total number of vertex records re-emitted by the repartition job",
	})
	adjacencyEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "graphload_adjacency_emitted_total",
		Help: "Total number of grouped-edge records emitted by the repartition job",
	})
)

func Register() {
	prometheus.MustRegister(verticesLoaded, edgesLoaded, verticesEmitted, adjacencyEmitted)
}

func IncVerticesLoaded() { verticesLoaded.Inc() }

func IncEdgesLoaded() { edgesLoaded.Inc() }

func IncVerticesEmitted() { verticesEmitted.Inc() }

func IncAdjacencyEmitted() { adjacencyEmitted.Inc() }
