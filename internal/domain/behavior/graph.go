package behavior

import (
	"time"

	"github.com/google/uuid"
)

// NodeKind distinguishes identity nodes from endpoint nodes
type NodeKind string

const (
	NodeUser     NodeKind = "user"
	NodeEndpoint NodeKind = "endpoint"
)

// GraphNode is a vertex in the interaction graph
type GraphNode struct {
	ID   string   `json:"id"`
	Kind NodeKind `json:"kind"`
}

// GraphEdge is a directed, frequency-weighted transition between nodes
type GraphEdge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Weight float64 `json:"weight"`
}

// Cluster groups nodes with similar interaction behavior
type Cluster struct {
	ID         int      `json:"id"`
	Members    []string `json:"members"`
	Cohesion   float64  `json:"cohesion"`
	Separation float64  `json:"separation"`
}

// GraphProperties holds the per-invocation analysis results
type GraphProperties struct {
	Centrality   map[string]float64 `json:"centrality"`
	Communities  [][]string         `json:"communities"`
	Clusters     []Cluster          `json:"clusters"`
	AnomalyScore float64            `json:"anomaly_score"`
}

// Graph is the interaction graph computed fresh per invocation; it is never
// incrementally updated.
type Graph struct {
	ID         uuid.UUID       `json:"graph_id"`
	Nodes      []GraphNode     `json:"nodes"`
	Edges      []GraphEdge     `json:"edges"`
	Properties GraphProperties `json:"properties"`
	Timestamp  time.Time       `json:"timestamp"`
}
