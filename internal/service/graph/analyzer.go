// Package graph builds and analyzes the bipartite activity graph relating
// identities to the endpoints they touch.
package graph

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/behavior"
	"github.com/davidleathers/behavioral-threat-engine/internal/domain/errors"
	"github.com/davidleathers/behavioral-threat-engine/internal/domain/event"
)

// Analyzer derives structural properties from a batch of events: degree
// centrality, connected components as communities, endpoint-overlap clusters
// of identities, and a dispersion-based anomaly score.
type Analyzer struct {
	minClusterOverlap float64
}

// NewAnalyzer creates a graph analyzer. minClusterOverlap is the Jaccard
// similarity two identities need on their endpoint sets to cluster together;
// values at or below zero fall back to 0.3.
func NewAnalyzer(minClusterOverlap float64) *Analyzer {
	if minClusterOverlap <= 0 {
		minClusterOverlap = 0.3
	}
	return &Analyzer{minClusterOverlap: minClusterOverlap}
}

// Analyze builds the activity graph for the batch and computes its
// properties. The graph is computed fresh each call. Empty batches are
// invalid input.
func (a *Analyzer) Analyze(ctx context.Context, events []event.SecurityEvent) (*behavior.Graph, error) {
	if len(events) == 0 {
		return nil, errors.ErrEmptyBatch
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g := build(events)
	g.Properties.Centrality = degreeCentrality(g)
	g.Properties.Communities = communities(g)
	g.Properties.Clusters = a.clusters(events)
	g.Properties.AnomalyScore = anomalyScore(g.Properties.Centrality)
	return g, nil
}

// build assembles the bipartite graph. Edge weights count how many times the
// identity touched the endpoint.
func build(events []event.SecurityEvent) *behavior.Graph {
	nodes := make(map[string]behavior.GraphNode)
	weights := make(map[[2]string]int)
	for i := range events {
		ev := &events[i]
		if ev.UserID == "" || ev.Endpoint == "" {
			continue
		}
		userKey := "user:" + ev.UserID
		epKey := "endpoint:" + ev.Endpoint
		nodes[userKey] = behavior.GraphNode{ID: userKey, Kind: behavior.NodeUser}
		nodes[epKey] = behavior.GraphNode{ID: epKey, Kind: behavior.NodeEndpoint}
		weights[[2]string{userKey, epKey}]++
	}

	g := &behavior.Graph{
		ID:        uuid.New(),
		Nodes:     make([]behavior.GraphNode, 0, len(nodes)),
		Edges:     make([]behavior.GraphEdge, 0, len(weights)),
		Timestamp: time.Now(),
	}
	for _, n := range nodes {
		g.Nodes = append(g.Nodes, n)
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	for pair, w := range weights {
		g.Edges = append(g.Edges, behavior.GraphEdge{From: pair[0], To: pair[1], Weight: float64(w)})
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		return g.Edges[i].To < g.Edges[j].To
	})
	return g
}

// degreeCentrality normalizes each node's degree by the maximum possible
// degree (node count minus one).
func degreeCentrality(g *behavior.Graph) map[string]float64 {
	centrality := make(map[string]float64, len(g.Nodes))
	if len(g.Nodes) < 2 {
		for _, n := range g.Nodes {
			centrality[n.ID] = 0
		}
		return centrality
	}
	degree := make(map[string]int)
	for _, e := range g.Edges {
		degree[e.From]++
		degree[e.To]++
	}
	max := float64(len(g.Nodes) - 1)
	for _, n := range g.Nodes {
		centrality[n.ID] = float64(degree[n.ID]) / max
	}
	return centrality
}

// communities labels connected components with union-find and returns each
// component's members sorted, components ordered by their first member.
func communities(g *behavior.Graph) [][]string {
	parent := make(map[string]string, len(g.Nodes))
	for _, n := range g.Nodes {
		parent[n.ID] = n.ID
	}
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	for _, e := range g.Edges {
		parent[find(e.From)] = find(e.To)
	}

	byRoot := make(map[string][]string)
	for _, n := range g.Nodes {
		root := find(n.ID)
		byRoot[root] = append(byRoot[root], n.ID)
	}
	out := make([][]string, 0, len(byRoot))
	for _, members := range byRoot {
		sort.Strings(members)
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// clusters groups identities whose endpoint sets overlap. Cohesion is the
// mean pairwise Jaccard similarity inside the cluster, separation the mean
// similarity to identities outside it.
func (a *Analyzer) clusters(events []event.SecurityEvent) []behavior.Cluster {
	endpoints := make(map[string]map[string]struct{})
	for i := range events {
		ev := &events[i]
		if ev.UserID == "" || ev.Endpoint == "" {
			continue
		}
		set, ok := endpoints[ev.UserID]
		if !ok {
			set = make(map[string]struct{})
			endpoints[ev.UserID] = set
		}
		set[ev.Endpoint] = struct{}{}
	}

	users := make([]string, 0, len(endpoints))
	for u := range endpoints {
		users = append(users, u)
	}
	sort.Strings(users)

	assigned := make(map[string]int)
	var groups [][]string
	for _, u := range users {
		if _, ok := assigned[u]; ok {
			continue
		}
		group := []string{u}
		assigned[u] = len(groups)
		for _, v := range users {
			if _, ok := assigned[v]; ok {
				continue
			}
			if jaccard(endpoints[u], endpoints[v]) >= a.minClusterOverlap {
				group = append(group, v)
				assigned[v] = len(groups)
			}
		}
		groups = append(groups, group)
	}

	clusters := make([]behavior.Cluster, 0, len(groups))
	for i, members := range groups {
		clusters = append(clusters, behavior.Cluster{
			ID:         i,
			Members:    members,
			Cohesion:   meanSimilarity(members, members, endpoints, true),
			Separation: meanSimilarity(members, outside(users, assigned, i), endpoints, false),
		})
	}
	return clusters
}

func outside(users []string, assigned map[string]int, cluster int) []string {
	var out []string
	for _, u := range users {
		if assigned[u] != cluster {
			out = append(out, u)
		}
	}
	return out
}

func meanSimilarity(left, right []string, endpoints map[string]map[string]struct{}, skipSelf bool) float64 {
	total, pairs := 0.0, 0
	for _, u := range left {
		for _, v := range right {
			if skipSelf && u == v {
				continue
			}
			total += jaccard(endpoints[u], endpoints[v])
			pairs++
		}
	}
	if pairs == 0 {
		if skipSelf {
			// Singleton clusters are perfectly cohesive.
			return 1.0
		}
		return 0.0
	}
	return total / float64(pairs)
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// anomalyScore measures how lopsided the degree distribution is: a graph
// where a few nodes dominate connectivity scores high.
func anomalyScore(centrality map[string]float64) float64 {
	if len(centrality) < 2 {
		return 0
	}
	values := make([]float64, 0, len(centrality))
	for _, c := range centrality {
		values = append(values, c)
	}
	mean, sd := stat.MeanStdDev(values, nil)
	if mean == 0 {
		return 0
	}
	cv := sd / mean
	return math.Min(1.0, cv/2.0)
}
