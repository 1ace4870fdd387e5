package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/behavior"
	domainerrors "github.com/davidleathers/behavioral-threat-engine/internal/domain/errors"
	"github.com/davidleathers/behavioral-threat-engine/internal/domain/event"
)

func touch(userID, endpoint string) event.SecurityEvent {
	return event.SecurityEvent{UserID: userID, Endpoint: endpoint}
}

func TestAnalyzer_Analyze(t *testing.T) {
	ctx := context.Background()

	t.Run("empty batch is invalid input", func(t *testing.T) {
		_, err := NewAnalyzer(0).Analyze(ctx, nil)

		assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeInvalidInput))
	})

	t.Run("cancelled context aborts", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := NewAnalyzer(0).Analyze(cancelled, []event.SecurityEvent{touch("a", "/x")})

		assert.Error(t, err)
	})

	t.Run("builds sorted bipartite nodes and weighted edges", func(t *testing.T) {
		events := []event.SecurityEvent{
			touch("bob", "/reports"),
			touch("alice", "/reports"),
			touch("alice", "/reports"),
			touch("alice", "/admin"),
		}

		g, err := NewAnalyzer(0).Analyze(ctx, events)

		require.NoError(t, err)
		require.Len(t, g.Nodes, 4)
		assert.Equal(t, "endpoint:/admin", g.Nodes[0].ID)
		assert.Equal(t, behavior.NodeEndpoint, g.Nodes[0].Kind)
		assert.Equal(t, "endpoint:/reports", g.Nodes[1].ID)
		assert.Equal(t, "user:alice", g.Nodes[2].ID)
		assert.Equal(t, behavior.NodeUser, g.Nodes[2].Kind)
		assert.Equal(t, "user:bob", g.Nodes[3].ID)

		require.Len(t, g.Edges, 3)
		assert.Equal(t, behavior.GraphEdge{From: "user:alice", To: "endpoint:/admin", Weight: 1}, g.Edges[0])
		assert.Equal(t, behavior.GraphEdge{From: "user:alice", To: "endpoint:/reports", Weight: 2}, g.Edges[1])
		assert.Equal(t, behavior.GraphEdge{From: "user:bob", To: "endpoint:/reports", Weight: 1}, g.Edges[2])
		assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", g.ID.String())
	})

	t.Run("skips events missing identity or endpoint", func(t *testing.T) {
		events := []event.SecurityEvent{
			touch("alice", "/reports"),
			touch("", "/reports"),
			touch("bob", ""),
		}

		g, err := NewAnalyzer(0).Analyze(ctx, events)

		require.NoError(t, err)
		assert.Len(t, g.Nodes, 2)
		assert.Len(t, g.Edges, 1)
	})

	t.Run("degree centrality normalizes by node count minus one", func(t *testing.T) {
		// Star around alice: she touches three endpoints nobody else does.
		events := []event.SecurityEvent{
			touch("alice", "/a"),
			touch("alice", "/b"),
			touch("alice", "/c"),
		}

		g, err := NewAnalyzer(0).Analyze(ctx, events)

		require.NoError(t, err)
		assert.InDelta(t, 1.0, g.Properties.Centrality["user:alice"], 1e-9)
		assert.InDelta(t, 1.0/3.0, g.Properties.Centrality["endpoint:/a"], 1e-9)
	})

	t.Run("communities are connected components", func(t *testing.T) {
		events := []event.SecurityEvent{
			touch("alice", "/shared"),
			touch("bob", "/shared"),
			touch("carol", "/lonely"),
		}

		g, err := NewAnalyzer(0).Analyze(ctx, events)

		require.NoError(t, err)
		require.Len(t, g.Properties.Communities, 2)
		assert.Equal(t, []string{"endpoint:/lonely", "user:carol"}, g.Properties.Communities[0])
		assert.Equal(t, []string{"endpoint:/shared", "user:alice", "user:bob"}, g.Properties.Communities[1])
	})

	t.Run("clusters group identities by endpoint overlap", func(t *testing.T) {
		events := []event.SecurityEvent{
			touch("alice", "/a"), touch("alice", "/b"),
			touch("bob", "/a"), touch("bob", "/b"),
			touch("carol", "/z"),
		}

		g, err := NewAnalyzer(0.3).Analyze(ctx, events)

		require.NoError(t, err)
		require.Len(t, g.Properties.Clusters, 2)

		pair := g.Properties.Clusters[0]
		assert.Equal(t, []string{"alice", "bob"}, pair.Members)
		assert.InDelta(t, 1.0, pair.Cohesion, 1e-9, "identical endpoint sets")
		assert.InDelta(t, 0.0, pair.Separation, 1e-9, "no overlap with carol")

		single := g.Properties.Clusters[1]
		assert.Equal(t, []string{"carol"}, single.Members)
		assert.InDelta(t, 1.0, single.Cohesion, 1e-9, "singletons are perfectly cohesive")
	})

	t.Run("overlap threshold splits near-disjoint identities", func(t *testing.T) {
		// alice and bob share one of three endpoints, Jaccard 1/3.
		events := []event.SecurityEvent{
			touch("alice", "/a"), touch("alice", "/shared"),
			touch("bob", "/b"), touch("bob", "/shared"),
		}

		loose, err := NewAnalyzer(0.3).Analyze(ctx, events)
		require.NoError(t, err)
		assert.Len(t, loose.Properties.Clusters, 1)

		strict, err := NewAnalyzer(0.5).Analyze(ctx, events)
		require.NoError(t, err)
		assert.Len(t, strict.Properties.Clusters, 2)
	})

	t.Run("uniform graph scores zero anomaly", func(t *testing.T) {
		g, err := NewAnalyzer(0).Analyze(ctx, []event.SecurityEvent{touch("alice", "/a")})

		require.NoError(t, err)
		assert.Zero(t, g.Properties.AnomalyScore)
	})

	t.Run("lopsided graph scores higher anomaly than a balanced one", func(t *testing.T) {
		balanced := []event.SecurityEvent{
			touch("alice", "/a"),
			touch("bob", "/b"),
		}
		lopsided := []event.SecurityEvent{
			touch("alice", "/a"), touch("alice", "/b"), touch("alice", "/c"),
			touch("alice", "/d"), touch("alice", "/e"),
			touch("bob", "/a"),
		}

		gb, err := NewAnalyzer(0).Analyze(ctx, balanced)
		require.NoError(t, err)
		gl, err := NewAnalyzer(0).Analyze(ctx, lopsided)
		require.NoError(t, err)

		assert.Greater(t, gl.Properties.AnomalyScore, gb.Properties.AnomalyScore)
		assert.LessOrEqual(t, gl.Properties.AnomalyScore, 1.0)
	})

	t.Run("repeated analysis is deterministic apart from identity", func(t *testing.T) {
		events := []event.SecurityEvent{
			touch("bob", "/b"), touch("alice", "/a"),
			touch("alice", "/b"), touch("carol", "/a"),
		}
		a := NewAnalyzer(0)

		g1, err := a.Analyze(ctx, events)
		require.NoError(t, err)
		g2, err := a.Analyze(ctx, events)
		require.NoError(t, err)

		assert.Equal(t, g1.Nodes, g2.Nodes)
		assert.Equal(t, g1.Edges, g2.Edges)
		assert.Equal(t, g1.Properties.Communities, g2.Properties.Communities)
		assert.Equal(t, g1.Properties.Clusters, g2.Properties.Clusters)
		assert.NotEqual(t, g1.ID, g2.ID)
	})
}
