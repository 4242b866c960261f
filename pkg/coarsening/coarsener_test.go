package coarsening

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/config"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/hypergraph"
)

func newTestConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Set("partition.k", 2)
	cfg.Set("partition.deterministic", true)
	cfg.Set("shared_memory.num_threads", 2)
	cfg.Set("coarsening.contraction_limit_multiplier", 2)
	cfg.Set("logging.level", "error")
	return cfg
}

// chainHypergraph builds a long unit path so coarsening has room to shrink.
func chainHypergraph(t *testing.T, n uint32) *hypergraph.Hypergraph {
	t.Helper()
	pins := make([][]hypergraph.NodeID, 0, n-1)
	for v := hypergraph.NodeID(0); v+1 < n; v++ {
		pins = append(pins, []hypergraph.NodeID{v, v + 1})
	}
	hg, err := hypergraph.Build(n, pins, nil, nil, hypergraph.BuildOptions{StableConstruction: true})
	require.NoError(t, err)
	return hg
}

func TestCoarsenShrinksToContractionLimit(t *testing.T) {
	cfg := newTestConfig()
	hg := chainHypergraph(t, 64)

	coarsener := NewCoarsener(cfg, cfg.CreateLogger())
	hierarchy := coarsener.Coarsen(hg)

	require.NotEmpty(t, hierarchy.Levels)
	assert.LessOrEqual(t, hierarchy.Coarsest.NumNodes(), uint32(2*cfg.ContractionLimitMultiplier()*2))
	assert.Equal(t, hg.TotalWeight(), hierarchy.Coarsest.TotalWeight())
	assert.Same(t, hg, hierarchy.Levels[0].Fine, "hierarchy starts at the input hypergraph")
}

func TestCoarsenRespectsMaxClusterWeight(t *testing.T) {
	cfg := newTestConfig()
	hg := chainHypergraph(t, 32)

	coarsener := NewCoarsener(cfg, cfg.CreateLogger())
	hierarchy := coarsener.Coarsen(hg)

	maxClusterWeight := int64(cfg.MaxAllowedWeightMultiplier() * float64(hg.TotalWeight()) / float64(cfg.K()))
	for v := hypergraph.NodeID(0); v < hierarchy.Coarsest.NumNodes(); v++ {
		assert.LessOrEqual(t, hierarchy.Coarsest.NodeWeight(v), maxClusterWeight)
	}
}

func TestCoarsenClusterMapsProjectBackToFinest(t *testing.T) {
	cfg := newTestConfig()
	hg := chainHypergraph(t, 32)

	hierarchy := NewCoarsener(cfg, cfg.CreateLogger()).Coarsen(hg)

	// Walking the cluster maps from the finest level must land every fine
	// vertex on a valid coarsest vertex.
	for v := hypergraph.NodeID(0); v < hg.NumNodes(); v++ {
		cur := v
		for _, level := range hierarchy.Levels {
			cur = level.ClusterMap[cur]
			require.NotEqual(t, hypergraph.InvalidNode, cur)
		}
		assert.Less(t, cur, hierarchy.Coarsest.NumNodes())
	}
}

func TestCoarsenDeterministic(t *testing.T) {
	cfg := newTestConfig()
	a := NewCoarsener(cfg, cfg.CreateLogger()).Coarsen(chainHypergraph(t, 48))
	b := NewCoarsener(cfg, cfg.CreateLogger()).Coarsen(chainHypergraph(t, 48))

	require.Equal(t, len(a.Levels), len(b.Levels))
	assert.Equal(t, a.Coarsest.NumNodes(), b.Coarsest.NumNodes())
	assert.Equal(t, a.Coarsest.NumEdges(), b.Coarsest.NumEdges())
	for i := range a.Levels {
		assert.Equal(t, a.Levels[i].ClusterMap, b.Levels[i].ClusterMap)
	}
}
