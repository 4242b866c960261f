package partitioner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/config"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/validation"
)

func newTestConfig(k int, epsilon float64) *config.Config {
	cfg := config.NewConfig()
	cfg.Set("partition.k", k)
	cfg.Set("partition.epsilon", epsilon)
	cfg.Set("partition.objective", "cut")
	cfg.Set("partition.deterministic", true)
	cfg.Set("shared_memory.num_threads", 2)
	cfg.Set("logging.level", "error")
	return cfg
}

func buildHypergraph(t *testing.T, n uint32, pins [][]hypergraph.NodeID) *hypergraph.Hypergraph {
	t.Helper()
	hg, err := hypergraph.Build(n, pins, nil, nil, hypergraph.BuildOptions{StableConstruction: true})
	require.NoError(t, err)
	return hg
}

func TestPartitionTinyPath(t *testing.T) {
	hg := buildHypergraph(t, 4, [][]hypergraph.NodeID{{0, 1}, {1, 2}, {2, 3}})

	result, err := NewPartitioner(newTestConfig(2, 0.001)).Partition(hg)
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.Cut)
	assert.Len(t, result.Partition, 4)
	counts := map[int32]int{}
	for _, b := range result.Partition {
		counts[b]++
	}
	assert.Equal(t, map[int32]int{0: 2, 1: 2}, counts)
}

func TestPartitionStar(t *testing.T) {
	// K(1,5): center plus any three leaves fit in one block; two edges
	// must stay cut.
	pins := [][]hypergraph.NodeID{{0, 1}, {0, 2}, {0, 3}, {0, 4}, {0, 5}}
	hg := buildHypergraph(t, 6, pins)

	result, err := NewPartitioner(newTestConfig(2, 0.34)).Partition(hg)
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.Cut)
	assert.LessOrEqual(t, result.Imbalance, 0.34+1e-9)
}

func TestPartitionDisjointTriangles(t *testing.T) {
	pins := [][]hypergraph.NodeID{{0, 1, 2}, {3, 4, 5}}
	hg := buildHypergraph(t, 6, pins)

	result, err := NewPartitioner(newTestConfig(2, 0.001)).Partition(hg)
	require.NoError(t, err)

	assert.Equal(t, int64(0), result.Cut)
	assert.Equal(t, result.Partition[0], result.Partition[1])
	assert.Equal(t, result.Partition[0], result.Partition[2])
	assert.Equal(t, result.Partition[3], result.Partition[4])
	assert.Equal(t, result.Partition[3], result.Partition[5])
	assert.NotEqual(t, result.Partition[0], result.Partition[3])
}

func TestPartitionWithAllRefinersOnLargerInstance(t *testing.T) {
	// Two 8-cliques (as pairwise edges) joined by a single bridge edge.
	var pins [][]hypergraph.NodeID
	for c := hypergraph.NodeID(0); c < 2; c++ {
		base := c * 8
		for i := hypergraph.NodeID(0); i < 8; i++ {
			for j := i + 1; j < 8; j++ {
				pins = append(pins, []hypergraph.NodeID{base + i, base + j})
			}
		}
	}
	pins = append(pins, []hypergraph.NodeID{7, 8})
	hg := buildHypergraph(t, 16, pins)

	cfg := newTestConfig(2, 0.05)
	cfg.Set("refinement.flow.algorithm", "match")
	cfg.Set("coarsening.contraction_limit_multiplier", 4)

	result, err := NewPartitioner(cfg).Partition(hg)
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.Cut, "only the bridge edge should be cut")
	assert.LessOrEqual(t, result.Imbalance, 0.05+1e-9)
}

func TestPartitionDeterministicRunsAreIdentical(t *testing.T) {
	pins := [][]hypergraph.NodeID{
		{0, 1, 2}, {2, 3}, {3, 4, 5}, {5, 6}, {6, 7, 8}, {8, 9}, {0, 9}, {1, 4, 7},
	}
	runOnce := func() []int32 {
		hg := buildHypergraph(t, 10, pins)
		result, err := NewPartitioner(newTestConfig(2, 0.1)).Partition(hg)
		require.NoError(t, err)
		return result.Partition
	}

	assert.Equal(t, runOnce(), runOnce())
}

func TestPartitionRejectsInvalidConfiguration(t *testing.T) {
	hg := buildHypergraph(t, 4, [][]hypergraph.NodeID{{0, 1}, {2, 3}})

	_, err := NewPartitioner(newTestConfig(1, 0.03)).Partition(hg)
	assert.ErrorIs(t, err, validation.ErrInvalidInput)

	_, err = NewPartitioner(newTestConfig(2, 0)).Partition(hg)
	assert.ErrorIs(t, err, validation.ErrInvalidInput)

	cfg := newTestConfig(2, 0.03)
	cfg.Set("partition.objective", "modularity")
	_, err = NewPartitioner(cfg).Partition(hg)
	assert.ErrorIs(t, err, validation.ErrInvalidInput)
}

func TestPartitionBalanceInfeasibleSurfaces(t *testing.T) {
	hg := buildHypergraph(t, 2, [][]hypergraph.NodeID{{0, 1}})

	_, err := NewPartitioner(newTestConfig(3, 0.03)).Partition(hg)
	assert.ErrorIs(t, err, validation.ErrBalanceInfeasible)
}
