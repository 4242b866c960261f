package hypergraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractIdentityIsIsomorphic(t *testing.T) {
	hg, err := Build(5, [][]NodeID{{0, 1, 2}, {2, 3}, {0, 3, 4}}, []int64{2, 1, 3}, nil, BuildOptions{StableConstruction: true})
	require.NoError(t, err)

	clusters := []NodeID{0, 1, 2, 3, 4}
	coarse := hg.Contract(clusters, 2)

	assert.Equal(t, hg.NumNodes(), coarse.NumNodes())
	assert.Equal(t, hg.NumEdges(), coarse.NumEdges())
	assert.Equal(t, hg.TotalWeight(), coarse.TotalWeight())
	assert.Equal(t, hg.MaxEdgeSize(), coarse.MaxEdgeSize())
	for v := NodeID(0); v < hg.NumNodes(); v++ {
		assert.Equal(t, NodeID(v), clusters[v])
	}

	// Pin multisets match after within-edge sort; edges keep their weights.
	fineEdges := collectEdges(hg)
	coarseEdges := collectEdges(coarse)
	assert.ElementsMatch(t, fineEdges, coarseEdges)
}

type edgeFingerprint struct {
	pins   string
	weight int64
}

func collectEdges(hg *Hypergraph) []edgeFingerprint {
	out := make([]edgeFingerprint, 0, hg.NumEdges())
	for e := EdgeID(0); e < hg.NumEdges(); e++ {
		pins := append([]NodeID(nil), hg.Pins(e)...)
		for i := 1; i < len(pins); i++ {
			for j := i; j > 0 && pins[j] < pins[j-1]; j-- {
				pins[j], pins[j-1] = pins[j-1], pins[j]
			}
		}
		key := ""
		for _, p := range pins {
			key += string(rune('a' + p))
		}
		out = append(out, edgeFingerprint{pins: key, weight: hg.EdgeWeight(e)})
	}
	return out
}

func TestContractPairsPreservesCrossClusterEdges(t *testing.T) {
	// 8-vertex path; pairing neighbors leaves the 4-vertex path with the
	// three cross-pair edges.
	pins := [][]NodeID{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 5}, {5, 6}, {6, 7}}
	hg, err := Build(8, pins, nil, nil, BuildOptions{StableConstruction: true})
	require.NoError(t, err)

	clusters := []NodeID{0, 0, 1, 1, 2, 2, 3, 3}
	coarse := hg.Contract(clusters, 2)

	assert.Equal(t, uint32(4), coarse.NumNodes())
	assert.Equal(t, uint32(3), coarse.NumEdges())
	assert.Equal(t, int64(8), coarse.TotalWeight())
	for v := NodeID(0); v < 4; v++ {
		assert.Equal(t, int64(2), coarse.NodeWeight(v))
	}
	assert.ElementsMatch(t, []edgeFingerprint{
		{pins: "ab", weight: 1},
		{pins: "bc", weight: 1},
		{pins: "cd", weight: 1},
	}, collectEdges(coarse))
}

func TestContractMergesIdenticalNets(t *testing.T) {
	// Three identical nets of weights 1, 2, 3 collapse into one of weight 6.
	pins := [][]NodeID{{0, 1, 2}, {0, 1, 2}, {0, 1, 2}}
	hg, err := Build(3, pins, []int64{1, 2, 3}, nil, BuildOptions{StableConstruction: true})
	require.NoError(t, err)

	clusters := []NodeID{0, 1, 2}
	coarse := hg.Contract(clusters, 2)

	require.Equal(t, uint32(1), coarse.NumEdges())
	assert.Equal(t, int64(6), coarse.EdgeWeight(0))
	assert.ElementsMatch(t, []NodeID{0, 1, 2}, coarse.Pins(0))
}

func TestContractRemovesSinglePinNets(t *testing.T) {
	pins := [][]NodeID{{0, 1}, {2, 3}}
	hg, err := Build(4, pins, nil, nil, BuildOptions{StableConstruction: true})
	require.NoError(t, err)

	// Merging 0 and 1 turns edge {0,1} into a single-pin net.
	clusters := []NodeID{0, 0, 1, 2}
	coarse := hg.Contract(clusters, 2)

	assert.Equal(t, uint32(3), coarse.NumNodes())
	require.Equal(t, uint32(1), coarse.NumEdges())
	assert.Equal(t, uint32(2), coarse.EdgeSize(0))
	assert.Equal(t, int64(4), coarse.TotalWeight())
}

func TestContractIsDeterministic(t *testing.T) {
	pins := [][]NodeID{{0, 1, 4}, {1, 2}, {2, 3, 4}, {0, 3}, {1, 3, 4}}
	build := func() *Hypergraph {
		hg, err := Build(5, pins, []int64{1, 2, 3, 4, 5}, nil, BuildOptions{StableConstruction: true})
		require.NoError(t, err)
		return hg
	}

	clustersA := []NodeID{0, 0, 1, 1, 2}
	clustersB := []NodeID{0, 0, 1, 1, 2}
	coarseA := build().Contract(clustersA, 4)
	coarseB := build().Contract(clustersB, 1)

	assert.Equal(t, clustersA, clustersB)
	assert.Equal(t, coarseA.NumNodes(), coarseB.NumNodes())
	assert.Equal(t, coarseA.NumEdges(), coarseB.NumEdges())
	for e := EdgeID(0); e < coarseA.NumEdges(); e++ {
		assert.Equal(t, coarseA.Pins(e), coarseB.Pins(e))
		assert.Equal(t, coarseA.EdgeWeight(e), coarseB.EdgeWeight(e))
	}
	for v := NodeID(0); v < coarseA.NumNodes(); v++ {
		assert.Equal(t, coarseA.IncidentEdges(v), coarseB.IncidentEdges(v))
	}
}

func TestContractPanicsOnBadClusterVector(t *testing.T) {
	hg, err := Build(2, [][]NodeID{{0, 1}}, nil, nil, BuildOptions{})
	require.NoError(t, err)

	assert.Panics(t, func() {
		clusters := []NodeID{0}
		hg.Contract(clusters, 1)
	})
}
