package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/hypergraph"
)

// pathOverlay builds the 4-vertex unit path partitioned [0,0,1,1].
func pathOverlay(t *testing.T, maxPartWeight int64) *PartitionedHypergraph {
	t.Helper()
	hg, err := hypergraph.Build(4, [][]hypergraph.NodeID{{0, 1}, {1, 2}, {2, 3}}, nil, nil,
		hypergraph.BuildOptions{StableConstruction: true})
	require.NoError(t, err)

	p := NewPartitionedHypergraph(hg, 2, maxPartWeight)
	p.SetOnlyPart(0, 0)
	p.SetOnlyPart(1, 0)
	p.SetOnlyPart(2, 1)
	p.SetOnlyPart(3, 1)
	p.InitializePartition(2)
	return p
}

func TestInitializePartitionComputesPinCountsAndWeights(t *testing.T) {
	p := pathOverlay(t, 2)

	assert.Equal(t, int32(2), p.PinCountInPart(0, 0))
	assert.Equal(t, int32(0), p.PinCountInPart(0, 1))
	assert.Equal(t, int32(1), p.PinCountInPart(1, 0))
	assert.Equal(t, int32(1), p.PinCountInPart(1, 1))
	assert.Equal(t, int64(2), p.PartWeight(0))
	assert.Equal(t, int64(2), p.PartWeight(1))
	assert.Equal(t, int32(1), p.Connectivity(0))
	assert.Equal(t, int32(2), p.Connectivity(1))
	assert.Equal(t, []PartID{0, 1}, p.ConnectivitySet(1))
	require.NoError(t, p.Verify())
}

func TestConnectivityOracle(t *testing.T) {
	hg, err := hypergraph.Build(6, [][]hypergraph.NodeID{{0, 2, 4}, {1, 3, 5}, {0, 1, 2, 3, 4, 5}}, nil, nil,
		hypergraph.BuildOptions{StableConstruction: true})
	require.NoError(t, err)

	p := NewPartitionedHypergraph(hg, 3, 10)
	for v := hypergraph.NodeID(0); v < 6; v++ {
		p.SetOnlyPart(v, PartID(v%3))
	}
	p.InitializePartition(1)

	for e := hypergraph.EdgeID(0); e < hg.NumEdges(); e++ {
		count := int32(0)
		for b := PartID(0); b < 3; b++ {
			if p.PinCountInPart(e, b) > 0 {
				count++
			}
		}
		assert.Equal(t, count, p.Connectivity(e), "edge %d", e)
	}
	require.NoError(t, p.Verify())
}

func TestChangePartMaintainsOverlay(t *testing.T) {
	p := pathOverlay(t, 3)

	require.True(t, p.ChangePart(2, 1, 0, nil))
	assert.Equal(t, PartID(0), p.PartOf(2))
	assert.Equal(t, int64(3), p.PartWeight(0))
	assert.Equal(t, int64(1), p.PartWeight(1))
	assert.Equal(t, int32(1), p.Connectivity(1)) // (1,2) now internal
	assert.Equal(t, int32(2), p.Connectivity(2)) // (2,3) now cut
	require.NoError(t, p.Verify())
}

func TestChangePartRespectsMaxPartWeight(t *testing.T) {
	p := pathOverlay(t, 2)

	assert.False(t, p.ChangePart(2, 1, 0, nil), "move beyond max part weight must be refused")
	assert.Equal(t, PartID(1), p.PartOf(2))
	require.NoError(t, p.Verify())
}

func TestChangePartInvokesDeltaHook(t *testing.T) {
	p := pathOverlay(t, 3)

	type call struct {
		edge     hypergraph.EdgeID
		from, to int32
	}
	var calls []call
	p.ChangePart(2, 1, 0, func(e hypergraph.EdgeID, _ int64, _ uint32, cf, ct int32) {
		calls = append(calls, call{edge: e, from: cf, to: ct})
	})

	// Vertex 2 is a pin of edges 1 and 2.
	require.Len(t, calls, 2)
	assert.Equal(t, call{edge: 1, from: 0, to: 2}, calls[0])
	assert.Equal(t, call{edge: 2, from: 1, to: 1}, calls[1])
}

func TestKM1AndCutGains(t *testing.T) {
	p := pathOverlay(t, 4)

	// Moving vertex 1 to block 1: edge (0,1) becomes cut, edge (1,2)
	// becomes internal.
	assert.Equal(t, int64(0), p.KM1Gain(1, 0, 1))
	assert.Equal(t, int64(0), p.CutGain(1, 0, 1))

	// Vertex 2 to block 0: (1,2) internal, (2,3) cut; net zero again.
	assert.Equal(t, int64(0), p.KM1Gain(2, 1, 0))

	// After moving 2 over, moving 3 over as well heals the last cut edge.
	require.True(t, p.ChangePart(2, 1, 0, nil))
	assert.Equal(t, int64(1), p.KM1Gain(3, 1, 0))
	assert.Equal(t, int64(1), p.CutGain(3, 1, 0))
}

func TestMetrics(t *testing.T) {
	p := pathOverlay(t, 2)

	assert.Equal(t, int64(1), Cut(p))
	assert.Equal(t, int64(1), KM1(p))
	assert.Equal(t, int64(2), SOED(p))
	assert.Equal(t, int64(1), Quality(p, ObjectiveCut))
	assert.InDelta(t, 0.0, Imbalance(p), 1e-9)
}

func TestMaxPartWeightFor(t *testing.T) {
	assert.Equal(t, int64(2), MaxPartWeightFor(4, 2, 0.001))
	assert.Equal(t, int64(4), MaxPartWeightFor(6, 2, 0.34))
	assert.Equal(t, int64(3), MaxPartWeightFor(6, 2, 0.001))
}

func TestIsBorderNode(t *testing.T) {
	p := pathOverlay(t, 2)

	assert.False(t, p.IsBorderNode(0))
	assert.True(t, p.IsBorderNode(1))
	assert.True(t, p.IsBorderNode(2))
	assert.False(t, p.IsBorderNode(3))
}

func TestParseObjective(t *testing.T) {
	obj, err := ParseObjective("cut")
	require.NoError(t, err)
	assert.Equal(t, ObjectiveCut, obj)

	obj, err = ParseObjective("km1")
	require.NoError(t, err)
	assert.Equal(t, ObjectiveKM1, obj)

	_, err = ParseObjective("soed")
	assert.Error(t, err)
}
