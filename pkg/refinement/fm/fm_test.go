package fm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/config"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/partition"
)

func TestBestGainPrefix(t *testing.T) {
	// The canonical rollback sequence: best prefix is the first four moves
	// with cumulative gain 4.
	prefix, gain := bestGainPrefix([]int64{3, 1, -2, 2, -5})
	assert.Equal(t, 4, prefix)
	assert.Equal(t, int64(4), gain)

	prefix, gain = bestGainPrefix([]int64{-1, -2})
	assert.Equal(t, 0, prefix)
	assert.Equal(t, int64(0), gain)

	prefix, gain = bestGainPrefix(nil)
	assert.Equal(t, 0, prefix)
	assert.Equal(t, int64(0), gain)
}

func TestMoveTrackerAssignsMonotonicIDs(t *testing.T) {
	tracker := NewMoveTracker(8)
	for i := 0; i < 5; i++ {
		id, ok := tracker.Append(Move{Node: hypergraph.NodeID(i)})
		require.True(t, ok)
		assert.Equal(t, uint32(i), id)
	}
	assert.Equal(t, uint32(5), tracker.NumPerformed())

	tracker.Reset()
	assert.Equal(t, uint32(0), tracker.NumPerformed())
}

func TestMoveTrackerRejectsOverflow(t *testing.T) {
	tracker := NewMoveTracker(1)
	_, ok := tracker.Append(Move{})
	require.True(t, ok)
	_, ok = tracker.Append(Move{})
	assert.False(t, ok)
}

func TestVertexPQOrdering(t *testing.T) {
	handles := []int32{-1, -1, -1, -1}
	pq := NewVertexPQ(handles)

	pq.Push(0, 5)
	pq.Push(1, 9)
	pq.Push(2, 1)
	pq.Push(3, 7)

	pq.AdjustKey(2, 20)

	v, gain := pq.Pop()
	assert.Equal(t, hypergraph.NodeID(2), v)
	assert.Equal(t, int64(20), gain)

	v, _ = pq.Pop()
	assert.Equal(t, hypergraph.NodeID(1), v)
	v, _ = pq.Pop()
	assert.Equal(t, hypergraph.NodeID(3), v)
	v, _ = pq.Pop()
	assert.Equal(t, hypergraph.NodeID(0), v)
	assert.False(t, pq.Contains(0))
	assert.Equal(t, 0, pq.Len())
}

// starOverlay builds the K(1,5) star with the center and one leaf in block 0
// and the remaining leaves in block 1: cut 4, improvable to 2.
func starOverlay(t *testing.T) *partition.PartitionedHypergraph {
	t.Helper()
	pins := [][]hypergraph.NodeID{{0, 1}, {0, 2}, {0, 3}, {0, 4}, {0, 5}}
	hg, err := hypergraph.Build(6, pins, nil, nil, hypergraph.BuildOptions{StableConstruction: true})
	require.NoError(t, err)

	p := partition.NewPartitionedHypergraph(hg, 2, partition.MaxPartWeightFor(6, 2, 0.34))
	p.SetOnlyPart(0, 0)
	p.SetOnlyPart(1, 0)
	for v := hypergraph.NodeID(2); v < 6; v++ {
		p.SetOnlyPart(v, 1)
	}
	p.InitializePartition(1)
	return p
}

func newTestConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Set("partition.deterministic", true)
	cfg.Set("shared_memory.num_threads", 1)
	cfg.Set("logging.level", "error")
	return cfg
}

func TestMultiTryFMImprovesStarCut(t *testing.T) {
	p := starOverlay(t)
	require.Equal(t, int64(4), partition.Cut(p))

	cfg := newTestConfig()
	refiner := NewMultiTryRefiner(cfg, partition.ObjectiveCut, cfg.CreateLogger(), false)
	refiner.Initialize(p)
	improved := refiner.Refine(p, time.Time{})

	assert.True(t, improved)
	assert.Equal(t, int64(2), partition.Cut(p))
	assert.LessOrEqual(t, p.PartWeight(0), p.MaxPartWeight())
	assert.LessOrEqual(t, p.PartWeight(1), p.MaxPartWeight())
	require.NoError(t, p.Verify())
}

func TestBoundaryFMImprovesStarCut(t *testing.T) {
	p := starOverlay(t)

	cfg := newTestConfig()
	refiner := NewMultiTryRefiner(cfg, partition.ObjectiveCut, cfg.CreateLogger(), true)
	refiner.Initialize(p)
	refiner.Refine(p, time.Time{})

	assert.Equal(t, int64(2), partition.Cut(p))
	require.NoError(t, p.Verify())
}

func TestRollbackRevertsToBestPrefixAndIsIdempotent(t *testing.T) {
	p := starOverlay(t)
	shared := NewSharedData(6, 0)
	engine := NewLocalizedSearch(p, shared, partition.ObjectiveCut, 100)
	data := NewSearchData(1, shared, GainRecompute)

	// Drive one full search by hand.
	seedIdx := 0
	seeds := []hypergraph.NodeID{1, 2, 3, 4, 5, 0}
	nextSeed := func() (hypergraph.NodeID, bool) {
		if seedIdx >= len(seeds) {
			return hypergraph.InvalidNode, false
		}
		v := seeds[seedIdx]
		seedIdx++
		return v, true
	}
	require.True(t, engine.Setup(data, len(seeds), nextSeed))
	_, finished := engine.Resume(data, 1000)
	require.True(t, finished)

	engine.Rollback(data)
	cutAfterOnce := partition.Cut(p)
	weightsOnce := []int64{p.PartWeight(0), p.PartWeight(1)}

	engine.Rollback(data)
	assert.Equal(t, cutAfterOnce, partition.Cut(p), "second rollback must be a no-op")
	assert.Equal(t, weightsOnce, []int64{p.PartWeight(0), p.PartWeight(1)})
	require.NoError(t, p.Verify())
}

func TestAcceptedMovePrefixHasNonNegativeTotalGain(t *testing.T) {
	p := starOverlay(t)
	before := partition.Cut(p)

	cfg := newTestConfig()
	refiner := NewMultiTryRefiner(cfg, partition.ObjectiveCut, cfg.CreateLogger(), false)
	refiner.Initialize(p)
	refiner.Refine(p, time.Time{})

	assert.LessOrEqual(t, partition.Cut(p), before, "FM must never worsen the objective")
}
