// Package flow implements the quotient-graph block scheduler: concurrent
// block-pair refinements driven by max-flow min-cut on the cut boundary,
// with read/write-arbitrated block weights and CAS-held vertex ownership.
package flow

import (
	"sort"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/graph/simple"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/parallel"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/partition"
)

// Pair is an ordered block pair with B0 < B1.
type Pair struct {
	B0, B1 partition.PartID
}

// QuotientGraph is the graph on blocks with an edge between any two blocks
// sharing a cut hyperedge, plus per-pair lists of (potentially stale) cut
// hyperedges. The block graph itself is kept in a gonum weighted undirected
// graph; the cut-edge lists are compacted lazily when a pair is scheduled.
type QuotientGraph struct {
	k        partition.PartID
	blocks   *simple.WeightedUndirectedGraph
	cutEdges [][][]hypergraph.EdgeID
	locks    [][]parallel.SpinLock
}

// BuildQuotientGraph scans all edges of the overlay and records every block
// pair present in the connectivity set of a cut edge.
func BuildQuotientGraph(p *partition.PartitionedHypergraph, workers int) *QuotientGraph {
	k := p.K()
	qg := &QuotientGraph{
		k:        k,
		blocks:   simple.NewWeightedUndirectedGraph(0, 0),
		cutEdges: make([][][]hypergraph.EdgeID, k),
		locks:    make([][]parallel.SpinLock, k),
	}
	for b := partition.PartID(0); b < k; b++ {
		qg.cutEdges[b] = make([][]hypergraph.EdgeID, k)
		qg.locks[b] = make([]parallel.SpinLock, k)
		qg.blocks.AddNode(simple.Node(b))
	}

	weights := make([][]int64, k)
	for b := range weights {
		weights[b] = make([]int64, k)
	}
	var mu sync.Mutex
	m := int(p.Hypergraph().NumEdges())
	parallel.For(m, workers, func(begin, end, _ int) {
		local := make([][]int64, k)
		for b := range local {
			local[b] = make([]int64, k)
		}
		for e := begin; e < end; e++ {
			he := hypergraph.EdgeID(e)
			if !p.Hypergraph().EdgeIsEnabled(he) || p.Connectivity(he) <= 1 {
				continue
			}
			set := p.ConnectivitySet(he)
			for i, b0 := range set {
				for _, b1 := range set[i+1:] {
					qg.appendCutEdge(b0, b1, he)
					local[b0][b1] += p.Hypergraph().EdgeWeight(he)
				}
			}
		}
		mu.Lock()
		for b0 := partition.PartID(0); b0 < k; b0++ {
			for b1 := b0 + 1; b1 < k; b1++ {
				weights[b0][b1] += local[b0][b1]
			}
		}
		mu.Unlock()
	})

	for b0 := partition.PartID(0); b0 < k; b0++ {
		for b1 := b0 + 1; b1 < k; b1++ {
			if weights[b0][b1] > 0 {
				qg.blocks.SetWeightedEdge(qg.blocks.NewWeightedEdge(
					simple.Node(b0), simple.Node(b1), float64(weights[b0][b1])))
			}
		}
	}
	return qg
}

func (qg *QuotientGraph) appendCutEdge(b0, b1 partition.PartID, e hypergraph.EdgeID) {
	if b0 > b1 {
		b0, b1 = b1, b0
	}
	qg.locks[b0][b1].Lock()
	qg.cutEdges[b0][b1] = append(qg.cutEdges[b0][b1], e)
	qg.locks[b0][b1].Unlock()
}

// Pairs returns the populated block pairs in deterministic order.
func (qg *QuotientGraph) Pairs() []Pair {
	var pairs []Pair
	it := qg.blocks.WeightedEdges()
	for it.Next() {
		e := it.WeightedEdge()
		b0, b1 := partition.PartID(e.From().ID()), partition.PartID(e.To().ID())
		if b0 > b1 {
			b0, b1 = b1, b0
		}
		pairs = append(pairs, Pair{B0: b0, B1: b1})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].B0 != pairs[j].B0 {
			return pairs[i].B0 < pairs[j].B0
		}
		return pairs[i].B1 < pairs[j].B1
	})
	return pairs
}

// CutEdgesBetween compacts and returns the cut hyperedges currently spanning
// the pair: stale entries (no pin left in one side) and duplicates are
// dropped in place.
func (qg *QuotientGraph) CutEdgesBetween(p *partition.PartitionedHypergraph, b0, b1 partition.PartID) []hypergraph.EdgeID {
	qg.locks[b0][b1].Lock()
	defer qg.locks[b0][b1].Unlock()

	list := qg.cutEdges[b0][b1]
	seen := make(map[hypergraph.EdgeID]struct{}, len(list))
	n := len(list)
	for i := 0; i < n; i++ {
		e := list[i]
		_, dup := seen[e]
		if dup || !p.HasPinsIn(e, b0) || !p.HasPinsIn(e, b1) {
			list[i] = list[n-1]
			n--
			i--
			continue
		}
		seen[e] = struct{}{}
	}
	qg.cutEdges[b0][b1] = list[:n]
	out := make([]hypergraph.EdgeID, n)
	copy(out, list[:n])
	return out
}

// MoveHook returns a change-part delta hook that registers hyperedges newly
// cut towards the target block, the way the scheduler observes new cuts.
func (qg *QuotientGraph) MoveHook(p *partition.PartitionedHypergraph, to partition.PartID) partition.DeltaFunc {
	return func(e hypergraph.EdgeID, _ int64, _ uint32, _, pinCountInToAfter int32) {
		if pinCountInToAfter != 1 {
			return
		}
		p.ForConnectivitySet(e, func(b partition.PartID) {
			if b != to {
				qg.appendCutEdge(to, b, e)
			}
		})
	}
}

// BlockWeights is the k-by-k arbitration matrix with row read/write locks.
// W[b][b] starts as the weight of block b; acquiring weight towards a
// partner moves it to the off-diagonal slot so concurrent pairs observe each
// other's reservations. Over-acquisition is deliberately optimistic; a
// rebalancing pass repairs any momentary imbalance after the round.
type BlockWeights struct {
	w     [][]int64
	locks []sync.RWMutex
}

// NewBlockWeights initializes the matrix from the overlay's block weights.
func NewBlockWeights(p *partition.PartitionedHypergraph) *BlockWeights {
	k := int(p.K())
	bw := &BlockWeights{
		w:     make([][]int64, k),
		locks: make([]sync.RWMutex, k),
	}
	for b := 0; b < k; b++ {
		bw.w[b] = make([]int64, k)
		bw.w[b][b] = p.PartWeight(partition.PartID(b))
	}
	return bw
}

// Acquire transfers amount from block b's own slot to its reservation
// towards other.
func (bw *BlockWeights) Acquire(b, other partition.PartID, amount int64) {
	bw.locks[b].Lock()
	bw.w[b][other] += amount
	bw.w[b][b] -= amount
	bw.locks[b].Unlock()
}

// Release reverses an Acquire with the weight the pair settled on.
func (bw *BlockWeights) Release(b, other partition.PartID, amount int64) {
	bw.locks[b].Lock()
	bw.w[b][other] -= amount
	bw.w[b][b] += amount
	bw.locks[b].Unlock()
}

// NotAcquired returns the weight of block b not reserved towards other:
// the pair's view of how much of b is untouchable.
func (bw *BlockWeights) NotAcquired(b, other partition.PartID) int64 {
	bw.locks[b].RLock()
	defer bw.locks[b].RUnlock()
	var weight int64
	for i := range bw.w[b] {
		if partition.PartID(i) != other {
			weight += bw.w[b][i]
		}
	}
	return weight
}

// NodeLocks holds per-vertex task ownership: 0 is free, otherwise the id of
// the holding block-pair task. Acquisition is a single CAS; there is no
// blocking.
type NodeLocks struct {
	held []int32
}

// NewNodeLocks creates locks for n vertices.
func NewNodeLocks(n int) *NodeLocks {
	return &NodeLocks{held: make([]int32, n)}
}

// TryAcquire attempts to take v for the given task id.
func (nl *NodeLocks) TryAcquire(v hypergraph.NodeID, task int32) bool {
	return atomic.CompareAndSwapInt32(&nl.held[v], 0, task)
}

// Release frees v.
func (nl *NodeLocks) Release(v hypergraph.NodeID) {
	atomic.StoreInt32(&nl.held[v], 0)
}
