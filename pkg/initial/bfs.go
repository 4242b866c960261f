// Package initial computes the first k-way partition on the coarsest level
// of the hierarchy.
package initial

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/partition"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/validation"
)

// Partitioner computes a valid initial k-partition respecting the maximum
// part weight. The strategy is a policy; the multilevel engine only depends
// on this contract.
type Partitioner interface {
	Partition(p *partition.PartitionedHypergraph) error
}

// BFSPartitioner grows blocks around k spread-out seed vertices with
// round-robin breadth-first search and assigns leftovers greedily to the
// lightest feasible block.
type BFSPartitioner struct {
	logger zerolog.Logger
}

// NewBFSPartitioner creates the default initial partitioner.
func NewBFSPartitioner(logger zerolog.Logger) *BFSPartitioner {
	return &BFSPartitioner{logger: logger}
}

// Partition assigns every vertex of the coarsest hypergraph to a block and
// initializes the overlay. Returns ErrBalanceInfeasible if no assignment
// within the maximum part weight exists for this strategy.
func (bp *BFSPartitioner) Partition(p *partition.PartitionedHypergraph) error {
	hg := p.Hypergraph()
	n := int(hg.NumNodes())
	k := p.K()
	if int(k) > n {
		return fmt.Errorf("%w: %d blocks requested for %d coarse vertices", validation.ErrBalanceInfeasible, k, n)
	}

	seeds := bp.selectSeeds(hg, k)
	assigned := make([]bool, n)
	weights := make([]int64, k)
	queues := make([][]hypergraph.NodeID, k)
	for b, seed := range seeds {
		assigned[seed] = true
		weights[b] = hg.NodeWeight(seed)
		if weights[b] > p.MaxPartWeight() {
			return fmt.Errorf("%w: vertex %d heavier than maximum part weight", validation.ErrBalanceInfeasible, seed)
		}
		p.SetOnlyPart(seed, partition.PartID(b))
		queues[b] = bp.pushNeighbors(hg, seed, queues[b])
	}

	// Round-robin growth: each block takes one vertex per turn until its
	// frontier is empty or its weight cap is reached.
	remaining := n - int(k)
	for remaining > 0 {
		progress := false
		for b := partition.PartID(0); b < k; b++ {
			v, ok := bp.popUnassigned(queues, assigned, b)
			if !ok {
				continue
			}
			if weights[b]+hg.NodeWeight(v) > p.MaxPartWeight() {
				// Frontier vertex does not fit; leave it for a lighter block.
				continue
			}
			assigned[v] = true
			weights[b] += hg.NodeWeight(v)
			p.SetOnlyPart(v, b)
			queues[b] = bp.pushNeighbors(hg, v, queues[b])
			remaining--
			progress = true
		}
		if !progress {
			break
		}
	}

	// Leftovers: vertices in exhausted components or beyond full frontiers
	// go to the lightest block that fits them.
	for v := 0; v < n; v++ {
		if assigned[v] || !hg.NodeIsEnabled(hypergraph.NodeID(v)) {
			continue
		}
		best := partition.InvalidPart
		for b := partition.PartID(0); b < k; b++ {
			if weights[b]+hg.NodeWeight(hypergraph.NodeID(v)) > p.MaxPartWeight() {
				continue
			}
			if best == partition.InvalidPart || weights[b] < weights[best] {
				best = b
			}
		}
		if best == partition.InvalidPart {
			return fmt.Errorf("%w: no block can absorb vertex %d", validation.ErrBalanceInfeasible, v)
		}
		assigned[v] = true
		weights[best] += hg.NodeWeight(hypergraph.NodeID(v))
		p.SetOnlyPart(hypergraph.NodeID(v), best)
	}

	return nil
}

// selectSeeds picks k spread-out seeds: the first enabled vertex, then
// repeatedly the vertex farthest from all chosen seeds, preferring vertices
// in components no seed has reached yet.
func (bp *BFSPartitioner) selectSeeds(hg *hypergraph.Hypergraph, k partition.PartID) []hypergraph.NodeID {
	n := int(hg.NumNodes())
	seeds := make([]hypergraph.NodeID, 0, k)
	for v := 0; v < n; v++ {
		if hg.NodeIsEnabled(hypergraph.NodeID(v)) {
			seeds = append(seeds, hypergraph.NodeID(v))
			break
		}
	}

	dist := make([]int, n)
	for len(seeds) < int(k) {
		for i := range dist {
			dist[i] = -1
		}
		queue := make([]hypergraph.NodeID, 0, n)
		for _, s := range seeds {
			dist[s] = 0
			queue = append(queue, s)
		}
		for head := 0; head < len(queue); head++ {
			u := queue[head]
			for _, e := range hg.IncidentEdges(u) {
				for _, w := range hg.Pins(e) {
					if dist[w] < 0 {
						dist[w] = dist[u] + 1
						queue = append(queue, w)
					}
				}
			}
		}
		next := hypergraph.InvalidNode
		bestDist := -1
		for v := 0; v < n; v++ {
			if !hg.NodeIsEnabled(hypergraph.NodeID(v)) || dist[v] == 0 {
				continue
			}
			taken := false
			for _, s := range seeds {
				if hypergraph.NodeID(v) == s {
					taken = true
					break
				}
			}
			if taken {
				continue
			}
			if dist[v] < 0 { // unreached component wins outright
				next = hypergraph.NodeID(v)
				break
			}
			if dist[v] > bestDist {
				bestDist = dist[v]
				next = hypergraph.NodeID(v)
			}
		}
		if next == hypergraph.InvalidNode {
			// Fewer reachable vertices than seeds requested; fall back to
			// the first unchosen vertex.
			for v := 0; v < n; v++ {
				chosen := false
				for _, s := range seeds {
					if hypergraph.NodeID(v) == s {
						chosen = true
						break
					}
				}
				if !chosen {
					next = hypergraph.NodeID(v)
					break
				}
			}
		}
		seeds = append(seeds, next)
	}
	return seeds
}

func (bp *BFSPartitioner) pushNeighbors(hg *hypergraph.Hypergraph, v hypergraph.NodeID, queue []hypergraph.NodeID) []hypergraph.NodeID {
	for _, e := range hg.IncidentEdges(v) {
		for _, u := range hg.Pins(e) {
			if u != v {
				queue = append(queue, u)
			}
		}
	}
	return queue
}

func (bp *BFSPartitioner) popUnassigned(queues [][]hypergraph.NodeID, assigned []bool, b partition.PartID) (hypergraph.NodeID, bool) {
	q := queues[b]
	for len(q) > 0 {
		v := q[0]
		q = q[1:]
		if !assigned[v] {
			queues[b] = q
			return v, true
		}
	}
	queues[b] = q
	return hypergraph.InvalidNode, false
}
