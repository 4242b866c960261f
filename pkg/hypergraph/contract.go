package hypergraph

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/parallel"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/validation"
)

const edgeHashSeed uint64 = 420

// contractedEdgeInfo is the fingerprint tuple used to detect identical nets.
// Sorted by (hash, size, edge) so equal pin sets form contiguous runs.
type contractedEdgeInfo struct {
	edge  EdgeID
	hash  uint64
	size  uint32
	valid bool
}

// Contract collapses the given cluster assignment into a coarser hypergraph.
// clusters maps every fine vertex to an arbitrary non-negative cluster id;
// disabled vertices contribute nothing. On return clusters is rewritten so
// each fine vertex carries its coarse vertex id in [0, |V'|), or InvalidNode.
//
// Identical nets in the coarse hypergraph are merged (weights summed) and
// single-pin nets are dropped. Total vertex weight is preserved.
func (h *Hypergraph) Contract(clusters []NodeID, workers int) *Hypergraph {
	if uint32(len(clusters)) != h.numNodes {
		panic(fmt.Errorf("%w: cluster vector has %d entries for %d vertices",
			validation.ErrInvariantViolated, len(clusters), h.numNodes))
	}
	n := int(h.numNodes)
	m := int(h.numEdges)

	// Compactify cluster ids: size the id space by the largest id in use,
	// mark used ids, exclusive prefix sum, remap.
	numIDs := int(parallel.MaxReduce(n, workers, func(v int) uint32 {
		if h.nodes[v].enabled {
			return clusters[v] + 1
		}
		return 0
	}))
	present := make([]uint64, numIDs)
	parallel.ForEach(n, workers, func(v int) {
		if h.nodes[v].enabled {
			atomic.StoreUint64(&present[clusters[v]], 1)
		}
	})
	numCoarseNodes := parallel.ExclusivePrefixSum(present, workers)
	if numCoarseNodes == 0 {
		panic(fmt.Errorf("%w: contraction with empty cluster set", validation.ErrInvariantViolated))
	}
	parallel.ForEach(n, workers, func(v int) {
		if h.nodes[v].enabled {
			clusters[v] = NodeID(present[clusters[v]])
		} else {
			clusters[v] = InvalidNode
		}
	})

	// Per-edge coarse pin lists, deduplicated with a thread-local
	// set-then-reset bitmap. An empty pin list marks the net removed.
	coarsePins := make([][]NodeID, m)
	perm := make([]contractedEdgeInfo, m)
	maps := parallel.NewBitsetPool(int(numCoarseNodes), workers)
	parallel.For(m, workers, func(begin, end, worker int) {
		contained := maps.Local(worker)
		for e := begin; e < end; e++ {
			if !h.edges[e].enabled {
				perm[e] = contractedEdgeInfo{edge: EdgeID(e), hash: ^uint64(0)}
				continue
			}
			pins := coarsePins[e]
			for _, v := range h.Pins(EdgeID(e)) {
				cv := clusters[v]
				if cv != InvalidNode && !contained.Has(cv) {
					contained.Set(cv)
					pins = append(pins, cv)
				}
			}
			for _, cv := range pins {
				contained.Clear(cv)
			}
			if len(pins) > 1 {
				hash := edgeHashSeed
				for _, cv := range pins {
					hash += uint64(cv) * uint64(cv)
				}
				coarsePins[e] = pins
				perm[e] = contractedEdgeInfo{edge: EdgeID(e), hash: hash, size: uint32(len(pins)), valid: true}
			} else {
				perm[e] = contractedEdgeInfo{edge: EdgeID(e), hash: ^uint64(0)}
			}
		}
	})

	// Identical-net detection: sort fingerprints, then process each maximal
	// run of equal hashes. The first valid member of a run represents all
	// later candidates with matching size and contained pin set.
	sort.Slice(perm, func(a, b int) bool {
		if perm[a].hash != perm[b].hash {
			return perm[a].hash < perm[b].hash
		}
		if perm[a].size != perm[b].size {
			return perm[a].size < perm[b].size
		}
		return perm[a].edge < perm[b].edge
	})

	coarseWeights := make([]int64, m)
	parallel.For(m, workers, func(begin, end, worker int) {
		contained := maps.Local(worker)
		for pos := begin; pos < end; pos++ {
			if pos > 0 && perm[pos].hash == perm[pos-1].hash {
				continue
			}
			// Owner of the run starting at pos.
			hash := perm[pos].hash
			for i := pos; i < m && perm[i].hash == hash; i++ {
				rep := perm[i]
				if !rep.valid {
					continue
				}
				weight := h.edges[rep.edge].weight
				for _, cv := range coarsePins[rep.edge] {
					contained.Set(cv)
				}
				for j := i + 1; j < m && perm[j].hash == hash && perm[j].size == rep.size; j++ {
					cand := &perm[j]
					if !cand.valid {
						continue
					}
					allContained := true
					for _, cv := range coarsePins[cand.edge] {
						if !contained.Has(cv) {
							allContained = false
							break
						}
					}
					if allContained {
						cand.valid = false
						weight += h.edges[cand.edge].weight
						coarsePins[cand.edge] = nil
					}
				}
				for _, cv := range coarsePins[rep.edge] {
					contained.Clear(cv)
				}
				coarseWeights[rep.edge] = weight
			}
		}
	})

	// Assign coarse edge ids and pin offsets with prefix sums over survivors.
	survived := make([]uint64, m)
	pinOffsets := make([]uint64, m)
	parallel.ForEach(m, workers, func(e int) {
		if len(coarsePins[e]) > 0 {
			survived[e] = 1
			pinOffsets[e] = uint64(len(coarsePins[e]))
		}
	})
	numCoarseEdges := parallel.ExclusivePrefixSum(survived, workers)
	numCoarsePins := parallel.ExclusivePrefixSum(pinOffsets, workers)

	chg := &Hypergraph{
		nodes:        make([]node, numCoarseNodes),
		edges:        make([]edge, numCoarseEdges),
		incidentNets: make([]EdgeID, numCoarsePins),
		incidence:    make([]NodeID, numCoarsePins),
		numNodes:     uint32(numCoarseNodes),
		numEdges:     uint32(numCoarseEdges),
		totalPins:    numCoarsePins,
		totalWeight:  h.totalWeight, // no vertices lost, only regrouped
	}

	// Emit coarse edges; bump pin degrees while copying pin lists.
	coarseDegrees := make([]uint64, numCoarseNodes)
	parallel.For(m, workers, func(begin, end, _ int) {
		for e := begin; e < end; e++ {
			if len(coarsePins[e]) == 0 {
				continue
			}
			ce := &chg.edges[survived[e]]
			ce.firstPin = pinOffsets[e]
			ce.size = uint32(len(coarsePins[e]))
			ce.weight = coarseWeights[e]
			ce.enabled = true
			copy(chg.incidence[ce.firstPin:], coarsePins[e])
			for _, cv := range coarsePins[e] {
				atomic.AddUint64(&coarseDegrees[cv], 1)
			}
		}
	})

	// Coarse incident nets: prefix sum over degrees, scatter, sort windows.
	parallel.ExclusivePrefixSum(coarseDegrees, workers)
	parallel.ForEach(int(numCoarseNodes), workers, func(v int) {
		chg.nodes[v].firstIncident = coarseDegrees[v]
		chg.nodes[v].enabled = true
	})
	cursors := make([]uint64, numCoarseNodes)
	parallel.For(int(numCoarseEdges), workers, func(begin, end, _ int) {
		for e := begin; e < end; e++ {
			for _, cv := range chg.Pins(EdgeID(e)) {
				pos := chg.nodes[cv].firstIncident + atomic.AddUint64(&cursors[cv], 1) - 1
				chg.incidentNets[pos] = EdgeID(e)
			}
		}
	})
	parallel.ForEach(int(numCoarseNodes), workers, func(v int) {
		chg.nodes[v].degree = uint32(cursors[v])
		window := chg.IncidentEdges(NodeID(v))
		sort.Slice(window, func(a, b int) bool { return window[a] < window[b] })
	})

	// Aggregate vertex weights and community labels onto coarse vertices.
	parallel.ForEach(n, workers, func(v int) {
		cv := clusters[v]
		if cv == InvalidNode {
			return
		}
		atomic.AddInt64(&chg.nodes[cv].weight, h.nodes[v].weight)
		atomic.StoreInt32(&chg.nodes[cv].community, h.nodes[v].community)
	})

	chg.maxEdgeSize = parallel.MaxReduce(int(numCoarseEdges), workers, func(e int) uint32 {
		return chg.edges[e].size
	})

	return chg
}
