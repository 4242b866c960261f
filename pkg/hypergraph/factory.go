package hypergraph

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/parallel"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/validation"
)

// BuildOptions controls construction of a static hypergraph.
type BuildOptions struct {
	// StableConstruction sorts the pins within every edge window after the
	// parallel scatter, removing scheduling-induced nondeterminism.
	StableConstruction bool
	// Workers bounds construction parallelism; <= 0 means GOMAXPROCS.
	Workers int
}

// Build constructs a static hypergraph from an edge-pin list and optional
// weight arrays. Nil weight slices default to unit weights. Pin ids must be
// in [0, numNodes).
func Build(numNodes uint32, edgePins [][]NodeID, edgeWeights, nodeWeights []int64, opts BuildOptions) (*Hypergraph, error) {
	numEdges := uint32(len(edgePins))
	if edgeWeights != nil && uint32(len(edgeWeights)) != numEdges {
		return nil, fmt.Errorf("%w: %d edge weights for %d edges", validation.ErrInvalidInput, len(edgeWeights), numEdges)
	}
	if nodeWeights != nil && uint32(len(nodeWeights)) != numNodes {
		return nil, fmt.Errorf("%w: %d node weights for %d nodes", validation.ErrInvalidInput, len(nodeWeights), numNodes)
	}
	for i, pins := range edgePins {
		if len(pins) == 0 {
			return nil, fmt.Errorf("%w: edge %d has no pins", validation.ErrInvalidInput, i)
		}
		for _, p := range pins {
			if p >= numNodes {
				return nil, fmt.Errorf("%w: pin %d of edge %d out of range [0, %d)", validation.ErrInvalidInput, p, i, numNodes)
			}
		}
	}

	h := &Hypergraph{
		nodes:    make([]node, numNodes),
		edges:    make([]edge, numEdges),
		numNodes: numNodes,
		numEdges: numEdges,
	}

	// Per-vertex degrees by a thread-parallel sweep over edges.
	degrees := make([]uint64, numNodes)
	parallel.For(int(numEdges), opts.Workers, func(begin, end, _ int) {
		for e := begin; e < end; e++ {
			for _, p := range edgePins[e] {
				atomic.AddUint64(&degrees[p], 1)
			}
		}
	})

	// Prefix sum of degrees yields the incident-net windows; the total must
	// equal the pin count.
	totalPins := parallel.ExclusivePrefixSum(degrees, opts.Workers)
	h.totalPins = totalPins
	h.incidentNets = make([]EdgeID, totalPins)
	h.incidence = make([]NodeID, totalPins)

	parallel.ForEach(int(numNodes), opts.Workers, func(i int) {
		h.nodes[i].firstIncident = degrees[i]
		h.nodes[i].enabled = true
		h.nodes[i].weight = 1
		if nodeWeights != nil {
			h.nodes[i].weight = nodeWeights[i]
		}
	})

	// Edge windows in incidence follow input edge order.
	sizes := make([]uint64, numEdges)
	for e := range edgePins {
		sizes[e] = uint64(len(edgePins[e]))
	}
	parallel.ExclusivePrefixSum(sizes, opts.Workers)

	// Write pins and scatter edge ids into the incident-net windows via
	// atomically bumped per-vertex cursors.
	cursors := make([]uint64, numNodes)
	parallel.For(int(numEdges), opts.Workers, func(begin, end, _ int) {
		for e := begin; e < end; e++ {
			pins := edgePins[e]
			ed := &h.edges[e]
			ed.firstPin = sizes[e]
			ed.size = uint32(len(pins))
			ed.weight = 1
			if edgeWeights != nil {
				ed.weight = edgeWeights[e]
			}
			ed.enabled = true
			copy(h.incidence[ed.firstPin:], pins)
			for _, p := range pins {
				pos := h.nodes[p].firstIncident + atomic.AddUint64(&cursors[p], 1) - 1
				h.incidentNets[pos] = EdgeID(e)
			}
		}
	})

	// Cursors double as the final degrees; sort each window for
	// deterministic iteration.
	parallel.ForEach(int(numNodes), opts.Workers, func(i int) {
		h.nodes[i].degree = uint32(cursors[i])
		window := h.IncidentEdges(NodeID(i))
		sort.Slice(window, func(a, b int) bool { return window[a] < window[b] })
	})

	if opts.StableConstruction {
		parallel.ForEach(int(numEdges), opts.Workers, func(e int) {
			pins := h.Pins(EdgeID(e))
			sort.Slice(pins, func(a, b int) bool { return pins[a] < pins[b] })
		})
	}

	h.totalWeight = parallel.SumReduce(int(numNodes), opts.Workers, func(i int) int64 {
		return h.nodes[i].weight
	})
	h.maxEdgeSize = parallel.MaxReduce(int(numEdges), opts.Workers, func(e int) uint32 {
		return h.edges[e].size
	})

	return h, nil
}
