package flow

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/config"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/partition"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/refinement"
)

func init() {
	refinement.Register(refinement.FlowMatching, func(cfg *config.Config, obj partition.Objective, logger zerolog.Logger) refinement.Refiner {
		return NewRefiner(cfg, obj, logger, true)
	})
	refinement.Register(refinement.FlowMostIndependent, func(cfg *config.Config, obj partition.Objective, logger zerolog.Logger) refinement.Refiner {
		return NewRefiner(cfg, obj, logger, false)
	})
}

// regionSizeLimit bounds the number of vertices a single block-pair task
// pulls into its flow problem.
const regionSizeLimit = 4096

// Refiner schedules block-pair flow refinements over the quotient graph.
type Refiner struct {
	cfg       *config.Config
	objective partition.Objective
	logger    zerolog.Logger
	matching  bool
}

// NewRefiner creates a flow refiner with the matching or most-independent
// scheduling policy.
func NewRefiner(cfg *config.Config, obj partition.Objective, logger zerolog.Logger, matching bool) *Refiner {
	return &Refiner{cfg: cfg, objective: obj, logger: logger, matching: matching}
}

// Initialize is part of the refiner capability set; per-level state is
// rebuilt each round.
func (r *Refiner) Initialize(*partition.PartitionedHypergraph) {}

// Refine runs global rounds of concurrent block-pair refinements. A round
// dispatches pairs of active blocks through the scheduling policy; blocks
// are deactivated at round start and reactivated by any pair that improved.
func (r *Refiner) Refine(p *partition.PartitionedHypergraph, deadline time.Time) bool {
	k := p.K()
	active := make([]bool, k)
	for b := range active {
		active[b] = true
	}

	improvedAny := false
	for round := 0; round < r.cfg.FlowMaxRounds(); round++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}
		buildWorkers := r.cfg.NumThreads()
		if r.cfg.Deterministic() {
			buildWorkers = 1
		}
		qg := BuildQuotientGraph(p, buildWorkers)
		var pairs []Pair
		for _, pr := range qg.Pairs() {
			if active[pr.B0] && active[pr.B1] {
				pairs = append(pairs, pr)
			}
		}
		if len(pairs) == 0 {
			break
		}
		// Blocks start the round inactive; improvements reactivate them.
		for b := range active {
			active[b] = false
		}

		improved := r.runRound(p, qg, pairs, active)
		if r.cfg.EnableProgress() {
			r.logger.Debug().
				Int("round", round).
				Int("pairs", len(pairs)).
				Bool("improved", improved).
				Msg("Flow round")
		}
		if !improved {
			break
		}
		improvedAny = true
		r.rebalance(p)
	}
	return improvedAny
}

func (r *Refiner) runRound(p *partition.PartitionedHypergraph, qg *QuotientGraph, pairs []Pair, active []bool) bool {
	var policy schedulerPolicy
	if r.matching {
		policy = newMatchingPolicy(p.K())
	} else {
		policy = newMostIndependentPolicy(p.K(), r.cfg.FlowMaxTasksOnBlock())
	}

	bw := NewBlockWeights(p)
	nodeLocks := NewNodeLocks(int(p.Hypergraph().NumNodes()))

	workers := r.cfg.NumThreads()
	if r.cfg.Deterministic() {
		workers = 1
	}

	var mu sync.Mutex
	work := make(chan Pair, len(pairs))
	initial := policy.start(pairs, workers)
	if len(initial) == 0 {
		return false
	}
	inFlight := int32(len(initial))
	for _, pr := range initial {
		work <- pr
	}

	var improvedAny int32
	var wg sync.WaitGroup
	for t := 0; t < workers; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pr := range work {
				improved := r.executePair(p, qg, bw, nodeLocks, pr)
				mu.Lock()
				if improved {
					atomic.StoreInt32(&improvedAny, 1)
					active[pr.B0] = true
					active[pr.B1] = true
				}
				for _, np := range policy.next(pr) {
					inFlight++
					work <- np
				}
				inFlight--
				if inFlight == 0 {
					close(work)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return atomic.LoadInt32(&improvedAny) == 1
}

// executePair runs one block-pair refinement: extract the current cut
// boundary, acquire a region of movable vertices, solve a min-cut on the
// induced flow network, and apply the improving side changes.
func (r *Refiner) executePair(p *partition.PartitionedHypergraph, qg *QuotientGraph, bw *BlockWeights, nodeLocks *NodeLocks, pr Pair) bool {
	hg := p.Hypergraph()
	b0, b1 := pr.B0, pr.B1
	taskID := int32(b0)*int32(p.K()) + int32(b1) + 1

	cut := qg.CutEdgesBetween(p, b0, b1)
	if len(cut) == 0 {
		return false
	}

	// Acquire the movable region: pins of the cut boundary lying in either
	// block. A vertex held by another task is simply left out.
	region := make([]regionNode, 0, 2*len(cut))
	inRegion := make(map[hypergraph.NodeID]int32, 2*len(cut))
	var regionWeight0, regionWeight1 int64
	for _, e := range cut {
		for _, u := range hg.Pins(e) {
			part := p.PartOf(u)
			if part != b0 && part != b1 {
				continue
			}
			if _, ok := inRegion[u]; ok {
				continue
			}
			if len(region) >= regionSizeLimit {
				break
			}
			if !nodeLocks.TryAcquire(u, taskID) {
				continue
			}
			idx := int32(len(region)) + 2 // after source and sink
			inRegion[u] = idx
			region = append(region, regionNode{v: u, part: part, idx: idx})
			if part == b0 {
				regionWeight0 += hg.NodeWeight(u)
			} else {
				regionWeight1 += hg.NodeWeight(u)
			}
		}
	}
	if len(region) == 0 {
		return false
	}
	defer func() {
		for _, rn := range region {
			nodeLocks.Release(rn.v)
		}
	}()

	bw.Acquire(b0, b1, regionWeight0)
	bw.Acquire(b1, b0, regionWeight1)
	defer bw.Release(b0, b1, regionWeight0)
	defer bw.Release(b1, b0, regionWeight1)

	// The pair may grow a side up to the maximum part weight minus what the
	// rest of the system holds in that block. Optimistic by design.
	capacity0 := p.MaxPartWeight() - bw.NotAcquired(b0, b1)
	capacity1 := p.MaxPartWeight() - bw.NotAcquired(b1, b0)

	moves := r.solveAndApply(p, qg, region, inRegion, cut, b0, b1, capacity0, capacity1)
	return moves > 0
}

// regionNode is one movable vertex of a block-pair task, with its flow
// network index.
type regionNode struct {
	v    hypergraph.NodeID
	part partition.PartID
	idx  int32
}

func (r *Refiner) gainFor(p *partition.PartitionedHypergraph, v hypergraph.NodeID, from, to partition.PartID) int64 {
	if r.objective == partition.ObjectiveKM1 {
		return p.KM1Gain(v, from, to)
	}
	return p.CutGain(v, from, to)
}

// solveAndApply builds the Lawler expansion of the region's hyperedges, runs
// min-cut, and applies the side changes whose total gain is positive.
func (r *Refiner) solveAndApply(
	p *partition.PartitionedHypergraph,
	qg *QuotientGraph,
	region []regionNode,
	inRegion map[hypergraph.NodeID]int32,
	cut []hypergraph.EdgeID,
	b0, b1 partition.PartID,
	capacity0, capacity1 int64,
) int {
	hg := p.Hypergraph()

	// Model every hyperedge incident to the region that lives entirely in
	// the two blocks: the cut boundary plus currently-internal edges that a
	// move could cut.
	edgeSet := make(map[hypergraph.EdgeID]struct{}, len(cut))
	for _, e := range cut {
		edgeSet[e] = struct{}{}
	}
	for _, rn := range region {
		for _, e := range hg.IncidentEdges(rn.v) {
			if _, ok := edgeSet[e]; ok {
				continue
			}
			if p.PinCountInPart(e, b0)+p.PinCountInPart(e, b1) == int32(hg.EdgeSize(e)) {
				edgeSet[e] = struct{}{}
			}
		}
	}

	modeled := make([]hypergraph.EdgeID, 0, len(edgeSet))
	for e := range edgeSet {
		modeled = append(modeled, e)
	}
	sort.Slice(modeled, func(i, j int) bool { return modeled[i] < modeled[j] })

	numNodes := 2 + len(region) + 2*len(modeled)
	fn := newFlowNetwork(numNodes)
	const source, sink int32 = 0, 1

	edgeIn := make(map[hypergraph.EdgeID]int32, len(modeled))
	next := int32(2 + len(region))
	for _, e := range modeled {
		edgeIn[e] = next
		fn.addArc(next, next+1, hg.EdgeWeight(e))
		next += 2
	}
	for _, e := range modeled {
		in := edgeIn[e]
		out := in + 1
		for _, u := range hg.Pins(e) {
			if idx, ok := inRegion[u]; ok {
				fn.addArc(idx, in, infiniteCapacity)
				fn.addArc(out, idx, infiniteCapacity)
				continue
			}
			switch p.PartOf(u) {
			case b0:
				fn.addArc(source, in, infiniteCapacity)
			case b1:
				fn.addArc(out, sink, infiniteCapacity)
			}
		}
	}

	fn.maxFlow(source, sink)
	onSourceSide := fn.sourceSide(source)

	// Apply all side changes as one batch, rolled back below unless their
	// summed gain is positive; the global balance bound stays authoritative
	// via ChangePart.
	newWeight0, newWeight1 := int64(0), int64(0)
	for _, rn := range region {
		if onSourceSide[rn.idx] {
			newWeight0 += hg.NodeWeight(rn.v)
		} else {
			newWeight1 += hg.NodeWeight(rn.v)
		}
	}
	if newWeight0 > capacity0 || newWeight1 > capacity1 {
		return 0 // min cut would overfill a side; keep the current split
	}

	type applied struct {
		v        hypergraph.NodeID
		from, to partition.PartID
	}
	var log []applied
	var totalGain int64
	for _, rn := range region {
		if len(fn.adj[rn.idx]) == 0 {
			continue // vertex untouched by any modeled edge
		}
		target := b1
		if onSourceSide[rn.idx] {
			target = b0
		}
		cur := p.PartOf(rn.v)
		if cur == target {
			continue
		}
		gain := r.gainFor(p, rn.v, cur, target)
		if !p.ChangePart(rn.v, cur, target, qg.MoveHook(p, target)) {
			continue
		}
		log = append(log, applied{v: rn.v, from: cur, to: target})
		totalGain += gain
	}

	if totalGain <= 0 {
		for i := len(log) - 1; i >= 0; i-- {
			m := log[i]
			p.ChangePartForced(m.v, m.to, m.from, qg.MoveHook(p, m.from))
		}
		return 0
	}
	return len(log)
}

// rebalance repairs the documented laxness of optimistic weight
// acquisition: while a block is over the maximum part weight, it moves one
// vertex of that block at a time, choosing the vertex and target block with
// the best gain among targets that have room for it. It stops when no such
// move exists.
func (r *Refiner) rebalance(p *partition.PartitionedHypergraph) {
	hg := p.Hypergraph()
	for iter := 0; iter < int(hg.NumNodes()); iter++ {
		over := partition.InvalidPart
		for b := partition.PartID(0); b < p.K(); b++ {
			if p.PartWeight(b) > p.MaxPartWeight() {
				over = b
				break
			}
		}
		if over == partition.InvalidPart {
			return
		}
		moved := false
		var bestNode hypergraph.NodeID
		var bestTo partition.PartID
		var bestGain int64
		for v := hypergraph.NodeID(0); v < hg.NumNodes(); v++ {
			if !hg.NodeIsEnabled(v) || p.PartOf(v) != over {
				continue
			}
			for b := partition.PartID(0); b < p.K(); b++ {
				if b == over || p.PartWeight(b)+hg.NodeWeight(v) > p.MaxPartWeight() {
					continue
				}
				gain := r.gainFor(p, v, over, b)
				if !moved || gain > bestGain {
					moved = true
					bestNode, bestTo, bestGain = v, b, gain
				}
			}
		}
		if !moved || !p.ChangePart(bestNode, over, bestTo, nil) {
			return
		}
	}
}
