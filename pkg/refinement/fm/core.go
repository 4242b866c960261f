package fm

import (
	"github.com/gilchrisn/hypergraph-partition-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/partition"
)

// GainStrategy selects how move gains are maintained during a search.
type GainStrategy int

const (
	// GainRecompute evaluates the exact gain of the popped vertex against
	// the current overlay state before every move.
	GainRecompute GainStrategy = iota
	// GainDelta keeps queued gains up to date through the change-part delta
	// hook and still verifies the popped vertex before moving.
	GainDelta
)

// ParseGainStrategy maps the configured spelling to a strategy.
func ParseGainStrategy(s string) GainStrategy {
	if s == "delta" {
		return GainDelta
	}
	return GainRecompute
}

// SearchData is the per-search state: the local priority queue (which the
// claimed seeds are pushed into), the ids of the moves this search applied,
// and the adaptive stopping counters.
type SearchData struct {
	id         uint32
	pq         *VertexPQ
	localMoves []uint32
	strategy   GainStrategy

	// adaptive stopping rule state
	sumGain       int64
	bestSumGain   int64
	nonImproving  int
	stopTriggered bool
}

// NewSearchData creates search state with the given id (must be nonzero; 0
// marks unclaimed vertices).
func NewSearchData(id uint32, shared *SharedData, strategy GainStrategy) *SearchData {
	return &SearchData{
		id:       id,
		pq:       NewVertexPQ(shared.handles),
		strategy: strategy,
	}
}

// LocalizedSearch runs one localized k-way FM search. It is owned by a
// single task at a time; concurrency happens across searches.
type LocalizedSearch struct {
	p         *partition.PartitionedHypergraph
	shared    *SharedData
	objective partition.Objective
	stopMoves int
}

// NewLocalizedSearch binds a search engine to the overlay for one round.
func NewLocalizedSearch(p *partition.PartitionedHypergraph, shared *SharedData, obj partition.Objective, adaptiveStoppingMoves int) *LocalizedSearch {
	return &LocalizedSearch{p: p, shared: shared, objective: obj, stopMoves: adaptiveStoppingMoves}
}

func (ls *LocalizedSearch) gain(v hypergraph.NodeID, from, to partition.PartID) int64 {
	if ls.objective == partition.ObjectiveKM1 {
		return ls.p.KM1Gain(v, from, to)
	}
	return ls.p.CutGain(v, from, to)
}

// bestMove finds the highest-gain target block for v, ignoring balance; the
// balance check happens atomically inside ChangePart.
func (ls *LocalizedSearch) bestMove(v hypergraph.NodeID) (partition.PartID, int64) {
	from := ls.p.PartOf(v)
	best := partition.InvalidPart
	var bestGain int64
	for b := partition.PartID(0); b < ls.p.K(); b++ {
		if b == from {
			continue
		}
		if gain := ls.gain(v, from, b); best == partition.InvalidPart || gain > bestGain {
			best = b
			bestGain = gain
		}
	}
	return best, bestGain
}

// Setup claims up to numSeeds seed vertices via CAS on their search tag and
// inserts them with their best gains. Returns false if no seed could be
// claimed; the search then exits immediately.
func (ls *LocalizedSearch) Setup(data *SearchData, numSeeds int, nextSeed func() (hypergraph.NodeID, bool)) bool {
	claimed := 0
	for claimed < numSeeds {
		v, ok := nextSeed()
		if !ok {
			break
		}
		if !ls.shared.TryClaim(v, data.id) {
			continue
		}
		if to, gain := ls.bestMove(v); to != partition.InvalidPart {
			data.pq.Push(v, gain)
			claimed++
		}
	}
	return data.pq.Len() > 0
}

// Resume expands the search for up to movesBudget applied moves. It returns
// the gain of the next queued move and finished=false when the search was
// paused by the budget, or finished=true once the queue is exhausted or the
// adaptive stopping rule fires.
func (ls *LocalizedSearch) Resume(data *SearchData, movesBudget int) (nextGain int64, finished bool) {
	applied := 0
	for applied < movesBudget && !data.stopTriggered && data.pq.Len() > 0 {
		v, queuedGain := data.pq.Pop()
		if ls.shared.Owner(v) != data.id {
			continue
		}
		to, gain := ls.bestMove(v)
		if to == partition.InvalidPart {
			continue
		}
		// Stale priority: if the true gain lost against the queue top,
		// requeue and try the new top instead.
		if top, ok := data.pq.TopGain(); ok && gain < top && gain < queuedGain {
			data.pq.Push(v, gain)
			continue
		}
		from := ls.p.PartOf(v)
		var delta partition.DeltaFunc
		if data.strategy == GainDelta {
			delta = ls.deltaUpdater(data)
		}
		if !ls.p.ChangePart(v, from, to, delta) {
			// Target is full; the vertex stays claimed and unqueued.
			continue
		}
		id, ok := ls.shared.Tracker.Append(Move{Node: v, From: from, To: to, Gain: gain})
		if !ok {
			data.stopTriggered = true
			break
		}
		data.localMoves = append(data.localMoves, id)
		applied++

		data.sumGain += gain
		if data.sumGain > data.bestSumGain {
			data.bestSumGain = data.sumGain
			data.nonImproving = 0
		} else {
			data.nonImproving++
			if data.nonImproving >= ls.stopMoves {
				data.stopTriggered = true
			}
		}

		ls.expand(data, v)
	}

	if data.stopTriggered || data.pq.Len() == 0 {
		return 0, true
	}
	gain, _ := data.pq.TopGain()
	return gain, false
}

// expand activates the neighborhood of a moved vertex: claimed queued
// neighbors get their key refreshed, unclaimed ones are claimed and pushed.
func (ls *LocalizedSearch) expand(data *SearchData, moved hypergraph.NodeID) {
	hg := ls.p.Hypergraph()
	for _, e := range hg.IncidentEdges(moved) {
		for _, u := range hg.Pins(e) {
			if u == moved {
				continue
			}
			owner := ls.shared.Owner(u)
			if owner == data.id {
				if data.pq.Contains(u) && data.strategy == GainRecompute {
					_, gain := ls.bestMove(u)
					data.pq.AdjustKey(u, gain)
				}
				continue
			}
			if owner != 0 {
				continue
			}
			if ls.shared.TryClaim(u, data.id) {
				if to, gain := ls.bestMove(u); to != partition.InvalidPart {
					data.pq.Push(u, gain)
				}
			}
		}
	}
}

// deltaUpdater refreshes queued gains of this search's vertices touched by a
// move, using the per-edge pin counts delivered by the change-part hook.
func (ls *LocalizedSearch) deltaUpdater(data *SearchData) partition.DeltaFunc {
	hg := ls.p.Hypergraph()
	return func(e hypergraph.EdgeID, _ int64, _ uint32, _, _ int32) {
		for _, u := range hg.Pins(e) {
			if ls.shared.Owner(u) == data.id && data.pq.Contains(u) {
				_, gain := ls.bestMove(u)
				data.pq.AdjustKey(u, gain)
			}
		}
	}
}

// Rollback reverts every move after the best-gain prefix of this search in
// LIFO order and flags the reverted tracker entries. Applying it twice is a
// no-op the second time.
func (ls *LocalizedSearch) Rollback(data *SearchData) int64 {
	gains := make([]int64, len(data.localMoves))
	for i, id := range data.localMoves {
		gains[i] = ls.shared.Tracker.Get(id).Gain
	}
	bestPrefix, best := bestGainPrefix(gains)

	for i := len(data.localMoves) - 1; i >= bestPrefix; i-- {
		m := ls.shared.Tracker.Get(data.localMoves[i])
		if m.Gain == InvalidGain {
			continue
		}
		ls.p.ChangePartForced(m.Node, m.To, m.From, nil)
		m.Gain = InvalidGain
	}
	data.localMoves = data.localMoves[:bestPrefix]
	return best
}

// bestGainPrefix returns the length and value of the prefix with maximal
// cumulative gain, preferring the longest prefix on ties.
func bestGainPrefix(gains []int64) (int, int64) {
	var sum, best int64
	prefix := 0
	for i, g := range gains {
		sum += g
		if sum >= best {
			best = sum
			prefix = i + 1
		}
	}
	return prefix, best
}
