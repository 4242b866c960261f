package flow

import "github.com/gilchrisn/hypergraph-partition-service/pkg/partition"

// schedulerPolicy decides which block pairs run concurrently. All calls are
// made under the round driver's scheduling mutex.
type schedulerPolicy interface {
	// start consumes the round's pairs and returns the initially
	// dispatched set.
	start(pairs []Pair, slots int) []Pair
	// next releases a finished pair and returns any newly schedulable
	// pairs.
	next(done Pair) []Pair
}

// matchingPolicy dispatches a greedy maximal matching on blocks: a block is
// in at most one running pair; finishing a pair unlocks its two blocks and
// admits any pending pair that became schedulable.
type matchingPolicy struct {
	locked  []bool
	pending []Pair
}

func newMatchingPolicy(k partition.PartID) *matchingPolicy {
	return &matchingPolicy{locked: make([]bool, k)}
}

func (mp *matchingPolicy) start(pairs []Pair, _ int) []Pair {
	mp.pending = append(mp.pending[:0], pairs...)
	return mp.takeSchedulable()
}

func (mp *matchingPolicy) next(done Pair) []Pair {
	mp.locked[done.B0] = false
	mp.locked[done.B1] = false
	return mp.takeSchedulable()
}

func (mp *matchingPolicy) takeSchedulable() []Pair {
	var out []Pair
	for i := 0; i < len(mp.pending); i++ {
		pr := mp.pending[i]
		if mp.locked[pr.B0] || mp.locked[pr.B1] {
			continue
		}
		mp.locked[pr.B0] = true
		mp.locked[pr.B1] = true
		out = append(out, pr)
		mp.pending[i] = mp.pending[len(mp.pending)-1]
		mp.pending = mp.pending[:len(mp.pending)-1]
		i--
	}
	return out
}

// mostIndependentPolicy allows several concurrent tasks per block up to a
// cap, always dispatching the pending pair whose busier block has the fewest
// running tasks.
type mostIndependentPolicy struct {
	tasksOnBlock []int
	maxPerBlock  int
	pending      []Pair
}

func newMostIndependentPolicy(k partition.PartID, maxPerBlock int) *mostIndependentPolicy {
	if maxPerBlock < 1 {
		maxPerBlock = 1
	}
	return &mostIndependentPolicy{
		tasksOnBlock: make([]int, k),
		maxPerBlock:  maxPerBlock,
	}
}

func (mi *mostIndependentPolicy) start(pairs []Pair, slots int) []Pair {
	mi.pending = append(mi.pending[:0], pairs...)
	var out []Pair
	for len(out) < slots {
		pr, ok := mi.takeMostIndependent()
		if !ok {
			break
		}
		out = append(out, pr)
	}
	return out
}

func (mi *mostIndependentPolicy) next(done Pair) []Pair {
	mi.tasksOnBlock[done.B0]--
	mi.tasksOnBlock[done.B1]--
	if pr, ok := mi.takeMostIndependent(); ok {
		return []Pair{pr}
	}
	return nil
}

func (mi *mostIndependentPolicy) takeMostIndependent() (Pair, bool) {
	bestIdx := -1
	bestLoad := int(^uint(0) >> 1)
	for i, pr := range mi.pending {
		load := mi.tasksOnBlock[pr.B0]
		if l := mi.tasksOnBlock[pr.B1]; l > load {
			load = l
		}
		if load >= mi.maxPerBlock {
			continue
		}
		if load < bestLoad {
			bestLoad = load
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return Pair{}, false
	}
	pr := mi.pending[bestIdx]
	mi.tasksOnBlock[pr.B0]++
	mi.tasksOnBlock[pr.B1]++
	mi.pending[bestIdx] = mi.pending[len(mi.pending)-1]
	mi.pending = mi.pending[:len(mi.pending)-1]
	return pr, true
}
