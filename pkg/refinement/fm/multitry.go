package fm

import (
	"container/heap"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/config"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/parallel"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/partition"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/refinement"
)

func init() {
	refinement.Register(refinement.FMMultiTry, func(cfg *config.Config, obj partition.Objective, logger zerolog.Logger) refinement.Refiner {
		return NewMultiTryRefiner(cfg, obj, logger, false)
	})
	refinement.Register(refinement.FMBoundary, func(cfg *config.Config, obj partition.Objective, logger zerolog.Logger) refinement.Refiner {
		return NewMultiTryRefiner(cfg, obj, logger, true)
	})
}

// movesPerResume bounds how many moves a search applies before yielding back
// to the scheduler so higher-gain searches can run.
const movesPerResume = 64

// searchHeap orders paused searches by the gain of their next queued move.
type searchHeapEntry struct {
	gain   int64
	search int
}

type searchHeap []searchHeapEntry

func (h searchHeap) Len() int            { return len(h) }
func (h searchHeap) Less(i, j int) bool  { return h[i].gain > h[j].gain }
func (h searchHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *searchHeap) Push(x interface{}) { *h = append(*h, x.(searchHeapEntry)) }
func (h *searchHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// MultiTryRefiner is the localized multi-try k-way FM refiner. Per round it
// seeds parallel searches on boundary vertices, schedules them through a
// gain-ordered heap, and rolls every finished search back to its best gain
// prefix.
type MultiTryRefiner struct {
	cfg       *config.Config
	objective partition.Objective
	logger    zerolog.Logger
	boundary  bool

	shared *SharedData
	rng    *rand.Rand
}

// NewMultiTryRefiner creates the FM refiner. When boundary is set, a single
// search is seeded with the whole boundary instead of localized seed groups.
func NewMultiTryRefiner(cfg *config.Config, obj partition.Objective, logger zerolog.Logger, boundary bool) *MultiTryRefiner {
	return &MultiTryRefiner{
		cfg:       cfg,
		objective: obj,
		logger:    logger,
		boundary:  boundary,
		rng:       rand.New(rand.NewSource(cfg.Seed())),
	}
}

// Initialize sizes the shared search state for the current level.
func (r *MultiTryRefiner) Initialize(p *partition.PartitionedHypergraph) {
	r.shared = NewSharedData(int(p.Hypergraph().NumNodes()), r.cfg.FMFinishedTasksLimit())
}

// Refine runs FM rounds until no round improves, the round limit is hit, or
// the deadline passes. It never fails; the partition is always left valid.
func (r *MultiTryRefiner) Refine(p *partition.PartitionedHypergraph, deadline time.Time) bool {
	if r.shared == nil {
		r.Initialize(p)
	}
	improvedAny := false
	for round := 0; round < r.cfg.FMMaxRounds(); round++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}
		gain := r.refineRound(p)
		if r.cfg.EnableProgress() {
			r.logger.Debug().
				Int("round", round).
				Int64("improvement", gain).
				Msg("FM round")
		}
		if gain <= 0 {
			break
		}
		improvedAny = true
	}
	return improvedAny
}

func (r *MultiTryRefiner) refineRound(p *partition.PartitionedHypergraph) int64 {
	r.shared.ResetForRound()

	seeds := r.collectSeeds(p)
	if len(seeds) == 0 {
		return 0
	}
	var seedCursor uint32
	nextSeed := func() (hypergraph.NodeID, bool) {
		i := atomic.AddUint32(&seedCursor, 1) - 1
		if int(i) >= len(seeds) {
			return hypergraph.InvalidNode, false
		}
		return seeds[i], true
	}

	numThreads := r.cfg.NumThreads()
	if r.cfg.Deterministic() {
		numThreads = 1
	}
	numSearches := r.cfg.FMNumSearches()
	if numSearches <= 0 {
		numSearches = numThreads
	}
	numSeeds := r.cfg.FMNumSeedNodes()
	if r.boundary {
		numSearches = 1
		numSeeds = len(seeds)
	}

	engine := NewLocalizedSearch(p, r.shared, r.objective, r.cfg.FMAdaptiveStoppingMoves())
	strategy := ParseGainStrategy(r.cfg.FMGainStrategy())

	searches := make([]*SearchData, numSearches)
	var pending searchHeap
	var mu sync.Mutex

	// Setup phase: claim seed groups in parallel, then queue every search
	// that got at least one seed, keyed by its best move gain.
	parallel.ForEach(numSearches, numThreads, func(i int) {
		data := NewSearchData(uint32(i+1), r.shared, strategy)
		searches[i] = data
		engine.Setup(data, numSeeds, nextSeed)
	})
	for i, data := range searches {
		if gain, ok := data.pq.TopGain(); ok {
			pending = append(pending, searchHeapEntry{gain: gain, search: i})
		}
	}
	heap.Init(&pending)

	var totalGain int64
	task := func() {
		for {
			mu.Lock()
			if len(pending) == 0 || r.shared.LimitReached() {
				mu.Unlock()
				return
			}
			entry := heap.Pop(&pending).(searchHeapEntry)
			mu.Unlock()

			data := searches[entry.search]
			nextGain, finished := engine.Resume(data, movesPerResume)
			if !finished {
				mu.Lock()
				heap.Push(&pending, searchHeapEntry{gain: nextGain, search: entry.search})
				mu.Unlock()
				continue
			}

			gain := engine.Rollback(data)
			atomic.AddInt64(&totalGain, gain)
			if r.shared.FinishTask() {
				return
			}
			// Multi-try: a finished search claims fresh seeds and requeues.
			data.pq.Clear()
			data.localMoves = data.localMoves[:0]
			data.sumGain, data.bestSumGain, data.nonImproving = 0, 0, 0
			data.stopTriggered = false
			if engine.Setup(data, numSeeds, nextSeed) {
				if gain, ok := data.pq.TopGain(); ok {
					mu.Lock()
					heap.Push(&pending, searchHeapEntry{gain: gain, search: entry.search})
					mu.Unlock()
				}
			}
		}
	}

	var wg sync.WaitGroup
	workers := numThreads
	if workers > numSearches {
		workers = numSearches
	}
	for t := 0; t < workers; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task()
		}()
	}
	wg.Wait()

	return totalGain
}

// collectSeeds gathers the boundary vertices, ordered deterministically or
// shuffled depending on configuration.
func (r *MultiTryRefiner) collectSeeds(p *partition.PartitionedHypergraph) []hypergraph.NodeID {
	hg := p.Hypergraph()
	n := int(hg.NumNodes())
	seeds := make([]hypergraph.NodeID, 0, n/4)
	for v := 0; v < n; v++ {
		if hg.NodeIsEnabled(hypergraph.NodeID(v)) && p.IsBorderNode(hypergraph.NodeID(v)) {
			seeds = append(seeds, hypergraph.NodeID(v))
		}
	}
	if r.cfg.Deterministic() {
		sort.Slice(seeds, func(i, j int) bool { return seeds[i] < seeds[j] })
	} else {
		r.rng.Shuffle(len(seeds), func(i, j int) { seeds[i], seeds[j] = seeds[j], seeds[i] })
	}
	return seeds
}
