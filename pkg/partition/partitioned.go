// Package partition provides the mutable overlay that tracks a k-way
// partition on top of a static hypergraph: per-edge pin counts per block,
// connectivity sets, and block weights, maintained incrementally under
// concurrent moves.
package partition

import (
	"fmt"
	"math/bits"
	"sync/atomic"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/parallel"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/validation"
)

// PartID identifies a block of the partition.
type PartID = int32

// InvalidPart marks an unassigned vertex.
const InvalidPart PartID = -1

// DeltaFunc is invoked once per incident edge of a moved vertex, with the
// edge's weight and size and the pin counts in the source and target blocks
// after the move. Gain maintenance hooks into moves through it.
type DeltaFunc func(e hypergraph.EdgeID, edgeWeight int64, edgeSize uint32, pinCountInFromAfter, pinCountInToAfter int32)

// PartitionedHypergraph binds a k-way partition to one static hypergraph for
// the lifetime of a level. The only mutator after InitializePartition is
// ChangePart; pin-count and connectivity-set transitions for an edge are
// serialized by a per-edge spin lock so both are observed atomically.
type PartitionedHypergraph struct {
	hg *hypergraph.Hypergraph
	k  PartID

	maxPartWeight int64

	partOf      []int32
	pinCounts   []int32 // numEdges * k
	connWords   []uint64
	connCounts  []int32
	partWeights []int64
	edgeLocks   []parallel.SpinLock

	wordsPerEdge int
	initialized  bool
}

// NewPartitionedHypergraph creates an overlay for k blocks with the given
// maximum block weight.
func NewPartitionedHypergraph(hg *hypergraph.Hypergraph, k PartID, maxPartWeight int64) *PartitionedHypergraph {
	m := int(hg.NumEdges())
	wordsPerEdge := (int(k) + 63) / 64
	p := &PartitionedHypergraph{
		hg:            hg,
		k:             k,
		maxPartWeight: maxPartWeight,
		partOf:        make([]int32, hg.NumNodes()),
		pinCounts:     make([]int32, m*int(k)),
		connWords:     make([]uint64, m*wordsPerEdge),
		connCounts:    make([]int32, m),
		partWeights:   make([]int64, k),
		edgeLocks:     make([]parallel.SpinLock, m),
		wordsPerEdge:  wordsPerEdge,
	}
	for v := range p.partOf {
		p.partOf[v] = InvalidPart
	}
	return p
}

// Hypergraph returns the underlying static hypergraph.
func (p *PartitionedHypergraph) Hypergraph() *hypergraph.Hypergraph { return p.hg }

// K returns the number of blocks.
func (p *PartitionedHypergraph) K() PartID { return p.k }

// MaxPartWeight returns the block weight bound enforced by ChangePart.
func (p *PartitionedHypergraph) MaxPartWeight() int64 { return p.maxPartWeight }

// SetOnlyPart assigns vertex v to block b. Legal only before
// InitializePartition; no incremental maintenance happens.
func (p *PartitionedHypergraph) SetOnlyPart(v hypergraph.NodeID, b PartID) {
	if p.initialized {
		panic(fmt.Errorf("%w: SetOnlyPart after InitializePartition", validation.ErrInvariantViolated))
	}
	p.partOf[v] = b
}

// PartOf returns the block of vertex v, or InvalidPart.
func (p *PartitionedHypergraph) PartOf(v hypergraph.NodeID) PartID {
	return atomic.LoadInt32(&p.partOf[v])
}

// PartWeight returns the weight of block b.
func (p *PartitionedHypergraph) PartWeight(b PartID) int64 {
	return atomic.LoadInt64(&p.partWeights[b])
}

// PinCountInPart returns the number of pins of edge e inside block b.
func (p *PartitionedHypergraph) PinCountInPart(e hypergraph.EdgeID, b PartID) int32 {
	return atomic.LoadInt32(&p.pinCounts[int(e)*int(p.k)+int(b)])
}

// Connectivity returns the number of distinct blocks the pins of e occupy.
func (p *PartitionedHypergraph) Connectivity(e hypergraph.EdgeID) int32 {
	return atomic.LoadInt32(&p.connCounts[e])
}

// ForConnectivitySet calls fn for every block present in edge e, in
// ascending block order. Iteration is O(|connectivity set|) plus the bitmap
// word scan; membership tests are O(1) via HasPinsIn.
func (p *PartitionedHypergraph) ForConnectivitySet(e hypergraph.EdgeID, fn func(b PartID)) {
	base := int(e) * p.wordsPerEdge
	for w := 0; w < p.wordsPerEdge; w++ {
		word := atomic.LoadUint64(&p.connWords[base+w])
		for word != 0 {
			bit := bits.TrailingZeros64(word)
			fn(PartID(w*64 + bit))
			word &= word - 1
		}
	}
}

// ConnectivitySet returns the blocks present in edge e as a fresh slice.
func (p *PartitionedHypergraph) ConnectivitySet(e hypergraph.EdgeID) []PartID {
	set := make([]PartID, 0, p.Connectivity(e))
	p.ForConnectivitySet(e, func(b PartID) { set = append(set, b) })
	return set
}

// HasPinsIn reports whether edge e has at least one pin in block b.
func (p *PartitionedHypergraph) HasPinsIn(e hypergraph.EdgeID, b PartID) bool {
	word := atomic.LoadUint64(&p.connWords[int(e)*p.wordsPerEdge+int(b)/64])
	return word&(1<<(uint(b)%64)) != 0
}

// InitializePartition recomputes pin counts, connectivity sets and block
// weights from the current assignment. After it returns, incremental
// maintenance through ChangePart is active.
func (p *PartitionedHypergraph) InitializePartition(workers int) {
	k := int(p.k)
	for b := range p.partWeights {
		p.partWeights[b] = 0
	}
	parallel.For(int(p.hg.NumEdges()), workers, func(begin, end, _ int) {
		for e := begin; e < end; e++ {
			base := e * k
			for b := 0; b < k; b++ {
				p.pinCounts[base+b] = 0
			}
			wordBase := e * p.wordsPerEdge
			for w := 0; w < p.wordsPerEdge; w++ {
				p.connWords[wordBase+w] = 0
			}
			conn := int32(0)
			for _, v := range p.hg.Pins(hypergraph.EdgeID(e)) {
				b := p.partOf[v]
				if b == InvalidPart {
					continue
				}
				p.pinCounts[base+int(b)]++
				if p.pinCounts[base+int(b)] == 1 {
					p.connWords[wordBase+int(b)/64] |= 1 << (uint(b) % 64)
					conn++
				}
			}
			p.connCounts[e] = conn
		}
	})
	parallel.For(int(p.hg.NumNodes()), workers, func(begin, end, _ int) {
		for v := begin; v < end; v++ {
			if b := p.partOf[v]; b != InvalidPart && p.hg.NodeIsEnabled(hypergraph.NodeID(v)) {
				atomic.AddInt64(&p.partWeights[b], p.hg.NodeWeight(hypergraph.NodeID(v)))
			}
		}
	})
	p.initialized = true
}

// ChangePart atomically moves v from block `from` to block `to`. It succeeds
// iff the target block weight stays within the maximum part weight; the
// weight is reserved with a CAS before the move is applied. The optional
// delta hook is invoked per incident edge with post-move pin counts.
func (p *PartitionedHypergraph) ChangePart(v hypergraph.NodeID, from, to PartID, delta DeltaFunc) bool {
	w := p.hg.NodeWeight(v)
	for {
		cur := atomic.LoadInt64(&p.partWeights[to])
		if cur+w > p.maxPartWeight {
			return false
		}
		if atomic.CompareAndSwapInt64(&p.partWeights[to], cur, cur+w) {
			break
		}
	}
	p.applyMove(v, from, to, w, delta)
	return true
}

// ChangePartForced moves v without the balance check. Used to revert moves
// during FM rollback, where the restored state is known to be legal.
func (p *PartitionedHypergraph) ChangePartForced(v hypergraph.NodeID, from, to PartID, delta DeltaFunc) {
	w := p.hg.NodeWeight(v)
	atomic.AddInt64(&p.partWeights[to], w)
	p.applyMove(v, from, to, w, delta)
}

func (p *PartitionedHypergraph) applyMove(v hypergraph.NodeID, from, to PartID, w int64, delta DeltaFunc) {
	atomic.AddInt64(&p.partWeights[from], -w)
	atomic.StoreInt32(&p.partOf[v], to)
	k := int(p.k)
	for _, e := range p.hg.IncidentEdges(v) {
		base := int(e) * k
		wordBase := int(e) * p.wordsPerEdge
		lock := &p.edgeLocks[e]
		lock.Lock()
		cf := atomic.AddInt32(&p.pinCounts[base+int(from)], -1)
		ct := atomic.AddInt32(&p.pinCounts[base+int(to)], 1)
		if ct == 1 {
			setConnBit(&p.connWords[wordBase+int(to)/64], uint(to)%64)
			atomic.AddInt32(&p.connCounts[e], 1)
		}
		if cf == 0 {
			clearConnBit(&p.connWords[wordBase+int(from)/64], uint(from)%64)
			atomic.AddInt32(&p.connCounts[e], -1)
		}
		lock.Unlock()
		if delta != nil {
			delta(e, p.hg.EdgeWeight(e), p.hg.EdgeSize(e), cf, ct)
		}
	}
}

func setConnBit(word *uint64, bit uint) {
	for {
		old := atomic.LoadUint64(word)
		if atomic.CompareAndSwapUint64(word, old, old|1<<bit) {
			return
		}
	}
}

func clearConnBit(word *uint64, bit uint) {
	for {
		old := atomic.LoadUint64(word)
		if atomic.CompareAndSwapUint64(word, old, old&^(1<<bit)) {
			return
		}
	}
}

// KM1Gain returns the connectivity-metric gain of moving v from `from` to
// `to`: edges where v is the last pin in `from` stop contributing, edges with
// no pin in `to` start contributing.
func (p *PartitionedHypergraph) KM1Gain(v hypergraph.NodeID, from, to PartID) int64 {
	var gain int64
	for _, e := range p.hg.IncidentEdges(v) {
		if p.PinCountInPart(e, from) == 1 {
			gain += p.hg.EdgeWeight(e)
		}
		if p.PinCountInPart(e, to) == 0 {
			gain -= p.hg.EdgeWeight(e)
		}
	}
	return gain
}

// CutGain returns the cut-metric gain of moving v from `from` to `to`: edges
// that become internal to `to` stop being cut, internal edges of `from`
// become cut.
func (p *PartitionedHypergraph) CutGain(v hypergraph.NodeID, from, to PartID) int64 {
	var gain int64
	for _, e := range p.hg.IncidentEdges(v) {
		size := int32(p.hg.EdgeSize(e))
		if p.PinCountInPart(e, from) == 1 && p.PinCountInPart(e, to) == size-1 {
			gain += p.hg.EdgeWeight(e)
		} else if p.PinCountInPart(e, from) == size {
			gain -= p.hg.EdgeWeight(e)
		}
	}
	return gain
}

// IsBorderNode reports whether v has an incident edge spanning two or more
// blocks.
func (p *PartitionedHypergraph) IsBorderNode(v hypergraph.NodeID) bool {
	for _, e := range p.hg.IncidentEdges(v) {
		if p.Connectivity(e) > 1 {
			return true
		}
	}
	return false
}

// Verify checks the overlay invariants: per-edge pin-count sums, the
// connectivity oracle, and block weights. Returns ErrInvariantViolated with
// context on the first inconsistency.
func (p *PartitionedHypergraph) Verify() error {
	k := int(p.k)
	for e := 0; e < int(p.hg.NumEdges()); e++ {
		if !p.hg.EdgeIsEnabled(hypergraph.EdgeID(e)) {
			continue
		}
		var sum, conn int32
		for b := 0; b < k; b++ {
			c := p.pinCounts[e*k+int(b)]
			if c < 0 {
				return fmt.Errorf("%w: negative pin count for edge %d block %d", validation.ErrInvariantViolated, e, b)
			}
			sum += c
			if c > 0 {
				conn++
			}
		}
		if sum != int32(p.hg.EdgeSize(hypergraph.EdgeID(e))) {
			return fmt.Errorf("%w: pin counts of edge %d sum to %d, size is %d",
				validation.ErrInvariantViolated, e, sum, p.hg.EdgeSize(hypergraph.EdgeID(e)))
		}
		if conn != p.connCounts[e] {
			return fmt.Errorf("%w: edge %d reports connectivity %d, actual %d",
				validation.ErrInvariantViolated, e, p.connCounts[e], conn)
		}
	}
	weights := make([]int64, k)
	for v := 0; v < int(p.hg.NumNodes()); v++ {
		if b := p.partOf[v]; b != InvalidPart {
			weights[b] += p.hg.NodeWeight(hypergraph.NodeID(v))
		}
	}
	for b := 0; b < k; b++ {
		if weights[b] != p.partWeights[b] {
			return fmt.Errorf("%w: block %d weight is %d, tracked %d",
				validation.ErrInvariantViolated, b, weights[b], p.partWeights[b])
		}
		if weights[b] < 0 {
			return fmt.Errorf("%w: negative weight for block %d", validation.ErrInvariantViolated, b)
		}
	}
	return nil
}
