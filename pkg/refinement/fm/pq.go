package fm

import "github.com/gilchrisn/hypergraph-partition-service/pkg/hypergraph"

type pqEntry struct {
	node hypergraph.NodeID
	gain int64
}

// VertexPQ is an addressable binary max-heap keyed by move gain. Handles
// live in the shared per-vertex handle array; since a vertex is claimed by
// exactly one search, only its owner ever touches its handle.
type VertexPQ struct {
	heap    []pqEntry
	handles []int32
}

// NewVertexPQ creates a queue backed by the shared handle array.
func NewVertexPQ(handles []int32) *VertexPQ {
	return &VertexPQ{handles: handles}
}

// Len returns the number of queued vertices.
func (pq *VertexPQ) Len() int { return len(pq.heap) }

// Contains reports whether v is queued.
func (pq *VertexPQ) Contains(v hypergraph.NodeID) bool { return pq.handles[v] >= 0 }

// TopGain returns the best queued gain; ok is false on an empty queue.
func (pq *VertexPQ) TopGain() (int64, bool) {
	if len(pq.heap) == 0 {
		return 0, false
	}
	return pq.heap[0].gain, true
}

// Push inserts v with the given gain.
func (pq *VertexPQ) Push(v hypergraph.NodeID, gain int64) {
	pq.heap = append(pq.heap, pqEntry{node: v, gain: gain})
	pq.handles[v] = int32(len(pq.heap) - 1)
	pq.siftUp(len(pq.heap) - 1)
}

// Pop removes and returns the vertex with the highest gain.
func (pq *VertexPQ) Pop() (hypergraph.NodeID, int64) {
	top := pq.heap[0]
	last := len(pq.heap) - 1
	pq.swap(0, last)
	pq.heap = pq.heap[:last]
	pq.handles[top.node] = -1
	if last > 0 {
		pq.siftDown(0)
	}
	return top.node, top.gain
}

// AdjustKey updates the gain of a queued vertex.
func (pq *VertexPQ) AdjustKey(v hypergraph.NodeID, gain int64) {
	i := int(pq.handles[v])
	old := pq.heap[i].gain
	pq.heap[i].gain = gain
	if gain > old {
		pq.siftUp(i)
	} else if gain < old {
		pq.siftDown(i)
	}
}

// Clear empties the queue, resetting the handles of all queued vertices.
func (pq *VertexPQ) Clear() {
	for _, e := range pq.heap {
		pq.handles[e.node] = -1
	}
	pq.heap = pq.heap[:0]
}

func (pq *VertexPQ) swap(i, j int) {
	pq.heap[i], pq.heap[j] = pq.heap[j], pq.heap[i]
	pq.handles[pq.heap[i].node] = int32(i)
	pq.handles[pq.heap[j].node] = int32(j)
}

func (pq *VertexPQ) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if pq.heap[parent].gain >= pq.heap[i].gain {
			return
		}
		pq.swap(i, parent)
		i = parent
	}
}

func (pq *VertexPQ) siftDown(i int) {
	n := len(pq.heap)
	for {
		left, right := 2*i+1, 2*i+2
		largest := i
		if left < n && pq.heap[left].gain > pq.heap[largest].gain {
			largest = left
		}
		if right < n && pq.heap[right].gain > pq.heap[largest].gain {
			largest = right
		}
		if largest == i {
			return
		}
		pq.swap(i, largest)
		i = largest
	}
}
