// Package fm implements the localized multi-try k-way FM refiner: parallel
// local searches around claimed seed vertices, a shared append-only move
// tracker, and gain-prefix rollback.
package fm

import (
	"math"
	"sync/atomic"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/hypergraph"
)

// InvalidGain flags a reverted move in the tracker.
const InvalidGain int64 = math.MinInt64

// Move is one applied vertex move. ID is its position in the global order.
type Move struct {
	Node hypergraph.NodeID
	From int32
	To   int32
	Gain int64
	ID   uint32
}

// MoveTracker is a contiguous append-only log of applied moves. Move ids are
// assigned by an atomic fetch-add, so they reflect a linear order across all
// concurrent searches. The only mutation after append is flagging a move as
// reverted.
type MoveTracker struct {
	order []Move
	next  uint32
}

// NewMoveTracker allocates a tracker with the given capacity.
func NewMoveTracker(capacity int) *MoveTracker {
	return &MoveTracker{order: make([]Move, capacity)}
}

// Append records a move and returns its id. ok is false when the log is
// full; the caller must then stop its search.
func (t *MoveTracker) Append(m Move) (uint32, bool) {
	id := atomic.AddUint32(&t.next, 1) - 1
	if int(id) >= len(t.order) {
		return 0, false
	}
	m.ID = id
	t.order[id] = m
	return id, true
}

// NumPerformed returns the number of appended moves.
func (t *MoveTracker) NumPerformed() uint32 {
	n := atomic.LoadUint32(&t.next)
	if int(n) > len(t.order) {
		return uint32(len(t.order))
	}
	return n
}

// Get returns the move with the given id for inspection or revert flagging.
func (t *MoveTracker) Get(id uint32) *Move { return &t.order[id] }

// Reset discards all recorded moves.
func (t *MoveTracker) Reset() { atomic.StoreUint32(&t.next, 0) }

// SharedData is the per-level state shared by all concurrent searches.
type SharedData struct {
	Tracker *MoveTracker

	// searchOf tags each vertex with the id of the search that claimed it
	// (0 = unclaimed). Claims happen via CAS; a vertex belongs to at most
	// one search per round.
	searchOf []uint32

	// handles holds each vertex's position in its owning search's local
	// priority queue (-1 = absent). Only the owning search touches a
	// vertex's slot.
	handles []int32

	finishedTasks      int32
	finishedTasksLimit int32
}

// NewSharedData sizes the shared state for a hypergraph with n vertices.
func NewSharedData(n int, finishedTasksLimit int) *SharedData {
	s := &SharedData{
		Tracker:            NewMoveTracker(4 * n),
		searchOf:           make([]uint32, n),
		handles:            make([]int32, n),
		finishedTasksLimit: int32(finishedTasksLimit),
	}
	for i := range s.handles {
		s.handles[i] = -1
	}
	return s
}

// ResetForRound clears claims and the move log before a new FM round.
func (s *SharedData) ResetForRound() {
	s.Tracker.Reset()
	for i := range s.searchOf {
		s.searchOf[i] = 0
		s.handles[i] = -1
	}
	atomic.StoreInt32(&s.finishedTasks, 0)
}

// TryClaim marks v as owned by the given search. Returns false if another
// search holds it.
func (s *SharedData) TryClaim(v hypergraph.NodeID, search uint32) bool {
	return atomic.CompareAndSwapUint32(&s.searchOf[v], 0, search)
}

// Owner returns the id of the search currently holding v, 0 if unclaimed.
func (s *SharedData) Owner(v hypergraph.NodeID) uint32 {
	return atomic.LoadUint32(&s.searchOf[v])
}

// FinishTask bumps the finished-task counter and reports whether the global
// limit has been reached.
func (s *SharedData) FinishTask() bool {
	done := atomic.AddInt32(&s.finishedTasks, 1)
	return s.finishedTasksLimit > 0 && done >= s.finishedTasksLimit
}

// LimitReached reports whether no further searches should start.
func (s *SharedData) LimitReached() bool {
	return s.finishedTasksLimit > 0 && atomic.LoadInt32(&s.finishedTasks) >= s.finishedTasksLimit
}
