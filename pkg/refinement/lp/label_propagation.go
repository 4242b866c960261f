// Package lp implements a label-propagation refiner: greedy best-move passes
// over boundary vertices, accepting only strictly improving moves.
package lp

import (
	"sort"
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
	refinement.Register(refinement.LabelPropagationCut, func(cfg *config.Config, _ partition.Objective, logger zerolog.Logger) refinement.Refiner {
		return &Refiner{cfg: cfg, objective: partition.ObjectiveCut, logger: logger}
	})
	refinement.Register(refinement.LabelPropagationKM1, func(cfg *config.Config, _ partition.Objective, logger zerolog.Logger) refinement.Refiner {
		return &Refiner{cfg: cfg, objective: partition.ObjectiveKM1, logger: logger}
	})
}

// Refiner runs label propagation rounds with the configured gain type.
type Refiner struct {
	cfg       *config.Config
	objective partition.Objective
	logger    zerolog.Logger
}

// Initialize is part of the refiner capability set; label propagation keeps
// no per-level state.
func (r *Refiner) Initialize(*partition.PartitionedHypergraph) {}

// Refine runs up to the configured number of rounds, each a parallel sweep
// over boundary vertices moving every vertex to its best strictly improving
// feasible block. Returns whether any move was applied.
func (r *Refiner) Refine(p *partition.PartitionedHypergraph, deadline time.Time) bool {
	improved := false
	workers := r.cfg.NumThreads()
	if r.cfg.Deterministic() {
		workers = 1
	}

	for round := 0; round < r.cfg.LPMaximumIterations(); round++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}
		boundary := collectBoundary(p, workers)
		if len(boundary) == 0 {
			break
		}

		var moves int64
		parallel.For(len(boundary), workers, func(begin, end, _ int) {
			for i := begin; i < end; i++ {
				v := boundary[i]
				from := p.PartOf(v)
				to, gain := bestMove(p, r.objective, v, from)
				if to == partition.InvalidPart || gain <= 0 {
					continue
				}
				// Re-check under the current state; concurrent moves may
				// have gone through since the gain was computed.
				if gainFor(p, r.objective, v, from, to) <= 0 {
					continue
				}
				if p.ChangePart(v, from, to, nil) {
					atomic.AddInt64(&moves, 1)
				}
			}
		})

		if r.cfg.EnableProgress() {
			r.logger.Debug().
				Int("round", round).
				Int("boundary_nodes", len(boundary)).
				Int64("moves", moves).
				Msg("Label propagation round")
		}
		if moves == 0 {
			break
		}
		improved = true
	}
	return improved
}

func collectBoundary(p *partition.PartitionedHypergraph, workers int) []hypergraph.NodeID {
	n := int(p.Hypergraph().NumNodes())
	marks := make([]bool, n)
	parallel.ForEach(n, workers, func(v int) {
		if p.Hypergraph().NodeIsEnabled(hypergraph.NodeID(v)) && p.IsBorderNode(hypergraph.NodeID(v)) {
			marks[v] = true
		}
	})
	boundary := make([]hypergraph.NodeID, 0, n/4)
	for v := 0; v < n; v++ {
		if marks[v] {
			boundary = append(boundary, hypergraph.NodeID(v))
		}
	}
	sort.Slice(boundary, func(i, j int) bool { return boundary[i] < boundary[j] })
	return boundary
}

func gainFor(p *partition.PartitionedHypergraph, obj partition.Objective, v hypergraph.NodeID, from, to partition.PartID) int64 {
	if obj == partition.ObjectiveKM1 {
		return p.KM1Gain(v, from, to)
	}
	return p.CutGain(v, from, to)
}

func bestMove(p *partition.PartitionedHypergraph, obj partition.Objective, v hypergraph.NodeID, from partition.PartID) (partition.PartID, int64) {
	best := partition.InvalidPart
	var bestGain int64
	w := p.Hypergraph().NodeWeight(v)
	for b := partition.PartID(0); b < p.K(); b++ {
		if b == from || p.PartWeight(b)+w > p.MaxPartWeight() {
			continue
		}
		if gain := gainFor(p, obj, v, from, b); best == partition.InvalidPart || gain > bestGain {
			best = b
			bestGain = gain
		}
	}
	return best, bestGain
}
