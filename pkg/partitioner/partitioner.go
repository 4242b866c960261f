// Package partitioner wires the multilevel engine together: coarsening,
// initial partitioning, and level-by-level projection with refinement.
package partitioner

import (
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/coarsening"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/config"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/initial"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/parallel"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/partition"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/refinement"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/validation"

	// Register the concrete refiners.
	_ "github.com/gilchrisn/hypergraph-partition-service/pkg/refinement/flow"
	_ "github.com/gilchrisn/hypergraph-partition-service/pkg/refinement/fm"
	_ "github.com/gilchrisn/hypergraph-partition-service/pkg/refinement/lp"
)

// Result is the complete output of one partitioning run.
type Result struct {
	RunID      string      `json:"run_id"`
	Objective  string      `json:"objective"`
	Quality    int64       `json:"quality"`
	Cut        int64       `json:"cut"`
	KM1        int64       `json:"km1"`
	SOED       int64       `json:"soed"`
	Imbalance  float64     `json:"imbalance"`
	K          int32       `json:"k"`
	Partition  []int32     `json:"-"`
	Levels     []LevelInfo `json:"levels"`
	Statistics Statistics  `json:"statistics"`
}

// LevelInfo records one uncoarsening level.
type LevelInfo struct {
	Level         int    `json:"level"`
	NumNodes      uint32 `json:"num_nodes"`
	NumEdges      uint32 `json:"num_edges"`
	QualityBefore int64  `json:"quality_before"`
	QualityAfter  int64  `json:"quality_after"`
	RuntimeMS     int64  `json:"runtime_ms"`
}

// Statistics aggregates run-wide measurements.
type Statistics struct {
	NumLevels    int   `json:"num_levels"`
	CoarseningMS int64 `json:"coarsening_ms"`
	InitialMS    int64 `json:"initial_ms"`
	RefinementMS int64 `json:"refinement_ms"`
	TotalMS      int64 `json:"total_ms"`
	MemoryPeakMB int64 `json:"memory_peak_mb"`
}

// Partitioner runs the multilevel pipeline for one configuration.
type Partitioner struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// NewPartitioner creates a partitioner; the logger is derived from config.
func NewPartitioner(cfg *config.Config) *Partitioner {
	return &Partitioner{cfg: cfg, logger: cfg.CreateLogger()}
}

// Partition computes a k-way partition of the hypergraph. Input validation
// errors and coarsest-level balance infeasibility are fatal for the run;
// refinement never fails.
func (pt *Partitioner) Partition(hg *hypergraph.Hypergraph) (*Result, error) {
	startTime := time.Now()

	k := pt.cfg.K()
	epsilon := pt.cfg.Epsilon()
	if k < 2 {
		return nil, fmt.Errorf("%w: k must be at least 2, got %d", validation.ErrInvalidInput, k)
	}
	if epsilon <= 0 {
		return nil, fmt.Errorf("%w: epsilon must be positive, got %f", validation.ErrInvalidInput, epsilon)
	}
	objective, err := partition.ParseObjective(pt.cfg.Objective())
	if err != nil {
		return nil, err
	}

	maxPartWeight := partition.MaxPartWeightFor(hg.TotalWeight(), k, epsilon)
	var deadline time.Time
	if limit := pt.cfg.TimeLimitMS(); limit > 0 {
		deadline = startTime.Add(time.Duration(limit) * time.Millisecond)
	}

	pt.logger.Info().
		Uint32("nodes", hg.NumNodes()).
		Uint32("edges", hg.NumEdges()).
		Int32("k", k).
		Float64("epsilon", epsilon).
		Str("objective", objective.String()).
		Msg("Starting multilevel partitioning")

	result := &Result{
		RunID:     uuid.New().String(),
		Objective: objective.String(),
		K:         k,
	}

	// Phase 1: coarsening.
	coarseningStart := time.Now()
	coarsener := coarsening.NewCoarsener(pt.cfg, pt.logger)
	hierarchy := coarsener.Coarsen(hg)
	result.Statistics.CoarseningMS = time.Since(coarseningStart).Milliseconds()
	result.Statistics.NumLevels = len(hierarchy.Levels)

	// Phase 2: initial partition on the coarsest level.
	initialStart := time.Now()
	coarse := partition.NewPartitionedHypergraph(hierarchy.Coarsest, k, maxPartWeight)
	ip := initial.NewBFSPartitioner(pt.logger)
	if err := ip.Partition(coarse); err != nil {
		return nil, err
	}
	coarse.InitializePartition(pt.cfg.NumThreads())
	if err := coarse.Verify(); err != nil {
		return nil, err
	}
	result.Statistics.InitialMS = time.Since(initialStart).Milliseconds()
	pt.logger.Info().
		Uint32("coarse_nodes", hierarchy.Coarsest.NumNodes()).
		Int64("initial_quality", partition.Quality(coarse, objective)).
		Msg("Initial partition computed")

	// Phase 3: uncoarsening with refinement at every level.
	refinementStart := time.Now()
	refiners, err := pt.createRefiners(objective)
	if err != nil {
		return nil, err
	}

	current := coarse
	pt.refineLevel(current, refiners, deadline, len(hierarchy.Levels), objective, result)
	for level := len(hierarchy.Levels) - 1; level >= 0; level-- {
		current = pt.project(hierarchy.Levels[level], current, k, maxPartWeight)
		pt.refineLevel(current, refiners, deadline, level, objective, result)
	}
	result.Statistics.RefinementMS = time.Since(refinementStart).Milliseconds()

	if err := current.Verify(); err != nil {
		return nil, err
	}

	// Final metrics and assignment.
	result.Partition = make([]int32, hg.NumNodes())
	for v := hypergraph.NodeID(0); v < hg.NumNodes(); v++ {
		result.Partition[v] = current.PartOf(v)
	}
	result.Cut = partition.Cut(current)
	result.KM1 = partition.KM1(current)
	result.SOED = partition.SOED(current)
	result.Quality = partition.Quality(current, objective)
	result.Imbalance = partition.Imbalance(current)
	result.Statistics.TotalMS = time.Since(startTime).Milliseconds()
	result.Statistics.MemoryPeakMB = memoryUsageMB()

	pt.logger.Info().
		Int64("quality", result.Quality).
		Int64("cut", result.Cut).
		Int64("km1", result.KM1).
		Float64("imbalance", result.Imbalance).
		Int64("runtime_ms", result.Statistics.TotalMS).
		Msg("Partitioning completed")

	return result, nil
}

// project lifts the partition one level down the hierarchy: every fine
// vertex adopts the block of its coarse representative.
func (pt *Partitioner) project(level coarsening.Level, coarse *partition.PartitionedHypergraph, k partition.PartID, maxPartWeight int64) *partition.PartitionedHypergraph {
	fine := partition.NewPartitionedHypergraph(level.Fine, k, maxPartWeight)
	n := int(level.Fine.NumNodes())
	parts := make([]int32, n)
	parallel.ForEach(n, pt.cfg.NumThreads(), func(v int) {
		if cv := level.ClusterMap[v]; cv != hypergraph.InvalidNode {
			parts[v] = coarse.PartOf(cv)
		} else {
			parts[v] = partition.InvalidPart
		}
	})
	for v := 0; v < n; v++ {
		if parts[v] != partition.InvalidPart {
			fine.SetOnlyPart(hypergraph.NodeID(v), parts[v])
		}
	}
	fine.InitializePartition(pt.cfg.NumThreads())
	return fine
}

func (pt *Partitioner) refineLevel(p *partition.PartitionedHypergraph, refiners []refinement.Refiner, deadline time.Time, level int, objective partition.Objective, result *Result) {
	levelStart := time.Now()
	before := partition.Quality(p, objective)
	for _, r := range refiners {
		r.Initialize(p)
		r.Refine(p, deadline)
	}
	after := partition.Quality(p, objective)
	result.Levels = append(result.Levels, LevelInfo{
		Level:         level,
		NumNodes:      p.Hypergraph().NumNodes(),
		NumEdges:      p.Hypergraph().NumEdges(),
		QualityBefore: before,
		QualityAfter:  after,
		RuntimeMS:     time.Since(levelStart).Milliseconds(),
	})
	if pt.cfg.EnableProgress() {
		pt.logger.Info().
			Int("level", level).
			Uint32("nodes", p.Hypergraph().NumNodes()).
			Int64("quality_before", before).
			Int64("quality_after", after).
			Msg("Refined level")
	}
}

// createRefiners instantiates the configured refiner chain: label
// propagation, FM, then flow.
func (pt *Partitioner) createRefiners(objective partition.Objective) ([]refinement.Refiner, error) {
	lpAlg, err := refinement.ParseLPAlgorithm(pt.cfg.LPAlgorithm())
	if err != nil {
		return nil, err
	}
	fmAlg, err := refinement.ParseFMAlgorithm(pt.cfg.FMAlgorithm())
	if err != nil {
		return nil, err
	}
	flowAlg, err := refinement.ParseFlowAlgorithm(pt.cfg.FlowAlgorithm())
	if err != nil {
		return nil, err
	}

	var refiners []refinement.Refiner
	for _, alg := range []refinement.Algorithm{lpAlg, fmAlg, flowAlg} {
		if alg == refinement.DoNothing {
			continue
		}
		r, err := refinement.Create(alg, pt.cfg, objective, pt.logger)
		if err != nil {
			return nil, err
		}
		refiners = append(refiners, r)
	}
	return refiners, nil
}

func memoryUsageMB() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.Alloc / 1024 / 1024)
}
