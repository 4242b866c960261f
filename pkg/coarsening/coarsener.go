// Package coarsening drives the multilevel coarsening phase: it repeatedly
// computes a clustering with a heavy-edge rating and contracts it, building
// the hierarchy the uncoarsener later walks back up.
package coarsening

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/config"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/hypergraph"
)

// Level is one step of the hierarchy: the fine hypergraph and the cluster map
// that produced the next-coarser one.
type Level struct {
	Fine       *hypergraph.Hypergraph
	ClusterMap []hypergraph.NodeID // fine vertex -> coarse vertex
}

// Hierarchy is the ordered sequence of contraction levels, finest first,
// plus the coarsest hypergraph the initial partitioner runs on.
type Hierarchy struct {
	Levels   []Level
	Coarsest *hypergraph.Hypergraph
}

// Coarsener owns the hierarchy construction.
type Coarsener struct {
	cfg    *config.Config
	logger zerolog.Logger
	rng    *rand.Rand
}

// NewCoarsener creates a coarsener seeded from the configuration.
func NewCoarsener(cfg *config.Config, logger zerolog.Logger) *Coarsener {
	return &Coarsener{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(cfg.Seed())),
	}
}

// Coarsen builds the hierarchy. It stops once the vertex count falls below
// contraction_limit_multiplier * k or a level shrinks less than the minimum
// shrink factor.
func (c *Coarsener) Coarsen(hg *hypergraph.Hypergraph) *Hierarchy {
	hierarchy := &Hierarchy{Coarsest: hg}
	contractionLimit := uint32(c.cfg.ContractionLimitMultiplier() * int(c.cfg.K()))
	maxClusterWeight := int64(c.cfg.MaxAllowedWeightMultiplier() * float64(hg.TotalWeight()) / float64(c.cfg.K()))
	if maxClusterWeight < 1 {
		maxClusterWeight = 1
	}
	workers := c.cfg.NumThreads()

	current := hg
	for level := 0; level < c.cfg.MaxLevels() && current.NumNodes() > contractionLimit; level++ {
		levelStart := time.Now()
		clusters, numClusters := c.cluster(current, maxClusterWeight)

		shrink := float64(current.NumNodes()) / float64(numClusters)
		if shrink < c.cfg.MinimumShrinkFactor() {
			c.logger.Debug().
				Int("level", level).
				Float64("shrink_factor", shrink).
				Msg("Shrink factor below threshold, stopping coarsening")
			break
		}

		coarse := current.Contract(clusters, workers)
		hierarchy.Levels = append(hierarchy.Levels, Level{Fine: current, ClusterMap: clusters})
		hierarchy.Coarsest = coarse

		if c.cfg.EnableProgress() {
			c.logger.Info().
				Int("level", level).
				Uint32("fine_nodes", current.NumNodes()).
				Uint32("coarse_nodes", coarse.NumNodes()).
				Uint32("coarse_edges", coarse.NumEdges()).
				Int64("runtime_ms", time.Since(levelStart).Milliseconds()).
				Msg("Contracted level")
		}
		current = coarse
	}

	return hierarchy
}

// cluster computes a single clustering pass. Every vertex rates the clusters
// of its neighbors with the heavy-edge score w(e)/(|e|-1) and joins the best
// one that respects the cluster weight cap (and, if enabled, its community).
func (c *Coarsener) cluster(hg *hypergraph.Hypergraph, maxClusterWeight int64) ([]hypergraph.NodeID, uint32) {
	n := int(hg.NumNodes())
	clusters := make([]hypergraph.NodeID, n)
	clusterWeight := make([]int64, n)
	// A vertex that absorbed members is pinned as its cluster's root;
	// letting it move would tear the cluster apart.
	hasMembers := make([]bool, n)
	for v := 0; v < n; v++ {
		clusters[v] = hypergraph.NodeID(v)
		clusterWeight[v] = hg.NodeWeight(hypergraph.NodeID(v))
	}

	order := make([]hypergraph.NodeID, n)
	for v := 0; v < n; v++ {
		order[v] = hypergraph.NodeID(v)
	}
	if !c.cfg.Deterministic() {
		c.rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	useCommunities := c.cfg.UseCommunityStructure()
	ratings := make(map[hypergraph.NodeID]float64)
	numClusters := uint32(n)

	for _, v := range order {
		if !hg.NodeIsEnabled(v) || clusters[v] != v || hasMembers[v] || clusterWeight[v] > maxClusterWeight {
			continue
		}
		for k := range ratings {
			delete(ratings, k)
		}
		for _, e := range hg.IncidentEdges(v) {
			size := hg.EdgeSize(e)
			if size < 2 {
				continue
			}
			score := float64(hg.EdgeWeight(e)) / float64(size-1)
			for _, u := range hg.Pins(e) {
				if u == v {
					continue
				}
				ratings[clusters[u]] += score
			}
		}

		best := hypergraph.InvalidNode
		bestScore := 0.0
		for target, score := range ratings {
			if target == v {
				continue
			}
			if clusterWeight[target]+hg.NodeWeight(v) > maxClusterWeight {
				continue
			}
			if useCommunities && hg.CommunityID(hypergraph.NodeID(target)) != hg.CommunityID(v) {
				continue
			}
			if score > bestScore || (score == bestScore && best != hypergraph.InvalidNode && target < best) {
				best = target
				bestScore = score
			}
		}
		if best != hypergraph.InvalidNode {
			clusters[v] = best
			clusterWeight[best] += hg.NodeWeight(v)
			hasMembers[best] = true
			numClusters--
		}
	}

	return clusters, numClusters
}
