// Package refinement defines the refiner capability set and the enum-keyed
// registry concrete refiners install themselves into.
package refinement

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/config"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/partition"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/validation"
)

// Refiner improves a partitioned hypergraph in place. Initialize is called
// once per level before the first Refine; Refine returns whether it improved
// the objective. Refiners never fail: on a cooperative timeout they keep the
// best partition reached so far.
type Refiner interface {
	Initialize(p *partition.PartitionedHypergraph)
	Refine(p *partition.PartitionedHypergraph, deadline time.Time) bool
}

// Algorithm keys the refiner registry.
type Algorithm int

const (
	DoNothing Algorithm = iota
	LabelPropagationCut
	LabelPropagationKM1
	FMMultiTry
	FMBoundary
	FlowMatching
	FlowMostIndependent
)

// Factory builds a refiner from configuration.
type Factory func(cfg *config.Config, obj partition.Objective, logger zerolog.Logger) Refiner

var registry = map[Algorithm]Factory{
	DoNothing: func(*config.Config, partition.Objective, zerolog.Logger) Refiner {
		return noOpRefiner{}
	},
}

// Register installs a factory for an algorithm. Called from package init
// functions of the concrete refiners.
func Register(alg Algorithm, factory Factory) {
	registry[alg] = factory
}

// Create instantiates the refiner registered for alg.
func Create(alg Algorithm, cfg *config.Config, obj partition.Objective, logger zerolog.Logger) (Refiner, error) {
	factory, ok := registry[alg]
	if !ok {
		return nil, fmt.Errorf("%w: no refiner registered for algorithm %d", validation.ErrInvalidInput, alg)
	}
	return factory(cfg, obj, logger), nil
}

// ParseLPAlgorithm maps the CLI spelling of the label-propagation refiner.
func ParseLPAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "do_nothing":
		return DoNothing, nil
	case "cut":
		return LabelPropagationCut, nil
	case "km1":
		return LabelPropagationKM1, nil
	}
	return 0, fmt.Errorf("%w: unknown label propagation algorithm %q", validation.ErrInvalidInput, s)
}

// ParseFMAlgorithm maps the CLI spelling of the FM refiner.
func ParseFMAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "do_nothing":
		return DoNothing, nil
	case "multitry":
		return FMMultiTry, nil
	case "boundary":
		return FMBoundary, nil
	}
	return 0, fmt.Errorf("%w: unknown FM algorithm %q", validation.ErrInvalidInput, s)
}

// ParseFlowAlgorithm maps the CLI spelling of the flow scheduler policy.
func ParseFlowAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "do_nothing":
		return DoNothing, nil
	case "match":
		return FlowMatching, nil
	case "opt":
		return FlowMostIndependent, nil
	}
	return 0, fmt.Errorf("%w: unknown flow algorithm %q", validation.ErrInvalidInput, s)
}

// noOpRefiner accepts the partition as is.
type noOpRefiner struct{}

func (noOpRefiner) Initialize(*partition.PartitionedHypergraph) {}

func (noOpRefiner) Refine(*partition.PartitionedHypergraph, time.Time) bool { return false }
