package refinement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/config"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/partition"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/validation"
)

func TestParseAlgorithms(t *testing.T) {
	alg, err := ParseLPAlgorithm("km1")
	require.NoError(t, err)
	assert.Equal(t, LabelPropagationKM1, alg)

	alg, err = ParseFMAlgorithm("multitry")
	require.NoError(t, err)
	assert.Equal(t, FMMultiTry, alg)

	alg, err = ParseFlowAlgorithm("opt")
	require.NoError(t, err)
	assert.Equal(t, FlowMostIndependent, alg)

	alg, err = ParseFlowAlgorithm("do_nothing")
	require.NoError(t, err)
	assert.Equal(t, DoNothing, alg)

	for _, parse := range []func(string) (Algorithm, error){ParseLPAlgorithm, ParseFMAlgorithm, ParseFlowAlgorithm} {
		_, err := parse("bogus")
		assert.ErrorIs(t, err, validation.ErrInvalidInput)
	}
}

func TestDoNothingRefinerIsRegistered(t *testing.T) {
	cfg := config.NewConfig()
	r, err := Create(DoNothing, cfg, partition.ObjectiveCut, cfg.CreateLogger())
	require.NoError(t, err)

	assert.False(t, r.Refine(nil, time.Time{}))
}

func TestCreateUnknownAlgorithmFails(t *testing.T) {
	cfg := config.NewConfig()
	_, err := Create(Algorithm(99), cfg, partition.ObjectiveCut, cfg.CreateLogger())
	assert.ErrorIs(t, err, validation.ErrInvalidInput)
}
