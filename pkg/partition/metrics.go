package partition

import (
	"fmt"

	"github.com/gilchrisn/hypergraph-partition-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partition-service/pkg/validation"
)

// Objective selects the quantity the partitioner minimizes.
type Objective int

const (
	// ObjectiveCut minimizes the weight of edges spanning multiple blocks.
	ObjectiveCut Objective = iota
	// ObjectiveKM1 minimizes sum over edges of (connectivity-1) * weight.
	ObjectiveKM1
)

// ParseObjective maps the CLI spelling of an objective to its enum value.
func ParseObjective(s string) (Objective, error) {
	switch s {
	case "cut":
		return ObjectiveCut, nil
	case "km1":
		return ObjectiveKM1, nil
	}
	return 0, fmt.Errorf("%w: unknown objective %q", validation.ErrInvalidInput, s)
}

func (o Objective) String() string {
	if o == ObjectiveKM1 {
		return "km1"
	}
	return "cut"
}

// Cut returns the total weight of edges with connectivity greater than one.
func Cut(p *PartitionedHypergraph) int64 {
	var cut int64
	for e := hypergraph.EdgeID(0); e < p.hg.NumEdges(); e++ {
		if p.hg.EdgeIsEnabled(e) && p.Connectivity(e) > 1 {
			cut += p.hg.EdgeWeight(e)
		}
	}
	return cut
}

// KM1 returns sum over edges of (connectivity - 1) * weight.
func KM1(p *PartitionedHypergraph) int64 {
	var km1 int64
	for e := hypergraph.EdgeID(0); e < p.hg.NumEdges(); e++ {
		if !p.hg.EdgeIsEnabled(e) {
			continue
		}
		if conn := int64(p.Connectivity(e)); conn > 1 {
			km1 += (conn - 1) * p.hg.EdgeWeight(e)
		}
	}
	return km1
}

// SOED returns sum over cut edges of connectivity * weight. Reported in
// statistics only; never optimized.
func SOED(p *PartitionedHypergraph) int64 {
	var soed int64
	for e := hypergraph.EdgeID(0); e < p.hg.NumEdges(); e++ {
		if !p.hg.EdgeIsEnabled(e) {
			continue
		}
		if conn := int64(p.Connectivity(e)); conn > 1 {
			soed += conn * p.hg.EdgeWeight(e)
		}
	}
	return soed
}

// Quality evaluates the given objective.
func Quality(p *PartitionedHypergraph, o Objective) int64 {
	if o == ObjectiveKM1 {
		return KM1(p)
	}
	return Cut(p)
}

// PerfectBalancePartWeight is the ceiling of total weight over k.
func PerfectBalancePartWeight(totalWeight int64, k PartID) int64 {
	return (totalWeight + int64(k) - 1) / int64(k)
}

// MaxPartWeightFor computes the block weight bound (1+eps) * ceil(W/k).
func MaxPartWeightFor(totalWeight int64, k PartID, epsilon float64) int64 {
	return int64((1.0 + epsilon) * float64(PerfectBalancePartWeight(totalWeight, k)))
}

// Imbalance returns max_b partWeight(b) / ceil(W/k) - 1.
func Imbalance(p *PartitionedHypergraph) float64 {
	perfect := float64(PerfectBalancePartWeight(p.hg.TotalWeight(), p.k))
	var max float64
	for b := PartID(0); b < p.k; b++ {
		if balance := float64(p.PartWeight(b)) / perfect; balance > max {
			max = balance
		}
	}
	return max - 1.0
}
