// Package validation defines the error kinds the partitioning core reports.
// Leaves wrap one of these sentinels with context; the driver decides
// fatality.
package validation

import "errors"

// ErrInvalidInput covers malformed files, out-of-range pin ids, k < 2 and
// epsilon <= 0. Fatal.
var ErrInvalidInput = errors.New("invalid input")

// ErrBalanceInfeasible is reported when no initial partition can respect the
// maximum part weight at the coarsest level. Fatal for the run.
var ErrBalanceInfeasible = errors.New("balance infeasible")

// ErrInvariantViolated signals an internal consistency failure (pin-count sum
// mismatch, negative part weight). Non-recoverable; indicates a bug.
var ErrInvariantViolated = errors.New("invariant violated")

// ErrTimeLimit is the cooperative refinement timeout. Locally recovered; the
// current level keeps its best-so-far partition.
var ErrTimeLimit = errors.New("time limit reached")
