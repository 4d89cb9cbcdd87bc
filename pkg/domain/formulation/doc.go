// Package formulation holds an optimization problem as plain data: typed decision
// variables, linear constraints and a single linear objective.
//
// A Formulation is produced once by a Builder and never mutated afterwards, so it can be
// inspected by tests, exported, or handed to any Solver implementation. Solvers return a
// Solution carrying one value per variable plus a Status.
package formulation
