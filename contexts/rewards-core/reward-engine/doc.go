// Package rewardengine computes proportional token rewards from two balance
// snapshots and executes the payouts as ordered on-chain batch transfers.
//
// The calculation side is pure: eligibility is min(previous, current) balance
// with per-reason exclusion tallies, rewards are floor-divided big.Int shares
// of the pool, and the ordered recipient list is partitioned into numbered
// batches. The execution side is a resumable orchestrator over persisted
// batch state: each pass claims a single-writer lease, gates every batch on
// fee price, broadcasts through the treasury gateway, and derives the
// distribution's terminal status from batch counts. Execution outcomes are
// stored as data, never raised, so crashed and resumed passes converge.
package rewardengine
