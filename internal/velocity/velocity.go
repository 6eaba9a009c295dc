// Package velocity computes per-account transaction-rate features purely
// from in-batch graph aggregates. Unlike the teacher's velocity.Service,
// this never consults a repository or cache: the engine's Non-goals
// exclude cross-batch state from feeding detection or scoring, so every
// feature here is derived solely from the Account built by internal/graph
// for the current Analyze call.
package velocity

import "github.com/opensource-finance/mulegraph/internal/graph"

// Rate returns the account's transaction rate in transactions per hour,
// using tx_count / max(1, hours_active) as its denominator.
func Rate(a *graph.Account) float64 {
	if a == nil || a.TxCount == 0 {
		return 0
	}
	return float64(a.TxCount) / a.HoursActive()
}
