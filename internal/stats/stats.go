// Package stats provides lightweight, lock-free counters for coordinator
// request outcomes, modeled on the teacher's internal/metrics package.
//
// These counters are diagnostic only — they are not part of the
// bit-exact /status wire contract spec.md §6 fixes, so adding or removing
// one never changes what a worker observes.
package stats

import "sync/atomic"

// Stats holds process-wide outcome counters for a running coordinator.
// The zero value is valid and ready to use; prefer New() for clarity.
type Stats struct {
	SubmissionsAccepted          atomic.Int64
	SubmissionsRejectedSize      atomic.Int64
	SubmissionsRejectedDuplicate atomic.Int64
	SubmissionsFailed            atomic.Int64

	SetupRequests  atomic.Int64
	ServerRequests atomic.Int64
	WorkRequests   atomic.Int64
}

// New returns a new, zeroed Stats.
func New() *Stats { return &Stats{} }

// Snapshot is a point-in-time copy of all counters, safe for logging.
type Snapshot struct {
	SubmissionsAccepted          int64
	SubmissionsRejectedSize      int64
	SubmissionsRejectedDuplicate int64
	SubmissionsFailed            int64
	SetupRequests                int64
	ServerRequests               int64
	WorkRequests                 int64
}

// Snapshot returns a point-in-time view of every counter.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		SubmissionsAccepted:          s.SubmissionsAccepted.Load(),
		SubmissionsRejectedSize:      s.SubmissionsRejectedSize.Load(),
		SubmissionsRejectedDuplicate: s.SubmissionsRejectedDuplicate.Load(),
		SubmissionsFailed:            s.SubmissionsFailed.Load(),
		SetupRequests:                s.SetupRequests.Load(),
		ServerRequests:               s.ServerRequests.Load(),
		WorkRequests:                 s.WorkRequests.Load(),
	}
}
