package stats

import "testing"

func TestSnapshot(t *testing.T) {
	s := New()
	s.SubmissionsAccepted.Add(3)
	s.SubmissionsRejectedSize.Add(1)
	s.WorkRequests.Add(10)

	snap := s.Snapshot()
	if snap.SubmissionsAccepted != 3 {
		t.Errorf("SubmissionsAccepted: got %d, want 3", snap.SubmissionsAccepted)
	}
	if snap.SubmissionsRejectedSize != 1 {
		t.Errorf("SubmissionsRejectedSize: got %d, want 1", snap.SubmissionsRejectedSize)
	}
	if snap.WorkRequests != 10 {
		t.Errorf("WorkRequests: got %d, want 10", snap.WorkRequests)
	}
}
