// Package coordinator implements the concurrency core (spec C6): the single
// mutex that serialises every mutation of the experiment matrix, the
// credential pool, and the bookkeeping timestamps. Every exported method
// except Bounds (which returns immutable configuration) acquires the lock
// for its entire body and releases it before returning,
// matching spec.md §4.6 and §9 ("model it as one owned struct holding the
// matrix, pool, counters, and timestamps, with every handler taking a
// shared reference and acquiring the lock").
package coordinator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"vpnmeasure-coordinator/internal/assign"
	"vpnmeasure-coordinator/internal/credentials"
	"vpnmeasure-coordinator/internal/logger"
	"vpnmeasure-coordinator/internal/matrix"
	"vpnmeasure-coordinator/internal/stats"
	"vpnmeasure-coordinator/internal/store"
	"vpnmeasure-coordinator/internal/validate"
)

// Sentinel errors the HTTP layer maps to the status codes fixed by §6/§7.
var (
	// ErrNoCredentials is returned by Setup when the pool is exhausted.
	ErrNoCredentials = credentials.ErrNoneAvailable
	// ErrNoOpenPair is returned by Server when no (relay, mode) pair has open work.
	ErrNoOpenPair = assign.ErrNoServers
	// ErrRotateRequired is returned by Work when the worker has no current
	// server, or the current pair has no open URL — both mean "call /server".
	ErrRotateRequired = errors.New("coordinator: worker must request a new server")
	// ErrUnknownCell is returned by Submit when (relay, mode, url) is not a
	// recognised cell of the matrix.
	ErrUnknownCell = errors.New("coordinator: unknown cell")
)

// SubmitOutcome classifies the result of a successful Submit call.
type SubmitOutcome int

const (
	// SubmitAccepted means the sample was written and the counter advanced.
	SubmitAccepted SubmitOutcome = iota
	// SubmitAlreadyDone means the cell was already at its target; nothing
	// was written (law L1, idempotent excess submit).
	SubmitAlreadyDone
)

// SubmitResult is the outcome of a single POST /work submission.
type SubmitResult struct {
	Outcome      SubmitOutcome
	SampleNumber int
}

// StatusSnapshot is a point-in-time view for GET /status (§6).
type StatusSnapshot struct {
	TotalToCollect    int
	TotalCollected    int
	Elapsed           time.Duration
	LastUpdate        time.Duration
	UniqueClients     []string
	AllocatedAccounts string
}

// State is the single shared experiment-state object: the matrix, the
// credential pool, and the bookkeeping the HTTP surface needs, all behind
// one mutex.
type State struct {
	mu sync.Mutex

	matrix *matrix.Matrix
	pool   *credentials.Pool
	store  *store.Store
	bounds validate.Bounds

	log   *logger.Logger
	stats *stats.Stats

	startTime     time.Time
	lastUpdate    time.Time
	uniqueClients map[string]bool
}

// New builds a State around an already-booted matrix, credential pool, and
// artifact store (spec.md §4.8 steps 4-5 must have already run).
func New(m *matrix.Matrix, pool *credentials.Pool, st *store.Store, bounds validate.Bounds, log *logger.Logger, stat *stats.Stats) *State {
	now := time.Now()
	return &State{
		matrix:        m,
		pool:          pool,
		store:         st,
		bounds:        bounds,
		log:           log,
		stats:         stat,
		startTime:     now,
		lastUpdate:    now,
		uniqueClients: make(map[string]bool),
	}
}

// Setup implements spec.md §4.3: one-shot, sticky credential assignment.
func (s *State) Setup(worker string) (credentials.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.SetupRequests.Add(1)
	return s.pool.Setup(worker)
}

// Server implements spec.md §4.4.1: relay/mode rotation for GET /server.
func (s *State) Server(worker string, current matrix.Pair, hasCurrent bool) (matrix.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.uniqueClients[worker] = true
	s.stats.ServerRequests.Add(1)
	return assign.SelectPair(s.matrix, current, hasCurrent)
}

// Work implements spec.md §4.4.2: URL selection for GET /work.
//
// hasServer distinguishes "worker has no server yet" (server == "None" on
// the wire) from a normal request; both that case and an exhausted pair
// return ErrRotateRequired, since both mean the worker must call /server.
func (s *State) Work(worker string, relay string, mode matrix.Mode, hasServer bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.uniqueClients[worker] = true
	s.stats.WorkRequests.Add(1)

	if !hasServer {
		return "", ErrRotateRequired
	}
	url, err := assign.SelectURL(s.matrix, relay, mode)
	if err != nil {
		return "", ErrRotateRequired
	}
	return url, nil
}

// Submit implements spec.md §4.5 steps 4-5: the lock-guarded portion of
// submission handling. Field validation and the size-bound check (steps
// 1-3) happen in the HTTP layer before Submit is ever called, since they
// need no shared state.
func (s *State) Submit(d *validate.Decoded) (SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cell := matrix.Cell{Relay: d.Relay, Mode: d.Mode, URL: d.URL}
	if !s.matrix.Exists(cell) {
		return SubmitResult{}, ErrUnknownCell
	}
	if !s.matrix.IsOpen(cell) {
		s.stats.SubmissionsRejectedDuplicate.Add(1)
		return SubmitResult{Outcome: SubmitAlreadyDone}, nil
	}

	line, ok := s.matrix.Line(d.URL)
	if !ok {
		return SubmitResult{}, ErrUnknownCell
	}
	dir := s.store.CellDir(d.Relay, d.Mode, line)

	n, err := s.store.AllocateSampleNumber(dir)
	if err != nil {
		s.stats.SubmissionsFailed.Add(1)
		return SubmitResult{}, fmt.Errorf("coordinator: allocate sample number: %w", err)
	}
	if err := s.store.WriteSample(dir, n, d.PNG, d.PCAP, d.MetadataJSON); err != nil {
		s.stats.SubmissionsFailed.Add(1)
		return SubmitResult{}, fmt.Errorf("coordinator: write sample: %w", err)
	}

	if err := s.matrix.RecordAccepted(cell); err != nil {
		// Should be unreachable given the IsOpen check above, under the same
		// lock acquisition; surfacing it rather than panicking keeps the
		// handler's error path uniform.
		return SubmitResult{}, fmt.Errorf("coordinator: record accepted: %w", err)
	}
	s.lastUpdate = time.Now()
	s.stats.SubmissionsAccepted.Add(1)

	return SubmitResult{Outcome: SubmitAccepted, SampleNumber: n}, nil
}

// RejectSilently records a size-bound rejection for visibility (spec.md
// §4.5 step 3). It takes no matrix action — the cell remains open and no
// counter changes, matching the "coordinator declines silently" contract.
func (s *State) RejectSilently() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.SubmissionsRejectedSize.Add(1)
}

// Bounds returns the configured submission size bounds, read without the
// lock since they are immutable after boot.
func (s *State) Bounds() validate.Bounds { return s.bounds }

// Status implements GET /status (§6).
func (s *State) Status() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := make([]string, 0, len(s.uniqueClients))
	for c := range s.uniqueClients {
		clients = append(clients, c)
	}

	return StatusSnapshot{
		TotalToCollect:    s.matrix.TotalToCollect(),
		TotalCollected:    s.matrix.TotalCollected(),
		Elapsed:           time.Since(s.startTime),
		LastUpdate:        time.Since(s.lastUpdate),
		UniqueClients:     clients,
		AllocatedAccounts: fmt.Sprintf("%d/%d", s.pool.AllocatedCount(), s.pool.Total()),
	}
}
