// Package matrix implements the experiment matrix (spec C2): the cells
// (relay, mode, URL), their completion counters, the pending-work set, and
// the URL↔index bijection fixed at boot.
//
// Matrix itself holds no lock — spec.md's C6 concurrency core wraps every
// mutating call behind the coordinator's single mutex, exactly as the
// teacher's DomainRegistry is wrapped by management.Server, except here the
// lock lives one layer up (in package coordinator) because C2-C5 share it.
package matrix

import "fmt"

// Mode is the binary traffic-shaping attribute carried end-to-end as "on"/"off".
type Mode string

// The two recognised shaping modes.
const (
	ModeOn  Mode = "on"
	ModeOff Mode = "off"
)

// ParseMode validates a wire-format mode string.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeOn:
		return ModeOn, true
	case ModeOff:
		return ModeOff, true
	default:
		return "", false
	}
}

// Cell is one (relay, mode, URL) coordinate of the experiment matrix.
type Cell struct {
	Relay string
	Mode  Mode
	URL   string
}

func (c Cell) String() string {
	return fmt.Sprintf("%s/%s/%s", c.Relay, c.Mode, c.URL)
}

// Matrix holds the fixed URL/relay set, the URL→index bijection, and the
// per-cell completion counters. The zero value is not usable; use New.
type Matrix struct {
	urls   []string
	relays []string
	line   map[string]int
	// samples is the process-wide per-cell target, 1 <= samples < 1000.
	samples int

	counter map[Cell]int
	pending map[Cell]bool
}

// New builds a Matrix for the given URLs and relays, with every cell
// initially at counter 0 (fully pending). urls must already be validated
// unique by the caller (spec.md §4.8 step 1); line(u) is the position of u
// in urls.
func New(urls, relays []string, samples int) *Matrix {
	m := &Matrix{
		urls:    append([]string(nil), urls...),
		relays:  append([]string(nil), relays...),
		line:    make(map[string]int, len(urls)),
		samples: samples,
		counter: make(map[Cell]int),
		pending: make(map[Cell]bool),
	}
	for i, u := range urls {
		m.line[u] = i
	}
	for _, r := range relays {
		for _, mode := range []Mode{ModeOn, ModeOff} {
			for _, u := range urls {
				cell := Cell{Relay: r, Mode: mode, URL: u}
				m.counter[cell] = 0
				m.pending[cell] = true
			}
		}
	}
	return m
}

// Line returns the fixed integer index of url, and whether it is known.
func (m *Matrix) Line(url string) (int, bool) {
	i, ok := m.line[url]
	return i, ok
}

// URLs returns the ordered URL list fixed at boot.
func (m *Matrix) URLs() []string { return append([]string(nil), m.urls...) }

// Relays returns the relay list fixed at boot.
func (m *Matrix) Relays() []string { return append([]string(nil), m.relays...) }

// Samples returns the per-cell target.
func (m *Matrix) Samples() int { return m.samples }

// Counter returns the current completion count for cell. Unknown cells
// report 0.
func (m *Matrix) Counter(cell Cell) int { return m.counter[cell] }

// SetCounter sets cell's counter directly, used only during boot-time
// recovery (§4.1 recover()) to seed counts from the on-disk witness scan.
// It is not used on the request path — requests only ever increment by one
// via RecordAccepted.
func (m *Matrix) SetCounter(cell Cell, n int) {
	if _, known := m.counter[cell]; !known {
		return
	}
	m.counter[cell] = n
	if n < m.samples {
		m.pending[cell] = true
	} else {
		delete(m.pending, cell)
	}
}

// IsOpen reports whether cell's counter is below the target (invariant I2).
func (m *Matrix) IsOpen(cell Cell) bool {
	return m.counter[cell] < m.samples
}

// Exists reports whether cell is a known (relay, mode, URL) coordinate.
func (m *Matrix) Exists(cell Cell) bool {
	_, ok := m.counter[cell]
	return ok
}

// RecordAccepted increments cell's counter by one, removing it from the
// pending set if it is now full. The caller must have already confirmed
// cell.IsOpen() under the same lock acquisition (spec.md §4.2 precondition).
func (m *Matrix) RecordAccepted(cell Cell) error {
	if !m.Exists(cell) {
		return fmt.Errorf("matrix: unknown cell %s", cell)
	}
	if m.counter[cell] >= m.samples {
		return fmt.Errorf("matrix: cell %s already at target", cell)
	}
	m.counter[cell]++
	if m.counter[cell] >= m.samples {
		delete(m.pending, cell)
	}
	return nil
}

// OpenCells returns the full pending set (invariant I1).
func (m *Matrix) OpenCells() []Cell {
	out := make([]Cell, 0, len(m.pending))
	for c := range m.pending {
		out = append(out, c)
	}
	return out
}

// OpenPairs returns the set of distinct (relay, mode) pairs that currently
// have at least one open cell.
func (m *Matrix) OpenPairs() []Pair {
	seen := make(map[Pair]bool)
	for c := range m.pending {
		seen[Pair{Relay: c.Relay, Mode: c.Mode}] = true
	}
	out := make([]Pair, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	return out
}

// OpenURLsFor returns the set of URLs with an open cell for (relay, mode).
func (m *Matrix) OpenURLsFor(relay string, mode Mode) []string {
	var out []string
	for c := range m.pending {
		if c.Relay == relay && c.Mode == mode {
			out = append(out, c.URL)
		}
	}
	return out
}

// TotalToCollect returns samples * |urls| * |relays| * 2 (two modes).
func (m *Matrix) TotalToCollect() int {
	return m.samples * len(m.urls) * len(m.relays) * 2
}

// TotalCollected returns the sum of every cell's counter.
func (m *Matrix) TotalCollected() int {
	total := 0
	for _, n := range m.counter {
		total += n
	}
	return total
}

// Pair is a (relay, mode) combination, the unit the relay/mode selection
// policy (spec C4 §4.4.1) reasons about.
type Pair struct {
	Relay string
	Mode  Mode
}
