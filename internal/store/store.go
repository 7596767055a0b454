// Package store implements the artifact store (spec C1): the deterministic
// on-disk layout, sample-number allocation, three-file sample writes (each
// file written atomically, the PCAP witness last), and
// the boot-time recovery scan that recomputes cell counters from files.
//
// Directory encoding of mode (§9 open question) is `<relay>[_daita]/<line>`:
// mode-off samples live under `D/<relay>/<line>`, mode-on samples live under
// `D/<relay>_daita/<line>`. Recovery and scaffolding both follow this layout
// consistently, per the spec's instruction to pick one and commit.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"vpnmeasure-coordinator/internal/logger"
	"vpnmeasure-coordinator/internal/matrix"
)

const daitaSuffix = "_daita"

// Store manages the on-disk artifact tree rooted at Root.
type Store struct {
	Root string
	log  *logger.Logger
}

// New returns a Store rooted at root.
func New(root string, log *logger.Logger) *Store {
	return &Store{Root: root, log: log}
}

// relayDir returns the directory name encoding (relay, mode).
func relayDir(relay string, mode matrix.Mode) string {
	if mode == matrix.ModeOn {
		return relay + daitaSuffix
	}
	return relay
}

// splitRelayDir reverses relayDir, reporting the relay name and mode it encodes.
func splitRelayDir(name string) (relay string, mode matrix.Mode) {
	if strings.HasSuffix(name, daitaSuffix) {
		return strings.TrimSuffix(name, daitaSuffix), matrix.ModeOn
	}
	return name, matrix.ModeOff
}

// CellDir returns the directory holding cell's samples.
func (s *Store) CellDir(relay string, mode matrix.Mode, line int) string {
	return filepath.Join(s.Root, relayDir(relay, mode), strconv.Itoa(line))
}

// Scaffold creates D/<relay>[_daita]/<line> for every (relay, mode, line)
// combination that does not already exist. Safe to call on a fresh or a
// partially-populated root.
func (s *Store) Scaffold(relays []string, lineCount int) error {
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return fmt.Errorf("store: create root %s: %w", s.Root, err)
	}
	for _, r := range relays {
		for _, mode := range []matrix.Mode{matrix.ModeOn, matrix.ModeOff} {
			for line := 0; line < lineCount; line++ {
				dir := s.CellDir(r, mode, line)
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("store: scaffold %s: %w", dir, err)
				}
			}
		}
	}
	return nil
}

// AllocateSampleNumber returns the smallest non-negative integer not already
// present as a .png file-stem in dir (spec.md §4.1).
func (s *Store) AllocateSampleNumber(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("store: read %s: %w", dir, err)
	}
	used := make(map[int]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".png") {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSuffix(name, ".png")); err == nil {
			used[n] = true
		}
	}
	for n := 0; ; n++ {
		if !used[n] {
			return n, nil
		}
	}
}

// WriteSample writes the three sibling files for sample n in dir. The PCAP
// witness file is written last: a crash between the PNG/JSON writes and the
// PCAP write leaves the sample uncounted on the next recovery scan, so a
// partial write never advances a cell's counter (§4.1, §4.5 failure note).
func (s *Store) WriteSample(dir string, n int, png, pcap []byte, metadataJSON []byte) error {
	stem := filepath.Join(dir, strconv.Itoa(n))

	var pretty []byte
	if json.Valid(metadataJSON) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, metadataJSON, "", "  "); err == nil {
			pretty = []byte(buf.String())
		}
	}
	if pretty == nil {
		pretty = metadataJSON
	}

	if err := writeFileAtomic(stem+".png", png); err != nil {
		return fmt.Errorf("store: write png: %w", err)
	}
	if err := writeFileAtomic(stem+".json", pretty); err != nil {
		return fmt.Errorf("store: write json: %w", err)
	}
	if err := writeFileAtomic(stem+".pcap", pcap); err != nil {
		return fmt.Errorf("store: write pcap: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to path via a temp file + rename, the same
// create-temp/write/close/rename sequence the teacher's management package
// uses to persist its domain registry (internal/management/management.go,
// DomainRegistry.persist) without ever leaving a half-written file at path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".sample-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        //nolint:errcheck // best-effort cleanup
		os.Remove(tmpName) //nolint:errcheck // #nosec G703 -- tmpName from os.CreateTemp, not user input
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck // #nosec G703 -- tmpName from os.CreateTemp, not user input
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName) //nolint:errcheck // #nosec G703 -- tmpName from os.CreateTemp, not user input
		return err
	}
	return nil
}

func countPCAPs(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".pcap") {
			count++
		}
	}
	return count, nil
}

// RecoverIndexed scans Root and returns counts keyed by (relay, mode, line)
// rather than (relay, mode, URL) — the caller resolves line back to a URL
// using the boot-time line() mapping, since Store has no notion of URLs.
func (s *Store) RecoverIndexed(relays []string, lineCount int) (map[LineCell]int, error) {
	known := make(map[string]bool, len(relays))
	for _, r := range relays {
		known[r] = true
	}

	counts := make(map[LineCell]int)

	entries, err := os.ReadDir(s.Root)
	if os.IsNotExist(err) {
		return counts, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read root %s: %w", s.Root, err)
	}

	// Sort for deterministic log ordering; scan result itself is a map.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		relay, mode := splitRelayDir(e.Name())
		if !known[relay] {
			s.log.Warnf("recover", "skipping unrecognised relay directory %q", e.Name())
			continue
		}

		relayPath := filepath.Join(s.Root, e.Name())
		lineEntries, err := os.ReadDir(relayPath)
		if err != nil {
			s.log.Warnf("recover", "skipping unreadable directory %q: %v", relayPath, err)
			continue
		}
		for _, le := range lineEntries {
			if !le.IsDir() {
				continue
			}
			line, err := strconv.Atoi(le.Name())
			if err != nil || line < 0 || line >= lineCount {
				s.log.Warnf("recover", "skipping unrecognised line directory %q/%q", e.Name(), le.Name())
				continue
			}
			pcapCount, err := countPCAPs(filepath.Join(relayPath, le.Name()))
			if err != nil {
				return nil, fmt.Errorf("store: count pcaps in %s/%s: %w", e.Name(), le.Name(), err)
			}
			counts[LineCell{Relay: relay, Mode: mode, Line: line}] = pcapCount
		}
	}
	return counts, nil
}

// LineCell identifies a cell by its (relay, mode, line) coordinates, used
// only at recovery time before line is resolved back to a URL.
type LineCell struct {
	Relay string
	Mode  matrix.Mode
	Line  int
}
