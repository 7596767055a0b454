// Package assign implements the assignment policy (spec C4): relay/mode
// rotation for /server and URL selection within a cell for /work.
package assign

import (
	"errors"
	"math/rand"

	"vpnmeasure-coordinator/internal/matrix"
)

// ErrNoServers is returned when no (relay, mode) pair has any open cell.
var ErrNoServers = errors.New("assign: no servers available")

// ErrNoOpenURL is returned when the requested (relay, mode) pair has no open URL.
var ErrNoOpenURL = errors.New("assign: no links left to visit")

// SelectPair implements spec.md §4.4.1: pick a (relay, mode) pair with open
// work, never pinning the worker to its current pair unless it is the only
// one left open.
//
//	A := open pairs
//	if A empty: fail
//	if |A| > 1 and current ∈ A: remove current from A
//	return uniform-random element of A
func SelectPair(m *matrix.Matrix, current matrix.Pair, hasCurrent bool) (matrix.Pair, error) {
	pairs := m.OpenPairs()
	if len(pairs) == 0 {
		return matrix.Pair{}, ErrNoServers
	}

	if hasCurrent && len(pairs) > 1 {
		filtered := pairs[:0:0]
		for _, p := range pairs {
			if p != current {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) > 0 {
			pairs = filtered
		}
	}

	return pairs[rand.Intn(len(pairs))], nil //nolint:gosec // uniform pick, not security-sensitive
}

// SelectURL implements spec.md §4.4.2: pick a uniformly random open URL for
// the given (relay, mode) pair.
func SelectURL(m *matrix.Matrix, relay string, mode matrix.Mode) (string, error) {
	urls := m.OpenURLsFor(relay, mode)
	if len(urls) == 0 {
		return "", ErrNoOpenURL
	}
	return urls[rand.Intn(len(urls))], nil //nolint:gosec // uniform pick, not security-sensitive
}
