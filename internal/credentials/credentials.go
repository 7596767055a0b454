// Package credentials implements the credential pool (spec C3): a pool of
// VPN credentials assigned at most once, exclusively, per worker identity.
//
// Like matrix.Matrix, Pool carries no lock of its own — the coordinator's
// single mutex (C6) serialises every Setup call, matching invariant I3
// (credential exclusivity) the same way the teacher's DomainRegistry relies
// on an external caller-held lock for its compound read-modify-write paths.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
)

// ErrNoneAvailable is returned by Setup when the pool is exhausted and the
// worker has no existing allocation.
var ErrNoneAvailable = errors.New("credentials: no available credentials remain")

// Credential is an opaque VPN account/device record handed to a worker.
// Field names and JSON tags match the wire format /setup returns and the
// on-disk database schema read at boot.
type Credential struct {
	AccountToken      string `json:"account_token"`
	DeviceID          string `json:"device_id"`
	DeviceName        string `json:"device_name"`
	DevicePrivateKey  string `json:"device_private_key"`
	DeviceIPv4Address string `json:"device_ipv4_address"`
	DeviceIPv6Address string `json:"device_ipv6_address"`
}

// database is the on-disk JSON schema: {"accounts": [...]}.
type database struct {
	Accounts []Credential `json:"accounts"`
}

// Pool holds the remaining unassigned credentials and the worker→credential
// allocation map.
type Pool struct {
	available []Credential
	allocated map[string]Credential
	total     int
}

// LoadFromFile reads the credential database at path and returns a Pool with
// its accounts shuffled, per spec.md §4.3 ("Credentials are shuffled once at
// boot with a seeded or time-seeded PRNG; shuffle order is not part of the
// contract").
func LoadFromFile(path string) (*Pool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G703: path is a trusted boot-time config path
	if err != nil {
		return nil, fmt.Errorf("credentials: read %s: %w", path, err)
	}
	var db database
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("credentials: parse %s: %w", path, err)
	}
	return New(db.Accounts, rand.Int63()), nil
}

// New builds a Pool from an explicit credential slice, shuffled with the
// given PRNG seed. Exposed directly (rather than only via LoadFromFile) so
// tests can pass a fixed seed for deterministic ordering.
func New(accounts []Credential, seed int64) *Pool {
	shuffled := append([]Credential(nil), accounts...)
	r := rand.New(rand.NewSource(seed)) //nolint:gosec // shuffle order is explicitly not part of the contract
	r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	return &Pool{
		available: shuffled,
		allocated: make(map[string]Credential),
		total:     len(shuffled),
	}
}

// Setup returns worker's assigned credential, assigning one from the pool on
// the worker's first call (spec.md §4.3, law L2 "setup stickiness").
func (p *Pool) Setup(worker string) (Credential, error) {
	if c, ok := p.allocated[worker]; ok {
		return c, nil
	}
	if len(p.available) == 0 {
		return Credential{}, ErrNoneAvailable
	}
	// Pop order is unspecified by the contract; popping the tail avoids an
	// O(n) shift of the remaining slice.
	c := p.available[len(p.available)-1]
	p.available = p.available[:len(p.available)-1]
	p.allocated[worker] = c
	return c, nil
}

// AllocatedCount returns the number of distinct workers with an assignment.
func (p *Pool) AllocatedCount() int { return len(p.allocated) }

// Total returns the pool's initial size, fixed at load time.
func (p *Pool) Total() int { return p.total }
