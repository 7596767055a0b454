// Package relayinventory fetches and validates the external VPN relay
// inventory consulted at boot (spec §4.8 step 2).
//
// The coordinator itself never talks to a relay; it only needs to confirm
// that every relay name an operator configured actually exists upstream.
// The HTTP client mirrors the teacher's own "plain net/http.Transport,
// bounded timeouts" style (internal/proxy/proxy.go) rather than reaching for
// a dedicated REST client library — the pack has none, and a single GET +
// JSON decode doesn't warrant one.
package relayinventory

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Response mirrors the subset of the Mullvad relay inventory schema the
// coordinator reads: wireguard.relays[].hostname.
type Response struct {
	Wireguard struct {
		Relays []Relay `json:"relays"`
	} `json:"wireguard"`
}

// Relay is one entry of the external relay inventory.
type Relay struct {
	Hostname string `json:"hostname"`
}

// Fetch retrieves the relay inventory from url with a bounded timeout.
func Fetch(url string) (*Response, error) {
	client := &http.Client{Timeout: 15 * time.Second}

	resp, err := client.Get(url) //nolint:noctx // boot-time call, no caller context to thread through
	if err != nil {
		return nil, fmt.Errorf("fetch relay inventory: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on response body

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch relay inventory: unexpected status %s", resp.Status)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode relay inventory: %w", err)
	}
	return &out, nil
}

// Hostnames returns the set of hostnames present in the inventory.
func (r *Response) Hostnames() map[string]bool {
	out := make(map[string]bool, len(r.Wireguard.Relays))
	for _, relay := range r.Wireguard.Relays {
		out[relay.Hostname] = true
	}
	return out
}

// Validate returns the subset of relays not present in the inventory.
func Validate(relays []string, inventory map[string]bool) []string {
	var unknown []string
	for _, r := range relays {
		if !inventory[r] {
			unknown = append(unknown, r)
		}
	}
	return unknown
}
