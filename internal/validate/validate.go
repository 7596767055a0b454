// Package validate implements the submission validator (spec C5): required
// field presence, hex decoding, and size-bound checks for POST /work.
package validate

import (
	"encoding/hex"
	"fmt"

	"vpnmeasure-coordinator/internal/matrix"
)

// Bounds holds the size-bound tunables of spec.md §4.5 step 3.
type Bounds struct {
	MinPCAP int64
	MaxPCAP int64
	MinPNG  int64
}

// Fields is the raw POST /work form, before hex decoding.
type Fields struct {
	ID       string
	URL      string
	VPN      string
	Daita    string
	PNGHex   string
	PCAPHex  string
	Metadata string
}

// Decoded is a submission that passed field-presence and hex-decoding
// checks, ready for the size-bound check.
type Decoded struct {
	ID           string
	URL          string
	Relay        string
	Mode         matrix.Mode
	PNG          []byte
	PCAP         []byte
	MetadataJSON []byte
}

// Outcome classifies a decoded submission against the size bounds.
type Outcome int

const (
	// Accept means the submission passed every check and should be persisted.
	Accept Outcome = iota
	// RejectSilently means the submission decoded fine but fell outside the
	// size bounds; spec.md §4.5 step 3 requires a 200 response with no write
	// and no counter change — the worker "spent" the visit on an unusable
	// capture that is not worth repeating.
	RejectSilently
)

// Decode validates field presence and hex-decodes the PNG/PCAP payloads.
// A non-nil error means the request is malformed (HTTP 400).
func Decode(f Fields) (*Decoded, error) {
	if f.ID == "" || f.URL == "" || f.VPN == "" || f.Daita == "" ||
		f.PNGHex == "" || f.PCAPHex == "" || f.Metadata == "" {
		return nil, fmt.Errorf("validate: missing one or more required fields")
	}

	mode, ok := matrix.ParseMode(f.Daita)
	if !ok {
		return nil, fmt.Errorf("validate: invalid daita value %q", f.Daita)
	}

	png, err := hex.DecodeString(f.PNGHex)
	if err != nil {
		return nil, fmt.Errorf("validate: decode png_data: %w", err)
	}
	pcap, err := hex.DecodeString(f.PCAPHex)
	if err != nil {
		return nil, fmt.Errorf("validate: decode pcap_data: %w", err)
	}

	return &Decoded{
		ID:           f.ID,
		URL:          f.URL,
		Relay:        f.VPN,
		Mode:         mode,
		PNG:          png,
		PCAP:         pcap,
		MetadataJSON: []byte(f.Metadata),
	}, nil
}

// CheckSize classifies d against bounds (spec.md §4.5 step 3).
func CheckSize(d *Decoded, bounds Bounds) Outcome {
	pcapLen := int64(len(d.PCAP))
	pngLen := int64(len(d.PNG))

	if pcapLen < bounds.MinPCAP || pcapLen > bounds.MaxPCAP {
		return RejectSilently
	}
	if pngLen < bounds.MinPNG {
		return RejectSilently
	}
	return Accept
}
