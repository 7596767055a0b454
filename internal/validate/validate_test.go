package validate

import (
	"encoding/hex"
	"testing"
)

func validFields() Fields {
	return Fields{
		ID:       "w1",
		URL:      "https://a.test",
		VPN:      "r1",
		Daita:    "off",
		PNGHex:   hex.EncodeToString(make([]byte, 20*1024)),
		PCAPHex:  hex.EncodeToString(make([]byte, 20*1024)),
		Metadata: `{"qoe": 1}`,
	}
}

func TestDecode_MissingField(t *testing.T) {
	f := validFields()
	f.URL = ""
	if _, err := Decode(f); err == nil {
		t.Fatal("expected error for missing url field")
	}
}

func TestDecode_InvalidDaita(t *testing.T) {
	f := validFields()
	f.Daita = "maybe"
	if _, err := Decode(f); err == nil {
		t.Fatal("expected error for invalid daita value")
	}
}

func TestDecode_BadHex(t *testing.T) {
	f := validFields()
	f.PNGHex = "not-hex!!"
	if _, err := Decode(f); err == nil {
		t.Fatal("expected error for undecodable hex")
	}
}

func TestDecode_Valid(t *testing.T) {
	f := validFields()
	d, err := Decode(f)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Relay != "r1" || string(d.Mode) != "off" {
		t.Errorf("Decode mismatch: %+v", d)
	}
	if len(d.PNG) != 20*1024 || len(d.PCAP) != 20*1024 {
		t.Errorf("Decode payload lengths: png=%d pcap=%d", len(d.PNG), len(d.PCAP))
	}
}

func defaultBounds() Bounds {
	return Bounds{MinPCAP: 10 * 1024, MaxPCAP: 3 * 1024 * 1024, MinPNG: 10 * 1024}
}

func TestCheckSize_TooSmallPCAP(t *testing.T) {
	d := &Decoded{PCAP: make([]byte, 5*1024), PNG: make([]byte, 20*1024)}
	if got := CheckSize(d, defaultBounds()); got != RejectSilently {
		t.Errorf("CheckSize: got %v, want RejectSilently", got)
	}
}

func TestCheckSize_TooLargePCAP(t *testing.T) {
	d := &Decoded{PCAP: make([]byte, 4*1024*1024), PNG: make([]byte, 20*1024)}
	if got := CheckSize(d, defaultBounds()); got != RejectSilently {
		t.Errorf("CheckSize: got %v, want RejectSilently", got)
	}
}

func TestCheckSize_TooSmallPNG(t *testing.T) {
	d := &Decoded{PCAP: make([]byte, 20*1024), PNG: make([]byte, 1*1024)}
	if got := CheckSize(d, defaultBounds()); got != RejectSilently {
		t.Errorf("CheckSize: got %v, want RejectSilently", got)
	}
}

func TestCheckSize_BoundaryInclusive(t *testing.T) {
	bounds := defaultBounds()
	d := &Decoded{PCAP: make([]byte, bounds.MinPCAP), PNG: make([]byte, bounds.MinPNG)}
	if got := CheckSize(d, bounds); got != Accept {
		t.Errorf("CheckSize at MinPCAP/MinPNG boundary: got %v, want Accept", got)
	}

	d2 := &Decoded{PCAP: make([]byte, bounds.MaxPCAP), PNG: make([]byte, bounds.MinPNG)}
	if got := CheckSize(d2, bounds); got != Accept {
		t.Errorf("CheckSize at MaxPCAP boundary: got %v, want Accept", got)
	}
}

func TestCheckSize_Accept(t *testing.T) {
	d := &Decoded{PCAP: make([]byte, 20*1024), PNG: make([]byte, 20*1024)}
	if got := CheckSize(d, defaultBounds()); got != Accept {
		t.Errorf("CheckSize: got %v, want Accept", got)
	}
}
