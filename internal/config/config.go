// Package config loads and holds all coordinator configuration.
// Settings are layered: defaults → coordinator-config.json → environment
// variables (env vars win).
package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
)

// Config holds the full coordinator configuration.
type Config struct {
	// DataDir is the root of the on-disk artifact tree (C1).
	DataDir string `json:"datadir"`
	// URLList is the path to the newline-delimited list of URLs to visit.
	URLList string `json:"urllist"`
	// VPNList is the path to the newline-delimited list of VPN relay names.
	VPNList string `json:"vpnlist"`
	// Database is the path to the JSON file holding the credential pool.
	Database string `json:"database"`

	// Samples is the per-cell target sample count, 1 <= Samples < 1000.
	Samples int `json:"samples"`
	// Visits is the worker's local rotation budget, passed through verbatim.
	Visits int `json:"visits"`

	Host string `json:"host"`
	Port int    `json:"port"`

	LogLevel string `json:"logLevel"`

	// AllowHTTPURLs relaxes the boot-time URL check to accept plain HTTP in
	// addition to HTTPS (§9 open question: "HTTP vs HTTPS in URL list").
	AllowHTTPURLs bool `json:"allowHTTPURLs"`

	// RelayInventoryURL is the external inventory endpoint consulted at boot
	// to validate the configured relay list (§4.8 step 2).
	RelayInventoryURL string `json:"relayInventoryURL"`

	// Submission size bounds (§4.5 step 3). Defaults: 10 KiB / 3 MiB / 10 KiB.
	MinPCAPBytes int64 `json:"minPCAPBytes"`
	MaxPCAPBytes int64 `json:"maxPCAPBytes"`
	MinPNGBytes  int64 `json:"minPNGBytes"`

	// Worker-side timing and display fields, passed through /setup verbatim
	// (§6, supplemented from original_source/client/ubuntu_desktop/client.py).
	Grace                     int  `json:"grace"`
	MinWait                   int  `json:"minWait"`
	MaxWait                   int  `json:"maxWait"`
	DisplayWidth              int  `json:"displayWidth"`
	DisplayHeight             int  `json:"displayHeight"`
	Fullscreen                bool `json:"fullscreen"`
	PostBrowserPreCaptureWait int  `json:"postBrowserPreCaptureWait"`
	PostPacketPreVisitWait    int  `json:"postPacketPreVisitWait"`
}

// DisplaySize returns the worker's display geometry as the [w, h] pair the
// /setup response wire format expects.
func (c *Config) DisplaySize() [2]int {
	return [2]int{c.DisplayWidth, c.DisplayHeight}
}

// Load returns config with defaults overridden by coordinator-config.json
// and environment variables.
func Load() *Config {
	cfg := defaults()
	loadFile(cfg, "coordinator-config.json")
	loadEnv(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		DataDir:  "./data",
		Samples:  100,
		Visits:   10,
		Host:     "0.0.0.0",
		Port:     5000,
		LogLevel: "info",

		AllowHTTPURLs:     false,
		RelayInventoryURL: "https://api.mullvad.net/app/v1/relays",

		MinPCAPBytes: 10 * 1024,
		MaxPCAPBytes: 3 * 1024 * 1024,
		MinPNGBytes:  10 * 1024,

		Grace:                     0,
		MinWait:                   5,
		MaxWait:                   20,
		DisplayWidth:              1920,
		DisplayHeight:             1080,
		Fullscreen:                true,
		PostBrowserPreCaptureWait: 2,
		PostPacketPreVisitWait:    2,
	}
}

func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path) //nolint:gosec // G703: path is a controlled config file path, not user input
	if err != nil {
		return // file is optional
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Printf("[CONFIG] Warning: could not parse %s: %v", path, err)
	} else {
		log.Printf("[CONFIG] Loaded %s", path)
	}
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("DATADIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("URLLIST"); v != "" {
		cfg.URLList = v
	}
	if v := os.Getenv("VPNLIST"); v != "" {
		cfg.VPNList = v
	}
	if v := os.Getenv("DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("SAMPLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Samples = n
		}
	}
	if v := os.Getenv("VISITS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Visits = n
		}
	}
	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ALLOW_HTTP_URLS"); v == "true" {
		cfg.AllowHTTPURLs = true
	}
	if v := os.Getenv("RELAY_INVENTORY_URL"); v != "" {
		cfg.RelayInventoryURL = v
	}
}
