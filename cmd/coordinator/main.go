// Command coordinator runs the VPN-measurement experiment coordinator: it
// loads the URL and relay lists, validates the relay list against the
// external Mullvad inventory, scaffolds or recovers the on-disk artifact
// tree, loads the credential database, and serves the worker-facing HTTP
// surface until terminated.
//
// Usage:
//
//	./coordinator
//
// Configuration is loaded from coordinator-config.json (optional) and
// environment variables; see internal/config.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"vpnmeasure-coordinator/internal/config"
	"vpnmeasure-coordinator/internal/coordinator"
	"vpnmeasure-coordinator/internal/credentials"
	"vpnmeasure-coordinator/internal/httpapi"
	"vpnmeasure-coordinator/internal/logger"
	"vpnmeasure-coordinator/internal/matrix"
	"vpnmeasure-coordinator/internal/relayinventory"
	"vpnmeasure-coordinator/internal/stats"
	"vpnmeasure-coordinator/internal/store"
	"vpnmeasure-coordinator/internal/validate"
)

func main() {
	cfg := config.Load()
	log := logger.New("BOOT", cfg.LogLevel)

	urls, err := loadURLList(cfg.URLList, cfg.AllowHTTPURLs)
	if err != nil {
		log.Fatalf("boot", "load url list: %v", err)
	}
	relays, err := loadLines(cfg.VPNList)
	if err != nil {
		log.Fatalf("boot", "load vpn list: %v", err)
	}

	inventory, err := relayinventory.Fetch(cfg.RelayInventoryURL)
	if err != nil {
		log.Fatalf("boot", "fetch relay inventory: %v", err)
	}
	if unknown := relayinventory.Validate(relays, inventory.Hostnames()); len(unknown) > 0 {
		log.Fatalf("boot", "relay(s) not present in inventory: %s", strings.Join(unknown, ", "))
	}

	m := matrix.New(urls, relays, cfg.Samples)

	st := store.New(cfg.DataDir, logger.New("STORE", cfg.LogLevel))
	if err := st.Scaffold(relays, len(urls)); err != nil {
		log.Fatalf("boot", "scaffold data dir: %v", err)
	}
	recovered, err := st.RecoverIndexed(relays, len(urls))
	if err != nil {
		log.Fatalf("boot", "recover data dir: %v", err)
	}
	urlByLine := make([]string, len(urls))
	for _, u := range urls {
		line, _ := m.Line(u)
		urlByLine[line] = u
	}
	for lc, n := range recovered {
		cell := matrix.Cell{Relay: lc.Relay, Mode: lc.Mode, URL: urlByLine[lc.Line]}
		m.SetCounter(cell, n)
	}
	log.Infof("boot", "recovered %d/%d samples from %s", m.TotalCollected(), m.TotalToCollect(), cfg.DataDir)

	pool, err := credentials.LoadFromFile(cfg.Database)
	if err != nil {
		log.Fatalf("boot", "load credential database: %v", err)
	}
	log.Infof("boot", "loaded %d credentials", pool.Total())

	bounds := validate.Bounds{MinPCAP: cfg.MinPCAPBytes, MaxPCAP: cfg.MaxPCAPBytes, MinPNG: cfg.MinPNGBytes}
	state := coordinator.New(m, pool, st, bounds, logger.New("COORDINATOR", cfg.LogLevel), stats.New())
	api := httpapi.New(state, cfg, logger.New("HTTPAPI", cfg.LogLevel))

	printBanner(cfg, m, pool)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.Infof("boot", "listening on %s", addr)

	// Served over cleartext HTTP/2 (h2c): workers poll frequently and the
	// experiment runs on a private network, so there is no TLS termination
	// to negotiate, but many concurrent long-poll-style clients still
	// benefit from multiplexed streams over one connection.
	h2s := &http2.Server{}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(api.Handler(), h2s),
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("shutdown", "shutting down…")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("shutdown", "shutdown error: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("boot", "fatal: %v", err)
	}
}

// loadLines reads a file of newline-delimited, non-blank entries, trimming
// whitespace and ignoring blank lines.
func loadLines(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // G703: path is a trusted boot-time config path
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only, nothing to flush

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return out, nil
}

// loadURLList reads and validates the URL list per spec.md §4.8 step 1:
// unique entries, HTTPS-only unless allowHTTP relaxes it.
func loadURLList(path string, allowHTTP bool) ([]string, error) {
	lines, err := loadLines(path)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(lines))
	out := make([]string, 0, len(lines))
	for _, u := range lines {
		if seen[u] {
			return nil, fmt.Errorf("duplicate url %q", u)
		}
		seen[u] = true

		isHTTPS := strings.HasPrefix(u, "https://")
		isHTTP := strings.HasPrefix(u, "http://")
		switch {
		case isHTTPS:
		case isHTTP && allowHTTP:
		default:
			return nil, fmt.Errorf("non-HTTPS url %q (set allowHTTPURLs to relax)", u)
		}
		out = append(out, u)
	}
	return out, nil
}

func printBanner(cfg *config.Config, m *matrix.Matrix, pool *credentials.Pool) {
	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║          VPN Measurement Coordinator  (Go)            ║
╚══════════════════════════════════════════════════════╝
  Data dir        : %s
  URLs × relays   : %d × %d (samples/cell=%d)
  Credentials     : %d
  To collect      : %d
  Already have    : %d

  Check status:
    curl http://%s:%d/status
`, cfg.DataDir, len(m.URLs()), len(m.Relays()), cfg.Samples,
		pool.Total(), m.TotalToCollect(), m.TotalCollected(),
		cfg.Host, cfg.Port)
}
