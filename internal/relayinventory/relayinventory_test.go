package relayinventory

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchAndValidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"wireguard":{"relays":[{"hostname":"se9-wireguard"},{"hostname":"us-nyc-wg-001"}]}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	inv, err := Fetch(srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	hostnames := inv.Hostnames()
	if !hostnames["se9-wireguard"] || !hostnames["us-nyc-wg-001"] {
		t.Fatalf("Hostnames missing expected entries: %v", hostnames)
	}

	unknown := Validate([]string{"se9-wireguard", "not-a-real-relay"}, hostnames)
	if len(unknown) != 1 || unknown[0] != "not-a-real-relay" {
		t.Errorf("Validate: got %v", unknown)
	}
}

func TestFetch_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := Fetch(srv.URL); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestFetch_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json")) //nolint:errcheck
	}))
	defer srv.Close()

	if _, err := Fetch(srv.URL); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
