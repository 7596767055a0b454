package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"vpnmeasure-coordinator/internal/config"
	"vpnmeasure-coordinator/internal/coordinator"
	"vpnmeasure-coordinator/internal/credentials"
	"vpnmeasure-coordinator/internal/logger"
	"vpnmeasure-coordinator/internal/matrix"
	"vpnmeasure-coordinator/internal/stats"
	"vpnmeasure-coordinator/internal/store"
	"vpnmeasure-coordinator/internal/validate"
)

func testServer(t *testing.T, samples int) *Server {
	t.Helper()
	dir := t.TempDir()
	m := matrix.New([]string{"https://a.test", "https://b.test"}, []string{"relay1"}, samples)
	st := store.New(dir, logger.New("STORE", "error"))
	if err := st.Scaffold([]string{"relay1"}, 2); err != nil {
		t.Fatalf("scaffold: %v", err)
	}
	pool := credentials.New([]credentials.Credential{{AccountToken: "tok1"}}, 1)
	bounds := validate.Bounds{MinPCAP: 1024, MaxPCAP: 1 << 20, MinPNG: 1024}
	state := coordinator.New(m, pool, st, bounds, logger.New("COORDINATOR", "error"), stats.New())
	cfg := &config.Config{Visits: 10, Grace: 1, MinWait: 2, MaxWait: 3, DisplayWidth: 800, DisplayHeight: 600, Fullscreen: true}
	return New(state, cfg, logger.New("HTTPAPI", "error"))
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response body: %v (body=%s)", err, rec.Body.String())
	}
}

func TestSetup_MissingID(t *testing.T) {
	s := testServer(t, 1)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/setup", nil)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestSetup_ReturnsCredentialAndPassthroughFields(t *testing.T) {
	s := testServer(t, 1)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/setup?id=w1", nil)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp setupResponse
	decodeJSON(t, rec, &resp)
	if resp.Account.AccountToken != "tok1" {
		t.Errorf("Account.AccountToken: got %q", resp.Account.AccountToken)
	}
	if resp.VisitCount != 10 || resp.DisplaySize != [2]int{800, 600} {
		t.Errorf("passthrough fields mismatch: %+v", resp)
	}
}

func TestSetup_PoolExhausted(t *testing.T) {
	s := testServer(t, 1)
	req1 := httptest.NewRequest(http.MethodGet, "/setup?id=w1", nil)
	rec1 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("first setup: got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/setup?id=w2", nil)
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("second setup: got %d, want 400", rec2.Code)
	}
}

func TestServer_MissingArgs(t *testing.T) {
	s := testServer(t, 1)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/server?id=w1", nil)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestServer_ReturnsOpenPair(t *testing.T) {
	s := testServer(t, 1)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/server?id=w1&server=None&daita=off", nil)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body=%s", rec.Code, rec.Body.String())
	}
	var resp serverResponse
	decodeJSON(t, rec, &resp)
	if resp.VPN != "relay1" {
		t.Errorf("VPN: got %q, want relay1", resp.VPN)
	}
}

func TestWorkGet_ServerNoneReturns409(t *testing.T) {
	s := testServer(t, 1)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/work?id=w1&server=None&daita=off", nil)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("status: got %d, want 409", rec.Code)
	}
}

func TestWorkGet_ReturnsOpenURL(t *testing.T) {
	s := testServer(t, 1)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/work?id=w1&server=relay1&daita=off", nil)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body=%s", rec.Code, rec.Body.String())
	}
	var resp workGetResponse
	decodeJSON(t, rec, &resp)
	if resp.URL != "https://a.test" && resp.URL != "https://b.test" {
		t.Errorf("URL: got %q", resp.URL)
	}
}

func postWork(t *testing.T, s *Server, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/work", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func validSubmitForm(relay, urlStr string, pcapLen, pngLen int) url.Values {
	return url.Values{
		"id":        {"w1"},
		"url":       {urlStr},
		"vpn":       {relay},
		"daita":     {"off"},
		"png_data":  {hex.EncodeToString(make([]byte, pngLen))},
		"pcap_data": {hex.EncodeToString(make([]byte, pcapLen))},
		"metadata":  {`{"qoe": 1}`},
	}
}

func TestWorkPost_AcceptsValidSubmission(t *testing.T) {
	s := testServer(t, 1)
	rec := postWork(t, s, validSubmitForm("relay1", "https://a.test", 2048, 2048))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body=%s", rec.Code, rec.Body.String())
	}
	var resp workPostResponse
	decodeJSON(t, rec, &resp)
	if resp.Status != 0 {
		t.Errorf("Status: got %d, want 0", resp.Status)
	}
}

func TestWorkPost_MissingFieldIs400(t *testing.T) {
	s := testServer(t, 1)
	form := validSubmitForm("relay1", "https://a.test", 2048, 2048)
	form.Del("metadata")
	rec := postWork(t, s, form)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestWorkPost_TooSmallPCAPSilentlyRejected(t *testing.T) {
	s := testServer(t, 1)
	rec := postWork(t, s, validSubmitForm("relay1", "https://a.test", 64, 2048))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var resp workPostResponse
	decodeJSON(t, rec, &resp)
	if resp.Status != -1 {
		t.Errorf("Status: got %d, want -1", resp.Status)
	}
}

func TestWorkPost_AlreadyDoneReturnsNegativeStatus(t *testing.T) {
	s := testServer(t, 1)
	form := validSubmitForm("relay1", "https://a.test", 2048, 2048)
	if rec := postWork(t, s, form); rec.Code != http.StatusOK {
		t.Fatalf("first submit: got %d", rec.Code)
	}
	rec := postWork(t, s, form)
	if rec.Code != http.StatusOK {
		t.Fatalf("second submit: got %d", rec.Code)
	}
	var resp workPostResponse
	decodeJSON(t, rec, &resp)
	if resp.Status != -1 {
		t.Errorf("Status: got %d, want -1", resp.Status)
	}
}

func TestStatus_ReportsTotals(t *testing.T) {
	s := testServer(t, 1)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var resp statusResponse
	decodeJSON(t, rec, &resp)
	if resp.TotalToCollect != 1*2*1*2 {
		t.Errorf("TotalToCollect: got %d, want %d", resp.TotalToCollect, 1*2*1*2)
	}
	if resp.AllocatedAccounts != "0/1" {
		t.Errorf("AllocatedAccounts: got %q, want 0/1", resp.AllocatedAccounts)
	}
}

func TestIndex_ServesText(t *testing.T) {
	s := testServer(t, 1)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/setup") {
		t.Errorf("index body missing endpoint listing: %s", rec.Body.String())
	}
}
