// Package httpapi implements the HTTP surface (spec C7): the five
// worker-facing endpoints and their bit-exact request/response contract.
//
// Handlers are thin: they parse and validate the wire format, call into
// coordinator.State for anything that touches shared state, and translate
// the result back into the fixed status codes and JSON shapes. No matrix
// logic lives here.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"vpnmeasure-coordinator/internal/config"
	"vpnmeasure-coordinator/internal/coordinator"
	"vpnmeasure-coordinator/internal/credentials"
	"vpnmeasure-coordinator/internal/logger"
	"vpnmeasure-coordinator/internal/matrix"
	"vpnmeasure-coordinator/internal/validate"
)

// Server wires coordinator.State to the HTTP mux.
type Server struct {
	state *coordinator.State
	cfg   *config.Config
	log   *logger.Logger
}

// New returns a Server ready to Handler().
func New(state *coordinator.State, cfg *config.Config, log *logger.Logger) *Server {
	return &Server{state: state, cfg: cfg, log: log}
}

// Handler returns the coordinator's complete HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/setup", s.handleSetup)
	mux.HandleFunc("/server", s.handleServer)
	mux.HandleFunc("/work", s.handleWork)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "vpnmeasure coordinator\n\n"+
		"GET  /setup?id=W\n"+
		"GET  /server?id=W&server=R_or_None&daita=on|off\n"+
		"GET  /work?id=W&server=R&daita=on|off\n"+
		"POST /work  (id, url, vpn, daita, png_data, pcap_data, metadata)\n"+
		"GET  /status\n")
}

// setupResponse is the wire shape of GET /setup (§6).
type setupResponse struct {
	Account                   credentials.Credential `json:"account"`
	VisitCount                int                     `json:"visit_count"`
	Grace                     int                     `json:"grace"`
	MinWait                   int                     `json:"min_wait"`
	MaxWait                   int                     `json:"max_wait"`
	DisplaySize               [2]int                  `json:"display_size"`
	Fullscreen                bool                    `json:"fullscreen"`
	PostBrowserPreCaptureWait int                     `json:"post_browser_pre_capture_wait"`
	PostPacketPreVisitWait    int                     `json:"post_packet_pre_visit_wait"`
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}

	cred, err := s.state.Setup(id)
	if err != nil {
		if errors.Is(err, coordinator.ErrNoCredentials) {
			writeError(w, http.StatusBadRequest, "no credentials available")
			return
		}
		s.log.Errorf("setup", "worker %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, setupResponse{
		Account:                   cred,
		VisitCount:                s.cfg.Visits,
		Grace:                     s.cfg.Grace,
		MinWait:                   s.cfg.MinWait,
		MaxWait:                   s.cfg.MaxWait,
		DisplaySize:               s.cfg.DisplaySize(),
		Fullscreen:                s.cfg.Fullscreen,
		PostBrowserPreCaptureWait: s.cfg.PostBrowserPreCaptureWait,
		PostPacketPreVisitWait:    s.cfg.PostPacketPreVisitWait,
	})
}

// serverResponse is the wire shape of GET /server (§6).
type serverResponse struct {
	VPN   string `json:"vpn"`
	Daita string `json:"daita"`
}

func (s *Server) handleServer(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	serverArg := r.URL.Query().Get("server")
	daitaArg := r.URL.Query().Get("daita")
	if id == "" || serverArg == "" || daitaArg == "" {
		writeError(w, http.StatusBadRequest, "missing id, server, or daita")
		return
	}

	hasCurrent := serverArg != "None"
	var current matrix.Pair
	if hasCurrent {
		mode, ok := matrix.ParseMode(daitaArg)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid daita value")
			return
		}
		current = matrix.Pair{Relay: serverArg, Mode: mode}
	}

	pair, err := s.state.Server(id, current, hasCurrent)
	if err != nil {
		writeError(w, http.StatusBadRequest, "no servers available")
		return
	}

	writeJSON(w, http.StatusOK, serverResponse{VPN: pair.Relay, Daita: string(pair.Mode)})
}

// workGetResponse is the wire shape of GET /work (§6).
type workGetResponse struct {
	URL   string `json:"url"`
	VPN   string `json:"vpn"`
	Daita string `json:"daita"`
}

func (s *Server) handleWork(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleWorkGet(w, r)
	case http.MethodPost:
		s.handleWorkPost(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleWorkGet(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	serverArg := r.URL.Query().Get("server")
	daitaArg := r.URL.Query().Get("daita")
	if id == "" || serverArg == "" || daitaArg == "" {
		writeError(w, http.StatusBadRequest, "missing id, server, or daita")
		return
	}

	hasServer := serverArg != "None"
	var mode matrix.Mode
	if hasServer {
		var ok bool
		mode, ok = matrix.ParseMode(daitaArg)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid daita value")
			return
		}
	}

	url, err := s.state.Work(id, serverArg, mode, hasServer)
	if err != nil {
		if errors.Is(err, coordinator.ErrRotateRequired) {
			// 409 is load-bearing: the worker contract treats it as a
			// directive to call /server and retry.
			writeError(w, http.StatusConflict, "rotate required")
			return
		}
		writeError(w, http.StatusBadRequest, "no work available")
		return
	}

	writeJSON(w, http.StatusOK, workGetResponse{URL: url, VPN: serverArg, Daita: daitaArg})
}

// workPostResponse is the wire shape of a POST /work response. Status holds
// the allocated sample number on acceptance, or -1 for a silently-declined
// or already-completed submission.
type workPostResponse struct {
	Status int `json:"status"`
}

func (s *Server) handleWorkPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}

	fields := validate.Fields{
		ID:       r.FormValue("id"),
		URL:      r.FormValue("url"),
		VPN:      r.FormValue("vpn"),
		Daita:    r.FormValue("daita"),
		PNGHex:   r.FormValue("png_data"),
		PCAPHex:  r.FormValue("pcap_data"),
		Metadata: r.FormValue("metadata"),
	}

	decoded, err := validate.Decode(fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if validate.CheckSize(decoded, s.state.Bounds()) == validate.RejectSilently {
		s.state.RejectSilently()
		writeJSON(w, http.StatusOK, workPostResponse{Status: -1})
		return
	}

	result, err := s.state.Submit(decoded)
	if err != nil {
		if errors.Is(err, coordinator.ErrUnknownCell) {
			writeError(w, http.StatusBadRequest, "unknown cell")
			return
		}
		s.log.Errorf("work_post", "worker %s: %v", fields.ID, err)
		writeError(w, http.StatusInternalServerError, "persistence failure")
		return
	}

	if result.Outcome == coordinator.SubmitAlreadyDone {
		writeJSON(w, http.StatusOK, workPostResponse{Status: -1})
		return
	}
	writeJSON(w, http.StatusOK, workPostResponse{Status: result.SampleNumber})
}

// statusResponse is the wire shape of GET /status (§6).
type statusResponse struct {
	TotalToCollect    int      `json:"total_to_collect"`
	TotalCollected    int      `json:"total_collected"`
	Elapsed           float64  `json:"elapsed"`
	LastUpdate        float64  `json:"last_update"`
	UniqueClients     []string `json:"unique_clients"`
	AllocatedAccounts string   `json:"allocated_accounts"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Status()
	writeJSON(w, http.StatusOK, statusResponse{
		TotalToCollect:    snap.TotalToCollect,
		TotalCollected:    snap.TotalCollected,
		Elapsed:           snap.Elapsed.Seconds(),
		LastUpdate:        snap.LastUpdate.Seconds(),
		UniqueClients:     snap.UniqueClients,
		AllocatedAccounts: snap.AllocatedAccounts,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already sent; nothing more to do but note it happened.
		_ = err
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}
