package sim

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type faultRequest struct {
	// Command fails the next command with this name.
	Command string `json:"command"`
	// Connection, when set, is reported as a lost link.
	Connection string `json:"connection"`
	Message    string `json:"message"`
}

// Handler returns the control surface:
//
//	GET    /state     machine snapshot
//	POST   /hold      freeze the cable (?position=mm, default: where it is)
//	POST   /release   resume the rep motion
//	POST   /fault     inject a command failure or a dropped link
//	DELETE /fault     clear pending command failures
//	GET    /commands  received command log
//	GET    /metrics   Prometheus metrics
func (s *Simulator) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/state", s.handleState)
	r.Post("/hold", s.handleHold)
	r.Post("/release", s.handleRelease)
	r.Post("/fault", s.handleFault)
	r.Delete("/fault", s.handleClearFault)
	r.Get("/commands", s.handleCommands)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Simulator) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.State())
}

func (s *Simulator) handleHold(w http.ResponseWriter, r *http.Request) {
	pos := -1.0
	if v := r.URL.Query().Get("position"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil || p < 0 {
			http.Error(w, "position must be a non-negative number", http.StatusBadRequest)
			return
		}
		pos = p
	}
	s.Hold(pos)
	writeJSON(w, http.StatusOK, s.State())
}

func (s *Simulator) handleRelease(w http.ResponseWriter, r *http.Request) {
	s.Release()
	writeJSON(w, http.StatusOK, s.State())
}

func (s *Simulator) handleFault(w http.ResponseWriter, r *http.Request) {
	var req faultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid fault request: "+err.Error(), http.StatusBadRequest)
		return
	}
	msg := req.Message
	if msg == "" {
		msg = "injected fault"
	}
	switch {
	case req.Connection != "":
		s.DropConnection(errors.New(req.Connection))
	case req.Command != "":
		switch req.Command {
		case "start", "stop", "reset", "clear_fault", "weight", "program":
		default:
			http.Error(w, "unknown command "+strconv.Quote(req.Command), http.StatusBadRequest)
			return
		}
		s.FailNext(req.Command, errors.New(msg))
	default:
		http.Error(w, "fault needs a command or a connection message", http.StatusBadRequest)
		return
	}
	s.logger.Printf("Simulator: Fault injected: %+v", req)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Simulator) handleClearFault(w http.ResponseWriter, r *http.Request) {
	s.ClearFaults()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Simulator) handleCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Commands())
}
