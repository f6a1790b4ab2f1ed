package server

import (
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"net/http"
)

const maxConfigBody = 64 << 10

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = io.WriteString(w, HTMLPage)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess, err := s.NewSession()
	if errors.Is(err, errTooManySessions) {
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	}
	if err != nil {
		s.log.Error("failed to create session", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": sess.ID()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.Session(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, sess.Stats())
}

// handleFrame serves the latest frame as PNG. The view query parameter
// selects "raw" or "stable" (default).
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.Session(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	var stable bool
	switch r.URL.Query().Get("view") {
	case "", "stable":
		stable = true
	case "raw":
	default:
		http.Error(w, "view must be raw or stable", http.StatusBadRequest)
		return
	}

	frame := sess.Frame(stable)
	if frame == nil {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, frame); err != nil {
		s.log.Debug("frame write failed", "error", err)
	}
}

// handleConfig merges a partial JSON configuration into the session's
// current one.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.Session(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	config := sess.Config()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxConfigBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&config); err != nil {
		http.Error(w, "invalid config: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := sess.Configure(config); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.log.Info("session reconfigured", "session", sess.ID(),
		"smoothing_frames", config.SmoothingFrames, "margin", config.CorrectionMargin)
	writeJSON(w, http.StatusOK, config)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.CloseSession(r.PathValue("id")) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
