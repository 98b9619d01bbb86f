// Package server exposes the background service over HTTP so an external
// front-end (a browser extension, another session) can request replies.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/v0xg/ohmycomment/internal/background"
	"github.com/v0xg/ohmycomment/internal/debuglog"
	"github.com/v0xg/ohmycomment/internal/settings"
)

// Sender delivers a request to the background and waits for the answer.
type Sender interface {
	Send(ctx context.Context, req background.Request) (background.Response, error)
}

// Store is the read side of settings the HTTP surface exposes.
type Store interface {
	Usage(ctx context.Context) (settings.Usage, error)
	Personas(ctx context.Context) ([]settings.Persona, error)
}

// Server serves the HTTP API.
type Server struct {
	bus   Sender
	store Store
	debug *debuglog.Log
	token string
	log   zerolog.Logger
}

// New creates a Server. An empty token disables authentication; debug may
// be nil.
func New(bus Sender, store Store, debug *debuglog.Log, token string, log zerolog.Logger) *Server {
	return &Server{
		bus:   bus,
		store: store,
		debug: debug,
		token: token,
		log:   log.With().Str("component", "server").Logger(),
	}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)

		r.Post("/v1/generate", s.handleGenerate)
		r.Get("/v1/usage", s.handleUsage)
		r.Get("/v1/personas", s.handlePersonas)
		r.Get("/v1/debug", s.handleDebug)
		r.Delete("/v1/debug", s.handleDebugClear)
	})
	return r
}

// handleGenerate runs one completion round trip.
// POST /v1/generate
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req background.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.ID == "" {
		req.ID = middleware.GetReqID(r.Context())
	}

	resp, err := s.bus.Send(r.Context(), req)
	if err != nil {
		s.log.Warn().Err(err).Str("request_id", req.ID).Msg("generate abandoned")
		writeJSON(w, http.StatusServiceUnavailable, background.Response{ID: req.ID, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /v1/usage
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.Usage(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// GET /v1/personas
func (s *Server) handlePersonas(w http.ResponseWriter, r *http.Request) {
	ps, err := s.store.Personas(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if ps == nil {
		ps = []settings.Persona{}
	}
	writeJSON(w, http.StatusOK, ps)
}

// GET /v1/debug
func (s *Server) handleDebug(w http.ResponseWriter, _ *http.Request) {
	entries := []debuglog.Entry{}
	if s.debug != nil {
		entries = s.debug.Entries()
	}
	writeJSON(w, http.StatusOK, entries)
}

// DELETE /v1/debug
func (s *Server) handleDebugClear(w http.ResponseWriter, _ *http.Request) {
	if s.debug != nil {
		s.debug.Clear()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
