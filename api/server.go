package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/opensweeper/minesweeper-server/game/presets"
	"github.com/opensweeper/minesweeper-server/game/protocol"
	"github.com/opensweeper/minesweeper-server/game/session"
	"github.com/opensweeper/minesweeper-server/metrics"
	"github.com/opensweeper/minesweeper-server/transport/ws"
)

// Options tunes the HTTP surface.
type Options struct {
	// CreatesPerMinute is the per-IP budget for POST /create.
	CreatesPerMinute int

	// AllowedOrigins feeds both the CORS middleware and the WebSocket
	// origin check.
	AllowedOrigins []string
}

// Server is the REST and WebSocket front of the game registry.
type Server struct {
	registry *session.Registry
	ws       *ws.Handler
	limiter  *ipLimiter
	log      zerolog.Logger
	router   *mux.Router
	handler  http.Handler
}

// NewServer wires the routes and middleware around a session registry.
func NewServer(registry *session.Registry, opts Options, logger zerolog.Logger) *Server {
	s := &Server{
		registry: registry,
		ws:       ws.NewHandler(opts.AllowedOrigins, logger),
		limiter:  newIPLimiter(opts.CreatesPerMinute),
		log:      logger.With().Str("component", "api").Logger(),
		router:   mux.NewRouter(),
	}

	s.setupRoutes()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.handler = s.recoverMiddleware(s.logMiddleware(corsHandler))
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Game lifecycle
	s.router.HandleFunc("/create", s.handleCreate).Methods("POST")
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	// Operations
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/presets", s.handleListPresets).Methods("GET")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Middleware

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
				respondError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder remembers the status line for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The WebSocket route hijacks the connection; wrapping the
		// ResponseWriter would hide http.Hijacker from the upgrader.
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Str("remote", clientIP(r)).
			Msg("request")
	})
}

// Handlers

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !s.limiter.Allow(ip) {
		metrics.CreatesRateLimited.Inc()
		s.log.Warn().Str("remote", ip).Msg("create rate limited")
		respondError(w, http.StatusTooManyRequests, "too many games created, slow down")
		return
	}

	var req protocol.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	base := protocol.DefaultParams()
	if req.Preset != "" {
		preset, ok := presets.Get(req.Preset)
		if !ok {
			respondError(w, http.StatusBadRequest, "unknown preset: "+req.Preset)
			return
		}
		base = preset.Params()
	}

	params := req.Params(base)
	if err := params.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.registry.Create(params)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, protocol.CreateResponse{ID: sess.ID()})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.registry.Get(r.URL.Query().Get("id"))
	if !ok {
		respondError(w, http.StatusNotFound, "no such game")
		return
	}
	s.ws.ServeWS(w, r, sess)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.registry.Len(),
	})
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, presets.List())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos := make([]session.Info, 0, s.registry.Len())
	s.registry.Range(func(id string, sess *session.Session) bool {
		infos = append(infos, sess.Snapshot())
		return true
	})

	// Newest first keeps the interesting sessions on top.
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(infos),
		"sessions": infos,
	})
}
