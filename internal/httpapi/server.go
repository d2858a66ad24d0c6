// Package httpapi exposes the assessment engine over HTTP and websockets.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/anees/internal/assessment"
	"github.com/ent0n29/anees/internal/config"
	"github.com/ent0n29/anees/internal/observability"
	"github.com/ent0n29/anees/internal/protocol"
	"github.com/ent0n29/anees/internal/session"
)

const maxBodyBytes = 1 << 20

// Engine is the conversation surface the transport drives.
type Engine interface {
	Process(ctx context.Context, userID, message string) (assessment.Response, error)
	Start(ctx context.Context) (assessment.Response, error)
	Sessions() []session.Info
	Delete(userID string) error
	ActiveSessions() int
}

type Server struct {
	cfg      config.Config
	engine   Engine
	metrics  *observability.Metrics
	logger   *zap.Logger
	backend  string
	limiter  *userLimiter
	upgrader websocket.Upgrader
}

// New builds the HTTP server. backend names the generation backend reported by
// /health.
func New(cfg config.Config, engine Engine, metrics *observability.Metrics, logger *zap.Logger, backend string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		engine:  engine,
		metrics: metrics,
		logger:  logger,
		backend: backend,
		limiter: newUserLimiter(cfg.RateLimitPerMinute),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors(s.cfg.AllowedOrigins))
	r.Use(s.countRequests)

	r.Get("/", s.handleRoot)
	r.Post("/chat", s.handleChat)
	r.Get("/start_new", s.handleStartNew)
	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/chat/ws", s.handleChatWS)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/sessions", s.handleListSessions)
		r.Delete("/sessions/{user_id}", s.handleDeleteSession)
	})

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "online",
		"service": "Anees Mental Health Chatbot API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"POST /chat":                 "Send a message to the chatbot",
			"GET /start_new":             "Start a new session and get the greeting",
			"GET /sessions":              "Get all active sessions (admin)",
			"DELETE /sessions/{user_id}": "Delete a session (admin)",
			"GET /health":                "Health check",
			"GET /v1/chat/ws":            "Chat over a websocket",
		},
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, protocol.CodeInvalidRequest, "could not read request body")
		return
	}
	req, err := protocol.ParseChatRequest(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, protocol.CodeInvalidRequest, err.Error())
		return
	}
	if !s.limiter.Allow(req.User(), r) {
		respondError(w, http.StatusTooManyRequests, protocol.CodeRateLimited, "too many requests")
		return
	}

	resp, err := s.engine.Process(r.Context(), req.User(), req.Message)
	if err != nil {
		s.internalError(w, r, "chat turn failed", err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStartNew(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow("", r) {
		respondError(w, http.StatusTooManyRequests, protocol.CodeRateLimited, "too many requests")
		return
	}
	resp, err := s.engine.Start(r.Context())
	if err != nil {
		s.internalError(w, r, "start session failed", err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":                     "healthy",
		"timestamp":                  time.Now().UTC(),
		"active_sessions":            s.engine.ActiveSessions(),
		"conversation_manager_ready": true,
		"generation_backend":         s.backend,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "ready",
		"generation_backend": s.backend,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	infos := s.engine.Sessions()
	if infos == nil {
		infos = []session.Info{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"total_sessions": len(infos),
		"sessions":       infos,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "user_id"))
	if err := s.engine.Delete(userID); err != nil {
		if errors.Is(err, assessment.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
			return
		}
		s.internalError(w, r, "delete session failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Session " + userID + " deleted"})
}

// requireAdmin admits requests whose admin_key header equals the configured key.
// An unset key closes the admin routes.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("admin_key")
		if s.cfg.AdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.AdminKey)) != 1 {
			respondError(w, http.StatusForbidden, "unauthorized", "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		// Non-browser clients often omit Origin.
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	if len(s.cfg.AllowedOrigins) > 0 {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(msg,
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	respondError(w, http.StatusInternalServerError, protocol.CodeInternal, "internal server error")
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
