package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"

	"nexa/internal/logging"
	"nexa/internal/validation"
	"nexa/pkg/interfaces"
	"nexa/pkg/types"
)

const maxBodyBytes = 1 << 20

// Authenticator issues, verifies and revokes bearer credentials.
type Authenticator interface {
	interfaces.CredentialVerifier
	Login(ctx context.Context, email, password string) (string, *types.Identity, error)
	Revoke(ctx context.Context, token string) error
	TTL() time.Duration
}

// Access explains why an identity may not see a course.
type Access interface {
	Check(ctx context.Context, identity *types.Identity, courseID string) (bool, error)
}

// ChatHistory lists a course's stored messages, newest first.
type ChatHistory interface {
	GetChatHistory(ctx context.Context, courseID string, limit int) ([]*types.ChatMessage, error)
}

// Chatbot answers a user's question about a course.
type Chatbot interface {
	Reply(ctx context.Context, identity *types.Identity, courseID, message string) (string, error)
}

// HealthChecker reports storage availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies are the collaborators behind the HTTP surface.
type Dependencies struct {
	Auth     Authenticator
	Access   Access
	History  ChatHistory
	Bot      Chatbot
	Database HealthChecker

	// Realtime serves the WebSocket endpoint.
	Realtime http.Handler

	// Stats are reported by /health under their key.
	Stats map[string]func() interface{}
}

// Options tunes the HTTP surface.
type Options struct {
	CookieName     string
	CookieSecure   bool
	HistoryLimit   int
	AllowedOrigins []string
}

// Server is the HTTP entry point: REST handlers, the WebSocket endpoint and
// the health check. Handlers translate between HTTP and the domain services
// and hold no chat state of their own.
type Server struct {
	deps     Dependencies
	opts     Options
	validate *validator.Validate
	logger   *slog.Logger
	router   *http.ServeMux
	handler  http.Handler
	started  time.Time
}

// NewServer wires the routes and middleware.
func NewServer(deps Dependencies, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CookieName == "" {
		opts.CookieName = "jwt"
	}

	s := &Server{
		deps:     deps,
		opts:     opts,
		validate: validation.New(),
		logger:   logger,
		router:   http.NewServeMux(),
		started:  time.Now(),
	}
	s.setupRoutes()
	s.handler = logging.WithRequestID(logger, logging.WithRequestLog(s.corsMiddleware(s.router)))
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("POST /api/auth/login", s.jsonMiddleware(http.HandlerFunc(s.login)))
	s.router.Handle("POST /api/auth/logout", s.jsonMiddleware(s.requireAuth(http.HandlerFunc(s.logout))))
	s.router.Handle("GET /api/auth/me", s.jsonMiddleware(s.requireAuth(http.HandlerFunc(s.me))))

	s.router.Handle("GET /api/chat/{courseId}/history", s.jsonMiddleware(s.requireAuth(http.HandlerFunc(s.chatHistory))))
	s.router.Handle("POST /api/chat/bot/{courseId}", s.jsonMiddleware(s.requireAuth(http.HandlerFunc(s.botMessage))))

	s.router.Handle("GET /health", s.jsonMiddleware(http.HandlerFunc(s.healthCheck)))
	if s.deps.Realtime != nil {
		s.router.Handle("GET /ws", s.deps.Realtime)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Response is the success envelope.
type Response struct {
	Data    interface{} `json:"data"`
	Message string      `json:"message,omitempty"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Database  string                 `json:"database"`
	Realtime  map[string]interface{} `json:"realtime"`
	System    map[string]interface{} `json:"system"`
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, dbStatus := "healthy", "healthy"
	if err := s.deps.Database.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = "error: " + err.Error()
		logging.FromContext(r.Context()).Error("health check failed", "error", err)
	}

	realtime := make(map[string]interface{}, len(s.deps.Stats))
	for name, stats := range s.deps.Stats {
		realtime[name] = stats()
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, r, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Database:  dbStatus,
		Realtime:  realtime,
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.started).Round(time.Second).String(),
		},
	})
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, types.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// sendError answers with the status err classifies as. Internal failures
// are logged and their detail withheld.
func (s *Server) sendError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		message = "internal error"
	}
	s.writeJSON(w, r, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, code int, v interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Debug("failed to write response", "error", err)
	}
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return ErrMalformedBody
	}
	return validation.Check(s.validate, dst)
}

func (s *Server) originAllowed(origin string) bool {
	return slices.Contains(s.opts.AllowedOrigins, "*") || slices.Contains(s.opts.AllowedOrigins, origin)
}

// corsMiddleware admits the configured browser origins with credentials.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
