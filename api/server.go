// Package api is the JSON HTTP API: authentication, content management,
// shared brains and knowledge queries.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/koopa0/secondbrain/internal/answer"
	"github.com/koopa0/secondbrain/internal/ingest"
	"github.com/koopa0/secondbrain/internal/store"
)

// Authenticator issues and verifies bearer tokens and checks passwords.
// *auth.Manager implements it.
type Authenticator interface {
	IssueToken(userID string) string
	VerifyToken(token string) (string, error)
	HashPassword(password string) (string, error)
	CheckPassword(hash, password string) bool
}

// UserStore persists accounts. *store.Store implements it.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (store.User, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
}

// ShareStore manages share links. *store.Store implements it.
type ShareStore interface {
	EnsureShareLink(ctx context.Context, ownerID uuid.UUID) (string, error)
	DisableShareLink(ctx context.Context, ownerID uuid.UUID) error
	ResolveShareLink(ctx context.Context, hash string) (uuid.UUID, string, error)
}

// ContentManager adds, lists and removes saved contents.
// *ingest.Ingestor implements it.
type ContentManager interface {
	Add(ctx context.Context, p ingest.AddParams) (store.Content, error)
	Remove(ctx context.Context, ownerID, contentID uuid.UUID) error
	List(ctx context.Context, ownerID uuid.UUID) ([]store.Content, error)
}

// Answerer runs the knowledge query pipeline. *answer.Service implements it.
type Answerer interface {
	Answer(ctx context.Context, ownerID, query string, opts ...answer.Option) (string, error)
}

// QueryCache is the outer per-user response cache. *querycache.Cache
// implements it; a nil *querycache.Cache always misses.
type QueryCache interface {
	Get(ctx context.Context, ownerID, query string) (string, bool)
	Set(ctx context.Context, ownerID, query, response string)
}

// ServerConfig contains dependencies for creating the API server.
type ServerConfig struct {
	Logger     *slog.Logger
	Auth       Authenticator // Required
	Users      UserStore     // Required
	Shares     ShareStore    // Required
	Contents   ContentManager
	Answers    Answerer
	QueryCache QueryCache // Optional: nil disables the outer query cache
	TrustProxy bool       // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst  int        // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates an API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Auth == nil {
		return nil, errors.New("authenticator is required")
	}
	if cfg.Users == nil {
		return nil, errors.New("user store is required")
	}
	if cfg.Shares == nil {
		return nil, errors.New("share store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ah := &authHandler{auth: cfg.Auth, users: cfg.Users, logger: logger}
	sh := &shareHandler{shares: cfg.Shares, contents: cfg.Contents, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/auth/signup", ah.signup)
	mux.HandleFunc("POST /api/v1/auth/signin", ah.signin)

	if cfg.Contents != nil {
		ch := &contentHandler{contents: cfg.Contents, logger: logger}
		mux.Handle("POST /api/v1/content", requireAuth(cfg.Auth, logger, ch.create))
		mux.Handle("GET /api/v1/content", requireAuth(cfg.Auth, logger, ch.list))
		mux.Handle("DELETE /api/v1/content/{id}", requireAuth(cfg.Auth, logger, ch.remove))
	}

	mux.Handle("POST /api/v1/brain/share", requireAuth(cfg.Auth, logger, sh.setSharing))
	mux.HandleFunc("GET /api/v1/brain/{hash}", sh.viewShared)

	if cfg.Answers != nil {
		qh := &queryHandler{answers: cfg.Answers, cache: cfg.QueryCache, logger: logger}
		mux.Handle("POST /api/v1/query", requireAuth(cfg.Auth, logger, qh.query))
	}

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack (outermost first):
	//   Recovery → Logging → RateLimit → Routes
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
