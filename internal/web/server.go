// Package web serves the GitHub webhook, Discord interactions and a small
// read-only JSON API over triage state.
package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lucasnoah/triagegate/internal/decision"
	"github.com/lucasnoah/triagegate/internal/discord"
	"github.com/lucasnoah/triagegate/internal/triage"
)

const serviceName = "triagegate"

// Config configures the HTTP server.
type Config struct {
	Port          int
	WebhookSecret string
	// APIToken guards POST /api/decisions/:issue. The route is disabled
	// when it is empty.
	APIToken string
	Version  string
}

// PendingLister exposes the decisions currently awaiting a human.
type PendingLister interface {
	Pending() []decision.PendingDecision
}

// InteractionHandler answers Discord interactions.
type InteractionHandler interface {
	HandleInteraction(in discord.Interaction) discord.InteractionResponse
}

// Server is the HTTP front end.
type Server struct {
	cfg        Config
	e          *echo.Echo
	dispatcher *Dispatcher
	stats      *Stats
	store      *triage.Store
	pending    PendingLister
	resolver   decision.Resolver
	interact   InteractionHandler
	verifier   *discord.Verifier
	log        *slog.Logger
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.log = l } }

// WithStore serves archived results from store.
func WithStore(store *triage.Store) Option { return func(s *Server) { s.store = store } }

// WithPending serves pending decisions from p.
func WithPending(p PendingLister) Option { return func(s *Server) { s.pending = p } }

// WithResolver enables POST /api/decisions/:issue when Config.APIToken is set.
func WithResolver(r decision.Resolver) Option { return func(s *Server) { s.resolver = r } }

// WithInteractions enables POST /interactions, verified with v.
func WithInteractions(h InteractionHandler, v *discord.Verifier) Option {
	return func(s *Server) {
		s.interact = h
		s.verifier = v
	}
}

// NewServer builds the echo instance and registers routes.
func NewServer(cfg Config, d *Dispatcher, opts ...Option) *Server {
	s := &Server{cfg: cfg, dispatcher: d, stats: d.stats, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	if s.cfg.Version == "" {
		s.cfg.Version = "dev"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = HTTPErrorHandler
	e.Validator = NewAppValidator()
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(RequestLogger(s.log))

	e.GET("/", s.handleHealth)
	e.GET("/stats", s.handleStats)
	e.POST("/webhook", s.handleWebhook)
	e.POST("/interactions", s.handleInteractions)

	api := e.Group("/api")
	api.GET("/triage", s.handleListResults)
	api.GET("/triage/:issue", s.handleGetResult)
	api.GET("/decisions/pending", s.handlePending)
	if s.cfg.APIToken != "" {
		api.POST("/decisions/:issue", s.handleResolve, s.requireToken())
	} else {
		api.POST("/decisions/:issue", s.handleResolve)
	}

	s.e = e
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start listens on the configured port until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.log.Info("server starting", "addr", addr)
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, then drains the dispatcher.
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := s.e.Shutdown(ctx)
	dispatchErr := s.dispatcher.Shutdown(ctx)
	if httpErr != nil {
		return fmt.Errorf("server shutdown: %w", httpErr)
	}
	if dispatchErr != nil {
		return fmt.Errorf("drain triage runs: %w", dispatchErr)
	}
	s.log.Info("server stopped gracefully")
	return nil
}

// requireToken checks "Authorization: Bearer <APIToken>".
func (s *Server) requireToken() echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.APIToken)) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			s.log.Warn("rejected decision API call", "remote", c.RealIP(), "error", err)
			return ErrUnauthorized
		},
	})
}

// RequestLogger logs each HTTP request with structured fields.
func RequestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			log.Info("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)
			return nil
		}
	}
}
