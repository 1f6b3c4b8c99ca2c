package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/webchat/config"
	"github.com/mohammad-safakhou/webchat/internal/chat"
	"github.com/mohammad-safakhou/webchat/internal/logger"
	"github.com/mohammad-safakhou/webchat/internal/metrics"
	"github.com/mohammad-safakhou/webchat/models"
	"github.com/mohammad-safakhou/webchat/repository"
)

// ChatStreamer runs a chat turn and streams its events.
type ChatStreamer interface {
	Stream(ctx context.Context, req chat.TurnRequest) <-chan models.Event
}

// Deps are the collaborators the HTTP surface is built on.
type Deps struct {
	Sessions       repository.SessionRepository
	Conversations  repository.ConversationRepository
	Limiter        repository.RequestLimiter
	Chat           ChatStreamer
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	// Health reports whether backing stores are reachable.
	Health func(ctx context.Context) error
}

type Server struct {
	echo *echo.Echo
	cfg  *config.Config
	deps Deps
	log  logger.Logger
}

// New builds the echo instance with the middleware chain and every route.
func New(cfg *config.Config, deps Deps, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{echo: echo.New(), cfg: cfg, deps: deps, log: log.With(logger.Component("http"))}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: newRequestID}))
	e.Use(s.requestLogger())
	e.Use(securityHeaders)
	if len(cfg.Server.AllowOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.Server.AllowOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderContentType, "Cookie"},
			AllowCredentials: true,
		}))
	}

	e.GET("/healthz", s.healthz)
	if deps.MetricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(deps.MetricsHandler))
	}
	registerDocs(e)

	api := e.Group("/api", s.loadSession, s.rateLimit)
	api.GET("/auth/session", s.session)
	api.POST("/chat", s.chat)
	api.POST("/continue", s.continueConversation)
	api.GET("/conversation", s.conversation)
	api.POST("/share", s.share)
	api.GET("/shared/:id", s.shared)
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = s.cfg.Server.Address
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", logger.String("addr", addr))
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// httpErrorHandler writes every error as {"error": msg}. Only HTTP errors
// carry their message to the client; anything else is a generic 500.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		if he.Internal != nil {
			err = he.Internal
		}
	}
	req := c.Request()
	fields := []logger.Field{
		logger.Int("status", code),
		logger.String("method", req.Method),
		logger.String("path", req.URL.Path),
		logger.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		logger.Error(err),
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", fields...)
	} else {
		s.log.Debug("request rejected", fields...)
	}
	if c.Response().Committed {
		return
	}
	if req.Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, HTTPError{Error: msg})
}

func (s *Server) healthz(c echo.Context) error {
	if s.deps.Health != nil {
		if err := s.deps.Health(c.Request().Context()); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "unhealthy").SetInternal(err)
		}
	}
	return c.String(http.StatusOK, "ok")
}
