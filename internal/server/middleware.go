package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/webchat/internal/logger"
	"github.com/mohammad-safakhou/webchat/models"
)

const ctxSessionID = "session_id"

func newRequestID() string { return uuid.NewString() }

func securityHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		h.Set("X-DNS-Prefetch-Control", "off")
		return next(c)
	}
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Info("request",
				logger.String("method", v.Method),
				logger.String("path", v.URIPath),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
				logger.String("request_id", v.RequestID),
			)
			return nil
		},
	})
}

// loadSession resolves the session cookie. Missing, malformed or expired
// sessions leave the request anonymous; handlers decide whether that is fine.
func (s *Server) loadSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(s.cfg.Session.CookieName)
		if err != nil || cookie.Value == "" {
			return next(c)
		}
		sess, err := s.deps.Sessions.GetSession(c.Request().Context(), cookie.Value)
		switch {
		case err == nil:
			c.Set(ctxSessionID, sess.ID)
		case errors.Is(err, models.ErrInvalidSession), errors.Is(err, models.ErrNotFound):
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
		}
		return next(c)
	}
}

// rateLimit applies the fixed-window request quota per session and path.
func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := c.Request().URL.Path
		if !strings.HasPrefix(path, "/api/") {
			return next(c)
		}
		ctx := c.Request().Context()
		d, err := s.deps.Limiter.Allow(ctx, sessionID(c), path)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
		}
		h := c.Response().Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		if d.Limited {
			s.deps.Metrics.RateLimited(ctx, "requests")
			h.Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())))
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, please try again later")
		}
		return next(c)
	}
}

func sessionID(c echo.Context) string {
	sid, _ := c.Get(ctxSessionID).(string)
	return sid
}

func requireSession(c echo.Context) (string, error) {
	if sid := sessionID(c); sid != "" {
		return sid, nil
	}
	return "", echo.NewHTTPError(http.StatusUnauthorized, "unauthorized: no session found")
}
