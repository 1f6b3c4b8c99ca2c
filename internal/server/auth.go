package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Session bootstrap
//
//	@Summary	Create or reuse the anonymous session cookie
//	@Tags		auth
//	@Produce	json
//	@Success	200	{object}	SessionResponse
//	@Router		/api/auth/session [get]
func (s *Server) session(c echo.Context) error {
	if sessionID(c) != "" {
		return c.JSON(http.StatusOK, SessionResponse{Status: "existing session"})
	}
	if _, err := s.ensureSession(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SessionResponse{Status: "session created"})
}

// ensureSession returns the request's session, creating one and setting the
// cookie when there is none.
func (s *Server) ensureSession(c echo.Context) (string, error) {
	if sid := sessionID(c); sid != "" {
		return sid, nil
	}
	sess, err := s.deps.Sessions.CreateSession(c.Request().Context())
	if err != nil {
		return "", echo.NewHTTPError(http.StatusInternalServerError, "failed to create session").SetInternal(err)
	}
	cookie := new(http.Cookie)
	cookie.Name = s.cfg.Session.CookieName
	cookie.Value = sess.ID
	cookie.Path = "/"
	cookie.HttpOnly = true
	cookie.SameSite = http.SameSiteStrictMode
	cookie.Secure = !s.cfg.General.IsDev()
	cookie.MaxAge = int(s.cfg.Session.TTL.Seconds())
	c.SetCookie(cookie)
	c.Set(ctxSessionID, sess.ID)
	return sess.ID, nil
}
