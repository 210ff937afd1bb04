package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apperrors "github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/errors"
)

type loginRequest struct {
	Password string `json:"password"`
}

type sessionResponse struct {
	Role  string `json:"role"`
	Token string `json:"token,omitempty"`
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	role, err := s.auth.Login(req.Password)
	if err != nil {
		return err
	}
	token, err := s.auth.IssueToken(role, sessionTTL)
	if err != nil {
		return err
	}

	s.setSessionCookie(c, token, sessionTTL)
	return c.JSON(http.StatusOK, sessionResponse{Role: role, Token: token})
}

func (s *Server) handleLogout(c echo.Context) error {
	s.clearSessionCookie(c)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleAuthCheck(c echo.Context) error {
	role, _ := c.Get(roleContextKey).(string)
	return c.JSON(http.StatusOK, sessionResponse{Role: role})
}

type magicLinkRequest struct {
	Role       string `json:"role"`
	TTLMinutes int    `json:"ttlMinutes"`
}

type magicLinkResponse struct {
	Token     string    `json:"token"`
	Path      string    `json:"path"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// handleCreateMagicLink issues a shareable login link. Admins use it
// to hand viewers access without giving out a password.
func (s *Server) handleCreateMagicLink(c echo.Context) error {
	var req magicLinkRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	role := req.Role
	if role == "" {
		role = RoleViewer
	}
	if role != RoleAdmin && role != RoleViewer {
		return apperrors.ValidationError("role must be admin or viewer")
	}

	ttl := defaultMagicTTL
	if req.TTLMinutes > 0 {
		ttl = time.Duration(req.TTLMinutes) * time.Minute
		if ttl > maxMagicTTL {
			return apperrors.ValidationError("ttl exceeds the 30 day maximum")
		}
	}

	token, err := s.auth.IssueToken(role, ttl)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, magicLinkResponse{
		Token:     token,
		Path:      fmt.Sprintf("/auth/magic/%s", token),
		ExpiresAt: s.clock.Now().Add(ttl),
	})
}

// handleRedeemMagicLink turns a magic link token into a session cookie
// and sends the browser to the root page.
func (s *Server) handleRedeemMagicLink(c echo.Context) error {
	token := c.Param("token")
	role, err := s.auth.VerifyToken(token)
	if err != nil {
		return err
	}

	session, err := s.auth.IssueToken(role, sessionTTL)
	if err != nil {
		return err
	}
	s.setSessionCookie(c, session, sessionTTL)
	return c.Redirect(http.StatusFound, "/")
}
