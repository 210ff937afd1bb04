package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	apperrors "github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/errors"
)

const (
	sessionCookieName = "viewerhub_session"
	sessionTTL        = 7 * 24 * time.Hour
	defaultMagicTTL   = 24 * time.Hour
	maxMagicTTL       = 30 * 24 * time.Hour

	// RoleAdmin manages the catalogue; RoleViewer only watches.
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService issues and verifies signed session tokens. Two shared
// passwords map onto the two roles; magic links carry a pre-signed
// token so a viewer never needs the password at all.
type AuthService struct {
	secret         []byte
	adminPassword  string
	clientPassword string
	clock          clockwork.Clock
}

func NewAuthService(secret, adminPassword, clientPassword string, clock clockwork.Clock) *AuthService {
	return &AuthService{
		secret:         []byte(secret),
		adminPassword:  adminPassword,
		clientPassword: clientPassword,
		clock:          clock,
	}
}

// Login exchanges a password for a role. Comparison is constant time.
func (a *AuthService) Login(password string) (string, error) {
	if subtle.ConstantTimeCompare([]byte(password), []byte(a.adminPassword)) == 1 {
		return RoleAdmin, nil
	}
	if a.clientPassword != "" && subtle.ConstantTimeCompare([]byte(password), []byte(a.clientPassword)) == 1 {
		return RoleViewer, nil
	}
	return "", apperrors.UnauthorizedError("invalid password")
}

// IssueToken creates a signed session token for the role.
func (a *AuthService) IssueToken(role string, ttl time.Duration) (string, error) {
	now := a.clock.Now()
	claims := sessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// VerifyToken returns the role carried by a valid token.
func (a *AuthService) VerifyToken(tokenString string) (string, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.clock.Now))
	if err != nil || !token.Valid {
		return "", apperrors.UnauthorizedError("invalid or expired session")
	}
	if claims.Role != RoleAdmin && claims.Role != RoleViewer {
		return "", apperrors.UnauthorizedError("unknown role")
	}
	return claims.Role, nil
}

// --- Echo integration ---

const roleContextKey = "auth.role"

func (s *Server) setSessionCookie(c echo.Context, token string, ttl time.Duration) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.config.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// tokenFromRequest looks for credentials in the session cookie, the
// Authorization header, and finally the token query parameter. The
// query fallback exists for EventSource and WebSocket clients that
// cannot set headers.
func tokenFromRequest(c echo.Context) string {
	if cookie, err := c.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return token
		}
	}
	return c.QueryParam("token")
}

// requireAuth admits any valid session and stores its role in the
// request context.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := tokenFromRequest(c)
		if token == "" {
			return apperrors.UnauthorizedError("authentication required")
		}
		role, err := s.auth.VerifyToken(token)
		if err != nil {
			return err
		}
		c.Set(roleContextKey, role)
		return next(c)
	}
}

// requireAdmin admits admin sessions only. Must run after requireAuth.
func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if role, _ := c.Get(roleContextKey).(string); role != RoleAdmin {
			return apperrors.UnauthorizedError("admin access required")
		}
		return next(c)
	}
}
