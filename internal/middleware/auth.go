// Package middleware provides HTTP middleware for the API layer.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/atriumhq/atrium/internal/errors"
	"github.com/atriumhq/atrium/internal/httputil"
	"github.com/atriumhq/atrium/internal/logging"
	"github.com/atriumhq/atrium/internal/session"
	"github.com/atriumhq/atrium/pkg/logger"
)

// Claims are the JWT claims accepted on bearer tokens.
type Claims struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware authenticates requests from either a bearer token or the
// session cookie. Bearer tokens win when both are present.
type AuthMiddleware struct {
	secret     []byte
	sessions   session.Store
	sessionTTL time.Duration
	logger     *logger.Logger
	skipPaths  map[string]bool
}

// NewAuthMiddleware creates an authentication middleware. sessions may be nil
// when cookie login is disabled. A positive sessionTTL renews the cookie
// session on every authenticated request.
func NewAuthMiddleware(secret []byte, sessions session.Store, sessionTTL time.Duration, log *logger.Logger, skipPaths []string) *AuthMiddleware {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}

	return &AuthMiddleware{
		secret:     secret,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		logger:     log,
		skipPaths:  skip,
	}
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		userID, tenantID, role, err := m.identify(r)
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		ctx := logging.WithIdentity(r.Context(), userID, tenantID, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identify resolves the caller's identity from the request credentials.
func (m *AuthMiddleware) identify(r *http.Request) (userID, tenantID, role string, err error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", "", "", errors.Unauthorized("invalid Authorization header format")
		}
		claims, err := m.validateToken(parts[1])
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("Token validation failed")
			return "", "", "", err
		}
		return claims.UserID, claims.TenantID, claims.Role, nil
	}

	if m.sessions != nil {
		if cookie, cookieErr := r.Cookie(session.CookieName); cookieErr == nil {
			sess, err := m.sessions.Get(r.Context(), cookie.Value)
			if err != nil {
				return "", "", "", err
			}
			if m.sessionTTL > 0 {
				if touchErr := m.sessions.Touch(r.Context(), cookie.Value, m.sessionTTL); touchErr != nil {
					m.logger.WithContext(r.Context()).WithError(touchErr).Warn("Session renewal failed")
				}
			}
			return sess.UserID, sess.TenantID, sess.Role, nil
		}
	}

	return "", "", "", errors.Unauthorized("missing credentials")
}

// validateToken parses and validates a bearer token.
func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.InvalidToken(nil).WithDetails("method", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, errors.InvalidToken(err)
	}
	if !token.Valid {
		return nil, errors.InvalidToken(nil)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "invalid claims type")
	}
	if claims.UserID == "" {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "missing user_id claim")
	}
	if claims.TenantID == "" {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "missing tenant_id claim")
	}
	return claims, nil
}

// respondError sends an error response.
func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("authentication failed", err)
	}

	httputil.WriteErrorResponse(w, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)

	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
	}).Warn("Authentication failed")
}

// GetUserID extracts the user ID from context.
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetTenantID extracts the tenant ID from context.
func GetTenantID(ctx context.Context) string {
	return logging.GetTenantID(ctx)
}

// GetUserRole extracts the user role from context.
func GetUserRole(ctx context.Context) string {
	return logging.GetRole(ctx)
}

// RequireUserID rejects requests with no authenticated user.
func RequireUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			httputil.Unauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
