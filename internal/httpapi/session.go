package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/atriumhq/atrium/internal/errors"
	"github.com/atriumhq/atrium/internal/httputil"
	"github.com/atriumhq/atrium/internal/middleware"
	"github.com/atriumhq/atrium/internal/session"
)

// principalResponse is the body returned for session reads and creates.
type principalResponse struct {
	UserID        string `json:"user_id"`
	TenantID      string `json:"tenant_id"`
	Role          string `json:"role,omitempty"`
	PlatformAdmin bool   `json:"platform_admin,omitempty"`
}

// createSession exchanges the caller's bearer token for a cookie session.
func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sessions == nil {
		httputil.WriteError(w, errors.Unavailable("cookie sessions are not enabled", nil))
		return
	}

	userID := middleware.GetUserID(r.Context())
	tenantID := middleware.GetTenantID(r.Context())
	role := middleware.GetUserRole(r.Context())

	token, err := session.NewToken()
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	now := time.Now().UTC()
	sess := session.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		TenantID:  tenantID,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(h.cfg.SessionTTL),
	}
	if err := h.deps.Sessions.Put(r.Context(), token, sess, h.cfg.SessionTTL); err != nil {
		httputil.InternalError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.WriteJSON(w, http.StatusCreated, principalResponse{
		UserID:        userID,
		TenantID:      tenantID,
		Role:          role,
		PlatformAdmin: h.admins[userID],
	})
}

// currentSession returns the authenticated principal.
func (h *handler) currentSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	httputil.WriteJSON(w, http.StatusOK, principalResponse{
		UserID:        userID,
		TenantID:      middleware.GetTenantID(r.Context()),
		Role:          middleware.GetUserRole(r.Context()),
		PlatformAdmin: h.admins[userID],
	})
}

// deleteSession invalidates the caller's cookie session.
func (h *handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sessions != nil {
		if cookie, err := r.Cookie(session.CookieName); err == nil {
			if err := h.deps.Sessions.Delete(r.Context(), cookie.Value); err != nil {
				httputil.InternalError(w, err)
				return
			}
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
