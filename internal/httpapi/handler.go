// Package httpapi exposes the REST surface of the platform: sessions,
// conversations, messages, notifications, attachments, dashboards, and
// tenant administration.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/atriumhq/atrium/internal/httputil"
	"github.com/atriumhq/atrium/internal/metrics"
	"github.com/atriumhq/atrium/internal/middleware"
	"github.com/atriumhq/atrium/internal/services/attachments"
	"github.com/atriumhq/atrium/internal/services/dashboards"
	"github.com/atriumhq/atrium/internal/services/messaging"
	"github.com/atriumhq/atrium/internal/services/notifications"
	"github.com/atriumhq/atrium/internal/services/tenants"
	"github.com/atriumhq/atrium/internal/session"
	"github.com/atriumhq/atrium/pkg/logger"
)

// Deps are the services the handler dispatches to.
type Deps struct {
	Tenants       *tenants.Service
	Messaging     *messaging.Service
	Notifications *notifications.Service
	Attachments   *attachments.Service
	Dashboards    *dashboards.Service
	Sessions      session.Store
	Log           *logger.Logger
}

// Config carries the auth settings the handler needs.
type Config struct {
	JWTSecret      []byte
	SessionTTL     time.Duration
	CookieSecure   bool
	PlatformAdmins []string
}

type handler struct {
	deps   Deps
	cfg    Config
	admins map[string]bool
}

// NewHandler builds the API router with authentication applied to every
// /api route. /healthz and /metrics stay open.
func NewHandler(deps Deps, cfg Config) http.Handler {
	if deps.Log == nil {
		deps.Log = logger.NewDefault("httpapi")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	admins := make(map[string]bool, len(cfg.PlatformAdmins))
	for _, id := range cfg.PlatformAdmins {
		admins[id] = true
	}

	h := &handler{deps: deps, cfg: cfg, admins: admins}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	auth := middleware.NewAuthMiddleware(cfg.JWTSecret, deps.Sessions, cfg.SessionTTL, deps.Log, nil)
	api.Use(auth.Handler, middleware.RequireUserID)

	api.HandleFunc("/session", h.createSession).Methods(http.MethodPost)
	api.HandleFunc("/session", h.currentSession).Methods(http.MethodGet)
	api.HandleFunc("/session", h.deleteSession).Methods(http.MethodDelete)

	api.HandleFunc("/conversations", h.listConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations", h.createConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}", h.getConversation).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}", h.updateConversation).Methods(http.MethodPatch)
	api.HandleFunc("/conversations/{id}", h.deleteConversation).Methods(http.MethodDelete)
	api.HandleFunc("/conversations/{id}/participants", h.listParticipants).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/participants", h.addParticipant).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/participants/{userID}", h.removeParticipant).Methods(http.MethodDelete)
	api.HandleFunc("/conversations/{id}/messages", h.listMessages).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", h.sendMessage).Methods(http.MethodPost)

	api.HandleFunc("/messages/{id}", h.getMessage).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id}", h.deleteMessage).Methods(http.MethodDelete)
	api.HandleFunc("/messages/{id}/thread", h.getThread).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id}/read", h.markMessageRead).Methods(http.MethodPost)

	api.HandleFunc("/notifications", h.listNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/unread-count", h.unreadCount).Methods(http.MethodGet)
	api.HandleFunc("/notifications/read-all", h.markAllNotificationsRead).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{id}/read", h.markNotificationRead).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{id}", h.dismissNotification).Methods(http.MethodDelete)

	api.HandleFunc("/attachments", h.createAttachment).Methods(http.MethodPost)
	api.HandleFunc("/attachments/{id}/complete", h.completeAttachment).Methods(http.MethodPost)
	api.HandleFunc("/attachments/{id}", h.getAttachment).Methods(http.MethodGet)
	api.HandleFunc("/attachments/{id}", h.deleteAttachment).Methods(http.MethodDelete)

	api.HandleFunc("/dashboards", h.listDashboards).Methods(http.MethodGet)
	api.HandleFunc("/dashboards", h.createDashboard).Methods(http.MethodPost)
	api.HandleFunc("/dashboards/resolve", h.resolveDashboard).Methods(http.MethodGet)
	api.HandleFunc("/dashboards/{id}", h.getDashboard).Methods(http.MethodGet)
	api.HandleFunc("/dashboards/{id}", h.updateDashboard).Methods(http.MethodPatch)
	api.HandleFunc("/dashboards/{id}", h.deleteDashboard).Methods(http.MethodDelete)
	api.HandleFunc("/dashboards/{id}/versions", h.listDashboardVersions).Methods(http.MethodGet)
	api.HandleFunc("/dashboards/{id}/versions", h.publishDashboardVersion).Methods(http.MethodPost)
	api.HandleFunc("/dashboards/{id}/fork", h.forkDashboard).Methods(http.MethodPost)
	api.HandleFunc("/dashboards/{id}/acl", h.listDashboardACL).Methods(http.MethodGet)
	api.HandleFunc("/dashboards/{id}/acl", h.grantDashboardACL).Methods(http.MethodPost)
	api.HandleFunc("/dashboards/{id}/acl/{entryID}", h.revokeDashboardACL).Methods(http.MethodDelete)

	api.HandleFunc("/tenants", h.listTenants).Methods(http.MethodGet)
	api.HandleFunc("/tenants", h.createTenant).Methods(http.MethodPost)
	api.HandleFunc("/tenants/{id}", h.getTenant).Methods(http.MethodGet)
	api.HandleFunc("/tenants/{id}", h.updateTenant).Methods(http.MethodPatch)
	api.HandleFunc("/tenants/{id}", h.deleteTenant).Methods(http.MethodDelete)

	return metrics.InstrumentHandler(router)
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// principal builds the dashboard-service principal for the caller.
func (h *handler) principal(r *http.Request) dashboards.Principal {
	userID := middleware.GetUserID(r.Context())
	return dashboards.Principal{
		UserID:        userID,
		TenantID:      middleware.GetTenantID(r.Context()),
		PlatformAdmin: h.admins[userID],
	}
}

func (h *handler) requirePlatformAdmin(w http.ResponseWriter, r *http.Request) bool {
	if !h.admins[middleware.GetUserID(r.Context())] {
		httputil.Forbidden(w, "platform administrator access required")
		return false
	}
	return true
}
