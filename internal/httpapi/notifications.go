package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/atriumhq/atrium/internal/httputil"
	"github.com/atriumhq/atrium/internal/middleware"
)

func (h *handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	before, err := queryTime(r, "cursor")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	items, err := h.deps.Notifications.List(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()),
		queryBool(r, "unread_only"), limit, before)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"notifications": items})
}

func (h *handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.deps.Notifications.UnreadCount(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"unread": count})
}

func (h *handler) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	updated, err := h.deps.Notifications.MarkAllRead(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (h *handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Notifications.MarkRead(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, n)
}

func (h *handler) dismissNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Notifications.Dismiss(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
