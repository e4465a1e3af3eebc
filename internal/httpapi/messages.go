package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/atriumhq/atrium/internal/httputil"
	"github.com/atriumhq/atrium/internal/middleware"
)

func (h *handler) getMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.deps.Messaging.GetMessage(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, msg)
}

func (h *handler) getThread(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.deps.Messaging.GetThread(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (h *handler) markMessageRead(w http.ResponseWriter, r *http.Request) {
	delivery, err := h.deps.Messaging.MarkRead(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, delivery)
}

func (h *handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Messaging.DeleteMessage(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
