package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/atriumhq/atrium/internal/errors"
	"github.com/atriumhq/atrium/internal/httputil"
	"github.com/atriumhq/atrium/internal/middleware"
	"github.com/atriumhq/atrium/internal/services/attachments"
)

// requireAttachments rejects attachment calls when no object store is
// configured.
func (h *handler) requireAttachments(w http.ResponseWriter) bool {
	if h.deps.Attachments == nil {
		httputil.WriteError(w, errors.Unavailable("attachments are not enabled", nil))
		return false
	}
	return true
}

func (h *handler) createAttachment(w http.ResponseWriter, r *http.Request) {
	if !h.requireAttachments(w) {
		return
	}
	var input attachments.CreateInput
	if err := httputil.DecodeJSON(r.Body, &input); err != nil {
		httputil.WriteError(w, err)
		return
	}

	slot, err := h.deps.Attachments.Create(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, slot)
}

func (h *handler) completeAttachment(w http.ResponseWriter, r *http.Request) {
	if !h.requireAttachments(w) {
		return
	}
	att, err := h.deps.Attachments.Complete(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, att)
}

func (h *handler) getAttachment(w http.ResponseWriter, r *http.Request) {
	if !h.requireAttachments(w) {
		return
	}
	download, err := h.deps.Attachments.Get(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, download)
}

func (h *handler) deleteAttachment(w http.ResponseWriter, r *http.Request) {
	if !h.requireAttachments(w) {
		return
	}
	if err := h.deps.Attachments.Delete(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
