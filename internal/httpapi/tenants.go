package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/atriumhq/atrium/internal/httputil"
	"github.com/atriumhq/atrium/internal/services/tenants"
)

func (h *handler) listTenants(w http.ResponseWriter, r *http.Request) {
	if !h.requirePlatformAdmin(w, r) {
		return
	}
	items, err := h.deps.Tenants.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"tenants": items})
}

func (h *handler) createTenant(w http.ResponseWriter, r *http.Request) {
	if !h.requirePlatformAdmin(w, r) {
		return
	}
	var input tenants.CreateInput
	if err := httputil.DecodeJSON(r.Body, &input); err != nil {
		httputil.WriteError(w, err)
		return
	}

	t, err := h.deps.Tenants.Create(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

func (h *handler) getTenant(w http.ResponseWriter, r *http.Request) {
	if !h.requirePlatformAdmin(w, r) {
		return
	}
	t, err := h.deps.Tenants.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *handler) updateTenant(w http.ResponseWriter, r *http.Request) {
	if !h.requirePlatformAdmin(w, r) {
		return
	}
	var input tenants.UpdateInput
	if err := httputil.DecodeJSON(r.Body, &input); err != nil {
		httputil.WriteError(w, err)
		return
	}

	t, err := h.deps.Tenants.Update(r.Context(), mux.Vars(r)["id"], input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *handler) deleteTenant(w http.ResponseWriter, r *http.Request) {
	if !h.requirePlatformAdmin(w, r) {
		return
	}
	if err := h.deps.Tenants.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
