package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/atriumhq/atrium/internal/httputil"
	"github.com/atriumhq/atrium/internal/services/dashboards"
)

func (h *handler) listDashboards(w http.ResponseWriter, r *http.Request) {
	items, err := h.deps.Dashboards.ListVisible(r.Context(), h.principal(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"dashboards": items})
}

func (h *handler) createDashboard(w http.ResponseWriter, r *http.Request) {
	var input dashboards.CreateInput
	if err := httputil.DecodeJSON(r.Body, &input); err != nil {
		httputil.WriteError(w, err)
		return
	}

	d, err := h.deps.Dashboards.Create(r.Context(), h.principal(r), input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, d)
}

func (h *handler) resolveDashboard(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Dashboards.Resolve(r.Context(), h.principal(r), r.URL.Query().Get("slug"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) getDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.deps.Dashboards.Get(r.Context(), h.principal(r), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *handler) updateDashboard(w http.ResponseWriter, r *http.Request) {
	var input dashboards.UpdateInput
	if err := httputil.DecodeJSON(r.Body, &input); err != nil {
		httputil.WriteError(w, err)
		return
	}

	d, err := h.deps.Dashboards.Update(r.Context(), h.principal(r), mux.Vars(r)["id"], input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *handler) deleteDashboard(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Dashboards.Delete(r.Context(), h.principal(r), mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listDashboardVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.deps.Dashboards.ListVersions(r.Context(), h.principal(r), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"versions": versions})
}

func (h *handler) publishDashboardVersion(w http.ResponseWriter, r *http.Request) {
	var input dashboards.PublishInput
	if err := httputil.DecodeJSON(r.Body, &input); err != nil {
		httputil.WriteError(w, err)
		return
	}

	v, err := h.deps.Dashboards.Publish(r.Context(), h.principal(r), mux.Vars(r)["id"], input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, v)
}

func (h *handler) forkDashboard(w http.ResponseWriter, r *http.Request) {
	var input dashboards.ForkInput
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r.Body, &input); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	d, err := h.deps.Dashboards.Fork(r.Context(), h.principal(r), mux.Vars(r)["id"], input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, d)
}

func (h *handler) listDashboardACL(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.Dashboards.ListACL(r.Context(), h.principal(r), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (h *handler) grantDashboardACL(w http.ResponseWriter, r *http.Request) {
	var input dashboards.GrantInput
	if err := httputil.DecodeJSON(r.Body, &input); err != nil {
		httputil.WriteError(w, err)
		return
	}

	entry, err := h.deps.Dashboards.Grant(r.Context(), h.principal(r), mux.Vars(r)["id"], input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

func (h *handler) revokeDashboardACL(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.deps.Dashboards.Revoke(r.Context(), h.principal(r), vars["id"], vars["entryID"]); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
