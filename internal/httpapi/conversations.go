package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/atriumhq/atrium/internal/httputil"
	"github.com/atriumhq/atrium/internal/middleware"
	"github.com/atriumhq/atrium/internal/services/messaging"
)

func (h *handler) listConversations(w http.ResponseWriter, r *http.Request) {
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

	convs, err := h.deps.Messaging.ListConversations(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()),
		queryBool(r, "include_archived"), limit, before)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"conversations": convs})
}

func (h *handler) createConversation(w http.ResponseWriter, r *http.Request) {
	var input messaging.CreateConversationInput
	if err := httputil.DecodeJSON(r.Body, &input); err != nil {
		httputil.WriteError(w, err)
		return
	}

	conv, err := h.deps.Messaging.CreateConversation(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, conv)
}

func (h *handler) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.deps.Messaging.GetConversation(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, conv)
}

func (h *handler) updateConversation(w http.ResponseWriter, r *http.Request) {
	var input messaging.UpdateConversationInput
	if err := httputil.DecodeJSON(r.Body, &input); err != nil {
		httputil.WriteError(w, err)
		return
	}

	conv, err := h.deps.Messaging.UpdateConversation(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), mux.Vars(r)["id"], input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, conv)
}

func (h *handler) deleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Messaging.DeleteConversation(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := h.deps.Messaging.ListParticipants(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"participants": participants})
}

func (h *handler) addParticipant(w http.ResponseWriter, r *http.Request) {
	var input struct {
		UserID string `json:"user_id"`
		Role   string `json:"role,omitempty"`
	}
	if err := httputil.DecodeJSON(r.Body, &input); err != nil {
		httputil.WriteError(w, err)
		return
	}

	p, err := h.deps.Messaging.AddParticipant(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()),
		mux.Vars(r)["id"], input.UserID, input.Role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *handler) removeParticipant(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.deps.Messaging.RemoveParticipant(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()),
		vars["id"], vars["userID"]); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	before, err := queryTime(r, "before")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	msgs, err := h.deps.Messaging.ListMessages(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()),
		mux.Vars(r)["id"], before, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var input messaging.SendMessageInput
	if err := httputil.DecodeJSON(r.Body, &input); err != nil {
		httputil.WriteError(w, err)
		return
	}

	msg, err := h.deps.Messaging.SendMessage(r.Context(),
		middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()),
		mux.Vars(r)["id"], input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, msg)
}
