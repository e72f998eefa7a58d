package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"branchchat/pkg/convo"
	"branchchat/pkg/models"
	"branchchat/pkg/store"
	"branchchat/pkg/utils"
	"branchchat/pkg/validation"
)

// RegisterConversations registers conversation CRUD and branch endpoints.
func (h *API) RegisterConversations(r *mux.Router) {
	r.HandleFunc("/conversations", h.listConversations).Methods(http.MethodGet)
	r.HandleFunc("/conversations", h.createConversation).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}", h.getConversation).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}", h.deleteConversation).Methods(http.MethodDelete)
	r.HandleFunc("/conversations/{id}/switch-branch", h.switchBranch).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages", h.saveMessages).Methods(http.MethodPost)
}

// conversationSummary keeps the list payload small: only what the sidebar
// needs.
type conversationSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedTS int64  `json:"created_ts"`
}

func (h *API) listConversations(w http.ResponseWriter, _ *http.Request) {
	convs, err := h.Convo.List()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]conversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationSummary{ID: c.ID, Title: c.Title, CreatedTS: c.CreatedTS})
	}
	_ = utils.JSONWrite(w, http.StatusOK, out)
}

func (h *API) createConversation(w http.ResponseWriter, _ *http.Request) {
	c, err := h.Convo.Create()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, c)
}

func (h *API) getConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	view, err := h.Convo.GetActive(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, view)
}

func (h *API) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.Convo.Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"message": "conversation deleted"})
}

func (h *API) switchBranch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		BranchIndex int `json:"branchIndex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	view, err := h.Convo.SwitchActive(id, body.BranchIndex)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			utils.JSONError(w, http.StatusNotFound, "conversation not found")
		case errors.Is(err, convo.ErrInvalidBranchIndex):
			utils.JSONError(w, http.StatusBadRequest, "invalid branch index")
		default:
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Message string `json:"message"`
		convo.ActiveView
	}{Message: "branch switched successfully", ActiveView: view})
}

// saveMessages is the non-streaming save variant: the caller already holds
// the full final message list, and the branch is overwritten so persisted
// state exactly matches what was displayed.
func (h *API) saveMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req validation.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if errs := validation.ValidateSaveRequest(req); errs != nil {
		_ = utils.JSONWrite(w, http.StatusBadRequest, map[string]any{"errors": errs})
		return
	}
	final := make([]models.Message, 0, len(req.History)+1)
	final = append(final, req.History...)
	final = append(final, req.AssistantMessage)

	c, err := h.Convo.ReplaceActive(id, final, req.IsBranching)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, c)
}
