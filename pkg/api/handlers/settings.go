package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"branchchat/pkg/store"
	"branchchat/pkg/utils"
)

const (
	systemPromptKey     = "systemPrompt"
	defaultSystemPrompt = "You are a helpful AI assistant."
)

// RegisterSettings registers the system prompt setting endpoints.
func (h *API) RegisterSettings(r *mux.Router) {
	r.HandleFunc("/settings", h.getSettings).Methods(http.MethodGet)
	r.HandleFunc("/settings", h.updateSettings).Methods(http.MethodPost)
}

func (h *API) getSettings(w http.ResponseWriter, _ *http.Request) {
	v, err := h.Store.GetSetting(systemPromptKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		v = defaultSystemPrompt
	}
	if v == "" {
		v = defaultSystemPrompt
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"prompt": v})
}

func (h *API) updateSettings(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt *string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Prompt == nil {
		utils.JSONError(w, http.StatusBadRequest, "prompt must be a string")
		return
	}
	if err := h.Store.PutSetting(systemPromptKey, *body.Prompt); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{
		"message": "system prompt updated",
		"prompt":  *body.Prompt,
	})
}
