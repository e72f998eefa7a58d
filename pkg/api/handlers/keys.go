package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"branchchat/pkg/models"
	"branchchat/pkg/store"
	"branchchat/pkg/utils"
)

// RegisterKeys registers credential management endpoints. Plain CRUD; the
// dispatcher never deletes credentials itself.
func (h *API) RegisterKeys(r *mux.Router) {
	r.HandleFunc("/keys", h.listKeys).Methods(http.MethodGet)
	r.HandleFunc("/keys", h.createKey).Methods(http.MethodPost)
	r.HandleFunc("/keys/{id}", h.deleteKey).Methods(http.MethodDelete)
}

func (h *API) listKeys(w http.ResponseWriter, _ *http.Request) {
	creds, err := h.Store.ListCredentials()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sort.SliceStable(creds, func(i, j int) bool { return creds[i].LastUsedTS > creds[j].LastUsedTS })
	_ = utils.JSONWrite(w, http.StatusOK, creds)
}

func (h *API) createKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Key == "" {
		utils.JSONError(w, http.StatusBadRequest, "a valid API key string is required")
		return
	}
	cred := models.Credential{
		ID:         store.GenID("key"),
		Secret:     body.Key,
		LastUsedTS: time.Now().UTC().UnixNano(),
	}
	if err := h.Store.InsertCredential(cred); err != nil {
		if errors.Is(err, store.ErrDuplicateSecret) {
			utils.JSONError(w, http.StatusConflict, "this API key already exists")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, cred)
}

func (h *API) deleteKey(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.Store.DeleteCredential(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "API key not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"message": "API key deleted successfully"})
}
