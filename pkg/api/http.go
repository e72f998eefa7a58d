package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"branchchat/pkg/api/handlers"
	"branchchat/pkg/convo"
	"branchchat/pkg/dispatch"
	"branchchat/pkg/store"
)

// Deps carries the constructed components the handlers operate on. The
// entry point owns their lifecycle; nothing here is package-global.
type Deps struct {
	Store      *store.Store
	Convo      *convo.Service
	Dispatcher *dispatch.Dispatcher
	// MaxMessages caps the history tail forwarded upstream
	MaxMessages int
}

// Handler returns the /v1 API router:
//   - POST /v1/chat                                   streaming chat completion
//   - GET/POST /v1/conversations                      list / create
//   - GET/DELETE /v1/conversations/{id}               active branch view / delete
//   - POST /v1/conversations/{id}/switch-branch       move the active pointer
//   - POST /v1/conversations/{id}/messages            non-streaming save
//   - GET/POST /v1/keys, DELETE /v1/keys/{id}         credential management
//   - GET/POST /v1/settings                           system prompt setting
func Handler(d Deps) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	h := &handlers.API{
		Store:       d.Store,
		Convo:       d.Convo,
		Dispatcher:  d.Dispatcher,
		MaxMessages: d.MaxMessages,
	}
	v1 := r.PathPrefix("/v1").Subrouter()
	h.RegisterChat(v1)
	h.RegisterConversations(v1)
	h.RegisterKeys(v1)
	h.RegisterSettings(v1)
	return r
}
