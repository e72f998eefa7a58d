package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"branchchat/pkg/convo"
	"branchchat/pkg/dispatch"
	"branchchat/pkg/logger"
	"branchchat/pkg/models"
	"branchchat/pkg/relay"
	"branchchat/pkg/store"
	"branchchat/pkg/telemetry"
	"branchchat/pkg/utils"
	"branchchat/pkg/validation"
)

// API holds the injected components the /v1 handlers operate on.
type API struct {
	Store       *store.Store
	Convo       *convo.Service
	Dispatcher  *dispatch.Dispatcher
	MaxMessages int
}

// RegisterChat registers the streaming chat-completion endpoint.
func (h *API) RegisterChat(r *mux.Router) {
	r.HandleFunc("/chat", h.chat).Methods(http.MethodPost)
}

// chat handles one full request cycle: credential selection, a single
// upstream streaming call, token relay to the client, one persistence
// commit. Sequential, with the upstream call and the commit as the only
// suspension points.
func (h *API) chat(w http.ResponseWriter, r *http.Request) {
	var req validation.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if errs := validation.ValidateChatRequest(req); errs != nil {
		_ = utils.JSONWrite(w, http.StatusBadRequest, map[string]any{"errors": errs})
		return
	}
	if _, err := h.Store.GetConversation(req.ConversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// [systemPrompt] + trailing history window
	history := req.Messages
	if h.MaxMessages > 0 && len(history) > h.MaxMessages {
		history = history[len(history)-h.MaxMessages:]
	}
	upstreamMsgs := make([]models.Message, 0, len(history)+1)
	upstreamMsgs = append(upstreamMsgs, models.Message{Role: models.RoleSystem, Content: req.SystemPrompt})
	upstreamMsgs = append(upstreamMsgs, history...)

	body, err := h.Dispatcher.Dispatch(r.Context(), upstreamMsgs)
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrNoCredentials):
			http.Error(w, "All API keys are currently rate-limited.", http.StatusTooManyRequests)
		case errors.Is(err, dispatch.ErrAllCandidatesFailed):
			http.Error(w, "All available API keys failed or are rate-limited.", http.StatusInternalServerError)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	flusher, _ := w.(http.Flusher)

	rel := relay.Open(body)
	ctx := r.Context()
	wrote := false
stream:
	for {
		select {
		case chunk, ok := <-rel.Chunks():
			if !ok {
				break stream
			}
			if _, werr := io.WriteString(w, chunk); werr != nil {
				rel.Abort()
				break stream
			}
			wrote = true
			if flusher != nil {
				flusher.Flush()
			}
		case <-ctx.Done():
			// client disconnect: stop reading upstream, release the
			// connection, and commit whatever accumulated
			rel.Abort()
			break stream
		}
	}
	rel.Drain()

	// A zero-token stream still commits an empty assistant message:
	// always write what happened.
	userMessage := req.Messages[len(req.Messages)-1]
	prior := req.Messages[:len(req.Messages)-1]
	assistant := models.Message{Role: models.RoleAssistant, Content: rel.Text()}

	if _, err := h.Convo.Commit(req.ConversationID, prior, userMessage, assistant, req.BranchFromIndex); err != nil {
		telemetry.CommitFailures.Inc()
		logger.Error("chat_commit_failed", "conversation", req.ConversationID, "error", err)
		// The stream has usually been delivered by now; surface 500 only
		// when nothing was written so the client can still see a status.
		if !wrote {
			http.Error(w, "failed to persist conversation", http.StatusInternalServerError)
		}
		return
	}
}
