// Package validation checks request bodies at the input boundary and
// reports per-field problems, surfaced as structured 400 responses.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"branchchat/pkg/models"
)

// FieldErrors maps a dotted field path to a human-readable problem.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return strings.Join(parts, "; ")
}

// Messages validates each message under the given path prefix: the role
// must be one of the closed user/assistant/system set. Any other value is
// rejected here rather than stored loosely.
func Messages(path string, msgs []models.Message) FieldErrors {
	errs := FieldErrors{}
	for i, m := range msgs {
		if !m.Role.Valid() {
			errs[fmt.Sprintf("%s.%d.role", path, i)] = fmt.Sprintf("must be one of user, assistant, system; got %q", m.Role)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ChatRequest is the body of the streaming chat endpoint.
type ChatRequest struct {
	ConversationID  string           `json:"conversationId"`
	Messages        []models.Message `json:"messages"`
	SystemPrompt    string           `json:"systemPrompt"`
	BranchFromIndex *int             `json:"branchFromIndex,omitempty"`
}

// ValidateChatRequest returns nil when the request is well formed.
func ValidateChatRequest(r ChatRequest) FieldErrors {
	errs := FieldErrors{}
	if r.ConversationID == "" {
		errs["conversationId"] = "is required"
	}
	if len(r.Messages) == 0 {
		errs["messages"] = "must contain at least one message"
	}
	for k, v := range Messages("messages", r.Messages) {
		errs[k] = v
	}
	if r.BranchFromIndex != nil && *r.BranchFromIndex < 0 {
		errs["branchFromIndex"] = "must be non-negative"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// SaveRequest is the body of the non-streaming persist-messages endpoint.
type SaveRequest struct {
	IsBranching      bool             `json:"isBranching"`
	History          []models.Message `json:"history"`
	AssistantMessage models.Message   `json:"assistantMessage"`
}

// ValidateSaveRequest returns nil when the request is well formed.
func ValidateSaveRequest(r SaveRequest) FieldErrors {
	errs := FieldErrors{}
	for k, v := range Messages("history", r.History) {
		errs[k] = v
	}
	if r.AssistantMessage.Role != models.RoleAssistant {
		errs["assistantMessage.role"] = fmt.Sprintf("must be assistant; got %q", r.AssistantMessage.Role)
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
