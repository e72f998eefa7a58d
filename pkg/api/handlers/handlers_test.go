package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"branchchat/pkg/api"
	"branchchat/pkg/convo"
	"branchchat/pkg/dispatch"
	"branchchat/pkg/keypool"
	"branchchat/pkg/models"
	"branchchat/pkg/store"
	"branchchat/pkg/upstream"
)

// stubUpstream is a fake completion provider. Secrets listed in limited
// get a 429; everything else streams the configured deltas.
type stubUpstream struct {
	deltas  []string
	limited map[string]bool
	calls   []string
}

func (s *stubUpstream) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		secret := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.calls = append(s.calls, secret)
		if s.limited[secret] {
			http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range s.deltas {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", d)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

type harness struct {
	st  *store.Store
	api *httptest.Server
	up  *stubUpstream
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	up := &stubUpstream{deltas: []string{"Hel", "lo"}, limited: map[string]bool{}}
	upSrv := httptest.NewServer(up.handler())
	t.Cleanup(upSrv.Close)

	client := upstream.New(upSrv.URL, "test-model", "", 0)
	disp := dispatch.New(keypool.New(st), client, 0)
	h := api.Handler(api.Deps{
		Store:       st,
		Convo:       convo.New(st),
		Dispatcher:  disp,
		MaxMessages: 60,
	})
	apiSrv := httptest.NewServer(h)
	t.Cleanup(apiSrv.Close)
	return &harness{st: st, api: apiSrv, up: up}
}

func (h *harness) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.api.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func (h *harness) createConversation(t *testing.T) models.Conversation {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/v1/conversations", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create conversation: status %d", resp.StatusCode)
	}
	return decode[models.Conversation](t, resp)
}

func (h *harness) addKey(t *testing.T, secret string) {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/v1/keys", map[string]string{"key": secret})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add key: status %d", resp.StatusCode)
	}
}

func TestChatStreamsAndCommits(t *testing.T) {
	h := newHarness(t)
	h.addKey(t, "sk-good")
	c := h.createConversation(t)

	resp := h.do(t, http.MethodPost, "/v1/chat", map[string]any{
		"conversationId": c.ID,
		"messages":       []map[string]string{{"role": "user", "content": "Say hello"}},
		"systemPrompt":   "be nice",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat: status %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Hello" {
		t.Fatalf("expected streamed \"Hello\", got %q", body)
	}

	view := decode[convo.ActiveView](t, h.do(t, http.MethodGet, "/v1/conversations/"+c.ID, nil))
	if len(view.Messages) != 2 {
		t.Fatalf("expected committed pair, got %+v", view.Messages)
	}
	if view.Messages[1].Role != models.RoleAssistant || view.Messages[1].Content != "Hello" {
		t.Fatalf("assistant message not committed: %+v", view.Messages[1])
	}

	var summaries []map[string]any
	summaries = decode[[]map[string]any](t, h.do(t, http.MethodGet, "/v1/conversations", nil))
	if len(summaries) != 1 || summaries[0]["title"] != "Say hello" {
		t.Fatalf("conversation not retitled from first message: %v", summaries)
	}
}

func TestChatFailsOverOnRateLimit(t *testing.T) {
	h := newHarness(t)
	h.up.limited["sk-limited"] = true
	h.addKey(t, "sk-limited")
	h.addKey(t, "sk-good")
	c := h.createConversation(t)

	// the limited key was added first so it sorts least recently used
	creds, _ := h.st.ListCredentials()
	for i := range creds {
		if creds[i].Secret == "sk-limited" {
			creds[i].LastUsedTS = 1
		} else {
			creds[i].LastUsedTS = 2
		}
		if err := h.st.SaveCredential(creds[i]); err != nil {
			t.Fatalf("SaveCredential: %v", err)
		}
	}

	resp := h.do(t, http.MethodPost, "/v1/chat", map[string]any{
		"conversationId": c.ID,
		"messages":       []map[string]string{{"role": "user", "content": "hi"}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat: status %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Hello" {
		t.Fatalf("expected failover stream, got %q", body)
	}
	if len(h.up.calls) != 2 || h.up.calls[0] != "sk-limited" || h.up.calls[1] != "sk-good" {
		t.Fatalf("unexpected attempt order: %v", h.up.calls)
	}

	// the limited credential is parked, the winner is not
	creds, _ = h.st.ListCredentials()
	for _, cr := range creds {
		if cr.Secret == "sk-limited" && cr.CooldownUntilTS == 0 {
			t.Fatalf("rate-limited key should be cooled down")
		}
		if cr.Secret == "sk-good" && cr.CooldownUntilTS != 0 {
			t.Fatalf("winning key must not be cooled down")
		}
	}
}

func TestChatNoKeysConfigured(t *testing.T) {
	h := newHarness(t)
	c := h.createConversation(t)
	resp := h.do(t, http.MethodPost, "/v1/chat", map[string]any{
		"conversationId": c.ID,
		"messages":       []map[string]string{{"role": "user", "content": "hi"}},
	})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 with no keys, got %d", resp.StatusCode)
	}
}

func TestChatAllKeysRateLimited(t *testing.T) {
	h := newHarness(t)
	h.up.limited["sk-a"] = true
	h.up.limited["sk-b"] = true
	h.addKey(t, "sk-a")
	h.addKey(t, "sk-b")
	c := h.createConversation(t)

	resp := h.do(t, http.MethodPost, "/v1/chat", map[string]any{
		"conversationId": c.ID,
		"messages":       []map[string]string{{"role": "user", "content": "hi"}},
	})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 when every key fails, got %d", resp.StatusCode)
	}
}

func TestChatUnknownConversation(t *testing.T) {
	h := newHarness(t)
	h.addKey(t, "sk-good")
	resp := h.do(t, http.MethodPost, "/v1/chat", map[string]any{
		"conversationId": "conv-missing",
		"messages":       []map[string]string{{"role": "user", "content": "hi"}},
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestChatValidation(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodPost, "/v1/chat", map[string]any{
		"conversationId": "",
		"messages":       []map[string]string{{"role": "robot", "content": "hi"}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	out := decode[map[string]map[string]string](t, resp)
	errs := out["errors"]
	if _, ok := errs["conversationId"]; !ok {
		t.Fatalf("expected conversationId error, got %v", errs)
	}
	if _, ok := errs["messages.0.role"]; !ok {
		t.Fatalf("expected role error, got %v", errs)
	}
}

func TestChatBranching(t *testing.T) {
	h := newHarness(t)
	h.addKey(t, "sk-good")
	c := h.createConversation(t)

	// seed the first exchange
	first := h.do(t, http.MethodPost, "/v1/chat", map[string]any{
		"conversationId": c.ID,
		"messages":       []map[string]string{{"role": "user", "content": "q1"}},
	})
	if first.StatusCode != http.StatusOK {
		t.Fatalf("seed chat: status %d", first.StatusCode)
	}
	_, _ = io.ReadAll(first.Body)

	// regenerate from the root: fork keeping no prior messages
	resp := h.do(t, http.MethodPost, "/v1/chat", map[string]any{
		"conversationId":  c.ID,
		"messages":        []map[string]string{{"role": "user", "content": "q1-alt"}},
		"branchFromIndex": 0,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("branching chat: status %d", resp.StatusCode)
	}
	_, _ = io.ReadAll(resp.Body)

	view := decode[convo.ActiveView](t, h.do(t, http.MethodGet, "/v1/conversations/"+c.ID, nil))
	if view.TotalBranches != 2 || view.ActiveBranch != 1 {
		t.Fatalf("expected second branch active, got %+v", view)
	}
	if len(view.Messages) != 2 || view.Messages[0].Content != "q1-alt" {
		t.Fatalf("unexpected forked branch: %+v", view.Messages)
	}
}

func TestSwitchBranchEndpoint(t *testing.T) {
	h := newHarness(t)
	h.addKey(t, "sk-good")
	c := h.createConversation(t)

	resp := h.do(t, http.MethodPost, "/v1/conversations/"+c.ID+"/switch-branch",
		map[string]int{"branchIndex": 3})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range index, got %d", resp.StatusCode)
	}

	resp = h.do(t, http.MethodPost, "/v1/conversations/missing/switch-branch",
		map[string]int{"branchIndex": 0})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown conversation, got %d", resp.StatusCode)
	}

	resp = h.do(t, http.MethodPost, "/v1/conversations/"+c.ID+"/switch-branch",
		map[string]int{"branchIndex": 0})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for valid switch, got %d", resp.StatusCode)
	}
	out := decode[map[string]any](t, resp)
	if out["message"] != "branch switched successfully" {
		t.Fatalf("unexpected body: %v", out)
	}
}

func TestSaveMessagesEndpoint(t *testing.T) {
	h := newHarness(t)
	c := h.createConversation(t)

	resp := h.do(t, http.MethodPost, "/v1/conversations/"+c.ID+"/messages", map[string]any{
		"isBranching":      false,
		"history":          []map[string]string{{"role": "user", "content": "saved question"}},
		"assistantMessage": map[string]string{"role": "assistant", "content": "saved answer"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save messages: status %d", resp.StatusCode)
	}
	saved := decode[models.Conversation](t, resp)
	if saved.Title != "saved question" {
		t.Fatalf("expected retitle from first pair, got %q", saved.Title)
	}
	if n := len(saved.Branches[0].Messages); n != 2 {
		t.Fatalf("expected 2 messages, got %d", n)
	}

	bad := h.do(t, http.MethodPost, "/v1/conversations/"+c.ID+"/messages", map[string]any{
		"history":          []map[string]string{},
		"assistantMessage": map[string]string{"role": "user", "content": "wrong role"},
	})
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-assistant reply, got %d", bad.StatusCode)
	}
}

func TestDeleteConversationEndpoint(t *testing.T) {
	h := newHarness(t)
	c := h.createConversation(t)

	resp := h.do(t, http.MethodDelete, "/v1/conversations/"+c.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}
	if again := h.do(t, http.MethodDelete, "/v1/conversations/"+c.ID, nil); again.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on double delete, got %d", again.StatusCode)
	}
}

func TestKeyEndpoints(t *testing.T) {
	h := newHarness(t)

	created := h.do(t, http.MethodPost, "/v1/keys", map[string]string{"key": "sk-one"})
	if created.StatusCode != http.StatusCreated {
		t.Fatalf("create key: status %d", created.StatusCode)
	}
	cred := decode[models.Credential](t, created)
	if cred.ID == "" || cred.Secret != "sk-one" {
		t.Fatalf("unexpected credential: %+v", cred)
	}

	dup := h.do(t, http.MethodPost, "/v1/keys", map[string]string{"key": "sk-one"})
	if dup.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate secret, got %d", dup.StatusCode)
	}

	empty := h.do(t, http.MethodPost, "/v1/keys", map[string]string{"key": ""})
	if empty.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty key, got %d", empty.StatusCode)
	}

	list := decode[[]models.Credential](t, h.do(t, http.MethodGet, "/v1/keys", nil))
	if len(list) != 1 {
		t.Fatalf("expected 1 key, got %d", len(list))
	}

	del := h.do(t, http.MethodDelete, "/v1/keys/"+cred.ID, nil)
	if del.StatusCode != http.StatusOK {
		t.Fatalf("delete key: status %d", del.StatusCode)
	}
	if missing := h.do(t, http.MethodDelete, "/v1/keys/"+cred.ID, nil); missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on missing key, got %d", missing.StatusCode)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	h := newHarness(t)

	out := decode[map[string]string](t, h.do(t, http.MethodGet, "/v1/settings", nil))
	if out["prompt"] != "You are a helpful AI assistant." {
		t.Fatalf("expected default prompt, got %q", out["prompt"])
	}

	upd := h.do(t, http.MethodPost, "/v1/settings", map[string]string{"prompt": "answer briefly"})
	if upd.StatusCode != http.StatusOK {
		t.Fatalf("update settings: status %d", upd.StatusCode)
	}
	out = decode[map[string]string](t, h.do(t, http.MethodGet, "/v1/settings", nil))
	if out["prompt"] != "answer briefly" {
		t.Fatalf("prompt not persisted, got %q", out["prompt"])
	}

	null := h.do(t, http.MethodPost, "/v1/settings", map[string]any{"prompt": nil})
	if null.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for null prompt, got %d", null.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: status %d", resp.StatusCode)
	}
}
