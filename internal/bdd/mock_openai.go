package bdd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// MockAnswerModel is an OpenAI compatible chat completion endpoint that
// replies with a scripted answer and records the prompts it receives.
type MockAnswerModel struct {
	Server *httptest.Server

	mu      sync.Mutex
	reply   string
	status  int
	prompts []string
}

func NewMockAnswerModel(t *testing.T) *MockAnswerModel {
	m := &MockAnswerModel{}
	m.Reset()
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Server.Close)
	return m
}

// Reset restores the default reply and forgets recorded prompts.
func (m *MockAnswerModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply = "No relevant evidence."
	m.status = http.StatusOK
	m.prompts = nil
}

func (m *MockAnswerModel) SetReply(reply string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply = reply
	m.status = status
}

func (m *MockAnswerModel) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

func (m *MockAnswerModel) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	var req struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	for _, msg := range req.Messages {
		m.prompts = append(m.prompts, msg.Content)
	}
	reply, status := m.reply, m.status
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": reply, "type": "server_error"},
		})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-bdd",
		"object":  "chat.completion",
		"created": 0,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": reply},
		}},
	})
}
