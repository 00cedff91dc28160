package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer alice" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"missing Authorization header"}`))
			return
		}
		if r.URL.Path != "/v1/evidence/f1/ask" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"not_found","error":"evidence file not found: other"}`))
			return
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"answer":       "asked: " + body["question"].(string),
			"sessionId":    "s1",
			"matchedCount": body["topK"],
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, client *AskClient, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = toolAskEvidence
	req.Params.Arguments = args
	res, err := askHandler(client)(context.Background(), req)
	require.NoError(t, err)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	return tc.Text
}

func TestAskEvidence(t *testing.T) {
	srv := fakeAPI(t)
	client := &AskClient{BaseURL: srv.URL + "/", Token: "alice"}

	res := call(t, client, map[string]any{"evidenceFileId": "f1", "question": "Who called Ravi?", "topK": 5})
	assert.False(t, res.IsError)
	assert.Equal(t, "asked: Who called Ravi?", text(t, res))

	answer, err := client.Ask(context.Background(), "f1", "q", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, answer.MatchedCount)
}

func TestAskEvidence_Errors(t *testing.T) {
	srv := fakeAPI(t)

	res := call(t, &AskClient{BaseURL: srv.URL, Token: "alice"}, map[string]any{"question": "q"})
	assert.True(t, res.IsError)

	res = call(t, &AskClient{BaseURL: srv.URL, Token: "alice"}, map[string]any{"evidenceFileId": "other", "question": "q"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "404")

	res = call(t, &AskClient{BaseURL: srv.URL, Token: "bob"}, map[string]any{"evidenceFileId": "f1", "question": "q"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "401")
}

func TestNewServer_ListsTool(t *testing.T) {
	s := NewServer(&AskClient{})
	tool := s.GetTool(toolAskEvidence)
	require.NotNil(t, tool)
	assert.Contains(t, tool.Tool.InputSchema.Required, "question")
}
