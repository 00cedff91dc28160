package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chirino/ufdr-service/internal/access"
	"github.com/chirino/ufdr-service/internal/model"
	registrystore "github.com/chirino/ufdr-service/internal/registry/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type denyAll struct{}

func (denyAll) Authorize(context.Context, access.Caller, *model.EvidenceFile) error {
	return &registrystore.ForbiddenError{}
}

type harness struct {
	store *memStore
	cache *mapCache
	model *fakeModel
	orch  *Orchestrator
}

func newHarness(authz Authorizer) *harness {
	h := &harness{
		store: newMemStore(),
		cache: newMapCache(),
		model: &fakeModel{answer: "  Ravi Sharma is a contact who travelled to Mumbai.  "},
	}
	retriever := NewRetriever(h.store, h.cache, nil, nil, testAssembler, time.Hour)
	sessions := NewSessions(h.cache, h.store, time.Hour)
	h.orch = NewOrchestrator(h.store, authz, retriever, sessions, h.model, h.cache, Options{DefaultTopK: 100, HistoryTurns: 10})
	return h
}

var investigator = access.Caller{UserID: "investigator-7"}

func TestAsk_RaviSharmaMultiTurn(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil)
	fileID := h.store.addFile()
	art := h.store.addArtifact(fileID, "message", "Ravi Sharma travelled to Mumbai last month")

	first, err := h.orch.Ask(ctx, AskRequest{EvidenceFileID: fileID, Question: "Who is Ravi Sharma?", Caller: investigator})
	require.NoError(t, err)
	require.GreaterOrEqual(t, first.MatchedCount, 1)
	require.Contains(t, first.MatchedArtifactIDs, art.ID)
	require.Equal(t, "Ravi Sharma is a contact who travelled to Mumbai.", first.Answer)
	require.Contains(t, first.Prompt, "[message] Ravi Sharma travelled to Mumbai last month")

	second, err := h.orch.Ask(ctx, AskRequest{EvidenceFileID: fileID, Question: "Where did he travel?", Caller: investigator})
	require.NoError(t, err)
	require.Equal(t, first.SessionID, second.SessionID)
	require.Contains(t, second.Prompt, "Who is Ravi Sharma?")
	require.Contains(t, second.Prompt, "User: Who is Ravi Sharma?")

	q1 := strings.Index(second.Transcript, "user: Who is Ravi Sharma?")
	q2 := strings.Index(second.Transcript, "user: Where did he travel?")
	require.GreaterOrEqual(t, q1, 0)
	require.Greater(t, q2, q1)

	stored, err := h.store.GetChatSession(ctx, second.SessionID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 4)
	require.Equal(t, model.RoleUser, stored.Messages[2].Role)
	require.Equal(t, "Where did he travel?", stored.Messages[2].Text)
}

func TestAsk_EmptyEvidenceFileUsesPlaceholder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil)
	fileID := h.store.addFile()

	ans, err := h.orch.Ask(ctx, AskRequest{EvidenceFileID: fileID, Question: "Any calls?", Caller: investigator})
	require.NoError(t, err)
	require.Zero(t, ans.MatchedCount)
	require.Empty(t, ans.MatchedArtifactIDs)
	require.Equal(t, TierEmpty, ans.RetrievalTier)
	require.Contains(t, ans.Prompt, "Context:\n"+NoMatchesContext+"\n")
}

func TestAsk_UnknownEvidenceFileIsNotFoundWithoutMutation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil)
	missing := uuid.New()

	_, err := h.orch.Ask(ctx, AskRequest{EvidenceFileID: missing, Question: "hello", Caller: investigator})
	var nf *registrystore.NotFoundError
	require.True(t, errors.As(err, &nf))
	require.Empty(t, h.store.sessions)
	require.Zero(t, h.cache.sets)
	require.Empty(t, h.model.prompts)
}

func TestAsk_ForbiddenBeforeAnySessionWork(t *testing.T) {
	ctx := context.Background()
	h := newHarness(denyAll{})
	fileID := h.store.addFile()

	_, err := h.orch.Ask(ctx, AskRequest{EvidenceFileID: fileID, Question: "hello", Caller: investigator})
	var forbidden *registrystore.ForbiddenError
	require.True(t, errors.As(err, &forbidden))
	require.Empty(t, h.store.sessions)
	require.Empty(t, h.model.prompts)
}

func TestAsk_ModelFailureBecomesMarkedAnswer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil)
	h.model.err = errors.New("deadline exceeded")
	fileID := h.store.addFile()

	ans, err := h.orch.Ask(ctx, AskRequest{EvidenceFileID: fileID, Question: "hello", Caller: investigator})
	require.NoError(t, err)
	require.Equal(t, "[Error communicating with Gemini: deadline exceeded]", ans.Answer)
	require.NotContains(t, h.cache.data, CacheKey(NamespaceAnswer, fileID, "hello"))
	require.Contains(t, ans.Transcript, "assistant: [Error communicating with Gemini: deadline exceeded]")
}

func TestAsk_EmptyModelAnswerIsMarked(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil)
	h.model.answer = "   "
	fileID := h.store.addFile()

	ans, err := h.orch.Ask(ctx, AskRequest{EvidenceFileID: fileID, Question: "hello", Caller: investigator})
	require.NoError(t, err)
	require.Equal(t, "[No response received from Gemini]", ans.Answer)
}

func TestAsk_AnswerCacheSkipsModel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil)
	fileID := h.store.addFile()

	_, err := h.orch.Ask(ctx, AskRequest{EvidenceFileID: fileID, Question: "same question", Caller: investigator})
	require.NoError(t, err)
	other := access.Caller{UserID: "investigator-8"}
	ans, err := h.orch.Ask(ctx, AskRequest{EvidenceFileID: fileID, Question: "same question", Caller: other})
	require.NoError(t, err)
	require.Len(t, h.model.prompts, 1)
	require.Equal(t, "Ravi Sharma is a contact who travelled to Mumbai.", ans.Answer)
}

func TestAsk_PersistenceFailureDoesNotFailRequest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(nil)
	h.store.upsertErr = errBoom
	fileID := h.store.addFile()

	ans, err := h.orch.Ask(ctx, AskRequest{EvidenceFileID: fileID, Question: "hello", Caller: investigator})
	require.NoError(t, err)
	require.Equal(t, "user: hello\nassistant: Ravi Sharma is a contact who travelled to Mumbai.", ans.Transcript)
}

func TestAsk_CancelledCallerDoesNotFailSharedAnswer(t *testing.T) {
	h := newHarness(nil)
	gated := newGatedModel()
	retriever := NewRetriever(h.store, h.cache, nil, nil, testAssembler, time.Hour)
	h.orch = NewOrchestrator(h.store, nil, retriever, NewSessions(h.cache, h.store, time.Hour), gated, h.cache, Options{})
	fileID := h.store.addFile()
	h.store.addArtifact(fileID, "call", "Outgoing call to +91 98200 00000")
	question := "Which numbers were called?"
	answerKey := CacheKey(NamespaceAnswer, fileID, question)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	type result struct {
		ans *Answer
		err error
	}
	resA := make(chan result, 1)
	go func() {
		ans, err := h.orch.Ask(ctxA, AskRequest{EvidenceFileID: fileID, Question: question, Caller: investigator})
		resA <- result{ans, err}
	}()
	<-gated.entered

	resB := make(chan result, 1)
	go func() {
		other := access.Caller{UserID: "investigator-8"}
		ans, err := h.orch.Ask(context.Background(), AskRequest{EvidenceFileID: fileID, Question: question, Caller: other})
		resB <- result{ans, err}
	}()
	// The second caller has missed the answer cache and is joining the in-flight call.
	require.Eventually(t, func() bool { return h.cache.reads(answerKey) >= 2 }, 5*time.Second, 5*time.Millisecond)

	cancelA()
	time.Sleep(50 * time.Millisecond)
	close(gated.release)

	a, b := <-resA, <-resB
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	require.Equal(t, "Two calls to +91 98200 00000.", a.ans.Answer)
	require.Equal(t, "Two calls to +91 98200 00000.", b.ans.Answer)

	// The cancelled caller's turn and the answer are still recorded.
	stored, err := h.store.GetChatSession(context.Background(), a.ans.SessionID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Len(t, stored.Messages, 2)
	require.Contains(t, h.cache.data, answerKey)
}

func TestNewOrchestrator_HistoryTurnsDefaults(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name        string
		turns       int
		wantHistory bool
	}{
		{name: "zero selects default", turns: 0, wantHistory: true},
		{name: "negative omits history", turns: -1, wantHistory: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(nil)
			retriever := NewRetriever(h.store, h.cache, nil, nil, testAssembler, time.Hour)
			h.orch = NewOrchestrator(h.store, nil, retriever, NewSessions(h.cache, h.store, time.Hour), h.model, h.cache, Options{HistoryTurns: tc.turns})
			fileID := h.store.addFile()

			_, err := h.orch.Ask(ctx, AskRequest{EvidenceFileID: fileID, Question: "Who is Ravi Sharma?", Caller: investigator})
			require.NoError(t, err)
			second, err := h.orch.Ask(ctx, AskRequest{EvidenceFileID: fileID, Question: "Where did he travel?", Caller: investigator})
			require.NoError(t, err)
			if tc.wantHistory {
				require.Contains(t, second.Prompt, "User: Who is Ravi Sharma?")
			} else {
				require.NotContains(t, second.Prompt, "Conversation so far:")
			}
		})
	}
}

func TestBuildPrompt_KeepsOnlyRecentHistory(t *testing.T) {
	var history []model.Message
	for i := 0; i < 14; i++ {
		history = append(history, model.Message{Role: model.RoleUser, Text: "q" + string(rune('a'+i))})
	}
	prompt := BuildPrompt("now?", "ctx", history, 10)
	require.NotContains(t, prompt, "User: qa\n")
	require.NotContains(t, prompt, "User: qd\n")
	require.Contains(t, prompt, "User: qe\n")
	require.Contains(t, prompt, "User: qn\n")
	require.True(t, strings.Index(prompt, "Conversation so far:") < strings.Index(prompt, "Question:\nnow?"))
	require.NotContains(t, BuildPrompt("now?", "ctx", nil, 10), "Conversation so far:")
}
