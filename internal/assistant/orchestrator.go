package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/ufdr-service/internal/access"
	"github.com/chirino/ufdr-service/internal/model"
	registryanswer "github.com/chirino/ufdr-service/internal/registry/answer"
	registrycache "github.com/chirino/ufdr-service/internal/registry/cache"
	"github.com/chirino/ufdr-service/internal/security"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// DefaultAnswerTTL is how long a model answer is reused for the same file and question.
const DefaultAnswerTTL = 7 * 24 * time.Hour

// Store is everything the orchestrator reads from and writes to durably.
type Store interface {
	GetEvidenceFile(ctx context.Context, id uuid.UUID) (*model.EvidenceFile, error)
	ArtifactStore
	SessionStore
}

// Authorizer decides whether a caller may query an evidence file.
type Authorizer interface {
	Authorize(ctx context.Context, caller access.Caller, file *model.EvidenceFile) error
}

// AskRequest is one investigator question about one evidence file.
type AskRequest struct {
	EvidenceFileID uuid.UUID
	Question       string
	Caller         access.Caller
	// TopK bounds the number of retrieved artifacts; zero selects the default.
	TopK int
}

// Answer is the result of Ask.
type Answer struct {
	Query              string      `json:"query"`
	EvidenceFileID     uuid.UUID   `json:"evidenceFileId"`
	Answer             string      `json:"answer"`
	Transcript         string      `json:"transcript"`
	SessionID          uuid.UUID   `json:"sessionId"`
	MatchedCount       int         `json:"matchedCount"`
	MatchedArtifactIDs []uuid.UUID `json:"matchedArtifactIds"`
	RetrievalTier      Tier        `json:"retrievalTier"`
	ServedFromCache    bool        `json:"servedFromCache"`

	// Prompt is the text sent to the answering model.
	Prompt string `json:"-"`
}

type cachedAnswer struct {
	Answer string `json:"answer"`
}

type completion struct {
	text   string
	failed bool
}

// Options tune the orchestrator. Zero values select the defaults.
type Options struct {
	DefaultTopK int
	// HistoryTurns is how many earlier messages the prompt repeats. A negative
	// value leaves the conversation out of the prompt.
	HistoryTurns int
	AnswerTTL    time.Duration
}

// Orchestrator runs the ask flow: access checks, session memory, retrieval,
// the cached model call and persistence of the turn.
type Orchestrator struct {
	store     Store
	authz     Authorizer
	retriever *Retriever
	sessions  *Sessions
	model     registryanswer.Model
	cache     registrycache.Cache
	opts      Options
	flight    singleflight.Group
}

// NewOrchestrator wires the pipeline. authz and cache may be nil.
func NewOrchestrator(store Store, authz Authorizer, retriever *Retriever, sessions *Sessions, answerModel registryanswer.Model, cache registrycache.Cache, opts Options) *Orchestrator {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 100
	}
	if opts.HistoryTurns == 0 {
		opts.HistoryTurns = DefaultHistoryTurns
	}
	if opts.AnswerTTL <= 0 {
		opts.AnswerTTL = DefaultAnswerTTL
	}
	return &Orchestrator{
		store:     store,
		authz:     authz,
		retriever: retriever,
		sessions:  sessions,
		model:     answerModel,
		cache:     cache,
		opts:      opts,
	}
}

// Ask answers req. It fails only when the evidence file does not exist or the
// caller may not access it; every later failure degrades the answer instead.
func (o *Orchestrator) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	start := time.Now()
	file, err := o.store.GetEvidenceFile(ctx, req.EvidenceFileID)
	if err != nil {
		return nil, err
	}
	if o.authz != nil {
		if err := o.authz.Authorize(ctx, req.Caller, file); err != nil {
			return nil, err
		}
	}
	topK := req.TopK
	if topK <= 0 {
		topK = o.opts.DefaultTopK
	}
	// Once accepted, the turn is answered and recorded even if the caller
	// goes away; other callers may be waiting on the same model call.
	detached := context.WithoutCancel(ctx)

	sessionID := DeriveSessionID(file.ID, req.Caller.UserID)
	unlock := o.sessions.Lock(sessionID)
	defer unlock()

	persist := true
	session, err := o.sessions.Load(ctx, sessionID)
	if err != nil {
		// Saving a fresh session now would overwrite history we failed to read.
		log.Warn("Session load failed; answering without history", "sessionId", sessionID, "err", err)
		session, persist = nil, false
	}
	if session == nil {
		session = newSession(sessionID, file.ID, req.Caller.UserID)
	}
	history := append([]model.Message(nil), session.Messages...)
	session.Messages = append(session.Messages, model.Message{
		Role:      model.RoleUser,
		Text:      req.Question,
		Timestamp: time.Now().UTC(),
	})

	retrieval := o.retriever.Retrieve(ctx, file.ID, req.Question, topK)
	prompt := BuildPrompt(req.Question, retrieval.Context, history, o.opts.HistoryTurns)
	answer, outcome := o.complete(ctx, detached, file.ID, req.Question, prompt)

	session.Messages = append(session.Messages, model.Message{
		Role:      model.RoleAssistant,
		Text:      answer,
		Timestamp: time.Now().UTC(),
	})
	if persist {
		if err := o.sessions.Save(detached, session); err != nil {
			log.Warn("Session save failed", "sessionId", sessionID, "err", err)
		}
	}
	security.ObserveAnswer(outcome, start)

	return &Answer{
		Query:              req.Question,
		EvidenceFileID:     file.ID,
		Answer:             answer,
		Transcript:         Transcript(session.Messages),
		SessionID:          sessionID,
		MatchedCount:       len(retrieval.Artifacts),
		MatchedArtifactIDs: retrieval.ArtifactIDs(),
		RetrievalTier:      retrieval.Tier,
		ServedFromCache:    retrieval.FromCache,
		Prompt:             prompt,
	}, nil
}

// complete returns the model's answer for the question, served from the
// answer cache when possible. Concurrent misses for the same key share one
// model call, which runs under detached so no single caller can cancel it.
// Failures come back as a marked answer and are not cached.
func (o *Orchestrator) complete(ctx, detached context.Context, fileID uuid.UUID, question, prompt string) (string, string) {
	key := CacheKey(NamespaceAnswer, fileID, question)
	var cached cachedAnswer
	hit, err := registrycache.GetJSON(ctx, o.cache, key, &cached)
	if err != nil {
		log.Debug("Answer cache read failed", "key", key, "err", err)
	}
	hit = hit && cached.Answer != ""
	security.CountCache(NamespaceAnswer, hit)
	if hit {
		return cached.Answer, "cached"
	}

	v, _, _ := o.flight.Do(key, func() (interface{}, error) {
		if o.model == nil {
			return completion{text: "[Error communicating with answering model: none configured]", failed: true}, nil
		}
		name := o.model.Name()
		text, err := o.model.Complete(detached, prompt)
		if err != nil {
			log.Warn("Answering model call failed", "model", name, "err", err)
			return completion{text: fmt.Sprintf("[Error communicating with %s: %v]", name, err), failed: true}, nil
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return completion{text: fmt.Sprintf("[No response received from %s]", name), failed: true}, nil
		}
		if err := registrycache.SetJSON(detached, o.cache, key, cachedAnswer{Answer: text}, o.opts.AnswerTTL); err != nil {
			log.Warn("Answer cache write failed", "key", key, "err", err)
		}
		return completion{text: text}, nil
	})
	c := v.(completion)
	if c.failed {
		return c.text, "error"
	}
	return c.text, "answered"
}

func newSession(id, fileID uuid.UUID, userID string) *model.ChatSession {
	s := &model.ChatSession{
		ID:             id,
		EvidenceFileID: &fileID,
		Messages:       []model.Message{},
	}
	if userID != "" {
		s.UserID = &userID
	}
	return s
}
