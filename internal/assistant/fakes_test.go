package assistant

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chirino/ufdr-service/internal/model"
	registrystore "github.com/chirino/ufdr-service/internal/registry/store"
	registryvector "github.com/chirino/ufdr-service/internal/registry/vector"
	"github.com/google/uuid"
)

type memStore struct {
	mu        sync.Mutex
	files     map[uuid.UUID]*model.EvidenceFile
	artifacts []model.Artifact
	sessions  map[uuid.UUID]model.ChatSession

	upsertErr error

	byIDCalls   int
	searchCalls int
	listCalls   int
	upserts     int
}

func newMemStore() *memStore {
	return &memStore{
		files:    map[uuid.UUID]*model.EvidenceFile{},
		sessions: map[uuid.UUID]model.ChatSession{},
	}
}

func (s *memStore) addFile() uuid.UUID {
	id := uuid.New()
	s.files[id] = &model.EvidenceFile{ID: id, Filename: "device.ufdr", UploadedAt: time.Now()}
	return id
}

func (s *memStore) addArtifact(fileID uuid.UUID, typ, text string) model.Artifact {
	a := model.Artifact{
		ID:             uuid.New(),
		EvidenceFileID: fileID,
		Type:           typ,
		ExtractedText:  &text,
		CreatedAt:      time.Now().Add(time.Duration(len(s.artifacts)) * time.Second),
	}
	s.artifacts = append(s.artifacts, a)
	return a
}

func (s *memStore) GetEvidenceFile(_ context.Context, id uuid.UUID) (*model.EvidenceFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "evidence file", ID: id.String()}
	}
	return f, nil
}

func (s *memStore) GetArtifactsByIDs(_ context.Context, ids []uuid.UUID) ([]model.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byIDCalls++
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Artifact
	// Reverse order to prove callers re-sort.
	for i := len(s.artifacts) - 1; i >= 0; i-- {
		if want[s.artifacts[i].ID] {
			out = append(out, s.artifacts[i])
		}
	}
	return out, nil
}

func (s *memStore) SearchArtifactsByText(_ context.Context, fileID uuid.UUID, terms []string, limit int) ([]model.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchCalls++
	var out []model.Artifact
	for _, a := range s.artifacts {
		if a.EvidenceFileID != fileID {
			continue
		}
		text := strings.ToLower(a.Text())
		for _, t := range terms {
			if strings.Contains(text, strings.ToLower(t)) {
				out = append(out, a)
				break
			}
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) ListArtifacts(_ context.Context, fileID uuid.UUID, limit int) ([]model.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	var out []model.Artifact
	for _, a := range s.artifacts {
		if a.EvidenceFileID == fileID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) GetChatSession(_ context.Context, id uuid.UUID) (*model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	cs.Messages = append([]model.Message(nil), cs.Messages...)
	return &cs, nil
}

func (s *memStore) UpsertChatSession(ctx context.Context, session *model.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts++
	cp := *session
	cp.Messages = append([]model.Message(nil), session.Messages...)
	s.sessions[session.ID] = cp
	return nil
}

// mapCache is an always-available cache with optional write failures.
type mapCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	setErr  error
	sets    int
	getKeys []string
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (c *mapCache) Available() bool { return true }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getKeys = append(c.getKeys, key)
	return c.data[key], nil
}

func (c *mapCache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.setErr != nil {
		return c.setErr
	}
	c.sets++
	c.data[key] = append([]byte(nil), value...)
	return nil
}

func (c *mapCache) reads(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, k := range c.getKeys {
		if k == key {
			n++
		}
	}
	return n
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (e *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vec
	}
	return out, nil
}

func (e *fakeEmbedder) ModelName() string { return "fake" }
func (e *fakeEmbedder) Dimension() int    { return len(e.vec) }

type fakeVectors struct {
	hits  []registryvector.SearchResult
	err   error
	calls int
}

func (v *fakeVectors) Search(_ context.Context, _ uuid.UUID, _ []float32, limit int) ([]registryvector.SearchResult, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	if len(v.hits) > limit {
		return v.hits[:limit], nil
	}
	return v.hits, nil
}

func (v *fakeVectors) Upsert(context.Context, []registryvector.UpsertRequest) error { return nil }
func (v *fakeVectors) DeleteByEvidenceFileID(context.Context, uuid.UUID) error     { return nil }
func (v *fakeVectors) IsEnabled() bool                                              { return true }
func (v *fakeVectors) Name() string                                                 { return "fake" }

type fakeModel struct {
	mu      sync.Mutex
	answer  string
	err     error
	prompts []string
}

func (m *fakeModel) Name() string { return "Gemini" }

func (m *fakeModel) Complete(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	return m.answer, nil
}

// gatedModel blocks every call until release is closed, failing early if the
// call's context is cancelled first.
type gatedModel struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	calls   int
}

func newGatedModel() *gatedModel {
	return &gatedModel{entered: make(chan struct{}), release: make(chan struct{})}
}

func (m *gatedModel) Name() string { return "Gemini" }

func (m *gatedModel) Complete(ctx context.Context, _ string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	m.once.Do(func() { close(m.entered) })
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-m.release:
		return "Two calls to +91 98200 00000.", nil
	}
}

var errBoom = errors.New("boom")
