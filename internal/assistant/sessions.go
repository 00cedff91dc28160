package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/ufdr-service/internal/model"
	registrycache "github.com/chirino/ufdr-service/internal/registry/cache"
	"github.com/google/uuid"
)

// DefaultSessionTTL is how long a session stays in the fast store after its last save.
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionStore is the durable store of chat sessions.
type SessionStore interface {
	// GetChatSession returns nil with a nil error when no session exists.
	GetChatSession(ctx context.Context, id uuid.UUID) (*model.ChatSession, error)
	UpsertChatSession(ctx context.Context, session *model.ChatSession) error
}

// DeriveSessionID returns the session id of a user's conversation about an
// evidence file. The same pair always maps to the same id.
func DeriveSessionID(fileID uuid.UUID, userID string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(fileID.String()+":"+userID))
}

// Sessions keeps chat sessions in the fast store with the durable store as the
// record of truth.
type Sessions struct {
	cache registrycache.Cache
	store SessionStore
	ttl   time.Duration

	mu    sync.Mutex
	locks map[uuid.UUID]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewSessions creates a Sessions. cache may be nil.
func NewSessions(cache registrycache.Cache, store SessionStore, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{
		cache: cache,
		store: store,
		ttl:   ttl,
		locks: map[uuid.UUID]*sessionLock{},
	}
}

// Load returns the session, or nil when neither store has it. A fast-store
// miss that hits the durable store warms the fast store.
func (s *Sessions) Load(ctx context.Context, id uuid.UUID) (*model.ChatSession, error) {
	key := SessionKey(id)
	var cached model.ChatSession
	hit, err := registrycache.GetJSON(ctx, s.cache, key, &cached)
	if err != nil {
		log.Debug("Session cache read failed", "sessionId", id, "err", err)
	}
	if hit && cached.ID == id {
		return &cached, nil
	}

	session, err := s.store.GetChatSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if session == nil {
		return nil, nil
	}
	if err := registrycache.SetJSON(ctx, s.cache, key, session, s.ttl); err != nil {
		log.Debug("Session cache warm failed", "sessionId", id, "err", err)
	}
	return session, nil
}

// Save writes the full session to the fast store, then upserts the durable
// copy. Both writes are attempted; their failures are returned joined.
func (s *Sessions) Save(ctx context.Context, session *model.ChatSession) error {
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	var errs []error
	if err := registrycache.SetJSON(ctx, s.cache, SessionKey(session.ID), session, s.ttl); err != nil {
		errs = append(errs, fmt.Errorf("cache session: %w", err))
	}
	if err := s.store.UpsertChatSession(ctx, session); err != nil {
		errs = append(errs, fmt.Errorf("persist session: %w", err))
	}
	return errors.Join(errs...)
}

// Lock serialises load-modify-save cycles on one session within this process.
// The returned func releases the lock.
func (s *Sessions) Lock(id uuid.UUID) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}
