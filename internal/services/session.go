package services

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mfcarvalho/legalconsult/internal/models"
	gocache "github.com/patrickmn/go-cache"
)

// entry wraps a conversation with the mutex that serializes its commands.
type entry struct {
	mu   sync.Mutex
	conv *models.Conversation
}

// Registry is the in-memory conversation store. Conversations expire
// after the idle session TTL; eviction runs the teardown hook so an
// abandoned conversation does not leak its provider-side cached session.
type Registry struct {
	store      *gocache.Cache
	sessionTTL time.Duration
	teardown   func(conv *models.Conversation)
}

// NewRegistry creates a registry whose conversations idle out after
// sessionTTL. teardown is invoked once per evicted or deleted
// conversation that still holds a cached session; it may be nil.
func NewRegistry(sessionTTL time.Duration, teardown func(*models.Conversation)) *Registry {
	r := &Registry{
		store:      gocache.New(sessionTTL, 10*time.Minute),
		sessionTTL: sessionTTL,
		teardown:   teardown,
	}
	r.store.OnEvicted(func(id string, v interface{}) {
		e, ok := v.(*entry)
		if !ok {
			return
		}
		if e.conv.Cache != nil && r.teardown != nil {
			slog.Info("Conversation removed with a live cached session; tearing it down.", "conversationId", id)
			r.teardown(e.conv)
		}
	})
	return r
}

// Create registers a new empty conversation.
func (r *Registry) Create() *models.Conversation {
	conv := models.NewConversation(uuid.NewString())
	r.store.Set(conv.ID, &entry{conv: conv}, r.sessionTTL)
	slog.Info("Conversation created.", "conversationId", conv.ID)
	return conv
}

// Do runs fn holding the conversation's command lock and slides its idle
// expiry. Commands against one conversation execute strictly one at a
// time; this is the whole concurrency model of the service.
func (r *Registry) Do(id string, fn func(conv *models.Conversation) error) error {
	v, ok := r.store.Get(id)
	if !ok {
		return ErrConversationNotFound
	}
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	// The conversation may have been deleted while we waited for the lock.
	if _, ok := r.store.Get(id); !ok {
		return ErrConversationNotFound
	}
	r.store.Set(id, e, r.sessionTTL)
	return fn(e.conv)
}

// Delete removes the conversation, firing the teardown hook if it still
// holds a cached session.
func (r *Registry) Delete(id string) error {
	v, ok := r.store.Get(id)
	if !ok {
		return ErrConversationNotFound
	}
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	r.store.Delete(id)
	return nil
}

// LiveCacheNames returns the provider cache handles currently held by
// live conversations, keyed for membership tests.
func (r *Registry) LiveCacheNames() map[string]bool {
	names := make(map[string]bool)
	for _, item := range r.store.Items() {
		if e, ok := item.Object.(*entry); ok && e.conv.Cache != nil {
			names[e.conv.Cache.Name] = true
		}
	}
	return names
}

// Len reports the number of live conversations.
func (r *Registry) Len() int {
	return r.store.ItemCount()
}

// Shutdown tears down every live conversation. Called once at exit.
func (r *Registry) Shutdown() {
	for id := range r.store.Items() {
		if err := r.Delete(id); err != nil {
			slog.Warn("Failed to delete conversation during shutdown.", "conversationId", id, "error", err)
		}
	}
}
