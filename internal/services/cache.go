package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mfcarvalho/legalconsult/internal/models"
)

// CacheBackend is the provider surface the cache manager drives.
// gcp.GenAI implements it.
type CacheBackend interface {
	CreateDocumentCache(ctx context.Context, pdf []byte, displayName string, ttl time.Duration) (*models.CacheInfo, error)
	RenewCache(ctx context.Context, name string, ttl time.Duration) (time.Time, error)
	DeleteCache(ctx context.Context, name string) error
	ListCaches(ctx context.Context) ([]models.CacheInfo, error)
}

// CacheManager owns the single live cached session of each conversation:
// create on document load, renew on demand, delete on teardown.
type CacheManager struct {
	backend    CacheBackend
	model      string
	defaultTTL time.Duration
}

func NewCacheManager(backend CacheBackend, model string, defaultTTL time.Duration) *CacheManager {
	return &CacheManager{
		backend:    backend,
		model:      model,
		defaultTTL: defaultTTL,
	}
}

// DefaultTTL reports the TTL used when a caller passes none.
func (m *CacheManager) DefaultTTL() time.Duration {
	return m.defaultTTL
}

// Create stores the document provider-side and makes the new session the
// conversation's live one. A previously live session is deleted after
// the new one exists, so a failed create leaves the old session usable.
func (m *CacheManager) Create(ctx context.Context, conv *models.Conversation, doc *models.Document, ttl time.Duration) error {
	if doc == nil || len(doc.Data) == 0 {
		return fmt.Errorf("%w: no document bytes to cache", ErrInvalidDocument)
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	displayName := fmt.Sprintf("pdf_cache_%d", time.Now().Unix())
	info, err := m.backend.CreateDocumentCache(ctx, doc.Data, displayName, ttl)
	if err != nil {
		return fmt.Errorf("failed to create cached session: %w", err)
	}

	if prev := conv.Cache; prev != nil {
		if err := m.backend.DeleteCache(ctx, prev.Name); err != nil {
			slog.Warn("Failed to delete replaced cached session; abandoning it.", "conversationId", conv.ID, "cacheName", prev.Name, "error", err)
		}
	}

	conv.Cache = info
	slog.Info("Cached session created.", "conversationId", conv.ID, "cacheName", info.Name, "displayName", displayName, "expiresAt", info.ExpiresAt)
	return nil
}

// Renew extends the live session's TTL.
func (m *CacheManager) Renew(ctx context.Context, conv *models.Conversation, ttl time.Duration) error {
	if conv.Cache == nil {
		return ErrNoActiveSession
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	expires, err := m.backend.RenewCache(ctx, conv.Cache.Name, ttl)
	if err != nil {
		return fmt.Errorf("failed to renew cached session: %w", err)
	}
	conv.Cache.ExpiresAt = expires
	slog.Info("Cached session renewed.", "conversationId", conv.ID, "cacheName", conv.Cache.Name, "expiresAt", expires)
	return nil
}

// Delete destroys the live session. It reports false without error when
// the conversation had none. The local handle is cleared only when the
// provider delete succeeded.
func (m *CacheManager) Delete(ctx context.Context, conv *models.Conversation) (bool, error) {
	if conv.Cache == nil {
		return false, nil
	}
	if err := m.backend.DeleteCache(ctx, conv.Cache.Name); err != nil {
		return false, fmt.Errorf("failed to delete cached session: %w", err)
	}
	slog.Info("Cached session deleted.", "conversationId", conv.ID, "cacheName", conv.Cache.Name)
	conv.Cache = nil
	return true, nil
}

// HasActiveSession reports whether the conversation holds a session
// handle. Pure local check, no remote call.
func (m *CacheManager) HasActiveSession(conv *models.Conversation) bool {
	return conv.Cache != nil
}

// SweepOrphans deletes provider-side caches for this manager's model
// that no live conversation tracks. Startup hygiene for sessions leaked
// by earlier runs.
func (m *CacheManager) SweepOrphans(ctx context.Context, live map[string]bool) (int, error) {
	infos, err := m.backend.ListCaches(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list cached sessions: %w", err)
	}

	var swept int
	for _, info := range infos {
		// Only touch caches provably created against our model.
		if !strings.HasSuffix(info.Model, m.model) {
			continue
		}
		if live[info.Name] {
			continue
		}
		if err := m.backend.DeleteCache(ctx, info.Name); err != nil {
			slog.Warn("Failed to delete orphaned cached session.", "cacheName", info.Name, "error", err)
			continue
		}
		slog.Info("Deleted orphaned cached session.", "cacheName", info.Name)
		swept++
	}
	return swept, nil
}
