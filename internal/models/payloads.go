package models

import "time"

// These structs define the JSON payloads between the HTTP handlers and
// the embedded page (or any other API consumer).

// LoadDocumentRequest asks a conversation to load a document from an
// https URL or a gs:// URI. Uploads use multipart form data instead.
type LoadDocumentRequest struct {
	URL string `json:"url" binding:"required"`
}

// AskRequest carries one user question.
type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

// RenewCacheRequest optionally overrides the configured TTL, in seconds.
type RenewCacheRequest struct {
	TTLSeconds int `json:"ttl_seconds"`
}

// DocumentInfo is the render-ready view of the loaded document.
type DocumentInfo struct {
	Name      string `json:"name"`
	PageCount int    `json:"page_count"`
	SizeBytes int64  `json:"size_bytes"`
}

// CacheStatus is the render-ready view of the cached session.
type CacheStatus struct {
	Active           bool      `json:"active"`
	DisplayName      string    `json:"display_name,omitempty"`
	Model            string    `json:"model,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	SecondsRemaining int       `json:"seconds_remaining"`
}

// Snapshot is the render-ready state of one conversation. Every command
// returns one; the presentation layer decides when to redraw.
type Snapshot struct {
	ConversationID string        `json:"conversation_id"`
	Document       *DocumentInfo `json:"document,omitempty"`
	Cache          CacheStatus   `json:"cache"`
	Turns          []Turn        `json:"turns"`
	LastCitedPages []int         `json:"last_cited_pages,omitempty"`
}

// NewSnapshot builds the snapshot of a conversation.
func NewSnapshot(conv *Conversation) *Snapshot {
	snap := &Snapshot{
		ConversationID: conv.ID,
		Turns:          conv.Turns,
		LastCitedPages: conv.LastCitedPages(),
	}
	if snap.Turns == nil {
		snap.Turns = []Turn{}
	}
	if conv.Document != nil {
		snap.Document = &DocumentInfo{
			Name:      conv.Document.Name,
			PageCount: conv.Document.PageCount,
			SizeBytes: conv.Document.Size,
		}
	}
	if conv.Cache != nil {
		snap.Cache = CacheStatus{
			Active:           true,
			DisplayName:      conv.Cache.DisplayName,
			Model:            conv.Cache.Model,
			CreatedAt:        conv.Cache.CreatedAt,
			ExpiresAt:        conv.Cache.ExpiresAt,
			SecondsRemaining: conv.Cache.SecondsRemaining(),
		}
	}
	return snap
}

// DeleteCacheResponse reports whether a live session was destroyed,
// alongside the post-command snapshot.
type DeleteCacheResponse struct {
	Deleted  bool      `json:"deleted"`
	Snapshot *Snapshot `json:"snapshot"`
}

// PageData is one extracted page. PDF marshals as base64.
type PageData struct {
	Page int    `json:"page"`
	PDF  []byte `json:"pdf"`
}

// CitedPagesResponse carries the extracted pages cited by the most
// recent assistant answer.
type CitedPagesResponse struct {
	Pages []PageData `json:"pages"`
}
