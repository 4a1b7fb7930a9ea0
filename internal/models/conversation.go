package models

import "time"

// Role identifies the author of a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Usage carries the provider's token accounting for one model call.
// Counts come from the provider, never recomputed locally: total, prompt
// and response counts from the response metadata, the cached count from
// the session's create-time accounting.
type Usage struct {
	TotalTokens    int32 `json:"total_tokens"`
	CachedTokens   int32 `json:"cached_tokens"`
	PromptTokens   int32 `json:"prompt_tokens"`
	ResponseTokens int32 `json:"response_tokens"`
}

// Turn is one entry in a conversation transcript. Turns are immutable
// once appended.
type Turn struct {
	Role           Role     `json:"role"`
	Content        string   `json:"content"`
	Pages          []int    `json:"pages,omitempty"`
	Usage          *Usage   `json:"usage,omitempty"`
	Suggestions    []string `json:"suggestions,omitempty"`
	IsConsolidated bool     `json:"is_consolidated,omitempty"`
}

// Conversation bundles everything one user session works on: the loaded
// document, the live provider-side cached session (at most one), and the
// append-only transcript. Operations receive it explicitly; there is no
// ambient global state.
type Conversation struct {
	ID        string
	Document  *Document
	Cache     *CacheInfo
	Turns     []Turn
	CreatedAt time.Time
}

// NewConversation returns an empty conversation with the given ID.
func NewConversation(id string) *Conversation {
	return &Conversation{
		ID:        id,
		CreatedAt: time.Now(),
	}
}

// Append adds a turn to the end of the transcript.
func (c *Conversation) Append(t Turn) {
	c.Turns = append(c.Turns, t)
}

// Clear resets the transcript to empty. The document and cached session
// are untouched.
func (c *Conversation) Clear() {
	c.Turns = nil
}

// Len reports the number of turns in the transcript.
func (c *Conversation) Len() int {
	return len(c.Turns)
}

// Window returns the trailing n turns of the transcript in order. It
// returns the whole transcript when it holds fewer than n turns.
func (c *Conversation) Window(n int) []Turn {
	if n <= 0 || len(c.Turns) == 0 {
		return nil
	}
	if len(c.Turns) <= n {
		return c.Turns
	}
	return c.Turns[len(c.Turns)-n:]
}

// LastCitedPages scans the transcript in reverse and returns the pages
// of the most recent assistant turn that cited any, or nil if none did.
func (c *Conversation) LastCitedPages() []int {
	for i := len(c.Turns) - 1; i >= 0; i-- {
		t := c.Turns[i]
		if t.Role == RoleAssistant && len(t.Pages) > 0 {
			return t.Pages
		}
	}
	return nil
}
