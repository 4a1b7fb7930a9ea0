package services

import "errors"

// Error taxonomy surfaced to the presentation layer. Remote provider
// failures are wrapped with operation context instead; response-decoding
// problems never surface as errors at all, they degrade to fallback text.
var (
	ErrInvalidDocument      = errors.New("invalid document")
	ErrNoActiveSession      = errors.New("no active cached session")
	ErrPageOutOfRange       = errors.New("page out of range")
	ErrConversationNotFound = errors.New("conversation not found")
)
