package models

import "time"

// CacheInfo identifies one provider-side cached session: the document
// bytes plus system instruction stored remotely under an opaque handle
// with a time-to-live. A conversation holds at most one live CacheInfo.
type CacheInfo struct {
	Name        string
	DisplayName string
	Model       string

	// TokenCount is the provider's count of the stored document and
	// instruction, captured once when the session is created.
	TokenCount int32

	CreatedAt time.Time
	ExpiresAt time.Time
}

// SecondsRemaining reports how long the session has until expiry,
// clamped at zero.
func (c *CacheInfo) SecondsRemaining() int {
	if c == nil || c.ExpiresAt.IsZero() {
		return 0
	}
	s := int(time.Until(c.ExpiresAt).Seconds())
	if s < 0 {
		return 0
	}
	return s
}
