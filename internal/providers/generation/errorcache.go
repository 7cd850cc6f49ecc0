package generation

import (
	"sync"
	"time"

	"contentengine/internal/domain"
)

// DefaultErrorTTL is how long the most recent provider failure is kept.
const DefaultErrorTTL = time.Hour

// LastError is the cached summary of the most recent failed attempt.
type LastError struct {
	Time     time.Time      `json:"time"`
	Provider string         `json:"provider"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// ErrorCache holds the latest provider failure for operator diagnostics.
// A nil *ErrorCache ignores writes and reports nothing.
type ErrorCache struct {
	mu   sync.RWMutex
	ttl  time.Duration
	now  func() time.Time
	last *LastError
}

func NewErrorCache(ttl time.Duration) *ErrorCache {
	if ttl <= 0 {
		ttl = DefaultErrorTTL
	}
	return &ErrorCache{ttl: ttl, now: time.Now}
}

// Record replaces the cached failure with e.
func (c *ErrorCache) Record(e *domain.ProviderError) {
	if c == nil || e == nil {
		return
	}
	meta := make(map[string]any, len(e.Meta))
	for k, v := range e.Meta {
		meta[k] = v
	}
	c.mu.Lock()
	c.last = &LastError{Time: c.now(), Provider: e.Provider, Code: e.Code, Message: e.Message, Meta: meta}
	c.mu.Unlock()
}

// Last returns the cached failure if it has not expired.
func (c *ErrorCache) Last() (LastError, bool) {
	if c == nil {
		return LastError{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil || c.now().Sub(c.last.Time) > c.ttl {
		return LastError{}, false
	}
	return *c.last, true
}
