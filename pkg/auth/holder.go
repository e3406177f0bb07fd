package auth

import (
	"sync/atomic"
	"time"
)

// TokenHolder stores the current credential. Readers always see either the
// previous or the new credential, never a partial one.
type TokenHolder struct {
	current atomic.Pointer[Credential]
	now     func() time.Time
}

// NewTokenHolder returns an empty holder.
func NewTokenHolder() *TokenHolder {
	return &TokenHolder{now: time.Now}
}

// Store replaces the current credential.
func (h *TokenHolder) Store(c *Credential) {
	h.current.Store(c)
}

// Load returns the current credential, or nil.
func (h *TokenHolder) Load() *Credential {
	return h.current.Load()
}

// Clear drops the current credential.
func (h *TokenHolder) Clear() {
	h.current.Store(nil)
}

// Valid reports whether a usable credential is held.
func (h *TokenHolder) Valid() bool {
	return h.current.Load().Valid(h.clock())
}

// Token returns the current bearer token when valid.
func (h *TokenHolder) Token() (string, bool) {
	c := h.current.Load()
	if !c.Valid(h.clock()) {
		return "", false
	}
	return c.Token, true
}

func (h *TokenHolder) clock() time.Time {
	if h.now == nil {
		return time.Now()
	}
	return h.now()
}
