package api

import (
	"sync"
	"time"

	"github.com/whibo/whibo-server/internal/identity"
)

// TokenIssuer exchanges the shared admin token for opaque bearer tokens and
// validates them later. Issued tokens live in memory only; a restart logs
// every admin out.
type TokenIssuer struct {
	mu     sync.RWMutex
	shared string
	issued map[string]time.Time
}

// NewTokenIssuer creates an issuer around the shared admin token.
func NewTokenIssuer(sharedToken string) *TokenIssuer {
	return &TokenIssuer{
		shared: sharedToken,
		issued: make(map[string]time.Time),
	}
}

// Issue returns a fresh bearer token if the supplied shared token matches.
func (t *TokenIssuer) Issue(sharedToken string) (string, bool) {
	if t.shared == "" || sharedToken != t.shared {
		return "", false
	}

	token, err := identity.NewAdminToken()
	if err != nil {
		return "", false
	}

	t.mu.Lock()
	t.issued[token] = time.Now()
	t.mu.Unlock()
	return token, true
}

// Validate accepts either the shared token or a previously issued bearer.
func (t *TokenIssuer) Validate(token string) bool {
	if token == "" {
		return false
	}
	if t.shared != "" && token == t.shared {
		return true
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.issued[token]
	return ok
}
