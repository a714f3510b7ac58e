// Package auth verifies the API tokens accepted by the HTTP server.
package auth

import (
	"crypto/subtle"
	"errors"
	"sync"

	"github.com/PentesterFlow/ScrapeIt/internal/logger"
)

// ErrInvalidToken is returned for a token that is neither the master
// token nor previously validated.
var ErrInvalidToken = errors.New("invalid token")

// TokenStore persists validated tokens.
type TokenStore interface {
	AddToken(token string) error
	HasToken(token string) (bool, error)
}

// TokenVerifier checks request tokens against a master token. A token that
// matches once is remembered in memory and in the store.
type TokenVerifier struct {
	master string
	store  TokenStore
	log    *logger.Logger

	mu        sync.RWMutex
	validated map[string]struct{}
}

// NewTokenVerifier creates a verifier. store may be nil.
func NewTokenVerifier(master string, store TokenStore, log *logger.Logger) *TokenVerifier {
	if log == nil {
		log = logger.Global()
	}
	return &TokenVerifier{
		master:    master,
		store:     store,
		log:       log.WithComponent("auth"),
		validated: make(map[string]struct{}),
	}
}

// Verify reports whether token is accepted.
func (v *TokenVerifier) Verify(token string) bool {
	if token == "" {
		return false
	}

	v.mu.RLock()
	_, ok := v.validated[token]
	v.mu.RUnlock()
	if ok {
		return true
	}

	if v.store != nil {
		if found, err := v.store.HasToken(token); err != nil {
			v.log.Event(logger.WarnLevel).Err(err).Msg("Token lookup failed")
		} else if found {
			v.remember(token)
			return true
		}
	}

	if v.master == "" || subtle.ConstantTimeCompare([]byte(token), []byte(v.master)) != 1 {
		return false
	}

	v.remember(token)
	if v.store != nil {
		if err := v.store.AddToken(token); err != nil {
			v.log.Event(logger.ErrorLevel).Err(err).Msg("Failed to persist validated token")
		}
	}
	v.log.Info("New token validated and saved")
	return true
}

// Check applies the request policy: an absent token is allowed, a present
// one must verify.
func (v *TokenVerifier) Check(token string) error {
	if token == "" || v.Verify(token) {
		return nil
	}
	return ErrInvalidToken
}

// Validated returns the number of tokens remembered in memory.
func (v *TokenVerifier) Validated() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.validated)
}

func (v *TokenVerifier) remember(token string) {
	v.mu.Lock()
	v.validated[token] = struct{}{}
	v.mu.Unlock()
}
