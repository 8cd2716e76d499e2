package client

import (
	"context"
	"sync"
	"time"

	"github.com/CherifSy/divide"
)

// DefaultAccountTimeout bounds how long a stored credential lookup may
// block its calling goroutine.
const DefaultAccountTimeout = 5 * time.Second

// AccountStore resolves a locally stored account reference to its saved
// auth token. Lookups may block up to the context deadline, so they run
// off any latency-sensitive goroutine.
type AccountStore interface {
	// StoredToken returns the auth token saved under the reference.
	StoredToken(ctx context.Context, ref string) (string, error)
	// SaveToken persists the auth token under the reference.
	SaveToken(ctx context.Context, ref, token string) error
	// RemoveToken forgets the reference. Unknown references are a no-op.
	RemoveToken(ctx context.Context, ref string) error
}

// MemoryAccountStore is an in-process AccountStore. Useful for tests and
// for platforms without a system account manager.
type MemoryAccountStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewMemoryAccountStore returns an empty store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{tokens: map[string]string{}}
}

// StoredToken implements AccountStore.
func (s *MemoryAccountStore) StoredToken(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[ref]
	if !ok {
		return "", divide.ErrAccountNotFound
	}
	return token, nil
}

// SaveToken implements AccountStore.
func (s *MemoryAccountStore) SaveToken(ctx context.Context, ref, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[ref] = token
	return nil
}

// RemoveToken implements AccountStore.
func (s *MemoryAccountStore) RemoveToken(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, ref)
	return nil
}
