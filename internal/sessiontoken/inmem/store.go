// Package inmem provides an in-memory implementation of sessiontoken.Store
// for tests and local development.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/flowforge/orchestrator/internal/sessiontoken"
)

type entry struct {
	claims    sessiontoken.Claims
	expiresAt time.Time
}

// Store is an in-memory, TTL-enforcing implementation of sessiontoken.Store.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Set implements sessiontoken.Store.
func (s *Store) Set(_ context.Context, token string, claims sessiontoken.Claims, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = entry{claims: claims, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Get implements sessiontoken.Store.
func (s *Store) Get(_ context.Context, token string) (sessiontoken.Claims, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[token]
	if !ok {
		return sessiontoken.Claims{}, false, nil
	}
	if time.Now().After(e.expiresAt) {
		delete(s.entries, token)
		return sessiontoken.Claims{}, false, nil
	}
	return e.claims, true, nil
}

// Delete implements sessiontoken.Store.
func (s *Store) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
	return nil
}
