// Package tokenstore holds the current bearer credential in memory and
// mirrors it to durable storage so it survives restarts.
//
// The token is opaque: no shape or expiry validation happens here.
package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/resilientapi/internal/kv"
)

// StorageKey is the durable key holding the JSON-encoded token.
const StorageKey = "auth_token"

// Store is safe for concurrent use.
type Store struct {
	kv kv.Store

	mu    sync.RWMutex
	token string
	set   bool
}

func New(store kv.Store) *Store {
	return &Store{kv: store}
}

// Set replaces the in-memory token and writes it durably before returning.
// The in-memory value is updated even when the durable write fails.
func (s *Store) Set(ctx context.Context, token string) error {
	s.mu.Lock()
	s.token, s.set = token, true
	s.mu.Unlock()

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := s.kv.Set(ctx, StorageKey, string(data)); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	return nil
}

// Get returns the in-memory token, if any.
func (s *Store) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.set
}

// LoadPersisted hydrates memory from durable storage. A missing or unreadable
// record leaves the store empty; only storage failures are returned.
func (s *Store) LoadPersisted(ctx context.Context) error {
	raw, ok, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		return fmt.Errorf("failed to load token: %w", err)
	}
	if !ok {
		return nil
	}

	var token string
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil
	}

	s.mu.Lock()
	s.token, s.set = token, true
	s.mu.Unlock()
	return nil
}

// Clear drops the token from memory and durable storage. Idempotent.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.token, s.set = "", false
	s.mu.Unlock()

	if err := s.kv.Remove(ctx, StorageKey); err != nil {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	return nil
}
