// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"fmt"
	"sync"
)

// ErrTurnInFlight is returned by BeginTurn when a turn is already running
// for the conversation.
var ErrTurnInFlight = errors.New("a response is already streaming for this conversation")

// Persister receives every committed mapping once the initial load is done.
type Persister interface {
	SaveConversations(Conversations)
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(Conversations)

// SaveConversations calls f(c).
func (f PersisterFunc) SaveConversations(c Conversations) { f(c) }

// Store holds the current mapping. The zero value is not usable; use New.
//
// Writers are serialized: Commit and Update hold commitMu from reading the
// current mapping until the persister has returned, so commits are never
// lost and are persisted in the order they were made.
type Store struct {
	commitMu  sync.Mutex
	mu        sync.Mutex
	convs     Conversations
	persister Persister
	loaded    bool
	inFlight  map[string]struct{}
}

// New creates an empty store. Persistence stays disabled until Load is
// called so the initial empty state never overwrites stored data.
func New(p Persister) *Store {
	return &Store{
		convs:     Conversations{},
		persister: p,
		inFlight:  make(map[string]struct{}),
	}
}

// Load installs the initial mapping without persisting it and enables
// persistence for subsequent commits.
func (s *Store) Load(initial Conversations) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if initial == nil {
		initial = Conversations{}
	}
	s.convs = initial
	s.loaded = true
}

// Snapshot returns the current mapping. Callers must not mutate it.
func (s *Store) Snapshot() Conversations {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convs
}

// Commit replaces the current mapping and persists it.
func (s *Store) Commit(next Conversations) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.commit(next)
}

// Update applies fn to the current mapping and commits the result. No other
// commit can land between the read and the write. fn must not call back
// into the store's write methods.
func (s *Store) Update(fn func(Conversations) Conversations) Conversations {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	next := fn(s.Snapshot())
	return s.commit(next)
}

// commit swaps and persists next. The caller holds commitMu.
func (s *Store) commit(next Conversations) Conversations {
	if next == nil {
		next = Conversations{}
	}
	s.mu.Lock()
	s.convs = next
	persist := s.loaded && s.persister != nil
	s.mu.Unlock()

	if persist {
		s.persister.SaveConversations(next)
	}
	return next
}

// =============================================================================
// IN-FLIGHT GUARD
// =============================================================================

// BeginTurn marks a turn as running for conversation id.
func (s *Store) BeginTurn(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return fmt.Errorf("conversation %s: %w", id, ErrTurnInFlight)
	}
	s.inFlight[id] = struct{}{}
	return nil
}

// EndTurn releases the guard taken by BeginTurn. It is safe to call when no
// turn is running.
func (s *Store) EndTurn(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// InFlight reports whether a turn is running for conversation id.
func (s *Store) InFlight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inFlight[id]
	return busy
}
