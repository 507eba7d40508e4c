// Package featurestore holds the latest feature snapshot shared between the
// refresh task (single writer) and the execution task (reader).
//
// A publish swaps the snapshot pointer, bumps the version and sets the
// updated flag under one lock, then signals a single-slot notify channel.
// Readers therefore never see a flag without its snapshot, and a consumer
// only ever receives the newest version, at most once.
package featurestore

import (
	"context"
	"sync"
	"time"

	"breakout-trader/internal/model"
)

// Store is the explicitly constructed shared feature state.
type Store struct {
	mu      sync.RWMutex
	snap    *model.FeatureSnapshot
	version uint64
	updated bool

	// consumed is the last version handed out by Consume.
	consumed uint64

	notify chan struct{}
}

// New creates an empty Store.
func New() *Store {
	return &Store{notify: make(chan struct{}, 1)}
}

// Publish replaces the snapshot and marks it updated. The store takes
// ownership of snap; callers must not mutate it afterwards. Empty snapshots
// are ignored and report false.
func (s *Store) Publish(snap *model.FeatureSnapshot) (uint64, bool) {
	if snap.Empty() {
		return 0, false
	}

	s.mu.Lock()
	s.snap = snap
	s.version++
	s.updated = true
	v := s.version
	s.mu.Unlock()

	// Single slot: if a notification is already pending, the consumer will
	// pick up this newer version when it wakes.
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return v, true
}

// Latest returns the current snapshot and its version without touching the flag.
func (s *Store) Latest() (*model.FeatureSnapshot, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.version
}

// Updated reports whether a snapshot has been published since the last Consume.
func (s *Store) Updated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}

// Consume returns the newest snapshot and clears the updated flag in the
// same critical section. ok is false when nothing new has been published.
func (s *Store) Consume() (snap *model.FeatureSnapshot, version uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.updated || s.version == s.consumed {
		return nil, 0, false
	}
	s.updated = false
	s.consumed = s.version
	return s.snap, s.version, true
}

// Wait blocks until an unconsumed snapshot is available, then consumes it.
// poll is a fallback re-check interval; 0 disables it.
func (s *Store) Wait(ctx context.Context, poll time.Duration) (*model.FeatureSnapshot, uint64, error) {
	var tick <-chan time.Time
	if poll > 0 {
		t := time.NewTicker(poll)
		defer t.Stop()
		tick = t.C
	}

	for {
		if snap, v, ok := s.Consume(); ok {
			return snap, v, nil
		}
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-s.notify:
		case <-tick:
		}
	}
}
