// Package realtime turns store subscriptions into observer state: one live listener per
// logical observer, the driver-side reaction to booking changes and bounded first-snapshot
// waits.
package realtime

import (
	"sync"

	"plugin/backend/services/marketplace/internal/store"
)

// Slot owns at most one live subscription.
type Slot struct {
	mu     sync.Mutex
	cancel store.CancelFunc
}

// Subscribe cancels the current subscription and installs the one subscribe opens. On error
// the slot is left empty.
func (s *Slot) Subscribe(subscribe func() (store.CancelFunc, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	cancel, err := subscribe()
	if err != nil {
		return err
	}
	s.cancel = cancel
	return nil
}

// Close cancels the current subscription, if any.
func (s *Slot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Active reports whether a subscription is installed.
func (s *Slot) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}
