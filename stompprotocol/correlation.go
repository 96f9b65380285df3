package stompprotocol

import "sync"

// replySlot is a single-occupancy rendezvous between the command goroutine,
// which arms it before sending a request, and the reader goroutine, which
// completes it when the answer arrives. Each arming yields a fresh one-shot
// channel, so a completion can be observed at most once.
type replySlot struct {
	mu     sync.Mutex
	key    string
	waiter chan error
}

// arm registers the expectation for key. It fails with ErrRequestPending
// while a previous arming is unresolved.
func (s *replySlot) arm(key string) (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiter != nil {
		return nil, ErrRequestPending
	}
	ch := make(chan error, 1)
	s.key = key
	s.waiter = ch
	return ch, nil
}

// complete resolves the slot if key matches the expectation. A mismatch or
// an empty slot leaves it untouched and returns false.
func (s *replySlot) complete(key string, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiter == nil || s.key != key {
		return false
	}
	s.resolveLocked(err)
	return true
}

// completeAny resolves whatever is armed.
func (s *replySlot) completeAny(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiter == nil {
		return false
	}
	s.resolveLocked(err)
	return true
}

// disarm drops the expectation without resolving it.
func (s *replySlot) disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = ""
	s.waiter = nil
}

func (s *replySlot) resolveLocked(err error) {
	s.waiter <- err
	s.key = ""
	s.waiter = nil
}
