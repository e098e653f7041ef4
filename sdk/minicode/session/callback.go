package session

import (
	"sync"
	"sync/atomic"
)

// Callback receives generated fragments and is polled for cancellation. The
// session never calls it concurrently, but IsCancelled may observe a flag
// set from another goroutine.
type Callback interface {
	OnToken(fragment string)
	IsCancelled() bool
}

// Funcs adapts a pair of functions to the Callback interface. A nil Token
// discards fragments and a nil Cancelled never cancels.
type Funcs struct {
	Token     func(fragment string)
	Cancelled func() bool
}

// OnToken implements Callback.
func (f Funcs) OnToken(fragment string) {
	if f.Token != nil {
		f.Token(fragment)
	}
}

// IsCancelled implements Callback.
func (f Funcs) IsCancelled() bool {
	if f.Cancelled == nil {
		return false
	}

	return f.Cancelled()
}

// =============================================================================

// StreamCallback is a Callback whose cancellation flag can be set from any
// goroutine. Once cancelled it stays cancelled.
type StreamCallback struct {
	onToken   func(fragment string)
	cancelled atomic.Bool

	mu     sync.Mutex
	reason string
}

// NewStreamCallback returns a callback that forwards fragments to fn.
func NewStreamCallback(fn func(fragment string)) *StreamCallback {
	return &StreamCallback{
		onToken: fn,
	}
}

// OnToken implements Callback.
func (s *StreamCallback) OnToken(fragment string) {
	if s.onToken != nil {
		s.onToken(fragment)
	}
}

// IsCancelled implements Callback.
func (s *StreamCallback) IsCancelled() bool {
	return s.cancelled.Load()
}

// Cancel sets the flag. The first reason given is kept.
func (s *StreamCallback) Cancel(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled.Load() {
		return
	}

	s.reason = reason
	s.cancelled.Store(true)
}

// Reason returns the reason given to the first Cancel call.
func (s *StreamCallback) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reason
}
