package pipeline

import "context"

// Semaphore is a buffered-channel admission gate bounding the number of
// concurrent guest invocations in flight.
type Semaphore struct {
	slots chan struct{}
}

// NewSemaphore builds a Semaphore with the given capacity.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 100
	}
	return &Semaphore{slots: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is free or ctx is done. Callers must call
// the returned release function exactly once (typically via defer).
func (s *Semaphore) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case s.slots <- struct{}{}:
		return func() { <-s.slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
