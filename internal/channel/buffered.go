package channel

// Buffered absorbs bursts from the frame loop so the coordinator keeps
// generating while the storage writer catches up.
type Buffered[T any] struct {
	ch chan T
}

// NewBuffered creates a buffered channel holding up to size records.
func NewBuffered[T any](size int) *Buffered[T] {
	return &Buffered[T]{ch: make(chan T, size)}
}

// Send blocks once the buffer is full.
func (b *Buffered[T]) Send(v T) {
	b.ch <- v
}

// TrySend sends without blocking. Returns false if the buffer is full.
func (b *Buffered[T]) TrySend(v T) bool {
	select {
	case b.ch <- v:
		return true
	default:
		return false
	}
}

// Receive returns the receive-only channel
func (b *Buffered[T]) Receive() <-chan T {
	return b.ch
}

// Len reports the backlog waiting in the buffer. The monitor samples it
// to spot a storage writer falling behind the frame loop.
func (b *Buffered[T]) Len() int {
	return len(b.ch)
}

// Close closes the channel
func (b *Buffered[T]) Close() {
	close(b.ch)
}
