// Package channel provides generic channel interfaces for decoupled
// communication between the frame pipeline and its consumers (the
// storage writer, the monitor).
package channel

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender provides write access to a channel.
type Sender[T any] interface {
	Send(T)
	// TrySend sends without blocking and reports whether the value was
	// accepted. Producers that must not stall on a slow consumer use
	// this instead of Send.
	TrySend(T) bool
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}
