package pty

import (
	"sync"
)

// RollingBuffer is a bounded FIFO of terminal output chunks kept for
// replay on reconnect. When full, the oldest chunk is dropped. It is not
// byte-exact history; it only has to make a reconnected terminal look
// right.
type RollingBuffer struct {
	mu     sync.Mutex
	chunks []string
	start  int // index of oldest chunk
	count  int
}

// DefaultBufferCap bounds memory per PTY session.
const DefaultBufferCap = 5000

// NewRollingBuffer creates a buffer holding at most capacity chunks.
func NewRollingBuffer(capacity int) *RollingBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCap
	}
	return &RollingBuffer{chunks: make([]string, capacity)}
}

// Append adds a chunk, evicting the oldest when at capacity.
func (b *RollingBuffer) Append(chunk string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := len(b.chunks)
	if b.count == size {
		b.chunks[b.start] = chunk
		b.start = (b.start + 1) % size
		return
	}
	b.chunks[(b.start+b.count)%size] = chunk
	b.count++
}

// Snapshot returns the buffered chunks oldest-first.
func (b *RollingBuffer) Snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.chunks[(b.start+i)%len(b.chunks)]
	}
	return out
}

// Len returns the number of buffered chunks.
func (b *RollingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the maximum number of chunks retained.
func (b *RollingBuffer) Cap() int {
	return len(b.chunks)
}
