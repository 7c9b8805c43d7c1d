package logging

import (
	"os"
	"sync"
)

// RingBuffer keeps the last N bytes written to it. It is safe for concurrent use.
type RingBuffer struct {
	mu      sync.Mutex
	data    []byte
	next    int
	wrapped bool
}

// NewRingBuffer returns a buffer holding up to size bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 4 * 1024 * 1024
	}
	return &RingBuffer{data: make([]byte, size)}
}

// Write never fails; older bytes are overwritten once the buffer is full.
func (r *RingBuffer) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(p)
	size := len(r.data)
	if n >= size {
		copy(r.data, p[n-size:])
		r.next = 0
		r.wrapped = true
		return n, nil
	}
	first := copy(r.data[r.next:], p)
	if first < n {
		copy(r.data, p[first:])
		r.wrapped = true
	}
	r.next = (r.next + n) % size
	if r.next == 0 && n > 0 {
		r.wrapped = true
	}
	return n, nil
}

// Len returns the number of bytes currently held.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wrapped {
		return len(r.data)
	}
	return r.next
}

// Bytes returns a copy of the held bytes, oldest first.
func (r *RingBuffer) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.wrapped {
		return append([]byte(nil), r.data[:r.next]...)
	}
	out := make([]byte, 0, len(r.data))
	out = append(out, r.data[r.next:]...)
	return append(out, r.data[:r.next]...)
}

// DumpToFile writes the held bytes to path.
func (r *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, r.Bytes(), 0o600)
}
