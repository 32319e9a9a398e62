package logging

import (
	"os"
	"sync"
)

// RingBuffer is a thread-safe circular byte buffer used to keep the most
// recent log output in memory. It implements io.Writer and overwrites the
// oldest data when full.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []byte
	start int
	count int
}

// NewRingBuffer creates a ring buffer with the given capacity in bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 4 * 1024 * 1024
	}
	return &RingBuffer{buf: make([]byte, size)}
}

// Write implements io.Writer. Older data is discarded once capacity is
// exceeded; writes never fail.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	size := len(rb.buf)
	if n >= size {
		copy(rb.buf, p[n-size:])
		rb.start = 0
		rb.count = size
		return n, nil
	}

	end := (rb.start + rb.count) % size
	first := copy(rb.buf[end:], p)
	copy(rb.buf, p[first:])

	rb.count += n
	if rb.count > size {
		rb.start = (rb.start + rb.count - size) % size
		rb.count = size
	}
	return n, nil
}

// Bytes returns the buffer contents in chronological order.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]byte, rb.count)
	first := copy(out, rb.buf[rb.start:min(rb.start+rb.count, len(rb.buf))])
	copy(out[first:], rb.buf[:rb.count-first])
	return out
}

// Len returns the number of buffered bytes.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// DumpToFile writes the buffer contents to a file in chronological order.
func (rb *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o644)
}
