// Package bytelimiter provides a byte-counting semaphore used to cap the
// total data withheld in rewrite accumulators across connections.
package bytelimiter

import "sync"

// ByteLimiter tracks reserved bytes against a fixed capacity. A nil limiter
// is valid and means "no limit"; every method tolerates it.
type ByteLimiter struct {
	max  int
	mu   sync.Mutex
	used int
}

// New returns a limiter allowing up to max bytes in flight, or nil when
// max <= 0 (limiting disabled).
func New(max int) *ByteLimiter {
	if max <= 0 {
		return nil
	}
	return &ByteLimiter{max: max}
}

// TryAcquire reserves n bytes without blocking. It reports false when the
// reservation would exceed capacity.
func (b *ByteLimiter) TryAcquire(n int) bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used+n > b.max {
		return false
	}
	b.used += n
	return true
}

// Release frees n previously reserved bytes.
func (b *ByteLimiter) Release(n int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.used -= n
	if b.used < 0 {
		b.used = 0
	}
	b.mu.Unlock()
}

// Used reports the current number of reserved bytes.
func (b *ByteLimiter) Used() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Capacity returns the configured maximum, or 0 when unlimited.
func (b *ByteLimiter) Capacity() int {
	if b == nil {
		return 0
	}
	return b.max
}
