package tasks

import (
	"math/rand"
	"sync"
	"time"
)

const (
	DefaultBackoffMin = 250 * time.Millisecond
	DefaultBackoffMax = 30 * time.Second
)

// Backoff yields jittered exponential delays between Min and Max.
// Up to 20% jitter is added on top of the base delay.
type Backoff struct {
	min time.Duration
	max time.Duration

	mu       sync.Mutex
	cur      time.Duration
	attempts int
	rng      *rand.Rand
}

func NewBackoff(min, max time.Duration) *Backoff {
	if min <= 0 {
		min = DefaultBackoffMin
	}
	if max < min {
		max = min
	}
	return &Backoff{
		min: min,
		max: max,
		cur: min,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay before the next attempt and doubles the base.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	wait := b.cur
	if j := int64(wait) / 5; j > 0 {
		wait += time.Duration(b.rng.Int63n(j + 1))
	}
	b.attempts++
	b.cur *= 2
	if b.cur > b.max {
		b.cur = b.max
	}
	return wait
}

// Attempts returns the number of Next calls since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

func (b *Backoff) Reset() {
	b.mu.Lock()
	b.cur = b.min
	b.attempts = 0
	b.mu.Unlock()
}
