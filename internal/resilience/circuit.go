package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrCircuitOpen is returned without invoking the wrapped call while a
// breaker is cooling down.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// Breaker state names, as reported by State and BreakerSet.Snapshot.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// Breaker stops dispatch to one stage task after a streak of transient
// failures, so a struggling upstream service gets a cooldown instead of a
// hammering. State is derived rather than stored: the breaker is open while
// the streak has reached the threshold and the cooldown since the last
// failure has not elapsed, and half-open (probes allowed) after that.
//
// Only transient failures count toward the streak. A record with bad data
// or a misconfigured API key says nothing about whether the service behind
// the task is up.
type Breaker struct {
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	streak   int
	lastFail time.Time

	// clock is swapped in tests to step through the cooldown.
	clock func() time.Time
}

// NewBreaker creates a breaker that opens after threshold consecutive
// transient failures and stays open for cooldown.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// State reports "closed", "open" or "half-open".
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state()
}

func (b *Breaker) state() string {
	if b.streak < b.threshold {
		return StateClosed
	}
	if b.clock().Sub(b.lastFail) < b.cooldown {
		return StateOpen
	}
	return StateHalfOpen
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state() != StateOpen
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.streak = 0
		return
	}
	// Permanent failures neither heal nor harm the streak.
	if !IsTransient(err) {
		return
	}
	b.streak++
	b.lastFail = b.clock()
}

// Guard runs fn through the breaker, returning ErrCircuitOpen without
// calling fn while the breaker is open. A successful half-open probe closes
// the breaker; a transient failure reopens it for another cooldown.
func Guard[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !b.allow() {
		return zero, ErrCircuitOpen
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

// BreakerSet lazily creates one breaker per task name, all sharing the same
// threshold and cooldown.
type BreakerSet struct {
	threshold int
	cooldown  time.Duration

	mu     sync.Mutex
	byName map[string]*Breaker
}

// NewBreakerSet creates an empty set with the given per-breaker settings.
func NewBreakerSet(threshold int, cooldown time.Duration) *BreakerSet {
	return &BreakerSet{
		threshold: threshold,
		cooldown:  cooldown,
		byName:    make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (s *BreakerSet) Get(name string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byName[name]
	if !ok {
		b = NewBreaker(s.threshold, s.cooldown)
		s.byName[name] = b
	}
	return b
}

// Snapshot reports the state of every breaker created so far, keyed by
// task name. Used by status reports.
func (s *BreakerSet) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	states := make(map[string]string, len(s.byName))
	for name, b := range s.byName {
		states[name] = b.State()
	}
	return states
}
