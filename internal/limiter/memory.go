package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Memory is the in-process limiter used when no database is configured.
type Memory struct {
	clock    clockwork.Clock
	window   time.Duration
	maxFails int
	blockFor time.Duration

	mu      sync.Mutex
	entries map[string]*memEntry
}

type memEntry struct {
	fails        int
	updatedAt    time.Time
	blockedUntil time.Time
}

// NewMemory constructs an in-memory limiter with the same semantics as PG.
func NewMemory(clock clockwork.Clock, window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	return &Memory{clock: clock, window: window, maxFails: maxFails, blockFor: blockFor, entries: map[string]*memEntry{}}
}

// Allow implements Limiter.
func (l *Memory) Allow(ctx context.Context, ipHash []byte) (bool, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entries[string(ipHash)]
	if e == nil {
		return true, 0, nil
	}
	if now := l.clock.Now(); e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success implements Limiter.
func (l *Memory) Success(ctx context.Context, ipHash []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, string(ipHash))
	return nil
}

// Failure implements Limiter.
func (l *Memory) Failure(ctx context.Context, ipHash []byte) (bool, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	e := l.entries[string(ipHash)]
	if e == nil {
		e = &memEntry{}
		l.entries[string(ipHash)] = e
	}
	if now.Sub(e.updatedAt) > l.window {
		e.fails = 0
	}
	e.fails++
	e.updatedAt = now
	if e.fails >= l.maxFails {
		e.blockedUntil = now.Add(l.blockFor)
		return true, l.blockFor, nil
	}
	return false, 0, nil
}
