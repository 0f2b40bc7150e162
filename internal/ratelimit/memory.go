package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count     int
	resetTime time.Time
}

// MemoryLimiter keeps counters in process memory. Limits are enforced per
// process: in a multi-instance deployment each instance counts on its own.
type MemoryLimiter struct {
	cfg config

	mu      sync.Mutex
	windows map[string]*window

	lifecycle sync.Mutex
	stop      chan struct{}
	done      chan struct{}
}

// NewMemoryLimiter constructs an empty in-process limiter.
func NewMemoryLimiter(opts ...Option) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:     newConfig(opts),
		windows: make(map[string]*window),
	}
}

// Check records an attempt for identifier.
func (l *MemoryLimiter) Check(_ context.Context, identifier string, maxAttempts int) (Result, error) {
	now := l.cfg.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identifier]
	if !ok || now.After(w.resetTime) {
		w = &window{count: 1, resetTime: now.Add(l.cfg.window)}
		l.windows[identifier] = w
		return Result{Allowed: true, Remaining: nonNegative(maxAttempts - 1), ResetTime: w.resetTime}, nil
	}

	if w.count >= maxAttempts {
		return Result{Allowed: false, Remaining: 0, ResetTime: w.resetTime}, nil
	}

	w.count++
	return Result{Allowed: true, Remaining: maxAttempts - w.count, ResetTime: w.resetTime}, nil
}

// Cleanup evicts windows whose reset time has passed and returns how many were removed.
func (l *MemoryLimiter) Cleanup() int {
	now := l.cfg.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		if now.After(w.resetTime) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked identifiers.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Start launches the periodic cleanup goroutine. Calling Start twice is a no-op.
func (l *MemoryLimiter) Start() {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()
	if l.stop != nil {
		return
	}

	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.loop(l.stop, l.done)
}

// Stop halts the cleanup goroutine and waits for it to exit.
func (l *MemoryLimiter) Stop() {
	l.lifecycle.Lock()
	stop, done := l.stop, l.done
	l.stop, l.done = nil, nil
	l.lifecycle.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (l *MemoryLimiter) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.cfg.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Cleanup()
		case <-stop:
			return
		}
	}
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
