package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingBackend remembers every identifier it was asked about.
type recordingBackend struct {
	mu    sync.Mutex
	seen  []string
	deny  map[string]bool
	err   error
	calls int
}

func (b *recordingBackend) Name() string { return "recording" }

func (b *recordingBackend) Allow(_ context.Context, identifier string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.seen = append(b.seen, identifier)
	if b.err != nil {
		return false, b.err
	}
	return !b.deny[identifier], nil
}

var errBoom = errors.New("boom")
