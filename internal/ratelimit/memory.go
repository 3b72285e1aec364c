package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/contact-intake/internal/intake"
)

type window struct {
	count   int
	resetAt time.Time
}

// Memory is a fixed-window counter kept in process memory. Limits are per
// instance, so it is only suitable for development and single-node setups.
type Memory struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clock   intake.Clock
	entries map[string]*window
}

// NewMemory creates an in-process backend.
func NewMemory(limit int, windowLen time.Duration, clock intake.Clock) *Memory {
	return &Memory{
		limit:   limit,
		window:  windowLen,
		clock:   clock,
		entries: make(map[string]*window),
	}
}

// Name implements Backend.
func (*Memory) Name() string { return "memory" }

// Allow implements Backend. Expired windows are dropped lazily on access.
func (m *Memory) Allow(_ context.Context, identifier string) (bool, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[identifier]
	if ok && now.After(entry.resetAt) {
		delete(m.entries, identifier)
		ok = false
	}
	if !ok {
		m.entries[identifier] = &window{count: 1, resetAt: now.Add(m.window)}
		return true, nil
	}
	if entry.count >= m.limit {
		return false, nil
	}
	entry.count++
	return true, nil
}
