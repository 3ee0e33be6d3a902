// Package clock abstracts "now" so scheduling and expiration rules are testable.
package clock

import (
	"sync"
	"time"

	"vendstock/internal/core/types"
)

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

// Today returns the calendar date of c.Now() in UTC.
func Today(c Clock) types.Date {
	return types.DateOf(c.Now().UTC())
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// System returns the wall clock.
func System() Clock { return systemClock{} }

type fixedClock time.Time

func (f fixedClock) Now() time.Time { return time.Time(f) }

// Fixed returns a clock frozen at t.
func Fixed(t time.Time) Clock { return fixedClock(t) }

// Manual is a settable clock for tests.
//
// Thread-safety: all methods are safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock starting at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now implements Clock.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// AdvanceDays moves the clock forward by n calendar days.
func (m *Manual) AdvanceDays(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.AddDate(0, 0, n)
}
