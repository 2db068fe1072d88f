// Package clock provides Clock implementations.
package clock

import (
	"sync"
	"time"

	"github.com/artpar/crmgate/ports"
)

// Real returns the actual current time.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now()
}

// Ensure interface compliance.
var _ ports.Clock = Real{}

// Fake is a controllable clock for tests. Every Now call advances it by
// Step so successive writes get distinct timestamps, which the updated_at
// compare-and-swap depends on.
type Fake struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewFake creates a fake clock starting at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t, Step: time.Millisecond}
}

// Now returns the fake time and advances it by Step.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.now
	f.now = f.now.Add(f.Step)
	return t
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Ensure interface compliance.
var _ ports.Clock = (*Fake)(nil)
