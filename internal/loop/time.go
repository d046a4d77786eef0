package loop

import (
	"sync"
	"time"
)

// TimeSource supplies the loop's notion of "now".
type TimeSource interface {
	Now() time.Time

	// AdvanceTo moves a virtual clock forward to t and reports whether it
	// did. Wall-clock sources return false and the loop sleeps instead.
	AdvanceTo(t time.Time) bool
}

// SystemTime is the wall clock.
type SystemTime struct{}

// Now implements TimeSource.
func (SystemTime) Now() time.Time { return time.Now() }

// AdvanceTo implements TimeSource.
func (SystemTime) AdvanceTo(time.Time) bool { return false }

// VirtualTime is a manually advanced clock. When the loop would sleep until
// a timer deadline it jumps straight to it, so timer-heavy runs finish
// instantly and deterministically.
type VirtualTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewVirtualTime creates a virtual clock starting at start.
func NewVirtualTime(start time.Time) *VirtualTime {
	return &VirtualTime{now: start}
}

// Now implements TimeSource.
func (v *VirtualTime) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// AdvanceTo implements TimeSource. Time never moves backwards.
func (v *VirtualTime) AdvanceTo(t time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if t.After(v.now) {
		v.now = t
	}
	return true
}

// Advance moves the clock forward by d.
func (v *VirtualTime) Advance(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = v.now.Add(d)
}
