// Package clock abstracts wall-clock access so time-based sweeps can be
// driven deterministically in tests.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystemClock returns a Clock backed by time.Now.
func NewSystemClock() Clock { return systemClock{} }
