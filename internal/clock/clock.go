// Package clock abstracts wall-clock access so billing arithmetic stays
// deterministic under test.
package clock

import (
	"time"

	"go.uber.org/fx"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func NewSystemClock() Clock { return systemClock{} }

// OrNow returns t when non-zero, otherwise the clock's current time.
func OrNow(c Clock, t time.Time) time.Time {
	if !t.IsZero() {
		return t.UTC()
	}
	return c.Now()
}

// Module provides the system clock.
var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
