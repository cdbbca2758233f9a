// Package backoff provides exponential backoff calculation.
package backoff

import (
	"math"
	"time"
)

// Policy describes an exponential backoff schedule.
// The zero value is unusable; use Default or construct explicitly.
type Policy struct {
	Initial time.Duration // delay after the first failure
	Max     time.Duration // ceiling for the computed delay
}

// Default is the schedule used when callers have no specific requirements.
var Default = Policy{
	Initial: 100 * time.Millisecond,
	Max:     5 * time.Second,
}

// Duration returns the delay before the given retry attempt.
// Attempt 1 returns Initial, attempt 2 returns Initial*2, and so on,
// capped at Max. Attempts below 1 return Initial.
func (p Policy) Duration(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = Default.Initial
	}
	ceiling := p.Max
	if ceiling <= 0 {
		ceiling = Default.Max
	}

	if attempt < 1 {
		return initial
	}
	d := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if d > float64(ceiling) {
		return ceiling
	}
	return time.Duration(d)
}
