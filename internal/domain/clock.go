package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock supplies the current date for open-ended data windows. Tests freeze
// it via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source behind Today. Pass nil to
// reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Today returns the current date at midnight UTC.
func Today() time.Time { return Day(clock.Now()) }
