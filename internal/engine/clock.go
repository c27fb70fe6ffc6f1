package engine

import "time"

// Clock abstracts wall-clock reads so the state machine is testable with a
// manual clock. All timing math in the engine goes through this.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}
