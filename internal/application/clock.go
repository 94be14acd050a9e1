package application

import "time"

// Clock abstracts time so run timestamps are controllable in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production implementation.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
