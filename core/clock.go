package core

import "time"

// Timer is a pending scheduled callback.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so token refresh and status polling can be driven by
// a simulated clock in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(delay time.Duration, fn func()) Timer
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

func (SystemClock) AfterFunc(delay time.Duration, fn func()) Timer {
	return time.AfterFunc(delay, fn)
}

var _ Clock = SystemClock{}
