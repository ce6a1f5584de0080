package utils

import "time"

// Clock abstracts time.Now so watchers and the state machine can be driven by a fake clock
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using time.Now()
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}
