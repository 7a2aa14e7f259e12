package editor

import "time"

// Timer is a stoppable single-shot timer
type Timer interface {
	Stop() bool
}

// Clock schedules debounce timers
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock is backed by time.AfterFunc
var RealClock Clock = realClock{}
