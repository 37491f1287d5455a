package runner

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of a Runner.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateMonitoring
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateMonitoring:
		return "MONITORING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

var ErrInvalidTransition = errors.New("invalid runner state transition")

// transitions lists the legal moves. STARTING may fall straight to STOPPED
// when the startup hook fails; STOPPED is terminal.
var transitions = map[State][]State{
	StateIdle:       {StateStarting},
	StateStarting:   {StateMonitoring, StateStopped},
	StateMonitoring: {StateStopping},
	StateStopping:   {StateStopped},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Mode selects how the monitor runs.
type Mode int

const (
	// ModePeriodic runs one monitor pass inside Start.
	ModePeriodic Mode = iota
	// ModeRealTime runs the monitor loop on a worker goroutine until Stop.
	ModeRealTime
)

func (m Mode) String() string {
	if m == ModeRealTime {
		return "realtime"
	}
	return "periodic"
}
