package types

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid job state transition")

type JobState int

const (
	Pending JobState = iota
	Running
	Completed // terminal, backend instance kept (nonzero exit or disposal failed)
	Cleaned   // terminal, exited zero and the backend instance was disposed
	Dropped   // terminal, never launched
)

func (s JobState) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Running:
		return "RUNNING"
	case Completed:
		return "COMPLETED"
	case Cleaned:
		return "CLEANED"
	case Dropped:
		return "DROPPED"
	default:
		return "UNKNOWN"
	}
}

func (s JobState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// there is no retry: nothing leads back to Pending
var transitions = map[JobState][]JobState{
	Pending:   {Running, Dropped},
	Running:   {Completed, Cleaned},
	Completed: {},
	Cleaned:   {},
	Dropped:   {},
}

func (s JobState) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s JobState) CanTransition(dst JobState) bool {
	for _, next := range transitions[s] {
		if next == dst {
			return true
		}
	}
	return false
}

// Transition validates src -> dst and returns dst.
func Transition(src, dst JobState) (JobState, error) {
	if !src.CanTransition(dst) {
		return src, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, src, dst)
	}
	return dst, nil
}
