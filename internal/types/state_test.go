package types

import (
	"errors"
	"testing"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from, to JobState
		ok       bool
	}{
		{Pending, Running, true},
		{Pending, Dropped, true},
		{Running, Completed, true},
		{Running, Cleaned, true},
		{Pending, Completed, false},
		{Pending, Cleaned, false},
		{Running, Pending, false},
		{Running, Dropped, false},
		{Completed, Cleaned, false},
		{Cleaned, Running, false},
		{Dropped, Running, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			got, err := Transition(tt.from, tt.to)
			if tt.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.to {
					t.Errorf("got %s, want %s", got, tt.to)
				}
				return
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			if got != tt.from {
				t.Errorf("state changed to %s on rejected transition", got)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []JobState{Completed, Cleaned, Dropped} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []JobState{Pending, Running} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
