package types //nolint:revive // types is a valid package name

import (
	"testing"
)

func TestEventKind_Qualifying(t *testing.T) {
	tests := []struct {
		kind EventKind
		want bool
	}{
		{EventHeader, true},
		{EventChunk, true},
		{EventComplete, true},
		{EventStatus, true},
		{EventError, true},
		{EventTelemetry, false},
		{EventDeadline, false},
		{EventUnrecognized, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got := tt.kind.Qualifying()
			if got != tt.want {
				t.Errorf("EventKind(%q).Qualifying() = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestSessionState_Terminal(t *testing.T) {
	tests := []struct {
		state SessionState
		want  bool
	}{
		{StateSucceeded, true},
		{StateFailed, true},
		{StateTimedOut, true},
		{StateIdle, false},
		{StateRequested, false},
		{StateTransferring, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			got := tt.state.Terminal()
			if got != tt.want {
				t.Errorf("SessionState(%q).Terminal() = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}
