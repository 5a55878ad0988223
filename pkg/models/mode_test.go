package models

import "testing"

func TestExecutionMode_Valid(t *testing.T) {
	tests := []struct {
		name string
		mode ExecutionMode
		want bool
	}{
		{"direct is valid", ModeDirect, true},
		{"reviewed is valid", ModeReviewed, true},
		{"full_loop is valid", ModeFullLoop, true},
		{"human_approval is valid", ModeHumanApproval, true},
		{"empty string is invalid", ExecutionMode(""), false},
		{"unknown mode is invalid", ExecutionMode("turbo"), false},
		{"uppercase is invalid", ExecutionMode("DIRECT"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mode.Valid(); got != tt.want {
				t.Errorf("ExecutionMode(%q).Valid() = %v, want %v", tt.mode, got, tt.want)
			}
		})
	}
}

func TestExecutionMode_Heavier(t *testing.T) {
	tests := []struct {
		name string
		mode ExecutionMode
		want ExecutionMode
	}{
		{"direct escalates to reviewed", ModeDirect, ModeReviewed},
		{"reviewed escalates to full_loop", ModeReviewed, ModeFullLoop},
		{"full_loop is the top of the ladder", ModeFullLoop, ModeFullLoop},
		{"human_approval never auto-escalates", ModeHumanApproval, ModeHumanApproval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mode.Heavier(); got != tt.want {
				t.Errorf("%s.Heavier() = %s, want %s", tt.mode, got, tt.want)
			}
		})
	}
}

func TestExecutionMode_Lighter(t *testing.T) {
	tests := []struct {
		name string
		mode ExecutionMode
		want ExecutionMode
	}{
		{"full_loop downgrades to reviewed", ModeFullLoop, ModeReviewed},
		{"reviewed downgrades to direct", ModeReviewed, ModeDirect},
		{"direct is the bottom of the ladder", ModeDirect, ModeDirect},
		{"human_approval is never downgraded", ModeHumanApproval, ModeHumanApproval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mode.Lighter(); got != tt.want {
				t.Errorf("%s.Lighter() = %s, want %s", tt.mode, got, tt.want)
			}
		})
	}
}

func TestExecutionMode_EscalationIsMonotonic(t *testing.T) {
	// Heavier applied repeatedly must never move down the ladder.
	rank := map[ExecutionMode]int{ModeDirect: 0, ModeReviewed: 1, ModeFullLoop: 2}

	mode := ModeDirect
	for i := 0; i < 5; i++ {
		next := mode.Heavier()
		if rank[next] < rank[mode] {
			t.Fatalf("Heavier() downgraded %s to %s", mode, next)
		}
		mode = next
	}
	if mode != ModeFullLoop {
		t.Errorf("repeated escalation ended at %s, want %s", mode, ModeFullLoop)
	}
}
