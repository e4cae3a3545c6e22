package models

import "testing"

func TestTaskState_Valid(t *testing.T) {
	tests := []struct {
		name  string
		state TaskState
		want  bool
	}{
		{"pending is valid", TaskStatePending, true},
		{"dispatched is valid", TaskStateDispatched, true},
		{"running is valid", TaskStateRunning, true},
		{"completed is valid", TaskStateCompleted, true},
		{"failed is valid", TaskStateFailed, true},
		{"timed_out is valid", TaskStateTimedOut, true},
		{"cancelled is valid", TaskStateCancelled, true},
		{"empty string is invalid", TaskState(""), false},
		{"unknown state is invalid", TaskState("paused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Valid(); got != tt.want {
				t.Errorf("TaskState(%q).Valid() = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}

func TestTaskState_Terminal(t *testing.T) {
	terminal := []TaskState{TaskStateCompleted, TaskStateFailed, TaskStateTimedOut, TaskStateCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("TaskState(%q).Terminal() = false, want true", s)
		}
	}

	nonTerminal := []TaskState{TaskStatePending, TaskStateDispatched, TaskStateRunning}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("TaskState(%q).Terminal() = true, want false", s)
		}
	}
}

func TestRole_Valid(t *testing.T) {
	for _, r := range AllRoles() {
		if !r.Valid() {
			t.Errorf("Role(%q).Valid() = false, want true", r)
		}
	}

	if Role("wizard").Valid() {
		t.Error("Role(\"wizard\").Valid() = true, want false")
	}
	if Role("").Valid() {
		t.Error("empty Role should be invalid")
	}
}

func TestNewAtomicTask(t *testing.T) {
	task := NewAtomicTask("t1", "g1", RoleResearcher, "find things")

	if task.State != TaskStatePending {
		t.Errorf("new task State = %q, want %q", task.State, TaskStatePending)
	}
	if task.Slot != -1 {
		t.Errorf("new task Slot = %d, want -1 (unassigned)", task.Slot)
	}
	if task.GoalID != "g1" {
		t.Errorf("new task GoalID = %q, want %q", task.GoalID, "g1")
	}
}

func TestReviewState_Final(t *testing.T) {
	tests := []struct {
		state ReviewState
		want  bool
	}{
		{ReviewPending, false},
		{ReviewApproved, false},
		{ReviewRejected, false},
		{ReviewRevising, false},
		{ReviewCommitted, true},
		{ReviewDiscarded, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.Final(); got != tt.want {
				t.Errorf("ReviewState(%q).Final() = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}

func TestVerdict_Valid(t *testing.T) {
	for _, v := range []Verdict{VerdictApprove, VerdictReject, VerdictRequestRevision} {
		if !v.Valid() {
			t.Errorf("Verdict(%q).Valid() = false, want true", v)
		}
	}
	if Verdict("maybe").Valid() {
		t.Error("Verdict(\"maybe\").Valid() = true, want false")
	}
}

func TestGoalOrigin_Valid(t *testing.T) {
	if !OriginUser.Valid() || !OriginAutonomous.Valid() {
		t.Error("known origins should be valid")
	}
	if GoalOrigin("cron").Valid() {
		t.Error("unknown origin should be invalid")
	}
}
