// Package models defines the shared data model for goals, tasks,
// proposals, and review decisions.
package models

import "time"

// TaskState represents the current state of an atomic task.
type TaskState string

const (
	// TaskStatePending indicates the task has not been dispatched.
	TaskStatePending TaskState = "pending"
	// TaskStateDispatched indicates the task is bound to a worker slot
	// but has not started executing yet.
	TaskStateDispatched TaskState = "dispatched"
	// TaskStateRunning indicates the task is actively executing.
	TaskStateRunning TaskState = "running"
	// TaskStateCompleted indicates the task finished successfully.
	TaskStateCompleted TaskState = "completed"
	// TaskStateFailed indicates the task failed.
	TaskStateFailed TaskState = "failed"
	// TaskStateTimedOut indicates the task exceeded its deadline.
	TaskStateTimedOut TaskState = "timed_out"
	// TaskStateCancelled indicates the task was cancelled.
	TaskStateCancelled TaskState = "cancelled"
)

// Valid returns true if the state is a known value.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStatePending, TaskStateDispatched, TaskStateRunning,
		TaskStateCompleted, TaskStateFailed, TaskStateTimedOut, TaskStateCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the state is terminal: no further
// transitions are allowed and the task's slot (if any) is released.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateTimedOut, TaskStateCancelled:
		return true
	default:
		return false
	}
}

// Role identifies the behavior profile of a task's worker.
// The set is closed: merge strategies and timeout defaults are keyed
// off it, so unknown roles are normalized at planning time.
type Role string

const (
	// RoleResearcher gathers information without side effects.
	RoleResearcher Role = "researcher"
	// RoleExecutor carries out concrete actions via capabilities.
	RoleExecutor Role = "executor"
	// RoleReasoner produces analysis or judgment from inputs.
	RoleReasoner Role = "reasoner"
	// RolePlanner decomposes work and may delegate sub-tasks.
	RolePlanner Role = "planner"
)

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleResearcher, RoleExecutor, RoleReasoner, RolePlanner:
		return true
	default:
		return false
	}
}

// AllRoles returns the closed role set in a stable order.
func AllRoles() []Role {
	return []Role{RoleResearcher, RoleExecutor, RoleReasoner, RolePlanner}
}

// FailureCause classifies why a task ended in a failed state.
type FailureCause string

const (
	// FailureNone is the zero value for non-failed tasks.
	FailureNone FailureCause = ""
	// FailureCapability indicates a capability invocation failed.
	FailureCapability FailureCause = "capability_failed"
	// FailureReasoning indicates the reasoning client failed.
	FailureReasoning FailureCause = "reasoning_failed"
	// FailureRecursionBudget indicates the delegation budget was exhausted.
	FailureRecursionBudget FailureCause = "recursion_budget_exceeded"
	// FailureBlockedByDependency indicates a dependency failed or timed
	// out, so this task was never dispatched.
	FailureBlockedByDependency FailureCause = "blocked_by_dependency"
	// FailureDispatchTimeout indicates no worker slot was acquired
	// within the bounded wait.
	FailureDispatchTimeout FailureCause = "dispatch_timeout"
)

// TranscriptEntry records one capability invocation made by a task.
type TranscriptEntry struct {
	// Capability is the invoked capability name.
	Capability string `json:"capability"`
	// Args is the raw argument payload passed to the capability.
	Args string `json:"args"`
	// Output is the capability's result, if it succeeded.
	Output string `json:"output,omitempty"`
	// Err is the failure message, if the invocation failed.
	Err string `json:"err,omitempty"`
	// At is when the invocation completed.
	At time.Time `json:"at"`
}

// AtomicTask is the smallest unit of delegated work: one role, one
// description, explicit dependencies.
//
// State is mutated only by the scheduler; Transcript and Result are
// mutated only by the task's own worker execution context.
type AtomicTask struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// GoalID is the ID of the goal that owns this task.
	GoalID string `json:"goal_id"`
	// Role selects the worker behavior, merge strategy, and timeout class.
	Role Role `json:"role"`
	// Description is what the task should accomplish.
	Description string `json:"description"`
	// DependsOn lists the IDs of tasks that must complete first.
	DependsOn []string `json:"depends_on,omitempty"`
	// State is the current scheduling state.
	State TaskState `json:"state"`
	// FailureCause classifies a failed or timed-out terminal state.
	FailureCause FailureCause `json:"failure_cause,omitempty"`
	// Slot is the worker slot index while running, -1 otherwise.
	Slot int `json:"slot"`
	// Depth is the delegation depth: 0 for planner-produced tasks,
	// incremented for each level of child delegation.
	Depth int `json:"depth"`
	// CreatedSeq is the creation order within the goal, used as the
	// FIFO tie-break for deterministic dispatch.
	CreatedSeq int `json:"created_seq"`
	// Input carries the merged results of this task's dependencies,
	// set by the scheduler before the worker runs. Empty for tasks
	// with no dependencies.
	Input string `json:"input,omitempty"`
	// StartedAt is when the task entered the running state.
	StartedAt time.Time `json:"started_at,omitempty"`
	// Deadline is the wall-clock time at which the watchdog fires.
	Deadline time.Time `json:"deadline,omitempty"`
	// Transcript records every capability invocation, in order.
	Transcript []TranscriptEntry `json:"transcript,omitempty"`
	// Result is the task's output once completed.
	Result string `json:"result,omitempty"`
}

// NewAtomicTask returns a pending task with no slot assignment.
func NewAtomicTask(id, goalID string, role Role, description string) *AtomicTask {
	return &AtomicTask{
		ID:          id,
		GoalID:      goalID,
		Role:        role,
		Description: description,
		State:       TaskStatePending,
		Slot:        -1,
	}
}
