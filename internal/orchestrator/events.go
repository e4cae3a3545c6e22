package orchestrator

import (
	"time"

	"github.com/hiveworks/hivemind/pkg/models"
)

// EventType represents the type of swarm event.
type EventType string

const (
	// EventGoalSubmitted indicates a goal was accepted and planned.
	EventGoalSubmitted EventType = "goal_submitted"
	// EventGoalDone indicates a goal reached a terminal status.
	EventGoalDone EventType = "goal_done"
	// EventTaskDispatched indicates a task is waiting for a slot.
	EventTaskDispatched EventType = "task_dispatched"
	// EventTaskStarted indicates a task bound a slot and began running.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed.
	EventTaskFailed EventType = "task_failed"
	// EventTaskTimedOut indicates the watchdog ended a task.
	EventTaskTimedOut EventType = "task_timed_out"
	// EventTaskBlocked indicates a task failed because a dependency
	// ended without completing.
	EventTaskBlocked EventType = "task_blocked"
	// EventTaskCancelled indicates a task was cancelled.
	EventTaskCancelled EventType = "task_cancelled"
	// EventDelegationSpawned indicates a worker delegated child tasks.
	EventDelegationSpawned EventType = "delegation_spawned"
	// EventProposalCommitted indicates a proposal passed review and
	// was written to the store.
	EventProposalCommitted EventType = "proposal_committed"
	// EventProposalDiscarded indicates a proposal was rejected.
	EventProposalDiscarded EventType = "proposal_discarded"
	// EventProposalEscalated indicates a rejected proposal needs human
	// attention.
	EventProposalEscalated EventType = "proposal_escalated"
)

// Event represents an observable state change in the swarm. Events
// are advisory; dropping them never affects scheduling.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// GoalID is the ID of the related goal.
	GoalID string
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// Role is the role of the related task, if applicable.
	Role models.Role
	// Slot is the slot index for started events, -1 otherwise.
	Slot int
	// Message provides additional context about the event.
	Message string
	// Err contains error details for failure events.
	Err error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
