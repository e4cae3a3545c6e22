package models

import "time"

// GoalOrigin distinguishes user-submitted goals from goals the system
// seeded for itself. Only autonomous goals pass through consensus
// review before their proposals are committed.
type GoalOrigin string

const (
	// OriginUser indicates a human submitted the goal.
	OriginUser GoalOrigin = "user"
	// OriginAutonomous indicates the heartbeat engine seeded the goal.
	OriginAutonomous GoalOrigin = "autonomous"
)

// Valid returns true if the origin is a known value.
func (o GoalOrigin) Valid() bool {
	return o == OriginUser || o == OriginAutonomous
}

// Priority orders goals when slots are contended. Higher is sooner.
type Priority int

const (
	// PriorityLow is for background autonomous work.
	PriorityLow Priority = 0
	// PriorityNormal is the default for user goals.
	PriorityNormal Priority = 1
	// PriorityHigh preempts normal work for dispatch ordering.
	PriorityHigh Priority = 2
)

// GoalStatus is the aggregate, user-visible outcome of a goal.
type GoalStatus string

const (
	// GoalStatusActive indicates tasks are still pending or running.
	GoalStatusActive GoalStatus = "active"
	// GoalStatusSucceeded indicates every task completed.
	GoalStatusSucceeded GoalStatus = "succeeded"
	// GoalStatusPartial indicates some tasks completed and some failed.
	GoalStatusPartial GoalStatus = "partial"
	// GoalStatusFailed indicates no task produced a usable result.
	GoalStatusFailed GoalStatus = "failed"
	// GoalStatusCancelled indicates the goal was cancelled.
	GoalStatusCancelled GoalStatus = "cancelled"
)

// Goal is a top-level request submitted to the orchestrator.
// It owns its task graph exclusively; goals share nothing with each
// other except the global slot budget.
type Goal struct {
	// ID is the unique identifier for this goal.
	ID string `json:"id"`
	// Text is the natural-language request.
	Text string `json:"text"`
	// Origin records who initiated the goal.
	Origin GoalOrigin `json:"origin"`
	// Priority orders dispatch when slots are contended.
	Priority Priority `json:"priority"`
	// CreatedAt is when the goal was submitted.
	CreatedAt time.Time `json:"created_at"`
}
