package models

import "time"

// ReviewState tracks a proposal through the consensus review gate.
type ReviewState string

const (
	// ReviewPending indicates the proposal awaits review.
	ReviewPending ReviewState = "review_pending"
	// ReviewApproved indicates the reviewer approved the proposal.
	ReviewApproved ReviewState = "approved"
	// ReviewRejected indicates the reviewer rejected the proposal.
	ReviewRejected ReviewState = "rejected"
	// ReviewRevising indicates the proposal is being reworked with
	// reviewer feedback attached.
	ReviewRevising ReviewState = "revising"
	// ReviewCommitted indicates the proposal was written to the store.
	ReviewCommitted ReviewState = "committed"
	// ReviewDiscarded indicates the proposal was discarded with a reason.
	ReviewDiscarded ReviewState = "discarded"
)

// Valid returns true if the review state is a known value.
func (s ReviewState) Valid() bool {
	switch s {
	case ReviewPending, ReviewApproved, ReviewRejected,
		ReviewRevising, ReviewCommitted, ReviewDiscarded:
		return true
	default:
		return false
	}
}

// Final returns true once the proposal is immutable.
func (s ReviewState) Final() bool {
	return s == ReviewCommitted || s == ReviewDiscarded
}

// SafetyClass is the reviewer's classification of a proposal's blast
// radius.
type SafetyClass string

const (
	// SafetyConfined means the action stays inside permitted zones.
	SafetyConfined SafetyClass = "confined"
	// SafetySensitive means the action touches protected zones.
	SafetySensitive SafetyClass = "sensitive"
	// SafetyUnknown means the classifier could not decide.
	SafetyUnknown SafetyClass = "unknown"
)

// Proposal is a task's candidate output plus its rationale, pending
// (for autonomous goals) consensus review before commit.
type Proposal struct {
	// ID is the unique identifier for this proposal.
	ID string `json:"id"`
	// TaskID is the task that produced this proposal.
	TaskID string `json:"task_id"`
	// GoalID is the goal the source task belongs to.
	GoalID string `json:"goal_id"`
	// Content is the candidate output.
	Content string `json:"content"`
	// Rationale explains why the worker believes the output is correct.
	Rationale string `json:"rationale"`
	// Safety is the reviewer's blast-radius classification.
	Safety SafetyClass `json:"safety"`
	// ReviewState tracks the consensus gate.
	ReviewState ReviewState `json:"review_state"`
	// CreatedAt is when the worker emitted the proposal.
	CreatedAt time.Time `json:"created_at"`
}

// Verdict is the reviewer's decision on a proposal.
type Verdict string

const (
	// VerdictApprove commits the proposal.
	VerdictApprove Verdict = "approve"
	// VerdictReject discards the proposal with no retry.
	VerdictReject Verdict = "reject"
	// VerdictRequestRevision sends the proposal back for bounded rework.
	VerdictRequestRevision Verdict = "request_revision"
)

// Valid returns true if the verdict is a known value.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictApprove, VerdictReject, VerdictRequestRevision:
		return true
	default:
		return false
	}
}

// ConsensusDecision is produced by the consensus reviewer and consumed
// by the orchestrator to finalize a proposal.
type ConsensusDecision struct {
	// Verdict is the reviewer's ruling.
	Verdict Verdict `json:"verdict"`
	// Rationale is the reviewer's stated reason.
	Rationale string `json:"rationale"`
	// Escalate flags the proposal for human attention after the
	// revision budget is exhausted.
	Escalate bool `json:"escalate,omitempty"`
}
