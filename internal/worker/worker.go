// Package worker runs one atomic task's reasoning and capability
// invocation loop inside a slot granted by the scheduler.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hiveworks/hivemind/internal/reasoning"
	"github.com/hiveworks/hivemind/internal/skill"
	"github.com/hiveworks/hivemind/pkg/models"
)

// Error is the structured diagnostic a worker emits on failure. It
// never propagates past the task boundary; the scheduler observes only
// a terminal task state.
type Error struct {
	// TaskID is the task that failed.
	TaskID string
	// Role is the failed task's role.
	Role models.Role
	// Cause classifies the failure.
	Cause models.FailureCause
	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("worker %s (%s): %s: %v", e.TaskID, e.Role, e.Cause, e.Err)
	}
	return fmt.Sprintf("worker %s (%s): %s", e.TaskID, e.Role, e.Cause)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// ChildSpec describes one delegated child task.
type ChildSpec struct {
	// Description is the child task text.
	Description string
	// Role is the child's role.
	Role models.Role
}

// Delegator re-enters the scheduler with child tasks on behalf of a
// running worker. Implementations block until the children reach a
// terminal state and return their results in spec order; a failed
// child yields an error.
type Delegator interface {
	Delegate(ctx context.Context, parent *models.AtomicTask, specs []ChildSpec) ([]string, error)
}

// Config contains the collaborators and budgets for an execution context.
type Config struct {
	// Client is the reasoning client.
	Client reasoning.Client
	// Registry resolves capability invocations.
	Registry skill.Registry
	// Delegator handles child task spawning. If nil, delegation
	// requests fail the task.
	Delegator Delegator
	// MaxIterations caps reasoning round-trips per task. Defaults to 8.
	MaxIterations int
	// MaxDepth is the delegation depth budget. A task at MaxDepth may
	// not delegate. Defaults to 2.
	MaxDepth int
	// RateLimitRetries is how many times a rate-limited completion is
	// retried before the task fails. Defaults to 3.
	RateLimitRetries int
	// RetryBackoff is the base backoff between rate-limit retries.
	// Defaults to 2s; doubled per attempt.
	RetryBackoff time.Duration
	// Transcript records capability invocations. The scheduler passes
	// a graph mutator here so status snapshots never race the append.
	// If nil, entries go directly onto the task.
	Transcript func(taskID string, entry models.TranscriptEntry)
	// DebugLog is an optional logging function.
	DebugLog func(format string, args ...interface{})
}

// ExecutionContext runs tasks to proposals.
type ExecutionContext struct {
	cfg Config
}

// New creates an execution context, applying budget defaults.
func New(cfg Config) *ExecutionContext {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 8
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 2
	}
	if cfg.RateLimitRetries <= 0 {
		cfg.RateLimitRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.DebugLog == nil {
		cfg.DebugLog = func(format string, args ...interface{}) {}
	}
	return &ExecutionContext{cfg: cfg}
}

// Run executes the task's reasoning and capability loop. On success it
// returns a proposal; every failure path returns a *Error diagnostic.
// Cancellation is checked before each completion and before and after
// each capability call.
func (e *ExecutionContext) Run(ctx context.Context, task *models.AtomicTask) (*models.Proposal, error) {
	prompt := e.initialPrompt(task)

	for iter := 0; iter < e.cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, e.fail(task, models.FailureReasoning, err)
		}

		completion, err := e.complete(ctx, task, prompt)
		if err != nil {
			return nil, e.fail(task, models.FailureReasoning, err)
		}

		parsed := ParseCompletion(completion)
		if parsed.Done() {
			e.cfg.DebugLog("[worker] task %s finished after %d iterations", task.ID, iter+1)
			return e.proposal(task, parsed), nil
		}

		observations, werr := e.execute(ctx, task, parsed.Directives)
		if werr != nil {
			return nil, werr
		}

		prompt = e.followupPrompt(task, observations)
	}

	return nil, e.fail(task, models.FailureReasoning,
		fmt.Errorf("no final answer after %d iterations", e.cfg.MaxIterations))
}

// complete calls the reasoning client, retrying rate limits with
// doubling backoff.
func (e *ExecutionContext) complete(ctx context.Context, task *models.AtomicTask, prompt string) (string, error) {
	backoff := e.cfg.RetryBackoff

	var lastErr error
	for attempt := 0; attempt <= e.cfg.RateLimitRetries; attempt++ {
		completion, err := e.cfg.Client.Complete(ctx, task.Role, prompt)
		if err == nil {
			return completion, nil
		}
		lastErr = err

		if !errors.Is(err, reasoning.ErrRateLimited) {
			return "", err
		}

		e.cfg.DebugLog("[worker] task %s rate limited, attempt %d, backing off %s", task.ID, attempt+1, backoff)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return "", lastErr
}

// execute runs the completion's directives in order, appending each
// outcome to the task transcript and collecting observations to feed
// back into the next completion.
func (e *ExecutionContext) execute(ctx context.Context, task *models.AtomicTask, directives []Directive) ([]string, *Error) {
	var observations []string

	// Batch delegation so siblings run concurrently.
	var delegations []ChildSpec
	for _, d := range directives {
		if d.Kind == directiveDelegate {
			delegations = append(delegations, ChildSpec{Description: d.Task, Role: models.Role(d.Role)})
		}
	}

	for _, d := range directives {
		if d.Kind != directiveInvoke {
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, e.fail(task, models.FailureCapability, err)
		}

		out, err := e.cfg.Registry.Invoke(ctx, d.Name, d.Args)

		entry := models.TranscriptEntry{Capability: d.Name, Args: d.Args, At: time.Now()}
		if err != nil {
			entry.Err = err.Error()
		} else {
			entry.Output = out
		}
		e.record(task, entry)

		if err := ctx.Err(); err != nil {
			return nil, e.fail(task, models.FailureCapability, err)
		}

		if err != nil {
			var capErr *skill.CapabilityError
			if errors.As(err, &capErr) && capErr.Kind == skill.NotFound {
				// Unknown capability is an observation, not a failure:
				// let the model correct course.
				observations = append(observations, fmt.Sprintf("capability %q is not available", d.Name))
				continue
			}
			return nil, e.fail(task, models.FailureCapability, err)
		}
		observations = append(observations, fmt.Sprintf("%s returned:\n%s", d.Name, out))
	}

	if len(delegations) > 0 {
		if task.Depth >= e.cfg.MaxDepth {
			return nil, e.fail(task, models.FailureRecursionBudget,
				fmt.Errorf("delegation at depth %d exceeds budget %d", task.Depth, e.cfg.MaxDepth))
		}
		if e.cfg.Delegator == nil {
			return nil, e.fail(task, models.FailureRecursionBudget,
				errors.New("delegation requested but not configured"))
		}

		results, err := e.cfg.Delegator.Delegate(ctx, task, delegations)
		if err != nil {
			return nil, e.fail(task, models.FailureCapability, err)
		}
		for i, res := range results {
			observations = append(observations,
				fmt.Sprintf("delegated %s task %q returned:\n%s", delegations[i].Role, delegations[i].Description, res))
		}
	}

	return observations, nil
}

// proposal wraps a final answer in a Proposal for the review gate.
func (e *ExecutionContext) proposal(task *models.AtomicTask, parsed *Parsed) *models.Proposal {
	rationale := parsed.Rationale
	if rationale == "" {
		rationale = "direct answer, no intermediate steps recorded"
	}
	return &models.Proposal{
		ID:          uuid.New().String(),
		TaskID:      task.ID,
		GoalID:      task.GoalID,
		Content:     parsed.Final,
		Rationale:   rationale,
		Safety:      models.SafetyUnknown,
		ReviewState: models.ReviewPending,
		CreatedAt:   time.Now(),
	}
}

// record routes a transcript entry through the configured sink.
func (e *ExecutionContext) record(task *models.AtomicTask, entry models.TranscriptEntry) {
	if e.cfg.Transcript != nil {
		e.cfg.Transcript(task.ID, entry)
		return
	}
	task.Transcript = append(task.Transcript, entry)
}

func (e *ExecutionContext) fail(task *models.AtomicTask, cause models.FailureCause, err error) *Error {
	e.cfg.DebugLog("[worker] task %s failed: %s: %v", task.ID, cause, err)
	return &Error{TaskID: task.ID, Role: task.Role, Cause: cause, Err: err}
}

// initialPrompt assembles the first prompt of the loop. Dependency
// results merged by the scheduler arrive as the task's input block.
func (e *ExecutionContext) initialPrompt(task *models.AtomicTask) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TASK:\n%s\n\n", task.Description)
	if task.Input != "" {
		fmt.Fprintf(&b, "INPUTS FROM COMPLETED DEPENDENCIES:\n%s\n\n", task.Input)
	}

	caps := e.cfg.Registry.Describe()
	if len(caps) > 0 {
		b.WriteString("CAPABILITIES:\n")
		for _, c := range caps {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}

	b.WriteString("To use a capability, emit a line: [INVOKE: name args]\n")
	if task.Depth < e.cfg.MaxDepth {
		b.WriteString("To delegate a sub-task, emit a line: [DELEGATE: \"task description\" --role=\"researcher|executor|reasoner|planner\"]\n")
	}
	b.WriteString("When done, emit:\nFINAL: <your result>\nRATIONALE: <why the result is correct>\n")
	return b.String()
}

// followupPrompt feeds capability observations back into the loop.
func (e *ExecutionContext) followupPrompt(task *models.AtomicTask, observations []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TASK:\n%s\n\n", task.Description)
	if task.Input != "" {
		fmt.Fprintf(&b, "INPUTS FROM COMPLETED DEPENDENCIES:\n%s\n\n", task.Input)
	}
	b.WriteString("OBSERVATIONS:\n")
	for _, obs := range observations {
		fmt.Fprintf(&b, "%s\n\n", obs)
	}
	b.WriteString("Continue. Emit more [INVOKE: ...] lines, or finish with FINAL: and RATIONALE: lines.\n")
	return b.String()
}
