// Package reasoning provides the completion client consumed by the
// planner, workers, aggregator, and consensus reviewer.
package reasoning

import (
	"context"
	"errors"

	"github.com/hiveworks/hivemind/pkg/models"
)

// Typed failures surfaced to callers. Workers treat ErrRateLimited as
// retryable with backoff; everything else is terminal for the attempt.
var (
	// ErrRateLimited indicates the backend throttled the request.
	ErrRateLimited = errors.New("reasoning: rate limited")
	// ErrTimeout indicates the request exceeded its deadline.
	ErrTimeout = errors.New("reasoning: timeout")
	// ErrInvalid indicates the backend rejected the request or returned
	// an unusable response.
	ErrInvalid = errors.New("reasoning: invalid request or response")
)

// Client produces a completion for a role and prompt. Implementations
// must honor context cancellation and return one of the typed errors
// above (possibly wrapped) on failure.
type Client interface {
	Complete(ctx context.Context, role models.Role, prompt string) (string, error)
}

// systemPrompts maps each role to its behavior contract. The role set
// is closed, so this table is the single place role behavior varies.
var systemPrompts = map[models.Role]string{
	models.RoleResearcher: "You are a researcher. Gather and report facts relevant to the task. " +
		"Do not take actions with side effects. Cite what you looked at.",
	models.RoleExecutor: "You are an executor. Carry out the task using the capabilities you are given. " +
		"Prefer the smallest action that satisfies the task.",
	models.RoleReasoner: "You are a reasoner. Produce a judgment or analysis from the inputs provided. " +
		"State your reasoning briefly, then your conclusion.",
	models.RolePlanner: "You are a planner. Break the task into the smallest set of independent steps " +
		"and delegate where parallelism helps.",
}

// SystemPrompt returns the behavior contract for a role. Unknown roles
// fall back to the executor contract.
func SystemPrompt(role models.Role) string {
	if p, ok := systemPrompts[role]; ok {
		return p
	}
	return systemPrompts[models.RoleExecutor]
}
