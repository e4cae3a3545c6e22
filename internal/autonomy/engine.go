// Package autonomy runs the heartbeat loop that seeds self-directed
// goals. Everything it produces flows through the same planner,
// scheduler, and consensus review gate as user work.
package autonomy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hiveworks/hivemind/internal/orchestrator"
	"github.com/hiveworks/hivemind/internal/reasoning"
	"github.com/hiveworks/hivemind/internal/store"
	"github.com/hiveworks/hivemind/pkg/models"
)

// DefaultInterval is the heartbeat period when none is configured.
const DefaultInterval = 15 * time.Minute

// recentProposalWindow bounds how many committed proposals feed the
// evaluation prompt.
const recentProposalWindow = 10

// Submitter accepts goals for execution. *orchestrator.Swarm satisfies
// it.
type Submitter interface {
	Submit(ctx context.Context, text string, origin models.GoalOrigin, priority models.Priority) (*orchestrator.GoalHandle, error)
}

// Engine periodically evaluates the system's recent output and seeds
// autonomous goals when it finds something worth pursuing.
type Engine struct {
	client   reasoning.Client
	swarm    Submitter
	store    *store.Store
	interval time.Duration
	debugLog func(format string, args ...interface{})
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval sets the heartbeat period.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithDebugLog sets an optional logging function.
func WithDebugLog(fn func(format string, args ...interface{})) Option {
	return func(e *Engine) { e.debugLog = fn }
}

// New creates a heartbeat engine. The store may be nil; evaluation
// then runs without committed-proposal context.
func New(client reasoning.Client, swarm Submitter, st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		client:   client,
		swarm:    swarm,
		store:    st,
		interval: DefaultInterval,
		debugLog: func(format string, args ...interface{}) {},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run ticks until the context ends, evaluating once per interval.
// Evaluation errors are logged and do not stop the loop.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.EvaluateAndPropose(ctx); err != nil {
				e.debugLog("[heartbeat] evaluation failed: %v", err)
			}
		}
	}
}

// EvaluateAndPropose runs one heartbeat: ask the reasoner whether
// there is a worthwhile goal, and submit it at low priority if so.
// A nil handle with nil error means the reasoner declined to propose.
func (e *Engine) EvaluateAndPropose(ctx context.Context) (*orchestrator.GoalHandle, error) {
	prompt, err := e.buildPrompt()
	if err != nil {
		return nil, err
	}

	output, err := e.client.Complete(ctx, models.RoleReasoner, prompt)
	if err != nil {
		return nil, fmt.Errorf("heartbeat evaluation: %w", err)
	}

	goalText := ParseEvaluation(output)
	if goalText == "" {
		e.debugLog("[heartbeat] nothing to propose")
		return nil, nil
	}

	e.debugLog("[heartbeat] proposing goal: %s", goalText)
	handle, err := e.swarm.Submit(ctx, goalText, models.OriginAutonomous, models.PriorityLow)
	if err != nil {
		return nil, fmt.Errorf("submit autonomous goal: %w", err)
	}
	return handle, nil
}

// buildPrompt assembles the evaluation prompt from recent committed
// proposals.
func (e *Engine) buildPrompt() (string, error) {
	var b strings.Builder
	b.WriteString("You maintain an autonomous task swarm. Review its recent committed output and decide whether one concrete follow-up goal is worth pursuing now.\n\n")

	if e.store != nil {
		committed, err := e.store.Committed()
		if err != nil {
			return "", fmt.Errorf("heartbeat context: %w", err)
		}
		if len(committed) > recentProposalWindow {
			committed = committed[len(committed)-recentProposalWindow:]
		}
		if len(committed) > 0 {
			b.WriteString("RECENT COMMITTED OUTPUT:\n")
			for _, p := range committed {
				fmt.Fprintf(&b, "--- %s ---\n%s\n", p.ID, p.Content)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("If a follow-up is worthwhile, respond with exactly one line:\nGOAL: <one concrete, self-contained goal>\nOtherwise respond with exactly:\nNOTHING\n")
	return b.String(), nil
}

// ParseEvaluation extracts the proposed goal text from an evaluation
// response. An explicit NOTHING, or output with no GOAL line, yields
// an empty string.
func ParseEvaluation(output string) string {
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)
		if upper == "NOTHING" {
			return ""
		}
		if strings.HasPrefix(upper, "GOAL:") {
			return strings.TrimSpace(trimmed[len("GOAL:"):])
		}
	}
	return ""
}
