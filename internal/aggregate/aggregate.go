// Package aggregate merges child task results into parent results at
// graph join points.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hiveworks/hivemind/internal/reasoning"
	"github.com/hiveworks/hivemind/pkg/models"
)

// Contribution is one dependency's result at a join point.
type Contribution struct {
	// TaskID is the contributing task.
	TaskID string
	// Result is the task's output when it completed.
	Result string
	// State is the contributing task's terminal state.
	State models.TaskState
}

// Ok reports whether the contribution carries a usable result.
func (c Contribution) Ok() bool {
	return c.State == models.TaskStateCompleted
}

// Mode selects barrier behavior at join points.
type Mode int

const (
	// Strict requires every direct dependency to have completed;
	// aggregation with any failed contributor is an error.
	Strict Mode = iota
	// BestEffort merges the completed subset and marks the missing
	// contributors explicitly.
	BestEffort
)

// Strategy merges contributions into one result.
type Strategy interface {
	Merge(ctx context.Context, node *models.AtomicTask, contributions []Contribution) (string, error)
}

// Aggregator applies the per-role strategy table at join points.
type Aggregator struct {
	mode       Mode
	strategies map[models.Role]Strategy
}

// New creates an aggregator with the default role strategy table:
// researchers concatenate, reasoners vote, planners and executors
// synthesize via a further reasoning call.
func New(mode Mode, client reasoning.Client) *Aggregator {
	return &Aggregator{
		mode: mode,
		strategies: map[models.Role]Strategy{
			models.RoleResearcher: ConcatStrategy{},
			models.RoleReasoner:   VoteStrategy{},
			models.RoleExecutor:   &SynthesisStrategy{Client: client},
			models.RolePlanner:    &SynthesisStrategy{Client: client},
		},
	}
}

// SetStrategy overrides the strategy for one role.
func (a *Aggregator) SetStrategy(role models.Role, s Strategy) {
	a.strategies[role] = s
}

// Aggregate merges the dependency results for a join node. In Strict
// mode every contribution must be a completed task; the scheduler
// guarantees this for tasks it dispatched, so a non-completed
// contribution here is a programming error surfaced loudly.
func (a *Aggregator) Aggregate(ctx context.Context, node *models.AtomicTask, contributions []Contribution) (string, error) {
	if len(contributions) == 0 {
		return "", nil
	}

	usable := contributions
	if a.mode == Strict {
		for _, c := range contributions {
			if !c.Ok() {
				return "", fmt.Errorf("strict barrier: contributor %s is %s, not completed", c.TaskID, c.State)
			}
		}
	} else {
		usable = nil
		var markers []string
		for _, c := range contributions {
			if c.Ok() {
				usable = append(usable, c)
			} else {
				markers = append(markers, fmt.Sprintf("[missing: task %s ended %s]", c.TaskID, c.State))
			}
		}
		if len(markers) > 0 {
			usable = append(usable, Contribution{
				TaskID: "missing",
				Result: strings.Join(markers, "\n"),
				State:  models.TaskStateCompleted,
			})
		}
	}

	strategy, ok := a.strategies[node.Role]
	if !ok {
		strategy = ConcatStrategy{}
	}
	return strategy.Merge(ctx, node, usable)
}

// ConcatStrategy joins contributions in task order with headers.
type ConcatStrategy struct{}

// Merge implements Strategy.
func (ConcatStrategy) Merge(ctx context.Context, node *models.AtomicTask, contributions []Contribution) (string, error) {
	parts := make([]string, len(contributions))
	for i, c := range contributions {
		parts[i] = fmt.Sprintf("--- %s ---\n%s", c.TaskID, c.Result)
	}
	return strings.Join(parts, "\n"), nil
}

// VoteStrategy picks the most common result; ties break toward the
// earliest contributor so the outcome is deterministic.
type VoteStrategy struct{}

// Merge implements Strategy.
func (VoteStrategy) Merge(ctx context.Context, node *models.AtomicTask, contributions []Contribution) (string, error) {
	if len(contributions) == 0 {
		return "", nil
	}

	counts := make(map[string]int)
	first := make(map[string]int)
	for i, c := range contributions {
		key := strings.TrimSpace(c.Result)
		counts[key]++
		if _, seen := first[key]; !seen {
			first[key] = i
		}
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return first[keys[i]] < first[keys[j]]
	})

	return keys[0], nil
}

// SynthesisStrategy asks the reasoning client to merge the
// contributions into one coherent result.
type SynthesisStrategy struct {
	// Client is the reasoning client used for the merge call.
	Client reasoning.Client
}

// Merge implements Strategy.
func (s *SynthesisStrategy) Merge(ctx context.Context, node *models.AtomicTask, contributions []Contribution) (string, error) {
	if s.Client == nil {
		// Degrade to concatenation rather than failing the join.
		return ConcatStrategy{}.Merge(ctx, node, contributions)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Merge the following inputs into one coherent result for this task:\n%s\n\nINPUTS:\n", node.Description)
	for _, c := range contributions {
		fmt.Fprintf(&b, "--- %s ---\n%s\n", c.TaskID, c.Result)
	}
	b.WriteString("\nRespond with the merged result only.")

	out, err := s.Client.Complete(ctx, models.RoleReasoner, b.String())
	if err != nil {
		return "", fmt.Errorf("synthesis merge: %w", err)
	}
	return out, nil
}
