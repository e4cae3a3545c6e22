// Package planner decomposes a goal into a dependency graph of atomic
// tasks via the reasoning client.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hiveworks/hivemind/internal/reasoning"
	"github.com/hiveworks/hivemind/pkg/models"
)

// ErrorKind classifies planning failures.
type ErrorKind string

const (
	// Empty means the decomposition produced no tasks.
	Empty ErrorKind = "empty"
	// Cyclic means the proposed decomposition contains a dependency cycle.
	Cyclic ErrorKind = "cyclic"
)

// PlanningError aborts a goal before any task is dispatched. Planning
// failure is atomic: the caller never dispatches a subset.
type PlanningError struct {
	// Kind classifies the failure.
	Kind ErrorKind
	// Cause is the underlying error, if any.
	Cause error
}

func (e *PlanningError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("planning failed (%s): %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("planning failed (%s)", e.Kind)
}

// Unwrap returns the underlying cause.
func (e *PlanningError) Unwrap() error {
	return e.Cause
}

// plannedTask is the JSON structure the reasoning client returns for a
// single task.
type plannedTask struct {
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Description string   `json:"description"`
	DependsOn   []string `json:"depends_on"`
}

const decompositionPrompt = `Decompose the following goal into the smallest set of atomic tasks
that can run in parallel where their dependencies allow.

GOAL:
%s

Rules:
- Each task gets a short unique "name", a "role", a "description", and
  a "depends_on" list of names of tasks that must finish first.
- Roles must be one of: researcher, executor, reasoner, planner.
- Dependencies must not form a cycle.
- Prefer independent tasks; add a dependency only when one task's
  output is genuinely required by another.

Respond ONLY with a JSON array:
[
  {"name": "...", "role": "...", "description": "...", "depends_on": []}
]`

// Planner turns goals into task lists.
type Planner struct {
	client reasoning.Client
}

// New creates a Planner backed by the given reasoning client.
func New(client reasoning.Client) *Planner {
	return &Planner{client: client}
}

// Decompose produces the goal's atomic tasks. On any failure a
// *PlanningError is returned and zero tasks are dispatched.
func (p *Planner) Decompose(ctx context.Context, goal *models.Goal) ([]*models.AtomicTask, error) {
	prompt := fmt.Sprintf(decompositionPrompt, goal.Text)

	response, err := p.client.Complete(ctx, models.RolePlanner, prompt)
	if err != nil {
		return nil, &PlanningError{Kind: Empty, Cause: err}
	}

	tasks, err := ParseResponse(response, goal.ID)
	if err != nil {
		return nil, &PlanningError{Kind: Empty, Cause: err}
	}

	if err := ValidateNoCycles(tasks); err != nil {
		return nil, &PlanningError{Kind: Cyclic, Cause: err}
	}

	return tasks, nil
}

// ParseResponse parses the reasoning client's JSON response into
// tasks owned by the given goal. Names are remapped to generated IDs.
func ParseResponse(response, goalID string) ([]*models.AtomicTask, error) {
	jsonStart := strings.Index(response, "[")
	jsonEnd := strings.LastIndex(response, "]")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return nil, fmt.Errorf("no JSON array found in response (%d chars)", len(response))
	}

	var planned []plannedTask
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &planned); err != nil {
		return nil, fmt.Errorf("unmarshal decomposition: %w", err)
	}
	if len(planned) == 0 {
		return nil, fmt.Errorf("empty task list returned")
	}

	nameToID := make(map[string]string, len(planned))
	tasks := make([]*models.AtomicTask, len(planned))

	for i, pt := range planned {
		if pt.Name == "" {
			return nil, fmt.Errorf("task %d has no name", i)
		}
		if _, dup := nameToID[pt.Name]; dup {
			return nil, fmt.Errorf("duplicate task name %q", pt.Name)
		}

		id := uuid.New().String()
		nameToID[pt.Name] = id
		tasks[i] = models.NewAtomicTask(id, goalID, normalizeRole(pt.Role), pt.Description)
	}

	for i, pt := range planned {
		for _, depName := range pt.DependsOn {
			depID, ok := nameToID[depName]
			if !ok {
				return nil, fmt.Errorf("unknown dependency %q for task %q", depName, pt.Name)
			}
			tasks[i].DependsOn = append(tasks[i].DependsOn, depID)
		}
	}

	return tasks, nil
}

// normalizeRole maps free-form role strings onto the closed role set.
// Anything unrecognized becomes an executor.
func normalizeRole(raw string) models.Role {
	role := models.Role(strings.ToLower(strings.TrimSpace(raw)))
	if role.Valid() {
		return role
	}
	return models.RoleExecutor
}

// ValidateNoCycles checks that the task dependencies form a DAG.
func ValidateNoCycles(tasks []*models.AtomicTask) error {
	idToTask := make(map[string]*models.AtomicTask, len(tasks))
	for _, task := range tasks {
		idToTask[task.ID] = task
	}

	state := make(map[string]int, len(tasks)) // 0=unvisited, 1=visiting, 2=visited

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		if state[id] == 2 {
			return nil
		}
		if state[id] == 1 {
			cycleStart := 0
			for i, p := range path {
				if p == id {
					cycleStart = i
					break
				}
			}
			cycle := append(path[cycleStart:], id)
			return fmt.Errorf("circular dependency: %s", strings.Join(cycle, " -> "))
		}

		state[id] = 1
		if task := idToTask[id]; task != nil {
			for _, depID := range task.DependsOn {
				if err := visit(depID, append(path, id)); err != nil {
					return err
				}
			}
		}
		state[id] = 2
		return nil
	}

	for _, task := range tasks {
		if state[task.ID] == 0 {
			if err := visit(task.ID, nil); err != nil {
				return err
			}
		}
	}

	return nil
}
