// Package graph provides the dependency DAG for task scheduling.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hiveworks/hivemind/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrEmptyGraph indicates a graph was built from zero tasks.
var ErrEmptyGraph = errors.New("empty task graph")

// TaskGraph is a directed acyclic graph of atomic tasks. Edges point
// from a task to the tasks it depends on. A graph is owned exclusively
// by one goal; all access is synchronized internally.
type TaskGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.AtomicTask
	// edges maps task ID to the IDs of tasks it depends on.
	edges map[string][]string
	// order is every task ID in deterministic dispatch order:
	// depth-first over the DAG, creation order (FIFO) as tie-break.
	order []string
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates an empty task graph.
func New() *TaskGraph {
	return &TaskGraph{
		nodes:    make(map[string]*models.AtomicTask),
		edges:    make(map[string][]string),
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *TaskGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the graph from a slice of tasks. It fails if the
// slice is empty, a dependency references an unknown task, or the
// dependencies contain a cycle. Build is all-or-nothing: on error the
// graph is left empty.
func (g *TaskGraph) Build(tasks []*models.AtomicTask) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(tasks) == 0 {
		return ErrEmptyGraph
	}

	nodes := make(map[string]*models.AtomicTask, len(tasks))
	edges := make(map[string][]string, len(tasks))

	for seq, task := range tasks {
		if _, dup := nodes[task.ID]; dup {
			return fmt.Errorf("duplicate task id %s", task.ID)
		}
		task.CreatedSeq = seq
		nodes[task.ID] = task
		edges[task.ID] = nil
	}

	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := nodes[depID]; !exists {
				return fmt.Errorf("task %s depends on unknown task %s", task.ID, depID)
			}
			edges[task.ID] = append(edges[task.ID], depID)
		}
	}

	if hasCycle(nodes, edges) {
		return ErrCycleDetected
	}

	g.nodes = nodes
	g.edges = edges
	g.order = dispatchOrder(nodes, edges)

	g.debugLog("[graph.Build] built graph with %d nodes, order=%v", len(g.nodes), g.order)
	return nil
}

// Add inserts tasks into an already-built graph (child delegation).
// The new tasks may depend on existing tasks; existing edges are never
// changed. Fails without mutating the graph if a cycle would result.
func (g *TaskGraph) Add(tasks []*models.AtomicTask) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	nodes := make(map[string]*models.AtomicTask, len(g.nodes)+len(tasks))
	edges := make(map[string][]string, len(g.edges)+len(tasks))
	for id, n := range g.nodes {
		nodes[id] = n
	}
	for id, deps := range g.edges {
		edges[id] = deps
	}

	seq := len(g.nodes)
	for _, task := range tasks {
		if _, dup := nodes[task.ID]; dup {
			return fmt.Errorf("duplicate task id %s", task.ID)
		}
		task.CreatedSeq = seq
		seq++
		nodes[task.ID] = task
		edges[task.ID] = nil
	}
	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := nodes[depID]; !exists {
				return fmt.Errorf("task %s depends on unknown task %s", task.ID, depID)
			}
			edges[task.ID] = append(edges[task.ID], depID)
		}
	}

	if hasCycle(nodes, edges) {
		return ErrCycleDetected
	}

	g.nodes = nodes
	g.edges = edges
	g.order = dispatchOrder(nodes, edges)
	g.debugLog("[graph.Add] added %d tasks, graph now has %d nodes", len(tasks), len(g.nodes))
	return nil
}

// hasCycle detects cycles with DFS coloring:
// 0 = unvisited, 1 = in progress, 2 = done.
func hasCycle(nodes map[string]*models.AtomicTask, edges map[string][]string) bool {
	colors := make(map[string]int, len(nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, depID := range edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for id := range nodes {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// dispatchOrder computes the deterministic dispatch order: a
// depth-first walk from the root tasks (those with no dependencies),
// descending into dependents, with creation order breaking every tie.
func dispatchOrder(nodes map[string]*models.AtomicTask, edges map[string][]string) []string {
	// Invert edges: dependency -> dependents.
	dependents := make(map[string][]string, len(nodes))
	for id, deps := range edges {
		for _, depID := range deps {
			dependents[depID] = append(dependents[depID], id)
		}
	}

	byCreation := func(ids []string) {
		sort.Slice(ids, func(i, j int) bool {
			return nodes[ids[i]].CreatedSeq < nodes[ids[j]].CreatedSeq
		})
	}

	var roots []string
	for id, deps := range edges {
		if len(deps) == 0 {
			roots = append(roots, id)
		}
	}
	byCreation(roots)

	order := make([]string, 0, len(nodes))
	seen := make(map[string]bool, len(nodes))

	var visit func(id string)
	visit = func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		order = append(order, id)

		next := append([]string(nil), dependents[id]...)
		byCreation(next)
		for _, depID := range next {
			visit(depID)
		}
	}

	for _, id := range roots {
		visit(id)
	}

	// A valid DAG is fully reachable from its roots, but guard against
	// partial walks anyway.
	if len(order) < len(nodes) {
		var rest []string
		for id := range nodes {
			if !seen[id] {
				rest = append(rest, id)
			}
		}
		byCreation(rest)
		order = append(order, rest...)
	}

	return order
}

// Ready returns the tasks that are eligible for dispatch: still
// pending, with every dependency completed. The result is in
// deterministic dispatch order.
func (g *TaskGraph) Ready() []*models.AtomicTask {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*models.AtomicTask
	for _, id := range g.order {
		task := g.nodes[id]
		if task.State != models.TaskStatePending {
			continue
		}

		eligible := true
		for _, depID := range g.edges[id] {
			if g.nodes[depID].State != models.TaskStateCompleted {
				eligible = false
				break
			}
		}
		if eligible {
			ready = append(ready, task)
		}
	}

	g.debugLog("[graph.Ready] %d eligible tasks", len(ready))
	return ready
}

// SetState transitions a task to the given state. Transcript and
// result fields are owned by the worker; only scheduling state moves
// through here.
func (g *TaskGraph) SetState(taskID string, state models.TaskState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if task, ok := g.nodes[taskID]; ok {
		g.debugLog("[graph.SetState] task %s: %s -> %s", taskID, task.State, state)
		task.State = state
	}
}

// Bind records the slot binding and watchdog deadline as a task moves
// to running.
func (g *TaskGraph) Bind(taskID string, slot int, started, deadline time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if task, ok := g.nodes[taskID]; ok {
		task.Slot = slot
		task.StartedAt = started
		task.Deadline = deadline
		task.State = models.TaskStateRunning
		g.debugLog("[graph.Bind] task %s running on slot %d until %s", taskID, slot, deadline.Format(time.RFC3339))
	}
}

// Unbind clears the slot index once it has been released.
func (g *TaskGraph) Unbind(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if task, ok := g.nodes[taskID]; ok {
		task.Slot = -1
	}
}

// Complete records the task's result and marks it completed.
func (g *TaskGraph) Complete(taskID, result string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if task, ok := g.nodes[taskID]; ok {
		task.Result = result
		task.State = models.TaskStateCompleted
		g.debugLog("[graph.Complete] task %s completed", taskID)
	}
}

// SetInput records the merged dependency results a task will run with.
func (g *TaskGraph) SetInput(taskID, input string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if task, ok := g.nodes[taskID]; ok {
		task.Input = input
	}
}

// AppendTranscript records a capability invocation on the task.
// Workers must route transcript writes through here so Snapshot never
// observes a partial append.
func (g *TaskGraph) AppendTranscript(taskID string, entry models.TranscriptEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if task, ok := g.nodes[taskID]; ok {
		task.Transcript = append(task.Transcript, entry)
	}
}

// MarkFailed transitions a task to a failed terminal state and
// propagates Failed(blocked_by_dependency) to every transitive
// dependent that has not yet run. Blocked dependents never consume a
// worker slot. Returns the IDs of the tasks that were blocked.
func (g *TaskGraph) MarkFailed(taskID string, state models.TaskState, cause models.FailureCause) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, ok := g.nodes[taskID]
	if !ok {
		return nil
	}
	task.State = state
	task.FailureCause = cause

	// Invert edges once for the walk.
	dependents := make(map[string][]string, len(g.nodes))
	for id, deps := range g.edges {
		for _, depID := range deps {
			dependents[depID] = append(dependents[depID], id)
		}
	}

	var blocked []string
	var walk func(id string)
	walk = func(id string) {
		for _, depID := range dependents[id] {
			dep := g.nodes[depID]
			if dep.State != models.TaskStatePending {
				continue
			}
			dep.State = models.TaskStateFailed
			dep.FailureCause = models.FailureBlockedByDependency
			blocked = append(blocked, depID)
			walk(depID)
		}
	}
	walk(taskID)

	sort.Slice(blocked, func(i, j int) bool {
		return g.nodes[blocked[i]].CreatedSeq < g.nodes[blocked[j]].CreatedSeq
	})

	g.debugLog("[graph.MarkFailed] task %s -> %s (%s), blocked %d dependents", taskID, state, cause, len(blocked))
	return blocked
}

// Task returns the task for a given ID, or nil if not found.
func (g *TaskGraph) Task(taskID string) *models.AtomicTask {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Dependencies returns the IDs of tasks the given task depends on.
func (g *TaskGraph) Dependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[taskID]...)
}

// DependencyTasks returns copies of the task's direct dependencies in
// declaration order.
func (g *TaskGraph) DependencyTasks(taskID string) []models.AtomicTask {
	g.mu.RLock()
	defer g.mu.RUnlock()

	deps := g.edges[taskID]
	out := make([]models.AtomicTask, 0, len(deps))
	for _, id := range deps {
		if dep, ok := g.nodes[id]; ok {
			out = append(out, *dep)
		}
	}
	return out
}

// Dependents returns the IDs of tasks that depend on the given task.
func (g *TaskGraph) Dependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for id, deps := range g.edges {
		for _, depID := range deps {
			if depID == taskID {
				out = append(out, id)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return g.nodes[out[i]].CreatedSeq < g.nodes[out[j]].CreatedSeq
	})
	return out
}

// Size returns the number of tasks in the graph.
func (g *TaskGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Done reports whether every task is in a terminal state.
func (g *TaskGraph) Done() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, task := range g.nodes {
		if !task.State.Terminal() {
			return false
		}
	}
	return true
}

// Snapshot returns copies of every task in dispatch order, safe for
// callers to inspect without racing the scheduler.
func (g *TaskGraph) Snapshot() []models.AtomicTask {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]models.AtomicTask, 0, len(g.order))
	for _, id := range g.order {
		task := *g.nodes[id]
		task.DependsOn = append([]string(nil), g.nodes[id].DependsOn...)
		task.Transcript = append([]models.TranscriptEntry(nil), g.nodes[id].Transcript...)
		out = append(out, task)
	}
	return out
}
