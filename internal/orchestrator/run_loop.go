package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hiveworks/hivemind/internal/aggregate"
	"github.com/hiveworks/hivemind/internal/worker"
	"github.com/hiveworks/hivemind/pkg/models"
)

// delegationPollInterval is how often a blocked delegating parent
// re-checks its children for terminal states.
const delegationPollInterval = 20 * time.Millisecond

// goalRunner drives one goal's graph from pending to terminal.
type goalRunner struct {
	s      *Swarm
	handle *GoalHandle

	// wake is signalled whenever a task reaches a terminal state or
	// new children are added, so the loop re-checks readiness.
	wake chan struct{}

	inflight inflightCounter
}

// run is the main execution loop: dispatch ready tasks, wait for
// completions, repeat until the graph is done.
func (r *goalRunner) run(ctx context.Context) {
	g := r.handle.graph
	goalID := r.handle.goal.ID

	for {
		for _, task := range g.Ready() {
			g.SetState(task.ID, models.TaskStateDispatched)
			r.s.emit(Event{Type: EventTaskDispatched, GoalID: goalID,
				TaskID: task.ID, Role: task.Role, Slot: -1})

			r.inflight.add(1)
			go r.runTask(ctx, task)
		}

		if g.Done() && r.inflight.count() == 0 {
			break
		}

		select {
		case <-ctx.Done():
			r.drainCancelled(goalID)
			r.finalize(context.Background())
			return
		case <-r.wake:
		}
	}

	r.finalize(ctx)
}

// drainCancelled waits for in-flight workers to observe cancellation,
// then marks every task that never ran as cancelled.
func (r *goalRunner) drainCancelled(goalID string) {
	r.inflight.wait()

	for _, task := range r.handle.graph.Snapshot() {
		if task.State.Terminal() {
			continue
		}
		r.handle.graph.SetState(task.ID, models.TaskStateCancelled)
		r.s.emit(Event{Type: EventTaskCancelled, GoalID: goalID,
			TaskID: task.ID, Role: task.Role, Slot: -1})
	}
}

// runTask binds a slot, runs the worker loop under the role deadline,
// and records the outcome in the graph.
func (r *goalRunner) runTask(ctx context.Context, task *models.AtomicTask) {
	// The loop must observe the decremented count when it wakes.
	defer r.signal()
	defer r.inflight.done()

	g := r.handle.graph
	goalID := r.handle.goal.ID

	acquireCtx, acquireCancel := context.WithTimeout(ctx, r.s.dispatchTimeout)
	slot, err := r.s.pool.Acquire(acquireCtx)
	acquireCancel()
	if err != nil {
		if ctx.Err() != nil {
			g.SetState(task.ID, models.TaskStateCancelled)
			r.s.emit(Event{Type: EventTaskCancelled, GoalID: goalID,
				TaskID: task.ID, Role: task.Role, Slot: -1})
			return
		}
		blocked := g.MarkFailed(task.ID, models.TaskStateFailed, models.FailureDispatchTimeout)
		r.s.emit(Event{Type: EventTaskFailed, GoalID: goalID, TaskID: task.ID,
			Role: task.Role, Slot: -1, Err: err,
			Message: fmt.Sprintf("no slot within %s", r.s.dispatchTimeout)})
		r.emitBlocked(goalID, blocked)
		return
	}
	defer func() {
		g.Unbind(task.ID)
		r.s.pool.Release(slot)
	}()

	timeout := r.s.timeouts.ForRole(string(task.Role))
	started := time.Now()
	deadline := started.Add(timeout)
	g.Bind(task.ID, slot, started, deadline)
	r.s.emit(Event{Type: EventTaskStarted, GoalID: goalID, TaskID: task.ID,
		Role: task.Role, Slot: slot})

	taskCtx, taskCancel := context.WithDeadline(ctx, deadline)
	defer taskCancel()

	input, err := r.joinInputs(taskCtx, task)
	if err != nil {
		blocked := g.MarkFailed(task.ID, models.TaskStateFailed, models.FailureReasoning)
		r.s.emit(Event{Type: EventTaskFailed, GoalID: goalID, TaskID: task.ID,
			Role: task.Role, Slot: slot, Err: err,
			Message: "dependency merge failed"})
		r.emitBlocked(goalID, blocked)
		return
	}
	g.SetInput(task.ID, input)

	exec := r.s.newExecutionContext(r, g)
	proposal, runErr, ok := r.runWorker(taskCtx, exec, task)
	if !ok {
		// The worker outlived its deadline and the grace period. The
		// slot is reclaimed on return; the stuck goroutine drains
		// detached and its eventual result is discarded.
		if ctx.Err() != nil {
			g.SetState(task.ID, models.TaskStateCancelled)
			r.s.emit(Event{Type: EventTaskCancelled, GoalID: goalID,
				TaskID: task.ID, Role: task.Role, Slot: slot})
			return
		}
		blocked := g.MarkFailed(task.ID, models.TaskStateTimedOut, models.FailureNone)
		r.s.emit(Event{Type: EventTaskTimedOut, GoalID: goalID, TaskID: task.ID,
			Role: task.Role, Slot: slot,
			Message: fmt.Sprintf("worker unresponsive %s past deadline, slot reclaimed", r.s.gracePeriod)})
		r.emitBlocked(goalID, blocked)
		return
	}

	switch {
	case runErr == nil:
		g.Complete(task.ID, proposal.Content)
		r.s.emit(Event{Type: EventTaskCompleted, GoalID: goalID,
			TaskID: task.ID, Role: task.Role, Slot: slot})
		r.s.handleProposal(ctx, r.handle.goal, task, proposal)

	case ctx.Err() != nil:
		// Goal-level cancellation, not a task fault.
		g.SetState(task.ID, models.TaskStateCancelled)
		r.s.emit(Event{Type: EventTaskCancelled, GoalID: goalID,
			TaskID: task.ID, Role: task.Role, Slot: slot})

	case errors.Is(taskCtx.Err(), context.DeadlineExceeded):
		blocked := g.MarkFailed(task.ID, models.TaskStateTimedOut, models.FailureNone)
		r.s.emit(Event{Type: EventTaskTimedOut, GoalID: goalID, TaskID: task.ID,
			Role: task.Role, Slot: slot,
			Message: fmt.Sprintf("deadline %s exceeded", timeout)})
		r.emitBlocked(goalID, blocked)

	default:
		cause := models.FailureReasoning
		var werr *worker.Error
		if errors.As(runErr, &werr) {
			cause = werr.Cause
		}
		blocked := g.MarkFailed(task.ID, models.TaskStateFailed, cause)
		r.s.emit(Event{Type: EventTaskFailed, GoalID: goalID, TaskID: task.ID,
			Role: task.Role, Slot: slot, Err: runErr})
		r.emitBlocked(goalID, blocked)
	}
}

// runWorker executes the worker loop in its own goroutine so a worker
// that ignores its context cannot pin the slot forever. Returns
// ok=false when the worker failed to stop within the grace period
// after its context ended.
func (r *goalRunner) runWorker(ctx context.Context, exec *worker.ExecutionContext, task *models.AtomicTask) (*models.Proposal, error, bool) {
	type outcome struct {
		proposal *models.Proposal
		err      error
	}
	resCh := make(chan outcome, 1)
	go func() {
		p, err := exec.Run(ctx, task)
		resCh <- outcome{proposal: p, err: err}
	}()

	select {
	case res := <-resCh:
		return res.proposal, res.err, true
	case <-ctx.Done():
	}

	grace := time.NewTimer(r.s.gracePeriod)
	defer grace.Stop()
	select {
	case res := <-resCh:
		return res.proposal, res.err, true
	case <-grace.C:
		return nil, nil, false
	}
}

// joinInputs merges the results of the task's direct dependencies
// using the task's role strategy. Tasks without dependencies carry no
// input.
func (r *goalRunner) joinInputs(ctx context.Context, task *models.AtomicTask) (string, error) {
	deps := r.handle.graph.DependencyTasks(task.ID)
	if len(deps) == 0 {
		return "", nil
	}

	contributions := make([]aggregate.Contribution, len(deps))
	for i, dep := range deps {
		contributions[i] = aggregate.Contribution{
			TaskID: dep.ID,
			Result: dep.Result,
			State:  dep.State,
		}
	}
	merged, err := r.s.aggregator.Aggregate(ctx, task, contributions)
	if err != nil {
		return "", fmt.Errorf("merge dependencies of task %s: %w", task.ID, err)
	}
	return merged, nil
}

// Delegate adds child tasks to the goal's graph and blocks until every
// child reaches a terminal state. Children are scheduled by the same
// run loop and draw from the same global slot pool.
func (r *goalRunner) Delegate(ctx context.Context, parent *models.AtomicTask, specs []worker.ChildSpec) ([]string, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	children := make([]*models.AtomicTask, len(specs))
	ids := make([]string, len(specs))
	for i, spec := range specs {
		child := models.NewAtomicTask(uuid.New().String(), parent.GoalID, spec.Role, spec.Description)
		child.Depth = parent.Depth + 1
		children[i] = child
		ids[i] = child.ID
	}
	if err := r.handle.graph.Add(children); err != nil {
		return nil, fmt.Errorf("delegate from task %s: %w", parent.ID, err)
	}
	r.s.emit(Event{Type: EventDelegationSpawned, GoalID: parent.GoalID,
		TaskID: parent.ID, Role: parent.Role, Slot: parent.Slot,
		Message: fmt.Sprintf("%d children at depth %d", len(children), parent.Depth+1)})
	r.signal()

	waitCtx, waitCancel := context.WithTimeout(ctx, r.s.timeouts.Delegated)
	defer waitCancel()

	ticker := time.NewTicker(delegationPollInterval)
	defer ticker.Stop()
	for {
		if r.childrenTerminal(ids) {
			break
		}
		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("delegated subtree from task %s: %w", parent.ID, waitCtx.Err())
		case <-ticker.C:
		}
	}

	results := make([]string, len(ids))
	for i, id := range ids {
		child := r.handle.graph.Task(id)
		if child.State != models.TaskStateCompleted {
			return nil, fmt.Errorf("delegated child %s ended %s", id, child.State)
		}
		results[i] = child.Result
	}
	return results, nil
}

func (r *goalRunner) childrenTerminal(ids []string) bool {
	for _, id := range ids {
		child := r.handle.graph.Task(id)
		if child == nil || !child.State.Terminal() {
			return false
		}
	}
	return true
}

// finalize aggregates task results and records the goal outcome.
func (r *goalRunner) finalize(ctx context.Context) {
	g := r.handle.graph
	goal := r.handle.goal

	// Every task's result is a contribution so the goal-level merge
	// spans the whole graph, not just its sinks.
	var completed, failed int
	var contributions []aggregate.Contribution
	for _, task := range g.Snapshot() {
		if task.State == models.TaskStateCompleted {
			completed++
		} else if task.State.Terminal() {
			failed++
		}
		contributions = append(contributions, aggregate.Contribution{
			TaskID: task.ID,
			Result: task.Result,
			State:  task.State,
		})
	}

	status := models.GoalStatusSucceeded
	switch {
	case r.handle.wasCancelRequested():
		status = models.GoalStatusCancelled
	case completed == 0:
		status = models.GoalStatusFailed
	case failed > 0:
		status = models.GoalStatusPartial
	}

	var result string
	if status == models.GoalStatusSucceeded || status == models.GoalStatusPartial {
		sink := &models.AtomicTask{
			ID:          goal.ID,
			GoalID:      goal.ID,
			Role:        models.RoleExecutor,
			Description: goal.Text,
		}
		merged, err := r.s.aggregator.Aggregate(ctx, sink, contributions)
		if err != nil {
			r.s.logger.Log("[runner] goal %s aggregation failed: %v", goal.ID, err)
			status = models.GoalStatusPartial
		} else {
			result = merged
		}
	}

	r.handle.finish(status, result)
	r.s.emit(Event{Type: EventGoalDone, GoalID: goal.ID, Slot: -1,
		Message: string(status)})
	r.s.logger.Log("[runner] goal %s done: %s (%d completed, %d failed)",
		goal.ID, status, completed, failed)
}

func (r *goalRunner) emitBlocked(goalID string, blocked []string) {
	for _, id := range blocked {
		task := r.handle.graph.Task(id)
		r.s.emit(Event{Type: EventTaskBlocked, GoalID: goalID, TaskID: id,
			Role: task.Role, Slot: -1, Message: "dependency did not complete"})
	}
}

// signal wakes the run loop without blocking.
func (r *goalRunner) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// inflightCounter tracks running task goroutines.
type inflightCounter struct {
	mu sync.Mutex
	n  int
	wg sync.WaitGroup
}

func (c *inflightCounter) add(n int) {
	c.mu.Lock()
	c.n += n
	c.mu.Unlock()
	c.wg.Add(n)
}

func (c *inflightCounter) done() {
	c.mu.Lock()
	c.n--
	c.mu.Unlock()
	c.wg.Done()
}

func (c *inflightCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func (c *inflightCounter) wait() {
	c.wg.Wait()
}
