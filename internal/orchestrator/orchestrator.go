// Package orchestrator coordinates goal planning, slot-bounded task
// execution, result aggregation, and the proposal review gate.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hiveworks/hivemind/internal/aggregate"
	"github.com/hiveworks/hivemind/internal/config"
	"github.com/hiveworks/hivemind/internal/graph"
	"github.com/hiveworks/hivemind/internal/planner"
	"github.com/hiveworks/hivemind/internal/reasoning"
	"github.com/hiveworks/hivemind/internal/review"
	"github.com/hiveworks/hivemind/internal/skill"
	"github.com/hiveworks/hivemind/internal/store"
	"github.com/hiveworks/hivemind/internal/worker"
	"github.com/hiveworks/hivemind/pkg/models"
)

// DefaultDispatchTimeout bounds how long a dispatched task waits for a
// free slot before failing.
const DefaultDispatchTimeout = 30 * time.Second

// DefaultGracePeriod is how long a worker gets to observe cancellation
// or its deadline before the scheduler reclaims the slot from under it.
const DefaultGracePeriod = 5 * time.Second

// Option configures a Swarm.
type Option func(*Swarm)

// WithCapacity sets the global slot count.
func WithCapacity(n int) Option {
	return func(s *Swarm) { s.pool = NewSlotPool(n) }
}

// WithDispatchTimeout sets the slot acquisition timeout.
func WithDispatchTimeout(d time.Duration) Option {
	return func(s *Swarm) { s.dispatchTimeout = d }
}

// WithTimeouts sets the per-role execution deadlines.
func WithTimeouts(t config.TimeoutsConfig) Option {
	return func(s *Swarm) { s.timeouts = t }
}

// WithGracePeriod sets the force-reclaim window after a task deadline
// or cancellation.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Swarm) { s.gracePeriod = d }
}

// WithStore sets the proposal store. Without a store, proposals are
// still reviewed but only surface through events.
func WithStore(st *store.Store) Option {
	return func(s *Swarm) { s.store = st }
}

// WithReviewGate replaces the default consensus gate.
func WithReviewGate(g *review.Gate) Option {
	return func(s *Swarm) { s.gate = g }
}

// WithAggregationMode sets strict or best-effort result merging.
func WithAggregationMode(m aggregate.Mode) Option {
	return func(s *Swarm) { s.aggregator = aggregate.New(m, s.client) }
}

// WithMaxDelegationDepth sets the recursion budget for delegation.
func WithMaxDelegationDepth(n int) Option {
	return func(s *Swarm) { s.maxDepth = n }
}

// WithMaxIterations caps the worker reasoning loop.
func WithMaxIterations(n int) Option {
	return func(s *Swarm) { s.maxIterations = n }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(s *Swarm) { s.logger = l }
}

// Swarm is the top-level coordinator. Each submitted goal gets its own
// task graph and run loop; all goals share the global slot pool.
type Swarm struct {
	client   reasoning.Client
	registry skill.Registry
	store    *store.Store

	planner    *planner.Planner
	aggregator *aggregate.Aggregator
	gate       *review.Gate
	pool       *SlotPool

	timeouts        config.TimeoutsConfig
	dispatchTimeout time.Duration
	gracePeriod     time.Duration
	maxDepth        int
	maxIterations   int

	logger *DebugLogger
	events chan Event

	mu     sync.RWMutex
	goals  map[string]*GoalHandle
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Swarm with the given reasoning client and capability
// registry.
func New(client reasoning.Client, registry skill.Registry, opts ...Option) *Swarm {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Swarm{
		client:          client,
		registry:        registry,
		planner:         planner.New(client),
		aggregator:      aggregate.New(aggregate.Strict, client),
		pool:            NewSlotPool(DefaultCapacity),
		timeouts:        config.Default().Timeouts,
		dispatchTimeout: DefaultDispatchTimeout,
		gracePeriod:     DefaultGracePeriod,
		maxDepth:        2,
		maxIterations:   8,
		logger:          NopLogger(),
		events:          make(chan Event, 100),
		goals:           make(map[string]*GoalHandle),
		ctx:             ctx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gate == nil {
		s.gate = review.NewGate(review.NewReviewer(client, nil), review.DefaultRevisionBudget)
	}
	return s
}

// Submit plans a goal and starts its run loop. It returns once the
// plan is built; execution proceeds in the background.
func (s *Swarm) Submit(ctx context.Context, text string, origin models.GoalOrigin, priority models.Priority) (*GoalHandle, error) {
	goal := &models.Goal{
		ID:        uuid.New().String(),
		Text:      text,
		Origin:    origin,
		Priority:  priority,
		CreatedAt: time.Now(),
	}

	tasks, err := s.planner.Decompose(ctx, goal)
	if err != nil {
		return nil, fmt.Errorf("plan goal: %w", err)
	}
	return s.SubmitPlan(goal, tasks)
}

// SubmitPlan starts a run loop for an already planned goal.
func (s *Swarm) SubmitPlan(goal *models.Goal, tasks []*models.AtomicTask) (*GoalHandle, error) {
	g := graph.New()
	g.SetDebugLog(s.logger.Log)
	if err := g.Build(tasks); err != nil {
		return nil, fmt.Errorf("build task graph: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("swarm is shut down")
	}
	goalCtx, goalCancel := context.WithCancel(s.ctx)
	handle := &GoalHandle{
		goal:   goal,
		graph:  g,
		cancel: goalCancel,
		status: models.GoalStatusActive,
		done:   make(chan struct{}),
	}
	s.goals[goal.ID] = handle
	s.mu.Unlock()

	s.emit(Event{Type: EventGoalSubmitted, GoalID: goal.ID, Slot: -1,
		Message: fmt.Sprintf("%d tasks planned", g.Size())})

	runner := &goalRunner{s: s, handle: handle, wake: make(chan struct{}, 1)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		runner.run(goalCtx)
	}()
	return handle, nil
}

// Goal returns the handle for a goal ID.
func (s *Swarm) Goal(goalID string) (*GoalHandle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.goals[goalID]
	return h, ok
}

// Goals returns handles for every goal the swarm has seen.
func (s *Swarm) Goals() []*GoalHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*GoalHandle, 0, len(s.goals))
	for _, h := range s.goals {
		out = append(out, h)
	}
	return out
}

// Cancel stops a goal. Running tasks observe cancellation at their
// next checkpoint; pending tasks never start.
func (s *Swarm) Cancel(goalID string) error {
	h, ok := s.Goal(goalID)
	if !ok {
		return fmt.Errorf("cancel: unknown goal %s", goalID)
	}
	h.markCancelRequested()
	h.cancel()
	return nil
}

// Events returns the swarm event stream. Events are dropped when the
// consumer falls behind.
func (s *Swarm) Events() <-chan Event {
	return s.events
}

// InFlight returns how many slots are currently held across all goals.
func (s *Swarm) InFlight() int {
	return s.pool.InUse()
}

// Shutdown cancels every goal and waits for run loops to drain, or
// until the context ends.
func (s *Swarm) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

// emit publishes an event without blocking the scheduler.
func (s *Swarm) emit(ev Event) {
	ev.Timestamp = time.Now()
	select {
	case s.events <- ev:
	default:
		s.logger.Log("[events] dropped %s for goal %s", ev.Type, ev.GoalID)
	}
}

// newExecutionContext builds a worker execution context bound to a
// goal's delegator and graph.
func (s *Swarm) newExecutionContext(d worker.Delegator, g *graph.TaskGraph) *worker.ExecutionContext {
	return worker.New(worker.Config{
		Client:        s.client,
		Registry:      s.registry,
		Delegator:     d,
		MaxIterations: s.maxIterations,
		MaxDepth:      s.maxDepth,
		Transcript:    g.AppendTranscript,
		DebugLog:      s.logger.Log,
	})
}

// GoalHandle tracks one goal's execution and exposes its outcome.
type GoalHandle struct {
	goal   *models.Goal
	graph  *graph.TaskGraph
	cancel context.CancelFunc
	done   chan struct{}

	mu              sync.RWMutex
	status          models.GoalStatus
	result          string
	cancelRequested bool
}

// ID returns the goal ID.
func (h *GoalHandle) ID() string {
	return h.goal.ID
}

// Goal returns a copy of the goal.
func (h *GoalHandle) Goal() models.Goal {
	return *h.goal
}

// Status returns the goal's current aggregate status.
func (h *GoalHandle) Status() models.GoalStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Result returns the aggregated result once the goal is done, empty
// before that.
func (h *GoalHandle) Result() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.result
}

// Done is closed when the goal reaches a terminal status.
func (h *GoalHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the goal finishes or the context ends, returning
// the aggregated result and final status.
func (h *GoalHandle) Wait(ctx context.Context) (string, models.GoalStatus, error) {
	select {
	case <-h.done:
		return h.Result(), h.Status(), nil
	case <-ctx.Done():
		return "", h.Status(), ctx.Err()
	}
}

// Snapshot returns a copy of every task in the goal's graph.
func (h *GoalHandle) Snapshot() []models.AtomicTask {
	return h.graph.Snapshot()
}

func (h *GoalHandle) markCancelRequested() {
	h.mu.Lock()
	h.cancelRequested = true
	h.mu.Unlock()
}

func (h *GoalHandle) wasCancelRequested() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cancelRequested
}

// finish records the terminal status and result exactly once.
func (h *GoalHandle) finish(status models.GoalStatus, result string) {
	h.mu.Lock()
	h.status = status
	h.result = result
	h.mu.Unlock()
	close(h.done)
}
