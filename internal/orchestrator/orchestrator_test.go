package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hiveworks/hivemind/internal/config"
	"github.com/hiveworks/hivemind/internal/skill"
	"github.com/hiveworks/hivemind/internal/store"
	"github.com/hiveworks/hivemind/pkg/models"
)

// handlerClient routes completions through a test-provided handler and
// tracks how many are running concurrently.
type handlerClient struct {
	handler func(ctx context.Context, role models.Role, prompt string) (string, error)

	mu         sync.Mutex
	running    int
	maxRunning int
	log        []string
}

func (c *handlerClient) Complete(ctx context.Context, role models.Role, prompt string) (string, error) {
	c.mu.Lock()
	c.running++
	if c.running > c.maxRunning {
		c.maxRunning = c.running
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running--
		c.mu.Unlock()
	}()
	return c.handler(ctx, role, prompt)
}

func (c *handlerClient) record(entry string) {
	c.mu.Lock()
	c.log = append(c.log, entry)
	c.mu.Unlock()
}

func (c *handlerClient) entries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

// finalAnswer is a handler that completes any task immediately and
// answers aggregation prompts with a fixed merge.
func finalAnswer(ctx context.Context, role models.Role, prompt string) (string, error) {
	if strings.Contains(prompt, "Merge the following inputs") {
		return "merged result", nil
	}
	return "FINAL: done\nRATIONALE: nothing left to do", nil
}

func testGoal(origin models.GoalOrigin) *models.Goal {
	return &models.Goal{
		ID:        "goal-1",
		Text:      "test goal",
		Origin:    origin,
		Priority:  models.PriorityNormal,
		CreatedAt: time.Now(),
	}
}

func task(id string, role models.Role, deps ...string) *models.AtomicTask {
	t := models.NewAtomicTask(id, "goal-1", role, "task "+id)
	t.DependsOn = deps
	return t
}

func waitGoal(t *testing.T, h *GoalHandle) models.GoalStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, status, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("goal did not finish: %v", err)
	}
	return status
}

func taskByID(t *testing.T, h *GoalHandle, id string) models.AtomicTask {
	t.Helper()
	for _, task := range h.Snapshot() {
		if task.ID == id {
			return task
		}
	}
	t.Fatalf("task %s not in snapshot", id)
	return models.AtomicTask{}
}

func TestGoalSucceeds(t *testing.T) {
	client := &handlerClient{handler: finalAnswer}
	s := New(client, skill.NewRegistry())

	// Diamond: a feeds b and c, both feed d.
	h, err := s.SubmitPlan(testGoal(models.OriginUser), []*models.AtomicTask{
		task("a", models.RoleResearcher),
		task("b", models.RoleExecutor, "a"),
		task("c", models.RoleExecutor, "a"),
		task("d", models.RoleReasoner, "b", "c"),
	})
	if err != nil {
		t.Fatalf("SubmitPlan failed: %v", err)
	}

	if status := waitGoal(t, h); status != models.GoalStatusSucceeded {
		t.Errorf("status = %q, want succeeded", status)
	}
	for _, task := range h.Snapshot() {
		if task.State != models.TaskStateCompleted {
			t.Errorf("task %s state = %q, want completed", task.ID, task.State)
		}
		if task.Slot != -1 {
			t.Errorf("task %s still holds slot %d", task.ID, task.Slot)
		}
	}
	if h.Result() != "merged result" {
		t.Errorf("Result() = %q, want %q", h.Result(), "merged result")
	}
	if s.InFlight() != 0 {
		t.Errorf("InFlight() = %d after goal done", s.InFlight())
	}
}

func TestDependenciesCompleteBeforeDependentStarts(t *testing.T) {
	client := &handlerClient{}
	client.handler = func(ctx context.Context, role models.Role, prompt string) (string, error) {
		if strings.Contains(prompt, "Merge the following inputs") {
			return "merged", nil
		}
		for _, name := range []string{"task a", "task b", "task c"} {
			if strings.Contains(prompt, name) {
				client.record("start:" + name)
				time.Sleep(20 * time.Millisecond)
				client.record("end:" + name)
				break
			}
		}
		return "FINAL: ok\nRATIONALE: r", nil
	}

	s := New(client, skill.NewRegistry(), WithCapacity(2))
	h, err := s.SubmitPlan(testGoal(models.OriginUser), []*models.AtomicTask{
		task("a", models.RoleResearcher),
		task("b", models.RoleResearcher),
		task("c", models.RoleReasoner, "a", "b"),
	})
	if err != nil {
		t.Fatalf("SubmitPlan failed: %v", err)
	}
	waitGoal(t, h)

	entries := entriesIndex(client.entries())
	startC, ok := entries["start:task c"]
	if !ok {
		t.Fatal("task c never started")
	}
	for _, dep := range []string{"end:task a", "end:task b"} {
		end, ok := entries[dep]
		if !ok || end > startC {
			t.Errorf("%s at %d, but task c started at %d", dep, end, startC)
		}
	}
}

func entriesIndex(entries []string) map[string]int {
	idx := make(map[string]int, len(entries))
	for i, e := range entries {
		if _, seen := idx[e]; !seen {
			idx[e] = i
		}
	}
	return idx
}

func TestCapacityOneSerializesExecution(t *testing.T) {
	client := &handlerClient{}
	client.handler = func(ctx context.Context, role models.Role, prompt string) (string, error) {
		if strings.Contains(prompt, "Merge the following inputs") {
			return "merged", nil
		}
		time.Sleep(10 * time.Millisecond)
		return "FINAL: ok\nRATIONALE: r", nil
	}

	s := New(client, skill.NewRegistry(), WithCapacity(1),
		WithDispatchTimeout(5*time.Second))
	h, err := s.SubmitPlan(testGoal(models.OriginUser), []*models.AtomicTask{
		task("a", models.RoleExecutor),
		task("b", models.RoleExecutor),
		task("c", models.RoleExecutor),
	})
	if err != nil {
		t.Fatalf("SubmitPlan failed: %v", err)
	}

	if status := waitGoal(t, h); status != models.GoalStatusSucceeded {
		t.Fatalf("status = %q, want succeeded", status)
	}
	if client.maxRunning > 1 {
		t.Errorf("max concurrent completions = %d, want 1", client.maxRunning)
	}
}

func TestSlotCapNeverExceeded(t *testing.T) {
	client := &handlerClient{}
	client.handler = func(ctx context.Context, role models.Role, prompt string) (string, error) {
		if strings.Contains(prompt, "Merge the following inputs") {
			return "merged", nil
		}
		time.Sleep(10 * time.Millisecond)
		return "FINAL: ok\nRATIONALE: r", nil
	}

	s := New(client, skill.NewRegistry(), WithCapacity(2),
		WithDispatchTimeout(5*time.Second))
	tasks := make([]*models.AtomicTask, 6)
	for i := range tasks {
		tasks[i] = task(fmt.Sprintf("t%d", i), models.RoleExecutor)
	}
	h, err := s.SubmitPlan(testGoal(models.OriginUser), tasks)
	if err != nil {
		t.Fatalf("SubmitPlan failed: %v", err)
	}

	waitGoal(t, h)
	if client.maxRunning > 2 {
		t.Errorf("max concurrent completions = %d, want at most 2", client.maxRunning)
	}
}

func TestFailurePropagationBlocksDependents(t *testing.T) {
	client := &handlerClient{}
	client.handler = func(ctx context.Context, role models.Role, prompt string) (string, error) {
		if strings.Contains(prompt, "task a") {
			return "", errors.New("model returned garbage")
		}
		client.record("unexpected completion")
		return "FINAL: ok\nRATIONALE: r", nil
	}

	s := New(client, skill.NewRegistry())
	h, err := s.SubmitPlan(testGoal(models.OriginUser), []*models.AtomicTask{
		task("a", models.RoleResearcher),
		task("b", models.RoleExecutor, "a"),
	})
	if err != nil {
		t.Fatalf("SubmitPlan failed: %v", err)
	}

	if status := waitGoal(t, h); status != models.GoalStatusFailed {
		t.Errorf("status = %q, want failed", status)
	}

	a := taskByID(t, h, "a")
	if a.State != models.TaskStateFailed || a.FailureCause != models.FailureReasoning {
		t.Errorf("task a = %s/%s, want failed/reasoning_failed", a.State, a.FailureCause)
	}

	b := taskByID(t, h, "b")
	if b.State != models.TaskStateFailed || b.FailureCause != models.FailureBlockedByDependency {
		t.Errorf("task b = %s/%s, want failed/blocked_by_dependency", b.State, b.FailureCause)
	}
	if b.Slot != -1 {
		t.Errorf("blocked task b holds slot %d", b.Slot)
	}
	if len(client.entries()) != 0 {
		t.Error("blocked dependent was executed")
	}
}

func TestRoleTimeoutMarksTaskTimedOut(t *testing.T) {
	client := &handlerClient{}
	client.handler = func(ctx context.Context, role models.Role, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	timeouts := config.Default().Timeouts
	timeouts.Researcher = 50 * time.Millisecond
	s := New(client, skill.NewRegistry(), WithTimeouts(timeouts))

	h, err := s.SubmitPlan(testGoal(models.OriginUser), []*models.AtomicTask{
		task("a", models.RoleResearcher),
	})
	if err != nil {
		t.Fatalf("SubmitPlan failed: %v", err)
	}

	if status := waitGoal(t, h); status != models.GoalStatusFailed {
		t.Errorf("status = %q, want failed", status)
	}
	a := taskByID(t, h, "a")
	if a.State != models.TaskStateTimedOut {
		t.Errorf("task a state = %q, want timed_out", a.State)
	}
	if s.InFlight() != 0 {
		t.Errorf("InFlight() = %d after timeout, want 0", s.InFlight())
	}
}

func TestCancelPropagatesToRunningTasks(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	client := &handlerClient{}
	client.handler = func(ctx context.Context, role models.Role, prompt string) (string, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return "", ctx.Err()
	}

	s := New(client, skill.NewRegistry())
	h, err := s.SubmitPlan(testGoal(models.OriginUser), []*models.AtomicTask{
		task("a", models.RoleExecutor),
		task("b", models.RoleExecutor, "a"),
	})
	if err != nil {
		t.Fatalf("SubmitPlan failed: %v", err)
	}

	<-started
	if err := s.Cancel(h.ID()); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	if status := waitGoal(t, h); status != models.GoalStatusCancelled {
		t.Errorf("status = %q, want cancelled", status)
	}
	for _, task := range h.Snapshot() {
		if task.State != models.TaskStateCancelled {
			t.Errorf("task %s state = %q, want cancelled", task.ID, task.State)
		}
	}
	if s.InFlight() != 0 {
		t.Errorf("InFlight() = %d after cancel, want 0", s.InFlight())
	}
}

func TestDispatchTimeoutWhenPoolStarved(t *testing.T) {
	client := &handlerClient{}
	client.handler = func(ctx context.Context, role models.Role, prompt string) (string, error) {
		if strings.Contains(prompt, "Merge the following inputs") {
			return "merged", nil
		}
		time.Sleep(300 * time.Millisecond)
		return "FINAL: ok\nRATIONALE: r", nil
	}

	s := New(client, skill.NewRegistry(), WithCapacity(1),
		WithDispatchTimeout(50*time.Millisecond))
	h, err := s.SubmitPlan(testGoal(models.OriginUser), []*models.AtomicTask{
		task("a", models.RoleExecutor),
		task("b", models.RoleExecutor),
	})
	if err != nil {
		t.Fatalf("SubmitPlan failed: %v", err)
	}

	if status := waitGoal(t, h); status != models.GoalStatusPartial {
		t.Errorf("status = %q, want partial", status)
	}

	var completed, dispatchFailed int
	for _, task := range h.Snapshot() {
		switch {
		case task.State == models.TaskStateCompleted:
			completed++
		case task.FailureCause == models.FailureDispatchTimeout:
			dispatchFailed++
		}
	}
	if completed != 1 || dispatchFailed != 1 {
		t.Errorf("completed = %d, dispatch timeouts = %d, want 1 and 1", completed, dispatchFailed)
	}
}

func TestDelegationRunsChildrenAndFeedsResultsBack(t *testing.T) {
	client := &handlerClient{}
	client.handler = func(ctx context.Context, role models.Role, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Merge the following inputs"):
			return "merged", nil
		case strings.Contains(prompt, "look up the numbers"):
			return "FINAL: the number is 42\nRATIONALE: looked it up", nil
		case strings.Contains(prompt, "OBSERVATIONS"):
			if !strings.Contains(prompt, "the number is 42") {
				return "", errors.New("child result missing from observations")
			}
			return "FINAL: report with 42\nRATIONALE: built on the delegated answer", nil
		default:
			return `[DELEGATE: "look up the numbers" --role="researcher"]`, nil
		}
	}

	s := New(client, skill.NewRegistry())
	h, err := s.SubmitPlan(testGoal(models.OriginUser), []*models.AtomicTask{
		task("parent", models.RoleExecutor),
	})
	if err != nil {
		t.Fatalf("SubmitPlan failed: %v", err)
	}

	if status := waitGoal(t, h); status != models.GoalStatusSucceeded {
		t.Fatalf("status = %q, want succeeded", status)
	}

	snapshot := h.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("got %d tasks, want parent plus one child", len(snapshot))
	}
	for _, task := range snapshot {
		if task.State != models.TaskStateCompleted {
			t.Errorf("task %s state = %q, want completed", task.ID, task.State)
		}
		if task.ID != "parent" {
			if task.Depth != 1 {
				t.Errorf("child depth = %d, want 1", task.Depth)
			}
			if task.Role != models.RoleResearcher {
				t.Errorf("child role = %q, want researcher", task.Role)
			}
		}
	}
	parent := taskByID(t, h, "parent")
	if parent.Result != "report with 42" {
		t.Errorf("parent result = %q", parent.Result)
	}
}

func TestDependencyResultsReachDependentAndFinalMerge(t *testing.T) {
	client := &handlerClient{}
	client.handler = func(ctx context.Context, role models.Role, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Merge the following inputs"):
			client.record("merge\n" + prompt)
			return "combined", nil
		case strings.Contains(prompt, "task a"):
			return "FINAL: RESULT_A\nRATIONALE: r", nil
		case strings.Contains(prompt, "task b"):
			return "FINAL: RESULT_B\nRATIONALE: r", nil
		default:
			client.record("join\n" + prompt)
			return "FINAL: RESULT_C\nRATIONALE: r", nil
		}
	}

	s := New(client, skill.NewRegistry())
	h, err := s.SubmitPlan(testGoal(models.OriginUser), []*models.AtomicTask{
		task("a", models.RoleResearcher),
		task("b", models.RoleResearcher),
		task("c", models.RoleResearcher, "a", "b"),
	})
	if err != nil {
		t.Fatalf("SubmitPlan failed: %v", err)
	}
	if status := waitGoal(t, h); status != models.GoalStatusSucceeded {
		t.Fatalf("status = %q, want succeeded", status)
	}

	var joinPrompt, mergePrompt string
	for _, e := range client.entries() {
		switch {
		case strings.HasPrefix(e, "join\n"):
			joinPrompt = e
		case strings.HasPrefix(e, "merge\n"):
			mergePrompt = e
		}
	}
	if joinPrompt == "" {
		t.Fatal("task c never ran")
	}
	if !strings.Contains(joinPrompt, "INPUTS FROM COMPLETED DEPENDENCIES") {
		t.Error("dependent prompt has no inputs block")
	}
	for _, want := range []string{"RESULT_A", "RESULT_B"} {
		if !strings.Contains(joinPrompt, want) {
			t.Errorf("dependent prompt missing %s", want)
		}
	}
	if mergePrompt == "" {
		t.Fatal("goal-level merge never ran")
	}
	for _, want := range []string{"RESULT_A", "RESULT_B", "RESULT_C"} {
		if !strings.Contains(mergePrompt, want) {
			t.Errorf("goal-level merge missing %s", want)
		}
	}
	if h.Result() != "combined" {
		t.Errorf("Result() = %q, want %q", h.Result(), "combined")
	}
}

func TestUnresponsiveWorkerReclaimedAfterGrace(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	client := &handlerClient{}
	client.handler = func(ctx context.Context, role models.Role, prompt string) (string, error) {
		if strings.Contains(prompt, "task a") {
			// Ignores its context entirely.
			<-release
			return "", errors.New("released late")
		}
		return "FINAL: ok\nRATIONALE: r", nil
	}

	timeouts := config.Default().Timeouts
	timeouts.Executor = 50 * time.Millisecond
	s := New(client, skill.NewRegistry(), WithCapacity(1),
		WithTimeouts(timeouts), WithGracePeriod(50*time.Millisecond),
		WithDispatchTimeout(5*time.Second))

	h, err := s.SubmitPlan(testGoal(models.OriginUser), []*models.AtomicTask{
		task("a", models.RoleExecutor),
		task("b", models.RoleExecutor),
	})
	if err != nil {
		t.Fatalf("SubmitPlan failed: %v", err)
	}

	// Task b can only run if a's slot is taken back from the stuck
	// worker.
	if status := waitGoal(t, h); status != models.GoalStatusPartial {
		t.Errorf("status = %q, want partial", status)
	}

	a := taskByID(t, h, "a")
	if a.State != models.TaskStateTimedOut {
		t.Errorf("task a state = %q, want timed_out", a.State)
	}
	if a.Slot != -1 {
		t.Errorf("task a still holds slot %d", a.Slot)
	}
	b := taskByID(t, h, "b")
	if b.State != models.TaskStateCompleted {
		t.Errorf("task b state = %q, want completed", b.State)
	}
	if s.InFlight() != 0 {
		t.Errorf("InFlight() = %d, want 0", s.InFlight())
	}
}

type echoCapability struct{}

func (echoCapability) Name() string        { return "echo" }
func (echoCapability) Description() string { return "echo repeats its arguments" }
func (echoCapability) Execute(ctx context.Context, args string) (string, error) {
	return args, nil
}

func TestTranscriptVisibleInSnapshotsWhileRunning(t *testing.T) {
	reg := skill.NewRegistry()
	reg.Register(echoCapability{})

	client := &handlerClient{}
	client.handler = func(ctx context.Context, role models.Role, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Merge the following inputs"):
			return "merged", nil
		case strings.Contains(prompt, "echo returned"):
			return "FINAL: done\nRATIONALE: r", nil
		default:
			return "[INVOKE: echo ping]\n[INVOKE: echo pong]", nil
		}
	}

	s := New(client, reg)
	h, err := s.SubmitPlan(testGoal(models.OriginUser), []*models.AtomicTask{
		task("a", models.RoleExecutor),
	})
	if err != nil {
		t.Fatalf("SubmitPlan failed: %v", err)
	}

	// Hammer snapshots while the worker appends transcript entries.
	stop := make(chan struct{})
	var snaps sync.WaitGroup
	snaps.Add(1)
	go func() {
		defer snaps.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.Snapshot()
			}
		}
	}()

	status := waitGoal(t, h)
	close(stop)
	snaps.Wait()

	if status != models.GoalStatusSucceeded {
		t.Fatalf("status = %q, want succeeded", status)
	}
	a := taskByID(t, h, "a")
	if len(a.Transcript) != 2 {
		t.Fatalf("transcript has %d entries, want 2", len(a.Transcript))
	}
	if a.Transcript[0].Capability != "echo" || a.Transcript[0].Output != "ping" {
		t.Errorf("first entry = %s/%q, want echo/ping", a.Transcript[0].Capability, a.Transcript[0].Output)
	}
}

func TestUserProposalCommittedWithoutReview(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "proposals.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	client := &handlerClient{handler: finalAnswer}
	s := New(client, skill.NewRegistry(), WithStore(st))

	h, err := s.SubmitPlan(testGoal(models.OriginUser), []*models.AtomicTask{
		task("a", models.RoleExecutor),
	})
	if err != nil {
		t.Fatalf("SubmitPlan failed: %v", err)
	}
	waitGoal(t, h)

	committed, err := st.Committed()
	if err != nil {
		t.Fatalf("Committed failed: %v", err)
	}
	if len(committed) != 1 {
		t.Fatalf("got %d committed proposals, want 1", len(committed))
	}
	if committed[0].TaskID != "a" {
		t.Errorf("committed proposal task = %q, want a", committed[0].TaskID)
	}
}

func TestAutonomousRejectedProposalNeverCommitted(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "proposals.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	client := &handlerClient{}
	client.handler = func(ctx context.Context, role models.Role, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "independent reviewer auditing"):
			return "VERDICT: REJECT\nRATIONALE: rationale does not support the content", nil
		case strings.Contains(prompt, "Merge the following inputs"):
			return "merged", nil
		default:
			return "FINAL: some output\nRATIONALE: r", nil
		}
	}

	s := New(client, skill.NewRegistry(), WithStore(st))
	goal := testGoal(models.OriginAutonomous)
	h, err := s.SubmitPlan(goal, []*models.AtomicTask{
		task("a", models.RoleExecutor),
	})
	if err != nil {
		t.Fatalf("SubmitPlan failed: %v", err)
	}
	waitGoal(t, h)

	committed, err := st.Committed()
	if err != nil {
		t.Fatalf("Committed failed: %v", err)
	}
	if len(committed) != 0 {
		t.Errorf("rejected proposal reached the committed set: %d rows", len(committed))
	}

	proposals, err := st.ListByGoal(goal.ID)
	if err != nil {
		t.Fatalf("ListByGoal failed: %v", err)
	}
	if len(proposals) != 1 {
		t.Fatalf("got %d proposals, want 1", len(proposals))
	}
	if proposals[0].ReviewState != models.ReviewDiscarded {
		t.Errorf("proposal state = %q, want discarded", proposals[0].ReviewState)
	}
}

func TestAutonomousApprovedProposalCommitted(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "proposals.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	client := &handlerClient{}
	client.handler = func(ctx context.Context, role models.Role, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "independent reviewer auditing"):
			return "VERDICT: APPROVE\nRATIONALE: checks out", nil
		case strings.Contains(prompt, "Merge the following inputs"):
			return "merged", nil
		default:
			return "FINAL: some output\nRATIONALE: r", nil
		}
	}

	s := New(client, skill.NewRegistry(), WithStore(st))
	h, err := s.SubmitPlan(testGoal(models.OriginAutonomous), []*models.AtomicTask{
		task("a", models.RoleExecutor),
	})
	if err != nil {
		t.Fatalf("SubmitPlan failed: %v", err)
	}
	waitGoal(t, h)

	committed, err := st.Committed()
	if err != nil {
		t.Fatalf("Committed failed: %v", err)
	}
	if len(committed) != 1 {
		t.Errorf("got %d committed proposals, want 1", len(committed))
	}
}

func TestSubmitPlansViaPlanner(t *testing.T) {
	client := &handlerClient{}
	client.handler = func(ctx context.Context, role models.Role, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Decompose the following goal"):
			return `[
  {"name": "gather", "role": "researcher", "description": "gather facts", "depends_on": []},
  {"name": "write", "role": "executor", "description": "write summary", "depends_on": ["gather"]}
]`, nil
		case strings.Contains(prompt, "Merge the following inputs"):
			return "final summary", nil
		default:
			return "FINAL: ok\nRATIONALE: r", nil
		}
	}

	s := New(client, skill.NewRegistry())
	h, err := s.Submit(context.Background(), "summarize the facts", models.OriginUser, models.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if status := waitGoal(t, h); status != models.GoalStatusSucceeded {
		t.Errorf("status = %q, want succeeded", status)
	}
	if len(h.Snapshot()) != 2 {
		t.Errorf("got %d tasks, want 2", len(h.Snapshot()))
	}
}

func TestCancelUnknownGoal(t *testing.T) {
	s := New(&handlerClient{handler: finalAnswer}, skill.NewRegistry())
	if err := s.Cancel("nope"); err == nil {
		t.Error("Cancel of unknown goal succeeded")
	}
}

func TestShutdownDrainsGoals(t *testing.T) {
	client := &handlerClient{handler: finalAnswer}
	s := New(client, skill.NewRegistry())

	h, err := s.SubmitPlan(testGoal(models.OriginUser), []*models.AtomicTask{
		task("a", models.RoleExecutor),
	})
	if err != nil {
		t.Fatalf("SubmitPlan failed: %v", err)
	}
	waitGoal(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if _, err := s.SubmitPlan(testGoal(models.OriginUser), []*models.AtomicTask{
		task("b", models.RoleExecutor),
	}); err == nil {
		t.Error("SubmitPlan succeeded after shutdown")
	}
}
