package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/hiveworks/hivemind/pkg/models"
)

// fakeClient returns scripted responses in order.
type fakeClient struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (f *fakeClient) Complete(_ context.Context, _ models.Role, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	idx := f.calls
	f.calls++
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

func proposal(content string) *models.Proposal {
	return &models.Proposal{
		ID:          "prop-1",
		TaskID:      "task-1",
		GoalID:      "goal-1",
		Content:     content,
		Rationale:   "derived from completed subtasks",
		Safety:      models.SafetyUnknown,
		ReviewState: models.ReviewPending,
	}
}

func TestClassifyConfined(t *testing.T) {
	r := NewReviewer(nil, nil)
	p := proposal("update the cache eviction interval to 30s")
	if got := r.Classify(p); got != models.SafetyConfined {
		t.Errorf("Classify() = %q, want %q", got, models.SafetyConfined)
	}
}

func TestClassifySensitive(t *testing.T) {
	r := NewReviewer(nil, nil)
	p := proposal("rotate the API key stored in ~/.ssh/config")
	if got := r.Classify(p); got != models.SafetySensitive {
		t.Errorf("Classify() = %q, want %q", got, models.SafetySensitive)
	}
}

func TestClassifyEmptyContent(t *testing.T) {
	r := NewReviewer(nil, nil)
	p := proposal("")
	if got := r.Classify(p); got != models.SafetyUnknown {
		t.Errorf("Classify() = %q, want %q", got, models.SafetyUnknown)
	}
}

func TestReviewApprove(t *testing.T) {
	client := &fakeClient{responses: []string{
		"VERDICT: APPROVE\nRATIONALE: content matches the stated rationale",
	}}
	r := NewReviewer(client, nil)

	decision, err := r.Review(context.Background(), proposal("raise timeout to 45s"))
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if decision.Verdict != models.VerdictApprove {
		t.Errorf("Verdict = %q, want %q", decision.Verdict, models.VerdictApprove)
	}
	if decision.Rationale != "content matches the stated rationale" {
		t.Errorf("Rationale = %q", decision.Rationale)
	}
	if decision.Escalate {
		t.Error("approve decision should not escalate")
	}
}

func TestReviewSensitiveRejectsWithoutReasoningCall(t *testing.T) {
	client := &fakeClient{responses: []string{"VERDICT: APPROVE"}}
	r := NewReviewer(client, nil)

	decision, err := r.Review(context.Background(), proposal("run sudo systemctl restart db"))
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if decision.Verdict != models.VerdictReject {
		t.Errorf("Verdict = %q, want reject", decision.Verdict)
	}
	if !decision.Escalate {
		t.Error("sensitive rejection should escalate")
	}
	if !strings.Contains(decision.Rationale, "sudo") {
		t.Errorf("Rationale = %q, want the violating keyword named", decision.Rationale)
	}
	if client.calls != 0 {
		t.Errorf("reasoning client called %d times, want 0", client.calls)
	}
}

func TestReviewSetsSafetyClass(t *testing.T) {
	client := &fakeClient{responses: []string{"VERDICT: APPROVE\nRATIONALE: ok"}}
	r := NewReviewer(client, nil)

	p := proposal("document the new retry policy")
	if _, err := r.Review(context.Background(), p); err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if p.Safety != models.SafetyConfined {
		t.Errorf("Safety = %q, want %q", p.Safety, models.SafetyConfined)
	}
}

func TestReviewPromptContainsProposal(t *testing.T) {
	client := &fakeClient{responses: []string{"VERDICT: APPROVE\nRATIONALE: ok"}}
	r := NewReviewer(client, nil)

	p := proposal("switch the queue to at-least-once delivery")
	if _, err := r.Review(context.Background(), p); err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if len(client.prompts) != 1 {
		t.Fatalf("got %d prompts, want 1", len(client.prompts))
	}
	if !strings.Contains(client.prompts[0], p.Content) {
		t.Error("audit prompt missing proposal content")
	}
	if !strings.Contains(client.prompts[0], p.Rationale) {
		t.Error("audit prompt missing proposal rationale")
	}
}

func TestReviewClientError(t *testing.T) {
	client := &fakeClient{err: errors.New("model unavailable")}
	r := NewReviewer(client, nil)

	if _, err := r.Review(context.Background(), proposal("anything")); err == nil {
		t.Fatal("Review() error = nil, want error")
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name      string
		output    string
		verdict   models.Verdict
		rationale string
	}{
		{
			name:      "reject",
			output:    "VERDICT: REJECT\nRATIONALE: contradicts earlier findings",
			verdict:   models.VerdictReject,
			rationale: "contradicts earlier findings",
		},
		{
			name:      "revise with multiline rationale",
			output:    "VERDICT: REVISE\nRATIONALE: cite the source\nfor the second claim",
			verdict:   models.VerdictRequestRevision,
			rationale: "cite the source for the second claim",
		},
		{
			name:      "lowercase verdict",
			output:    "verdict: approve\nrationale: fine",
			verdict:   models.VerdictApprove,
			rationale: "fine",
		},
		{
			name:      "no verdict defaults to revision",
			output:    "Looks mostly fine I suppose.",
			verdict:   models.VerdictRequestRevision,
			rationale: "no rationale provided",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := parseDecision(tt.output)
			if d.Verdict != tt.verdict {
				t.Errorf("Verdict = %q, want %q", d.Verdict, tt.verdict)
			}
			if d.Rationale != tt.rationale {
				t.Errorf("Rationale = %q, want %q", d.Rationale, tt.rationale)
			}
		})
	}
}

func TestGateRevisionBudget(t *testing.T) {
	client := &fakeClient{responses: []string{
		"VERDICT: REVISE\nRATIONALE: round one",
		"VERDICT: REVISE\nRATIONALE: round two",
		"VERDICT: REVISE\nRATIONALE: round three",
	}}
	gate := NewGate(NewReviewer(client, nil), 2)
	p := proposal("tighten the parser")

	for i := 0; i < 2; i++ {
		d, err := gate.Decide(context.Background(), p)
		if err != nil {
			t.Fatalf("Decide() round %d error = %v", i, err)
		}
		if d.Verdict != models.VerdictRequestRevision {
			t.Fatalf("round %d verdict = %q, want revision", i, d.Verdict)
		}
		if d.Escalate {
			t.Fatalf("round %d escalated inside budget", i)
		}
	}

	d, err := gate.Decide(context.Background(), p)
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.Verdict != models.VerdictReject {
		t.Errorf("Verdict = %q, want reject after budget", d.Verdict)
	}
	if !d.Escalate {
		t.Error("budget exhaustion should escalate")
	}
	if !strings.Contains(d.Rationale, "revision budget exhausted") {
		t.Errorf("Rationale = %q", d.Rationale)
	}
}

func TestGateApproveDoesNotConsumeBudget(t *testing.T) {
	client := &fakeClient{responses: []string{"VERDICT: APPROVE\nRATIONALE: ok"}}
	gate := NewGate(NewReviewer(client, nil), 2)
	p := proposal("rename the flag")

	if _, err := gate.Decide(context.Background(), p); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if got := gate.Attempts(p.TaskID); got != 0 {
		t.Errorf("Attempts() = %d, want 0", got)
	}
}

// lockedClient is safe for concurrent Complete calls.
type lockedClient struct {
	mu       sync.Mutex
	response string
	calls    int
}

func (f *lockedClient) Complete(_ context.Context, _ models.Role, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.response, nil
}

func TestGateConcurrentDecide(t *testing.T) {
	client := &lockedClient{response: "VERDICT: REVISE\nRATIONALE: tighten it"}
	gate := NewGate(NewReviewer(client, nil), 100)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p := proposal("merge partial results")
			p.ID = fmt.Sprintf("prop-%d", n)
			if _, err := gate.Decide(context.Background(), p); err != nil {
				t.Errorf("Decide() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := gate.Attempts("task-1"); got != workers {
		t.Errorf("Attempts() = %d, want %d", got, workers)
	}
}

func TestGateDefaultBudget(t *testing.T) {
	gate := NewGate(NewReviewer(nil, nil), 0)
	if gate.budget != DefaultRevisionBudget {
		t.Errorf("budget = %d, want %d", gate.budget, DefaultRevisionBudget)
	}
}

func TestViolationsMultiple(t *testing.T) {
	p := DefaultZonePolicy()
	hits := p.Violations("store the password next to the api key")
	if len(hits) != 2 {
		t.Fatalf("Violations() = %v, want 2 hits", hits)
	}
}
