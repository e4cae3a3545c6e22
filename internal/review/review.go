package review

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hiveworks/hivemind/internal/reasoning"
	"github.com/hiveworks/hivemind/pkg/models"
)

// DefaultRevisionBudget is how many revision rounds a proposal gets
// before the gate rejects it outright.
const DefaultRevisionBudget = 2

// Reviewer audits autonomous proposals with an independent reasoning
// call before they may be committed.
type Reviewer struct {
	client reasoning.Client
	policy *ZonePolicy
}

// NewReviewer creates a Reviewer. A nil policy falls back to the
// default zone policy.
func NewReviewer(client reasoning.Client, policy *ZonePolicy) *Reviewer {
	if policy == nil {
		policy = DefaultZonePolicy()
	}
	return &Reviewer{
		client: client,
		policy: policy,
	}
}

// Classify assigns a blast-radius class to the proposal content using
// the mechanical zone policy. No reasoning call is made.
func (r *Reviewer) Classify(p *models.Proposal) models.SafetyClass {
	if p.Content == "" {
		return models.SafetyUnknown
	}
	if r.policy.Confined(p.Content) {
		return models.SafetyConfined
	}
	return models.SafetySensitive
}

// Review audits a single proposal and returns the reviewer's decision.
// Proposals that touch protected zones are rejected without a
// reasoning call and flagged for escalation.
func (r *Reviewer) Review(ctx context.Context, p *models.Proposal) (*models.ConsensusDecision, error) {
	if p == nil {
		return nil, fmt.Errorf("review: nil proposal")
	}

	p.Safety = r.Classify(p)
	if p.Safety == models.SafetySensitive {
		hits := r.policy.Violations(p.Content)
		return &models.ConsensusDecision{
			Verdict:   models.VerdictReject,
			Rationale: fmt.Sprintf("touches protected zones: %s", strings.Join(hits, ", ")),
			Escalate:  true,
		}, nil
	}

	if r.client == nil {
		return nil, fmt.Errorf("review: reasoning client not configured")
	}

	prompt := buildAuditPrompt(p)
	output, err := r.client.Complete(ctx, models.RoleReasoner, prompt)
	if err != nil {
		return nil, fmt.Errorf("review proposal %s: %w", p.ID, err)
	}

	return parseDecision(output), nil
}

// buildAuditPrompt constructs the prompt for the consensus audit.
func buildAuditPrompt(p *models.Proposal) string {
	return fmt.Sprintf(`You are an independent reviewer auditing a proposal produced by an autonomous task swarm.

PROPOSAL:
%s

STATED RATIONALE:
%s

Audit the proposal for correctness, internal consistency, and whether
the rationale actually supports the content.

Your response MUST start with exactly one verdict line:
VERDICT: APPROVE
VERDICT: REJECT
VERDICT: REVISE

Follow the verdict with a RATIONALE: line explaining your ruling.
Use REVISE only when specific, fixable feedback exists; include that
feedback in the rationale.`, p.Content, p.Rationale)
}

// parseDecision extracts the verdict and rationale from reviewer
// output. Output with no recognizable verdict is treated as a
// revision request so the proposal gets another round rather than a
// silent approval.
func parseDecision(output string) *models.ConsensusDecision {
	decision := &models.ConsensusDecision{
		Verdict: models.VerdictRequestRevision,
	}

	var rationale []string
	inRationale := false
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)

		if strings.HasPrefix(upper, "VERDICT:") {
			verdict := strings.TrimSpace(upper[len("VERDICT:"):])
			switch verdict {
			case "APPROVE":
				decision.Verdict = models.VerdictApprove
			case "REJECT":
				decision.Verdict = models.VerdictReject
			case "REVISE":
				decision.Verdict = models.VerdictRequestRevision
			}
			inRationale = false
			continue
		}
		if strings.HasPrefix(upper, "RATIONALE:") {
			inRationale = true
			rest := strings.TrimSpace(trimmed[len("RATIONALE:"):])
			if rest != "" {
				rationale = append(rationale, rest)
			}
			continue
		}
		if inRationale && trimmed != "" {
			rationale = append(rationale, trimmed)
		}
	}

	decision.Rationale = strings.Join(rationale, " ")
	if decision.Rationale == "" {
		decision.Rationale = "no rationale provided"
	}
	return decision
}

// Gate wraps a Reviewer with revision bookkeeping. Each task's
// proposal gets a bounded number of revision rounds; exceeding the
// budget converts the verdict into a rejection flagged for
// escalation. Rounds are keyed by task so a revised proposal row
// cannot reset the budget. Safe for concurrent use; every running
// worker routes its proposal through the same gate.
type Gate struct {
	reviewer *Reviewer
	budget   int

	mu       sync.Mutex
	attempts map[string]int
}

// NewGate creates a Gate with the given revision budget. A budget of
// zero or less uses DefaultRevisionBudget.
func NewGate(reviewer *Reviewer, budget int) *Gate {
	if budget <= 0 {
		budget = DefaultRevisionBudget
	}
	return &Gate{
		reviewer: reviewer,
		budget:   budget,
		attempts: make(map[string]int),
	}
}

// Attempts returns how many revision rounds the task has used.
func (g *Gate) Attempts(taskID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts[taskID]
}

// Decide runs the consensus audit and applies the revision budget.
// A revision verdict past the budget becomes a rejection with
// Escalate set, so a looping proposal surfaces to a human instead of
// churning forever.
func (g *Gate) Decide(ctx context.Context, p *models.Proposal) (*models.ConsensusDecision, error) {
	decision, err := g.reviewer.Review(ctx, p)
	if err != nil {
		return nil, err
	}

	if decision.Verdict == models.VerdictRequestRevision {
		g.mu.Lock()
		g.attempts[p.TaskID]++
		used := g.attempts[p.TaskID]
		g.mu.Unlock()
		if used > g.budget {
			return &models.ConsensusDecision{
				Verdict:   models.VerdictReject,
				Rationale: fmt.Sprintf("revision budget exhausted after %d rounds: %s", g.budget, decision.Rationale),
				Escalate:  true,
			}, nil
		}
	}
	return decision, nil
}
