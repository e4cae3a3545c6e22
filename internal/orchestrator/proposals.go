package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hiveworks/hivemind/pkg/models"
)

// handleProposal routes a completed task's proposal. User-origin goals
// commit directly; autonomous goals pass through the consensus gate,
// with bounded revision rounds before rejection.
func (s *Swarm) handleProposal(ctx context.Context, goal *models.Goal, task *models.AtomicTask, p *models.Proposal) {
	if err := s.appendProposal(p); err != nil {
		s.logger.Log("[proposals] append %s failed: %v", p.ID, err)
		return
	}

	if goal.Origin != models.OriginAutonomous {
		s.commitProposal(goal.ID, p)
		return
	}

	for {
		decision, err := s.gate.Decide(ctx, p)
		if err != nil {
			s.discardProposal(goal.ID, p, fmt.Sprintf("review failed: %v", err), false)
			return
		}

		switch decision.Verdict {
		case models.VerdictApprove:
			s.commitProposal(goal.ID, p)
			return

		case models.VerdictReject:
			s.discardProposal(goal.ID, p, decision.Rationale, decision.Escalate)
			return

		case models.VerdictRequestRevision:
			s.transitionProposal(p, models.ReviewRevising, decision.Rationale)
			revised, err := s.revise(ctx, task, p, decision.Rationale)
			if err != nil {
				s.discardProposal(goal.ID, p, fmt.Sprintf("revision failed: %v", err), false)
				return
			}
			s.transitionProposal(p, models.ReviewDiscarded, "superseded by revision")
			if err := s.appendProposal(revised); err != nil {
				s.logger.Log("[proposals] append revision %s failed: %v", revised.ID, err)
				return
			}
			p = revised
		}
	}
}

// revise asks the task's role to rework the proposal with the
// reviewer's feedback attached. The revised content becomes a fresh
// proposal row; the original stays in the store untouched.
func (s *Swarm) revise(ctx context.Context, task *models.AtomicTask, p *models.Proposal, feedback string) (*models.Proposal, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "TASK:\n%s\n\n", task.Description)
	fmt.Fprintf(&b, "PREVIOUS ANSWER:\n%s\n\n", p.Content)
	fmt.Fprintf(&b, "REVIEWER FEEDBACK:\n%s\n\n", feedback)
	b.WriteString("Rework the answer to address the feedback.\nEmit:\nFINAL: <revised result>\nRATIONALE: <why the revision addresses the feedback>\n")

	output, err := s.client.Complete(ctx, task.Role, b.String())
	if err != nil {
		return nil, fmt.Errorf("revise proposal %s: %w", p.ID, err)
	}

	final, rationale := splitFinal(output)
	if final == "" {
		return nil, fmt.Errorf("revise proposal %s: no final answer in revision", p.ID)
	}
	return &models.Proposal{
		ID:          uuid.New().String(),
		TaskID:      p.TaskID,
		GoalID:      p.GoalID,
		Content:     final,
		Rationale:   rationale,
		Safety:      models.SafetyUnknown,
		ReviewState: models.ReviewPending,
		CreatedAt:   time.Now(),
	}, nil
}

// splitFinal extracts FINAL: and RATIONALE: sections from a revision
// response. Plain text with no markers is taken whole as the answer.
func splitFinal(output string) (final, rationale string) {
	var finalLines, rationaleLines []string
	section := ""
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "FINAL:"):
			section = "final"
			if rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "FINAL:")); rest != "" {
				finalLines = append(finalLines, rest)
			}
		case strings.HasPrefix(trimmed, "RATIONALE:"):
			section = "rationale"
			if rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "RATIONALE:")); rest != "" {
				rationaleLines = append(rationaleLines, rest)
			}
		case section == "final" && trimmed != "":
			finalLines = append(finalLines, trimmed)
		case section == "rationale" && trimmed != "":
			rationaleLines = append(rationaleLines, trimmed)
		}
	}
	final = strings.Join(finalLines, "\n")
	rationale = strings.Join(rationaleLines, "\n")
	if final == "" && section == "" {
		final = strings.TrimSpace(output)
		rationale = "revision provided without markers"
	}
	return final, rationale
}

func (s *Swarm) appendProposal(p *models.Proposal) error {
	if s.store == nil {
		return nil
	}
	return s.store.Append(p)
}

func (s *Swarm) transitionProposal(p *models.Proposal, state models.ReviewState, rationale string) {
	p.ReviewState = state
	if s.store == nil {
		return
	}
	if err := s.store.Transition(p.ID, state, rationale); err != nil {
		s.logger.Log("[proposals] transition %s to %s failed: %v", p.ID, state, err)
	}
}

func (s *Swarm) commitProposal(goalID string, p *models.Proposal) {
	s.transitionProposal(p, models.ReviewApproved, "approved")
	p.ReviewState = models.ReviewCommitted
	if s.store != nil {
		if err := s.store.Commit(p.ID); err != nil {
			s.logger.Log("[proposals] commit %s failed: %v", p.ID, err)
			return
		}
	}
	s.emit(Event{Type: EventProposalCommitted, GoalID: goalID,
		TaskID: p.TaskID, Slot: -1, Message: p.ID})
}

func (s *Swarm) discardProposal(goalID string, p *models.Proposal, reason string, escalate bool) {
	p.ReviewState = models.ReviewDiscarded
	if s.store != nil {
		if err := s.store.Discard(p.ID, reason); err != nil {
			s.logger.Log("[proposals] discard %s failed: %v", p.ID, err)
		}
	}
	s.emit(Event{Type: EventProposalDiscarded, GoalID: goalID,
		TaskID: p.TaskID, Slot: -1, Message: reason})
	if escalate {
		s.emit(Event{Type: EventProposalEscalated, GoalID: goalID,
			TaskID: p.TaskID, Slot: -1, Message: reason})
	}
}
