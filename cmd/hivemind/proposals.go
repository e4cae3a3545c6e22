package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hiveworks/hivemind/internal/config"
	"github.com/hiveworks/hivemind/internal/store"
	"github.com/hiveworks/hivemind/pkg/models"
)

var (
	proposalsGoal    string
	proposalsHistory bool
)

var proposalsCmd = &cobra.Command{
	Use:   "proposals [proposal-id]",
	Short: "List committed proposals",
	Long: `List committed proposals, or inspect a single proposal.

With a proposal ID argument the full content, rationale, and review
trail are shown. Use --goal to list every proposal for a goal
regardless of state.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProposals,
}

func init() {
	proposalsCmd.Flags().StringVar(&proposalsGoal, "goal", "", "List all proposals for the given goal ID")
	proposalsCmd.Flags().BoolVar(&proposalsHistory, "history", false, "Show the review trail when inspecting a proposal")
}

func runProposals(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	path := cfg.Store.Path
	if path == "" {
		path = store.DefaultPath()
	}
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(args) == 1 {
		return showProposal(st, args[0])
	}

	var proposals []*models.Proposal
	if proposalsGoal != "" {
		proposals, err = st.ListByGoal(proposalsGoal)
	} else {
		proposals, err = st.Committed()
	}
	if err != nil {
		return err
	}
	if len(proposals) == 0 {
		fmt.Println("No proposals found.")
		return nil
	}

	for _, p := range proposals {
		printProposalLine(p)
	}
	return nil
}

func showProposal(st *store.Store, id string) error {
	p, err := st.Get(id)
	if err != nil {
		return err
	}

	fmt.Printf("ID:        %s\n", p.ID)
	fmt.Printf("Goal:      %s\n", p.GoalID)
	fmt.Printf("Task:      %s\n", p.TaskID)
	fmt.Printf("State:     %s\n", p.ReviewState)
	fmt.Printf("Safety:    %s\n", p.Safety)
	fmt.Printf("Created:   %s\n", p.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("\n%s\n", p.Content)
	if p.Rationale != "" {
		fmt.Printf("\nRationale: %s\n", p.Rationale)
	}

	if !proposalsHistory {
		return nil
	}
	events, err := st.History(id)
	if err != nil {
		return err
	}
	fmt.Println("\nReview trail:")
	for _, ev := range events {
		fmt.Printf("  %s  %s → %s  %s\n",
			ev.RecordedAt.Format("2006-01-02 15:04:05"),
			ev.FromState, ev.ToState, ev.Rationale)
	}
	return nil
}

func printProposalLine(p *models.Proposal) {
	summary := p.Content
	if len(summary) > 60 {
		summary = summary[:57] + "..."
	}
	state := string(p.ReviewState)
	switch p.ReviewState {
	case models.ReviewCommitted:
		state = color.GreenString(state)
	case models.ReviewRejected, models.ReviewDiscarded:
		state = color.YellowString(state)
	}
	fmt.Printf("%s  %-10s  %s\n", p.ID, state, summary)
}
