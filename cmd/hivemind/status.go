package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hiveworks/hivemind/internal/config"
	"github.com/hiveworks/hivemind/internal/store"
	"github.com/hiveworks/hivemind/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show proposal store status",
	Long:  "Summarize the proposal store: counts per review state and any proposals awaiting human attention.",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	counts, err := st.CountByState()
	if err != nil {
		return err
	}

	fmt.Printf("Proposal store: %s\n\n", st.Path())
	states := []models.ReviewState{
		models.ReviewPending,
		models.ReviewRevising,
		models.ReviewApproved,
		models.ReviewRejected,
		models.ReviewCommitted,
		models.ReviewDiscarded,
	}
	total := 0
	for _, s := range states {
		n := counts[s]
		total += n
		line := fmt.Sprintf("  %-10s %d", s, n)
		switch s {
		case models.ReviewCommitted:
			color.Green(line)
		case models.ReviewDiscarded:
			color.Yellow(line)
		default:
			fmt.Println(line)
		}
	}
	fmt.Printf("\n  %-10s %d\n", "total", total)
	return nil
}
