package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hiveworks/hivemind/internal/config"
	"github.com/hiveworks/hivemind/internal/orchestrator"
	"github.com/hiveworks/hivemind/pkg/models"
)

var runQuiet bool

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Plan and execute a goal",
	Long: `Decompose a goal into atomic tasks and execute them as a swarm.

Progress events stream to stdout until the goal reaches a terminal
status; the aggregated result is printed last. Ctrl-C cancels the goal
and waits for running workers to stop at their next checkpoint.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Suppress progress events, print only the result")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	swarm, _, cleanup, err := buildSwarm(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	goalText := strings.Join(args, " ")
	handle, err := swarm.Submit(ctx, goalText, models.OriginUser, models.PriorityNormal)
	if err != nil {
		return err
	}

	if !runQuiet {
		go printEvents(swarm.Events())
	}

	go func() {
		<-ctx.Done()
		swarm.Cancel(handle.ID())
	}()

	result, status, err := handle.Wait(context.Background())
	if err != nil {
		return err
	}

	printOutcome(status)
	if result != "" {
		fmt.Println(result)
	}
	if status == models.GoalStatusFailed {
		return fmt.Errorf("goal failed")
	}
	return nil
}

func printEvents(events <-chan orchestrator.Event) {
	for ev := range events {
		switch ev.Type {
		case orchestrator.EventTaskStarted:
			color.Cyan("▸ %s [%s] started on slot %d", ev.TaskID, ev.Role, ev.Slot)
		case orchestrator.EventTaskCompleted:
			color.Green("✓ %s completed", ev.TaskID)
		case orchestrator.EventTaskFailed:
			color.Red("✗ %s failed: %v", ev.TaskID, ev.Err)
		case orchestrator.EventTaskTimedOut:
			color.Red("✗ %s timed out: %s", ev.TaskID, ev.Message)
		case orchestrator.EventTaskBlocked:
			color.Yellow("⊘ %s blocked: %s", ev.TaskID, ev.Message)
		case orchestrator.EventTaskCancelled:
			color.Yellow("⊘ %s cancelled", ev.TaskID)
		case orchestrator.EventDelegationSpawned:
			color.Cyan("↳ %s delegated: %s", ev.TaskID, ev.Message)
		case orchestrator.EventProposalCommitted:
			color.Green("● proposal committed for task %s", ev.TaskID)
		case orchestrator.EventProposalDiscarded:
			color.Yellow("○ proposal discarded for task %s: %s", ev.TaskID, ev.Message)
		case orchestrator.EventProposalEscalated:
			color.Red("! proposal needs human attention: %s", ev.Message)
		}
	}
}

func printOutcome(status models.GoalStatus) {
	switch status {
	case models.GoalStatusSucceeded:
		color.Green("\nGoal succeeded.")
	case models.GoalStatusPartial:
		color.Yellow("\nGoal partially completed.")
	case models.GoalStatusCancelled:
		color.Yellow("\nGoal cancelled.")
	default:
		color.Red("\nGoal failed.")
	}
}
