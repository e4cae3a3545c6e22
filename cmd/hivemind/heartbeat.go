package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hiveworks/hivemind/internal/autonomy"
	"github.com/hiveworks/hivemind/internal/config"
)

var heartbeatOnce bool

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Run the autonomy heartbeat",
	Long: `Periodically review committed work and propose follow-up goals.

Each tick the engine inspects recent committed proposals and either
submits a new autonomous goal or declines. Proposals produced by
autonomous goals still pass through consensus review before commit.
Runs until interrupted.`,
	RunE: runHeartbeat,
}

func init() {
	heartbeatCmd.Flags().BoolVar(&heartbeatOnce, "once", false, "Evaluate a single tick and exit")
}

func runHeartbeat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.Autonomy.Enabled && !heartbeatOnce {
		return fmt.Errorf("autonomy is disabled; set autonomy.enabled in config or use --once")
	}

	swarm, st, cleanup, err := buildSwarm(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	client, err := newReasoningClient(cfg, nil)
	if err != nil {
		return err
	}

	interval := cfg.Autonomy.Interval
	if interval <= 0 {
		interval = autonomy.DefaultInterval
	}
	engine := autonomy.New(client, swarm, st, autonomy.WithInterval(interval))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if heartbeatOnce {
		handle, err := engine.EvaluateAndPropose(ctx)
		if err != nil {
			return err
		}
		if handle == nil {
			fmt.Println("Nothing to propose.")
			return nil
		}
		fmt.Printf("Submitted autonomous goal %s\n", handle.ID())
		_, status, err := handle.Wait(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Goal finished: %s\n", status)
		return nil
	}

	fmt.Printf("Heartbeat running every %s. Ctrl-C to stop.\n", interval.Round(time.Second))
	runErr := engine.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := swarm.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
