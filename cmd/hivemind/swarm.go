package main

import (
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/hiveworks/hivemind/internal/aggregate"
	"github.com/hiveworks/hivemind/internal/config"
	"github.com/hiveworks/hivemind/internal/orchestrator"
	"github.com/hiveworks/hivemind/internal/reasoning"
	"github.com/hiveworks/hivemind/internal/review"
	"github.com/hiveworks/hivemind/internal/skill"
	"github.com/hiveworks/hivemind/internal/store"
	"github.com/hiveworks/hivemind/pkg/models"
)

// buildSwarm assembles a Swarm from configuration. The returned
// cleanup closes the store and debug log.
func buildSwarm(cfg *config.Config) (*orchestrator.Swarm, *store.Store, func(), error) {
	profiles, err := config.LoadRoleProfiles(config.DefaultRoleProfilesPath())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("role profiles: %w", err)
	}
	profiles.ApplyTimeouts(&cfg.Timeouts)

	client, err := newReasoningClient(cfg, profiles)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reasoning client: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get working directory: %w", err)
	}
	registry := skill.Builtin(cwd)

	storePath := cfg.Store.Path
	if storePath == "" {
		storePath = store.DefaultPath()
	}
	st, err := store.Open(storePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open proposal store: %w", err)
	}

	logger := orchestrator.NewDebugLoggerForDir(cwd)

	mode := aggregate.Strict
	if cfg.Aggregation.Mode == "best_effort" {
		mode = aggregate.BestEffort
	}

	gate := review.NewGate(review.NewReviewer(client, nil), cfg.Review.RevisionBudget)

	swarm := orchestrator.New(client, registry,
		orchestrator.WithCapacity(cfg.Swarm.Capacity),
		orchestrator.WithDispatchTimeout(cfg.Swarm.DispatchTimeout),
		orchestrator.WithGracePeriod(cfg.Swarm.GracePeriod),
		orchestrator.WithTimeouts(cfg.Timeouts),
		orchestrator.WithMaxDelegationDepth(cfg.Swarm.MaxDelegationDepth),
		orchestrator.WithMaxIterations(cfg.Swarm.MaxIterations),
		orchestrator.WithAggregationMode(mode),
		orchestrator.WithReviewGate(gate),
		orchestrator.WithStore(st),
		orchestrator.WithLogger(logger),
	)

	cleanup := func() {
		st.Close()
		logger.Close()
	}
	return swarm, st, cleanup, nil
}

func newReasoningClient(cfg *config.Config, profiles config.RoleProfiles) (*reasoning.AnthropicClient, error) {
	overrides := make(map[models.Role]reasoning.RoleOverride, len(profiles))
	for name, rp := range profiles {
		if rp.SystemPrompt == "" && rp.Model == "" {
			continue
		}
		overrides[models.Role(name)] = reasoning.RoleOverride{
			SystemPrompt: rp.SystemPrompt,
			Model:        anthropic.Model(rp.Model),
		}
	}

	return reasoning.NewAnthropicClient(reasoning.AnthropicConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		MaxTokens:     int64(cfg.Anthropic.MaxTokens),
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
		Overrides:     overrides,
	})
}
