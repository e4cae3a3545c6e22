package reasoning

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/hiveworks/hivemind/pkg/models"
)

// AnthropicConfig contains configuration for the Anthropic-backed client.
type AnthropicConfig struct {
	// Model is the Claude model to use.
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// MaxTokens caps each completion. Defaults to 4096.
	MaxTokens int64
	// UseAWSBedrock routes requests through AWS Bedrock instead of the
	// direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock.
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
	// Overrides customizes the system prompt or model per role.
	Overrides map[models.Role]RoleOverride
}

// RoleOverride replaces the built-in system prompt or model for one
// role. Empty fields keep the defaults.
type RoleOverride struct {
	SystemPrompt string
	Model        anthropic.Model
}

// AnthropicClient implements Client against the Anthropic Messages API
// with per-role system prompts and token tracking.
type AnthropicClient struct {
	inner     anthropic.Client
	model     anthropic.Model
	maxTokens int64
	overrides map[models.Role]RoleOverride
	tracker   *TokenTracker
}

// NewAnthropicClient creates a reasoning client backed by the
// Anthropic API or AWS Bedrock.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return &AnthropicClient{
		inner:     anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		overrides: cfg.Overrides,
		tracker:   NewTokenTracker(),
	}, nil
}

// Complete requests a completion using the role's system prompt.
// SDK errors are mapped onto the package's typed failures so callers
// can branch without knowing the backend.
func (c *AnthropicClient) Complete(ctx context.Context, role models.Role, prompt string) (string, error) {
	model, system := c.roleParams(role)

	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", classifyErr(err)
	}

	c.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var out string
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			out += text.Text
		}
	}
	if out == "" {
		return "", fmt.Errorf("%w: empty completion", ErrInvalid)
	}
	return out, nil
}

// roleParams resolves the model and system prompt for a role, applying
// any configured override.
func (c *AnthropicClient) roleParams(role models.Role) (anthropic.Model, string) {
	model := c.model
	system := SystemPrompt(role)
	if o, ok := c.overrides[role]; ok {
		if o.Model != "" {
			model = o.Model
		}
		if o.SystemPrompt != "" {
			system = o.SystemPrompt
		}
	}
	return model, system
}

// Tracker returns the token tracker for this client.
func (c *AnthropicClient) Tracker() *TokenTracker {
	return c.tracker
}

// classifyErr maps SDK and context errors onto the typed failure set.
func classifyErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 529:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case 408, 504:
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		case 400, 401, 403, 404, 422:
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}

// TokenTracker tracks token usage across API calls.
type TokenTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
}

// NewTokenTracker creates a new token tracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{}
}

// Add records token usage from an API call.
func (t *TokenTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Total returns the total input and output tokens tracked.
func (t *TokenTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns the number of API calls made.
func (t *TokenTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
