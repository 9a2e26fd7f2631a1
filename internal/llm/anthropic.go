package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

// DefaultModel is used when no model is configured.
const DefaultModel = anthropic.ModelClaudeSonnet4_20250514

const (
	defaultMaxTokens = 4096
	defaultTimeout   = 2 * time.Minute
)

// ErrNoAPIKey is returned when the direct API is selected without a key.
var ErrNoAPIKey = errors.New("ANTHROPIC_API_KEY environment variable is not set")

// AnthropicGateway calls Claude through the Anthropic SDK, either directly
// or through AWS Bedrock.
type AnthropicGateway struct {
	inner     anthropic.Client
	model     anthropic.Model
	maxTokens int64
	timeout   time.Duration
	tracker   *TokenTracker
}

// AnthropicConfig contains configuration for creating an AnthropicGateway.
type AnthropicConfig struct {
	// Model is the Claude model to use. Defaults to DefaultModel.
	Model string
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY env var.
	APIKey string
	// BaseURL overrides the API endpoint (proxies, tests).
	BaseURL string
	// MaxTokens caps the output of a single call.
	MaxTokens int64
	// Timeout is the deadline for a single call.
	Timeout time.Duration
	// UseAWSBedrock indicates whether to use AWS Bedrock instead of direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
}

// NewAnthropicGateway creates a gateway backed by the Anthropic SDK.
func NewAnthropicGateway(cfg AnthropicConfig) (*AnthropicGateway, error) {
	// Retries belong to the agents; the SDK must fail fast.
	opts := []option.RequestOption{option.WithMaxRetries(0)}

	if cfg.UseAWSBedrock {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, ErrNoAPIKey
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	if cfg.UseAWSBedrock {
		model = bedrockModelID(model)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &AnthropicGateway{
		inner:     anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
		tracker:   NewTokenTracker(),
	}, nil
}

// bedrockProfiles maps API model ids to the cross-region inference profile
// ids Bedrock serves them under.
var bedrockProfiles = map[anthropic.Model]anthropic.Model{
	anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
	anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
	anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
	anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
	anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
}

// bedrockModelID returns the Bedrock id for model. Unknown ids, including
// ones already in profile form, are used as given.
func bedrockModelID(model anthropic.Model) anthropic.Model {
	if id, ok := bedrockProfiles[model]; ok {
		return id
	}
	return model
}

// Model returns the configured model name.
func (g *AnthropicGateway) Model() string {
	return string(g.model)
}

// Timeout returns the per-call deadline.
func (g *AnthropicGateway) Timeout() time.Duration {
	return g.timeout
}

// Tracker returns the token tracker shared by every call through this gateway.
func (g *AnthropicGateway) Tracker() *TokenTracker {
	return g.tracker
}

// Generate sends one user message (with an optional system prompt) and
// returns the concatenated text of the reply.
func (g *AnthropicGateway) Generate(ctx context.Context, systemPrompt, userMessage string) (*Generation, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := g.inner.Messages.New(callCtx, params)
	if err != nil {
		// Only our own deadline counts as a timeout; a cancelled parent is a plain failure.
		if ctx.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, g.timeout)
		}
		return nil, &InvocationError{Err: err}
	}

	g.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var b strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(variant.Text)
		}
	}
	if b.Len() == 0 {
		return nil, &InvocationError{Err: fmt.Errorf("empty response (stop reason %q)", resp.StopReason)}
	}

	return &Generation{
		Content:    b.String(),
		TokenCount: resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}
