package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	// DefaultModel is the Claude model used for code reviews.
	DefaultModel = "claude-sonnet-4-20250514"

	// DefaultMaxOutputTokens caps the length of a single file review.
	DefaultMaxOutputTokens = 1024

	// DefaultMaxDiffBytes is the per-file diff size above which the diff
	// is truncated before prompting (see TruncateDiff).
	DefaultMaxDiffBytes = 64 * 1024

	// GenerateTimeout is the maximum time to wait for a Claude response.
	GenerateTimeout = 2 * time.Minute
)

// GenerationError indicates review generation failed for a single file.
// It is non-fatal to the pipeline run: sibling files proceed and the
// failure is surfaced in the aggregated comment body.
type GenerationError struct {
	Filename string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("review generation failed for %s: %v", e.Filename, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// GenerateInput carries one file's diff plus the per-repository prompt
// configuration into a generation call.
type GenerateInput struct {
	Filename        string
	Diff            string
	Instructions    string // repository-specific tone/strictness guidance
	MaxOutputTokens int    // 0 means DefaultMaxOutputTokens
}

// ClaudeGenerator generates file reviews using the Anthropic API.
// Safe for concurrent use: all mutable state is set before serving.
type ClaudeGenerator struct {
	apiKey       string
	model        string
	maxDiffBytes int
	timeout      time.Duration
	logger       *slog.Logger
}

// NewClaudeGenerator creates a generator with default model and limits.
func NewClaudeGenerator(apiKey string, logger *slog.Logger) *ClaudeGenerator {
	return &ClaudeGenerator{
		apiKey:       apiKey,
		model:        DefaultModel,
		maxDiffBytes: DefaultMaxDiffBytes,
		timeout:      GenerateTimeout,
		logger:       logger,
	}
}

// SetModel overrides the default Claude model used for reviews.
func (g *ClaudeGenerator) SetModel(model string) {
	g.model = model
}

// SetMaxDiffBytes overrides the diff truncation threshold.
func (g *ClaudeGenerator) SetMaxDiffBytes(n int) {
	g.maxDiffBytes = n
}

// SetTimeout overrides the per-call timeout.
func (g *ClaudeGenerator) SetTimeout(d time.Duration) {
	g.timeout = d
}

// Review generates the review text for one file's diff. A single call,
// no retry; any failure (including an empty completion) returns a
// *GenerationError.
func (g *ClaudeGenerator) Review(ctx context.Context, in *GenerateInput) (string, error) {
	diff, truncated := TruncateDiff(in.Diff, g.maxDiffBytes)
	if truncated {
		g.logger.Info("truncated diff before review",
			"file", in.Filename,
			"original_size", len(in.Diff),
			"max_bytes", g.maxDiffBytes,
		)
	}

	maxTokens := in.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxOutputTokens
	}

	client := anthropic.NewClient(option.WithAPIKey(g.apiKey))

	timeoutCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	message, err := client.Messages.New(timeoutCtx, anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(g.model)),
		MaxTokens: anthropic.F(int64(maxTokens)),
		System: anthropic.F([]anthropic.TextBlockParam{
			anthropic.NewTextBlock(GetSystemPrompt(in.Instructions)),
		}),
		Messages: anthropic.F([]anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(in.Filename, diff))),
		}),
	})
	if err != nil {
		return "", &GenerationError{Filename: in.Filename, Err: err}
	}

	g.logger.Info("Claude API usage",
		"file", in.Filename,
		"input_tokens", message.Usage.InputTokens,
		"output_tokens", message.Usage.OutputTokens,
	)

	for _, block := range message.Content {
		if block.Type == anthropic.ContentBlockTypeText && strings.TrimSpace(block.Text) != "" {
			return block.Text, nil
		}
	}

	return "", &GenerationError{Filename: in.Filename, Err: errors.New("no text content in completion")}
}
