package llm

import (
	"context"
	"time"

	apperrors "github.com/fedsearch/fedsearch/internal/errors"
)

// Service produces text completions. The service is optional: when it is
// absent or unreachable, callers degrade to rule-based behavior instead of
// failing.
type Service interface {
	// Complete returns the model's completion for the prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// Available reports whether the backend is reachable right now.
	Available(ctx context.Context) bool

	// Name identifies the backend for logging.
	Name() string
}

// Config parameterizes the completion client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// NewService returns the OpenAI-compatible client, or the disabled service
// when no base URL is configured.
func NewService(cfg Config) Service {
	if cfg.BaseURL == "" {
		return Disabled{}
	}

	return NewOpenAIClient(cfg)
}

// Disabled is the no-op service used when no model endpoint is configured.
type Disabled struct{}

func (Disabled) Complete(context.Context, string) (string, error) {
	return "", apperrors.New(apperrors.ErrTypeUnavailable, "no language model configured")
}

func (Disabled) Available(context.Context) bool { return false }
func (Disabled) Name() string                   { return "disabled" }
