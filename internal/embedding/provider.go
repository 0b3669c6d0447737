package embedding

import (
	"context"
	"time"

	apperrors "github.com/fedsearch/fedsearch/internal/errors"
)

// Provider generates text embeddings. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector width this provider produces.
	Dimensions() int

	// Enabled reports whether the provider can serve requests.
	Enabled() bool

	// Name identifies the provider for logging.
	Name() string
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider   string // openai, local, disabled
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
}

// NewProvider builds the configured provider. "disabled" (or an empty name)
// yields a provider whose Enabled() is false, which callers treat as a
// signal to fall back to keyword scoring.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "disabled":
		return Disabled{}, nil
	case "openai", "remote":
		return NewOpenAIProvider(cfg), nil
	case "local":
		return NewLocalProvider(cfg.Dimensions), nil
	default:
		return nil, apperrors.Newf(apperrors.ErrTypeConfig,
			"unsupported embedding provider %q (supported: openai, local, disabled)", cfg.Provider)
	}
}

// Disabled is the no-op provider used when embeddings are turned off.
type Disabled struct{}

func (Disabled) Embed(context.Context, string) ([]float32, error) {
	return nil, apperrors.New(apperrors.ErrTypeUnavailable, "embedding provider is disabled")
}

func (Disabled) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, apperrors.New(apperrors.ErrTypeUnavailable, "embedding provider is disabled")
}

func (Disabled) Dimensions() int { return 0 }
func (Disabled) Enabled() bool   { return false }
func (Disabled) Name() string    { return "disabled" }
