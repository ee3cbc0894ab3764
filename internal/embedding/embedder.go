// Package embedding turns chunk and query text into fixed-size vectors. A
// Client wraps a Provider with the task prefixes the model expects, a
// circuit breaker and retries.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aerospike-examples/hybrid-search/pkg/config"
	apperrors "github.com/aerospike-examples/hybrid-search/pkg/errors"
	"github.com/aerospike-examples/hybrid-search/pkg/metrics"
	"github.com/aerospike-examples/hybrid-search/pkg/resilience"
)

// Provider produces raw embeddings for a batch of texts.
type Provider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder is what the indexer and the query path depend on.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// DocumentText renders the text embedded for one chunk.
func DocumentText(title, description, content string) string {
	return fmt.Sprintf("TITLE: %s, DESCRIPTION: %s, CONTENT: %s", title, description, content)
}

// Client applies task prefixes and fault tolerance around a Provider.
type Client struct {
	provider       Provider
	documentPrefix string
	queryPrefix    string
	dimensions     int
	breaker        *resilience.CircuitBreaker
	retry          resilience.RetryConfig
	logger         *slog.Logger
}

var _ Embedder = (*Client)(nil)

// NewClient wraps provider. m may be nil.
func NewClient(provider Provider, cfg config.EmbeddingConfig, dimensions int, m *metrics.Metrics) *Client {
	cbCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     cfg.ResetTimeout,
	}
	if m != nil {
		cbCfg.OnStateChange = func(name string, state resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
		}
	}
	return &Client{
		provider:       provider,
		documentPrefix: cfg.DocumentPrefix,
		queryPrefix:    cfg.QueryPrefix,
		dimensions:     dimensions,
		breaker:        resilience.NewCircuitBreaker("embedding", cbCfg),
		retry: resilience.RetryConfig{
			MaxAttempts: cfg.MaxAttempts,
			Retryable: func(err error) bool {
				return !errors.Is(err, resilience.ErrCircuitOpen) && !errors.Is(err, context.Canceled)
			},
		},
		logger: slog.Default().With("component", "embedding"),
	}
}

// New builds the Client for the configured provider.
func New(cfg config.EmbeddingConfig, dimensions int, m *metrics.Metrics) (*Client, error) {
	var provider Provider
	switch cfg.Provider {
	case "openai":
		p, err := NewOpenAIProvider(cfg)
		if err != nil {
			return nil, err
		}
		provider = p
	case "hash":
		provider = NewHashProvider(dimensions)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
	return NewClient(provider, cfg, dimensions, m), nil
}

func (c *Client) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, c.documentPrefix+text)
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, c.queryPrefix+text)
}

func (c *Client) embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := resilience.Retry(ctx, "embed", c.retry, func() error {
		return c.breaker.Execute(func() error {
			out, err := c.provider.EmbedTexts(ctx, []string{text})
			if err != nil {
				return err
			}
			if len(out) == 0 {
				return errors.New("provider returned no embedding")
			}
			if c.dimensions > 0 && len(out[0]) != c.dimensions {
				return fmt.Errorf("provider returned %d dimensions, want %d", len(out[0]), c.dimensions)
			}
			vec = out[0]
			return nil
		})
	})
	if err != nil {
		c.logger.Error("embedding failed", "length", len(text), "error", err)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrEmbedding, err)
	}
	return vec, nil
}
