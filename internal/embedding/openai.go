package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aerospike-examples/hybrid-search/pkg/config"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIProvider calls an OpenAI-compatible embeddings endpoint such as a
// local Ollama server.
type OpenAIProvider struct {
	embedder embeddings.Embedder
	logger   *slog.Logger
}

func NewOpenAIProvider(cfg config.EmbeddingConfig) (*OpenAIProvider, error) {
	token := cfg.Token
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return &OpenAIProvider{
		embedder: embedder,
		logger:   slog.Default().With("component", "openai-embedder", "model", cfg.Model),
	}, nil
}

func (p *OpenAIProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	p.logger.Debug("generating embeddings", "count", len(texts))
	return p.embedder.EmbedDocuments(ctx, texts)
}
