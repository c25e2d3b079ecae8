// Package embeddings generates vector embeddings for chunked source content.
// It speaks the OpenAI-compatible embed API through langchaingo, which
// covers both hosted providers and local TEI servers.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lcembed "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid embeddings configuration")
)

// Config holds configuration for the embedding service.
type Config struct {
	// BaseURL is the OpenAI-compatible API endpoint, e.g.
	// http://localhost:8080/v1 for TEI or https://api.openai.com/v1.
	BaseURL string

	// Model is the embedding model name.
	Model string

	// APIKey authenticates against hosted providers. Optional for TEI.
	APIKey string
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	return nil
}

// Service generates embeddings through a langchaingo embedder.
type Service struct {
	embedder lcembed.Embedder
	config   Config
	metrics  *Metrics
}

// NewService creates an embedding service for the configured endpoint.
func NewService(config Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	apiKey := config.APIKey
	if apiKey == "" {
		// langchaingo insists on a token even for unauthenticated TEI.
		apiKey = "unused"
	}

	llm, err := openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithModel(config.Model),
		openai.WithEmbeddingModel(config.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating embeddings client: %w", err)
	}

	embedder, err := lcembed.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &Service{
		embedder: embedder,
		config:   config,
		metrics:  NewMetrics(),
	}, nil
}

// Dimension returns the vector width for the configured model, guessed from
// the model name. Unknown models fall back to 384.
func (s *Service) Dimension() int {
	model := strings.ToLower(s.config.Model)
	switch {
	case strings.Contains(model, "3-large"):
		return 3072
	case strings.Contains(model, "3-small"), strings.Contains(model, "ada-002"):
		return 1536
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "base"):
		return 768
	default:
		return 384
	}
}

// EmbedDocuments generates one vector per input text.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var embErr error
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed_documents", time.Since(start), len(texts), embErr)
	}()

	if len(texts) == 0 {
		embErr = ErrEmptyInput
		return nil, embErr
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		embErr = fmt.Errorf("embedding documents: %w", err)
		return nil, embErr
	}
	return vectors, nil
}

// EmbedQuery generates a vector for a single query string.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var embErr error
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed_query", time.Since(start), 1, embErr)
	}()

	if text == "" {
		embErr = ErrEmptyInput
		return nil, embErr
	}

	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		embErr = fmt.Errorf("embedding query: %w", err)
		return nil, embErr
	}
	return vector, nil
}
