// Package vectorstore stores and searches chunk embeddings. Two backends are
// supported: embedded chromem-go for single-node deployments and external
// Qdrant over gRPC for anything bigger. Each project gets its own collection.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid vectorstore configuration")

	// ErrEmptyChunks indicates an upsert with no chunks.
	ErrEmptyChunks = errors.New("no chunks to store")

	// ErrInvalidCollectionName indicates a collection name that failed validation.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunk is one embedded unit of source content.
type Chunk struct {
	// ID uniquely identifies the chunk.
	ID string `json:"id"`

	// Content is the chunk text.
	Content string `json:"content"`

	// Metadata carries filterable fields: project_id, repository_id,
	// file path, language, chunk index.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchResult is one similarity search hit, highest score first.
type SearchResult struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Store is the vector storage interface shared by both backends.
type Store interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, name string, vectorSize int) error

	// DeleteCollection removes a collection and all its chunks.
	DeleteCollection(ctx context.Context, name string) error

	// CollectionExists reports whether the collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// Count returns the number of chunks in a collection.
	Count(ctx context.Context, name string) (int, error)

	// Upsert embeds and stores chunks in the collection.
	Upsert(ctx context.Context, collection string, chunks []Chunk) error

	// Search returns up to k chunks similar to the query.
	Search(ctx context.Context, collection, query string, k int) ([]SearchResult, error)

	// Close releases backend resources.
	Close() error
}

var collectionNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\-]{0,62}$`)

// ValidateCollectionName rejects names that either backend would choke on.
func ValidateCollectionName(name string) error {
	if !collectionNameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// CollectionForProject returns the canonical collection name for a project.
func CollectionForProject(projectID string) string {
	return "proj_" + projectID
}
