package ingest

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/Anansitrading/kijko/internal/project"
	"github.com/Anansitrading/kijko/internal/vectorstore"
)

// ChunkOptions controls how parsed files are split.
type ChunkOptions struct {
	// Strategy is the project's chunking strategy.
	Strategy project.ChunkingStrategy

	// Size is the target chunk length in characters.
	Size int

	// Overlap is the shared tail between adjacent chunks.
	Overlap int
}

// chunkFile splits one file into store-ready chunks. Fixed strategy cuts at
// exact boundaries; recursive and semantic both use the recursive character
// splitter, semantic with separators tuned for code.
func chunkFile(file SourceFile, projectID string, opts ChunkOptions) ([]vectorstore.Chunk, error) {
	if opts.Size <= 0 {
		opts.Size = 1500
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.Size {
		opts.Overlap = 0
	}

	var pieces []string
	var err error
	switch opts.Strategy {
	case project.ChunkingFixed:
		pieces = fixedSplit(file.Content, opts.Size, opts.Overlap)
	case project.ChunkingSemantic:
		splitter := textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(opts.Size),
			textsplitter.WithChunkOverlap(opts.Overlap),
			textsplitter.WithSeparators([]string{"\n\nfunc ", "\n\nclass ", "\n\ndef ", "\n\n", "\n", " ", ""}),
		)
		pieces, err = splitter.SplitText(file.Content)
	default: // recursive
		splitter := textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(opts.Size),
			textsplitter.WithChunkOverlap(opts.Overlap),
		)
		pieces, err = splitter.SplitText(file.Content)
	}
	if err != nil {
		return nil, fmt.Errorf("splitting %s: %w", file.Path, err)
	}

	chunks := make([]vectorstore.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		chunks = append(chunks, vectorstore.Chunk{
			ID:      uuid.New().String(),
			Content: piece,
			Metadata: map[string]string{
				"project_id":    projectID,
				"repository_id": file.RepositoryID,
				"file":          file.Path,
				"language":      file.Language,
				"chunk_index":   fmt.Sprintf("%d", i),
			},
		})
	}
	return chunks, nil
}

// fixedSplit cuts content into equal windows with overlap, ignoring
// structure. Windows are measured in runes so multi-byte characters are
// never cut in half at a boundary.
func fixedSplit(content string, size, overlap int) []string {
	if content == "" {
		return nil
	}
	runes := []rune(content)
	step := size - overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}
