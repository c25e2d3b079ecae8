package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// skipDirs are never descended into. They hold generated code, dependencies,
// or version control data.
var skipDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"target":       true,
}

// languageByExt maps file extensions to language tags for chunk metadata.
var languageByExt = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".java": "java",
	".rb":   "ruby",
	".rs":   "rust",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".cs":   "csharp",
	".php":  "php",
	".sh":   "shell",
	".sql":  "sql",
	".md":   "markdown",
	".yaml": "yaml",
	".yml":  "yaml",
	".json": "json",
	".toml": "toml",
}

// ParseOptions controls the file walk.
type ParseOptions struct {
	// MaxFileSize skips files larger than this many bytes.
	MaxFileSize int64

	// IncludePatterns, when non-empty, restrict the walk to matching files.
	// Patterns are filepath.Match globs tried against both the basename and
	// the repository-relative path.
	IncludePatterns []string

	// ExcludePatterns remove files from the walk and win over includes.
	// A trailing "/**" excludes a whole subtree.
	ExcludePatterns []string
}

// parseTree walks a cloned repository and returns its text files. Binary
// files (invalid UTF-8) and oversized files are skipped silently.
func parseTree(ctx context.Context, root, repoID string, opts ParseOptions) ([]SourceFile, error) {
	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = 1024 * 1024
	}
	if err := validatePatterns(opts.IncludePatterns); err != nil {
		return nil, fmt.Errorf("include patterns: %w", err)
	}
	if err := validatePatterns(opts.ExcludePatterns); err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}

	var files []SourceFile
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if skipDirs[filepath.Base(path)] {
				return filepath.SkipDir
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}
		if !includeFile(rel, info, opts) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}
		if !utf8.Valid(content) {
			return nil
		}

		files = append(files, SourceFile{
			Path:         rel,
			RepositoryID: repoID,
			Language:     languageByExt[strings.ToLower(filepath.Ext(rel))],
			Content:      string(content),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return files, nil
}

func validatePatterns(patterns []string) error {
	for _, p := range patterns {
		if _, err := filepath.Match(p, "probe"); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}
	return nil
}

// includeFile applies size and glob filters. Excludes take precedence.
func includeFile(rel string, info os.FileInfo, opts ParseOptions) bool {
	if info.Size() > opts.MaxFileSize {
		return false
	}

	base := filepath.Base(rel)
	for _, pattern := range opts.ExcludePatterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return false
		}
		if matched, _ := filepath.Match(pattern, rel); matched {
			return false
		}
		if strings.HasSuffix(pattern, "/**") {
			prefix := strings.TrimSuffix(pattern, "/**")
			if rel == prefix || strings.HasPrefix(rel, prefix+string(filepath.Separator)) {
				return false
			}
		}
	}

	if len(opts.IncludePatterns) == 0 {
		return true
	}
	for _, pattern := range opts.IncludePatterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}
