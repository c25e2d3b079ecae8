// Package sources lets a project choose which files of a scanned
// repository tree get indexed. Directories carry a tri-state mark
// (checked, unchecked, partial) and the selection resolves to the
// include/exclude path lists the ingestion pipeline consumes.
package sources

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Directories never worth indexing. Matches the parser's skip list.
var skipDirs = map[string]struct{}{
	".git":         {},
	".svn":         {},
	".hg":          {},
	"node_modules": {},
	"vendor":       {},
	"target":       {},
	"dist":         {},
	"build":        {},
	"__pycache__":  {},
	".venv":        {},
	"venv":         {},
	".idea":        {},
	".vscode":      {},
}

// Node is one entry in the scanned tree. Paths are slash-separated and
// relative to the scan root.
type Node struct {
	Path     string  `json:"path"`
	Name     string  `json:"name"`
	Dir      bool    `json:"dir"`
	Size     int64   `json:"size,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// Scan walks root and builds the selectable file tree.
func Scan(root string) (*Node, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", root)
	}

	top := &Node{Path: ".", Name: filepath.Base(root), Dir: true}
	if err := scanDir(root, ".", top); err != nil {
		return nil, err
	}
	return top, nil
}

func scanDir(absDir, relDir string, parent *Node) error {
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", absDir, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		rel := name
		if relDir != "." {
			rel = relDir + "/" + name
		}

		if entry.IsDir() {
			if _, skip := skipDirs[name]; skip {
				continue
			}
			child := &Node{Path: rel, Name: name, Dir: true}
			if err := scanDir(filepath.Join(absDir, name), rel, child); err != nil {
				return err
			}
			parent.Children = append(parent.Children, child)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		parent.Children = append(parent.Children, &Node{
			Path: rel,
			Name: name,
			Size: info.Size(),
		})
	}
	return nil
}

// Files returns every file path under the node.
func (n *Node) Files() []string {
	var out []string
	n.walk(func(node *Node) {
		if !node.Dir {
			out = append(out, node.Path)
		}
	})
	return out
}

func (n *Node) walk(fn func(*Node)) {
	fn(n)
	for _, child := range n.Children {
		child.walk(fn)
	}
}

// find returns the node with the given path, or nil.
func (n *Node) find(path string) *Node {
	if n.Path == path {
		return n
	}
	for _, child := range n.Children {
		if child.Path == path || strings.HasPrefix(path, child.Path+"/") || child.Path == "." {
			if found := child.find(path); found != nil {
				return found
			}
		}
	}
	return nil
}
