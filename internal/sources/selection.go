package sources

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var ErrPathNotFound = errors.New("path not in tree")

// State is a node's tri-state selection.
type State string

const (
	StateChecked   State = "checked"
	StateUnchecked State = "unchecked"
	StatePartial   State = "partial"
)

// Selection tracks which parts of a tree are selected for indexing.
// Everything starts selected; marks on a directory apply to its whole
// subtree until overridden deeper down.
type Selection struct {
	mu    sync.RWMutex
	tree  *Node
	marks map[string]bool
	stale bool
}

// NewSelection creates a fully selected tree.
func NewSelection(tree *Node) *Selection {
	return &Selection{
		tree:  tree,
		marks: make(map[string]bool),
	}
}

// Set marks a path (and, for directories, its subtree) as selected or
// deselected.
func (s *Selection) Set(path string, selected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.tree.find(path)
	if node == nil {
		return ErrPathNotFound
	}

	// Marks below this node are now shadowed.
	for marked := range s.marks {
		if marked == path || strings.HasPrefix(marked, path+"/") {
			delete(s.marks, marked)
		}
	}

	if s.effectiveLocked(parentPath(path)) == selected {
		// The subtree already inherits this value.
		return nil
	}
	s.marks[path] = selected
	return nil
}

// State reports the tri-state for a path. A directory is partial when
// its descendants mix selected and deselected files.
func (s *Selection) State(path string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node := s.tree.find(path)
	if node == nil {
		return "", ErrPathNotFound
	}

	if !node.Dir {
		if s.effectiveLocked(path) {
			return StateChecked, nil
		}
		return StateUnchecked, nil
	}

	var selected, deselected bool
	node.walk(func(child *Node) {
		if child.Dir {
			return
		}
		if s.effectiveLocked(child.Path) {
			selected = true
		} else {
			deselected = true
		}
	})

	switch {
	case selected && deselected:
		return StatePartial, nil
	case deselected:
		return StateUnchecked, nil
	default:
		return StateChecked, nil
	}
}

// SelectedFiles returns every file currently selected.
func (s *Selection) SelectedFiles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	s.tree.walk(func(node *Node) {
		if !node.Dir && s.effectiveLocked(node.Path) {
			out = append(out, node.Path)
		}
	})
	return out
}

// Resolve reduces the selection to the minimal include/exclude lists
// for the parser. A fully selected tree yields two empty lists, which
// the parser reads as "index everything".
func (s *Selection) Resolve() (include, exclude []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for path, selected := range s.marks {
		if selected {
			include = append(include, subtreePattern(s.tree.find(path)))
		} else {
			exclude = append(exclude, subtreePattern(s.tree.find(path)))
		}
	}
	sort.Strings(include)
	sort.Strings(exclude)
	return include, exclude
}

// MarkStale flags the selection as out of date with the filesystem.
func (s *Selection) MarkStale() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

// Stale reports whether the tree changed on disk since the scan.
func (s *Selection) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// Rescan swaps in a freshly scanned tree. Marks for paths that no
// longer exist are dropped.
func (s *Selection) Rescan(tree *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tree = tree
	s.stale = false
	for path := range s.marks {
		if tree.find(path) == nil {
			delete(s.marks, path)
		}
	}
}

// effectiveLocked reports whether a path is selected, following the
// nearest ancestor mark. Unmarked trees are fully selected.
func (s *Selection) effectiveLocked(path string) bool {
	for p := path; ; p = parentPath(p) {
		if v, ok := s.marks[p]; ok {
			return v
		}
		if p == "." {
			return true
		}
	}
}

func parentPath(path string) string {
	if path == "." || path == "" {
		return "."
	}
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "."
	}
	return path[:idx]
}

func subtreePattern(node *Node) string {
	if node == nil {
		return ""
	}
	if node.Dir {
		return node.Path + "/**"
	}
	return node.Path
}
