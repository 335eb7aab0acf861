// Package security confines the paths that tool callers hand to the server
// to a single document directory.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for paths that escape the document directory
var ErrOutsideRoot = errors.New("path is outside the document directory")

// Sandbox resolves caller-supplied paths against a root directory. Relative
// paths are joined to the root; absolute paths must already lie inside it.
// Symlinks are followed before the containment check.
type Sandbox struct {
	root string
}

// NewSandbox creates a sandbox rooted at dir. The directory does not have
// to exist yet.
func NewSandbox(dir string) (*Sandbox, error) {
	if dir == "" {
		return nil, fmt.Errorf("document directory cannot be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve document directory: %w", err)
	}
	return &Sandbox{root: abs}, nil
}

// Root returns the absolute document directory
func (s *Sandbox) Root() string {
	return s.root
}

// Resolve returns the absolute form of path, or ErrOutsideRoot
func (s *Sandbox) Resolve(path string) (string, error) {
	path = strings.ReplaceAll(path, "\x00", "")
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	path = filepath.Clean(path)

	if !within(s.root, path) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	real, err := realPath(path)
	if err != nil {
		return "", err
	}
	realRoot, err := realPath(s.root)
	if err != nil {
		return "", err
	}
	if !within(realRoot, real) {
		return "", fmt.Errorf("%w: %s resolves to %s", ErrOutsideRoot, path, real)
	}
	return path, nil
}

// Input resolves the path of an existing document
func (s *Sandbox) Input(path string) (string, error) {
	resolved, err := s.Resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("cannot access %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("not a regular file: %s", path)
	}
	return resolved, nil
}

// Output resolves where a filled copy of source may be written. The
// extension has to match the source so the writer keeps the format, and
// the source itself is never a valid target.
func (s *Sandbox) Output(path, source string) (string, error) {
	resolved, err := s.Resolve(path)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(filepath.Ext(resolved), filepath.Ext(source)) {
		return "", fmt.Errorf("output %s must keep the %s extension", path, filepath.Ext(source))
	}
	if info, err := os.Stat(resolved); err == nil {
		if info.IsDir() {
			return "", fmt.Errorf("output path is a directory: %s", path)
		}
		if src, err := os.Stat(source); err == nil && os.SameFile(info, src) {
			return "", fmt.Errorf("output path %s would overwrite the source document", path)
		}
	}
	return resolved, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// realPath evaluates symlinks on the longest existing prefix of path and
// appends the rest unchanged.
func realPath(path string) (string, error) {
	rest := make([]string, 0, 2)
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			parts := append([]string{resolved}, rest...)
			return filepath.Join(parts...), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to resolve %s: %w", current, err)
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path, nil
		}
		rest = append([]string{filepath.Base(current)}, rest...)
		current = parent
	}
}
