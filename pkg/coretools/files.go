// Package coretools exposes the local file capability used by file commands
// and by the reference tool server.
package coretools

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultReadLimit caps how much of a file Read returns
const DefaultReadLimit int64 = 200000

// ErrOutsideRoot is returned by Confine for paths escaping the root
var ErrOutsideRoot = errors.New("path is outside root")

// Entry is one directory listing row
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
}

// Files reads and writes files relative to Root. Absolute paths are used
// as-is; no sandboxing is applied here.
type Files struct {
	Root      string
	ReadLimit int64
}

// NewFiles creates a file capability rooted at root (cwd when empty)
func NewFiles(root string) (*Files, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	return &Files{Root: abs, ReadLimit: DefaultReadLimit}, nil
}

// Resolve maps a user path onto the filesystem
func (f *Files) Resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if strings.Contains(path, "://") {
		return "", fmt.Errorf("path must be a local file")
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	return filepath.Clean(filepath.Join(f.Root, path)), nil
}

// Confine resolves path and rejects absolute paths and anything escaping Root
func (f *Files) Confine(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: absolute path %q", ErrOutsideRoot, path)
	}

	candidate := filepath.Clean(filepath.Join(f.Root, path))
	rel, err := filepath.Rel(f.Root, candidate)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, path)
	}
	return candidate, nil
}

// Read returns the file content, truncated at ReadLimit
func (f *Files) Read(path string) (string, bool, error) {
	target, err := f.Resolve(path)
	if err != nil {
		return "", false, err
	}
	data, truncated, err := readFileWithLimit(target, f.ReadLimit)
	if err != nil {
		return "", false, err
	}
	return string(data), truncated, nil
}

// Write replaces the file content, creating parent directories
func (f *Files) Write(path, content string) (string, error) {
	return f.write(path, content, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
}

// Append adds content to the end of the file, creating it when missing
func (f *Files) Append(path, content string) (string, error) {
	return f.write(path, content, os.O_CREATE|os.O_WRONLY|os.O_APPEND)
}

// Delete removes a file or an empty directory
func (f *Files) Delete(path string) (string, error) {
	target, err := f.Resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.Remove(target); err != nil {
		return "", err
	}
	return target, nil
}

// List returns directory entries sorted by name
func (f *Files) List(path string) ([]Entry, error) {
	if strings.TrimSpace(path) == "" {
		path = "."
	}
	target, err := f.Resolve(path)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(target)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		e := Entry{Name: de.Name(), IsDir: de.IsDir()}
		if info, err := de.Info(); err == nil && !de.IsDir() {
			e.Size = info.Size()
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// FormatEntries renders a listing one entry per line, directories with a trailing slash
func FormatEntries(entries []Entry) string {
	if len(entries) == 0 {
		return "(empty)"
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		if e.IsDir {
			b.WriteString(e.Name + "/")
			continue
		}
		fmt.Fprintf(&b, "%s (%d bytes)", e.Name, e.Size)
	}
	return b.String()
}

func (f *Files) write(path, content string, flags int) (string, error) {
	target, err := f.Resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(target, flags, 0644)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := file.WriteString(content); err != nil {
		return "", err
	}
	return target, nil
}

func readFileWithLimit(path string, limit int64) ([]byte, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer file.Close()

	if limit <= 0 {
		limit = DefaultReadLimit
	}

	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, file, limit); err != nil && !errors.Is(err, io.EOF) {
		return nil, false, err
	}

	extra := make([]byte, 1)
	truncated := false
	if n, _ := file.Read(extra); n > 0 {
		truncated = true
	}
	return buf.Bytes(), truncated, nil
}
