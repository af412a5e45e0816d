// Package docstore provides access to the vault: a directory of markdown
// documents. It reads and atomically replaces document text, enumerates
// documents bound to remote collections via front matter, and streams
// change notifications.
package docstore

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// BindingKey is the front-matter key that binds a document to one or
// more remote collections by display name.
const BindingKey = "mtd-lists"

// Document is one vault document together with its collection bindings.
type Document struct {
	Path  string   // vault-relative, slash separated
	Lists []string // bound collection display names
}

// Store is a vault rooted at one directory.
type Store struct {
	root string
}

// New creates a store over the given vault root.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the vault root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) abs(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

// Read returns the full text of a document.
func (s *Store) Read(path string) (string, error) {
	data, err := os.ReadFile(s.abs(path)) // #nosec G304 - vault-relative path
	if err != nil {
		return "", fmt.Errorf("reading document %s: %w", path, err)
	}
	return string(data), nil
}

// Replace atomically swaps the document's full text (temp file + rename
// in the same directory, so a crash never leaves a half-written file).
func (s *Store) Replace(path, text string) error {
	target := s.abs(path)
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, filepath.Base(target)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	if _, err := tmp.WriteString(text); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// AllDocuments lists every markdown document in the vault, vault-relative.
func (s *Store) AllDocuments() ([]string, error) {
	var docs []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Dot directories hold state and config, not documents.
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(p), ".md") {
			rel, err := filepath.Rel(s.root, p)
			if err != nil {
				return err
			}
			docs = append(docs, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking vault %s: %w", s.root, err)
	}
	return docs, nil
}

// BoundDocuments returns the documents carrying the binding annotation.
func (s *Store) BoundDocuments() ([]Document, error) {
	paths, err := s.AllDocuments()
	if err != nil {
		return nil, err
	}
	var out []Document
	for _, p := range paths {
		text, err := s.Read(p)
		if err != nil {
			return nil, err
		}
		lists := Bindings(text)
		if len(lists) > 0 {
			out = append(out, Document{Path: p, Lists: lists})
		}
	}
	return out, nil
}

// frontMatter is the subset of document front matter we understand.
type frontMatter struct {
	Lists []string `yaml:"mtd-lists"`
}

// Bindings extracts collection bindings from a document's YAML
// front-matter block. Malformed front matter yields no bindings rather
// than an error; a document with broken YAML is simply not bound.
func Bindings(text string) []string {
	body, ok := frontMatterBlock(text)
	if !ok {
		return nil
	}
	var fm frontMatter
	if err := yaml.Unmarshal([]byte(body), &fm); err != nil {
		return nil
	}
	return fm.Lists
}

// frontMatterBlock returns the YAML between the leading "---" fence pair.
func frontMatterBlock(text string) (string, bool) {
	lines := strings.SplitAfter(text, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], "\r\n") != "---" {
		return "", false
	}
	var b strings.Builder
	for _, line := range lines[1:] {
		if trimmed := strings.TrimRight(line, "\r\n"); trimmed == "---" || trimmed == "..." {
			return b.String(), true
		}
		b.WriteString(line)
	}
	return "", false
}
