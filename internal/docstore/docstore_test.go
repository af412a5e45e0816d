package docstore

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDoc(t *testing.T, root, rel, text string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(text), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestReadAndReplace(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	writeDoc(t, root, "todo.md", "- [ ] one\n")

	text, err := s.Read("todo.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if text != "- [ ] one\n" {
		t.Errorf("Read = %q", text)
	}

	if err := s.Replace("todo.md", "- [x] one\n"); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	text, _ = s.Read("todo.md")
	if text != "- [x] one\n" {
		t.Errorf("after Replace = %q", text)
	}
}

func TestAllDocumentsSkipsDotDirs(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	writeDoc(t, root, "todo.md", "")
	writeDoc(t, root, "notes/daily.md", "")
	writeDoc(t, root, "notes/scratch.txt", "")
	writeDoc(t, root, ".mtd/state.md", "")

	docs, err := s.AllDocuments()
	if err != nil {
		t.Fatalf("AllDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %v, want todo.md and notes/daily.md", docs)
	}
}

func TestBoundDocuments(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	writeDoc(t, root, "bound.md", "---\nmtd-lists:\n  - Groceries\n  - Errands\n---\n- [ ] milk\n")
	writeDoc(t, root, "plain.md", "- [ ] nothing to see\n")
	writeDoc(t, root, "badfm.md", "---\nmtd-lists: [unclosed\n---\n")

	docs, err := s.BoundDocuments()
	if err != nil {
		t.Fatalf("BoundDocuments: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d bound documents, want 1: %+v", len(docs), docs)
	}
	d := docs[0]
	if d.Path != "bound.md" || len(d.Lists) != 2 || d.Lists[0] != "Groceries" || d.Lists[1] != "Errands" {
		t.Errorf("unexpected binding: %+v", d)
	}
}

func TestFrontMatterBlock(t *testing.T) {
	tests := []struct {
		name string
		text string
		ok   bool
	}{
		{"well formed", "---\nmtd-lists: [A]\n---\nbody", true},
		{"dots terminator", "---\nmtd-lists: [A]\n...\nbody", true},
		{"no front matter", "body text\n", false},
		{"unterminated", "---\nmtd-lists: [A]\n", false},
		{"fence not first line", "\n---\nmtd-lists: [A]\n---\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := frontMatterBlock(tt.text)
			if ok != tt.ok {
				t.Errorf("frontMatterBlock ok = %v, want %v", ok, tt.ok)
			}
		})
	}
}
