package mapstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestOpenMissingFileYieldsEmptyStore(t *testing.T) {
	s := testStore(t)
	if got := s.TasksFor("doc.md"); len(got) != 0 {
		t.Errorf("expected empty store, got %d entries", len(got))
	}
}

func TestSetGetDelete(t *testing.T) {
	s := testStore(t)
	e := Entry{CollectionID: "list-1", TaskID: "task-1", LocalHash: "h"}

	s.SetTask("doc.md", "mtd_abc12345", e)
	got, ok := s.Task("doc.md", "mtd_abc12345")
	if !ok || got.TaskID != "task-1" {
		t.Fatalf("Task() = %+v, %v", got, ok)
	}

	// Entries are document scoped.
	if _, ok := s.Task("other.md", "mtd_abc12345"); ok {
		t.Error("entry leaked across documents")
	}

	s.DeleteTask("doc.md", "mtd_abc12345")
	if _, ok := s.Task("doc.md", "mtd_abc12345"); ok {
		t.Error("entry should be gone after delete")
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetTask("notes/todo.md", "mtd_abc12345", Entry{
		CollectionID:     "list-1",
		TaskID:           "task-1",
		SyncedAt:         now,
		LocalHash:        "0|Buy milk|",
		RemoteHash:       "0|Buy milk|",
		RemoteModifiedAt: now,
	})
	s.SetChecklist("notes/todo.md", "mtdc_def67890", ChecklistEntry{
		CollectionID: "list-1",
		ParentTaskID: "task-1",
		ItemID:       "item-1",
		LocalHash:    "0|Pack socks",
	})
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	e, ok := s2.Task("notes/todo.md", "mtd_abc12345")
	if !ok || e.TaskID != "task-1" || !e.RemoteModifiedAt.Equal(now) {
		t.Errorf("task entry did not survive reload: %+v, %v", e, ok)
	}
	c, ok := s2.Checklist("notes/todo.md", "mtdc_def67890")
	if !ok || c.ItemID != "item-1" || c.ParentTaskID != "task-1" {
		t.Errorf("checklist entry did not survive reload: %+v, %v", c, ok)
	}
}

func TestFlatKeyWireFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, _ := Open(path)
	s.SetTask("todo.md", "mtd_abc12345", Entry{TaskID: "task-1"})
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("state is not valid JSON: %v", err)
	}
	var tasks map[string]Entry
	if err := json.Unmarshal(raw["taskMappings"], &tasks); err != nil {
		t.Fatalf("taskMappings shape: %v", err)
	}
	if _, ok := tasks["todo.md::mtd_abc12345"]; !ok {
		t.Errorf("expected flat composite key, got keys %v", keys(tasks))
	}
}

func keys(m map[string]Entry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestLoadToleratesGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`{"taskMappings": "not a map"`), 0600); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open should not fail on garbage: %v", err)
	}
	if len(s.TasksFor("any")) != 0 {
		t.Error("garbage load should yield empty store")
	}
}

func TestLoadSkipsMalformedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	state := `{"taskMappings":{"nokeyseparator":{"task_id":"x"},"doc.md::mtd_ok123456":{"task_id":"y"}},"checklistMappings":{}}`
	if err := os.WriteFile(path, []byte(state), 0600); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := s.Task("doc.md", "mtd_ok123456"); !ok {
		t.Error("well-formed key should load")
	}
	if got := len(s.TasksFor("nokeyseparator")); got != 0 {
		t.Error("malformed key should be skipped")
	}
}

func TestDocumentPathWithColons(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, _ := Open(path)
	weird := "notes::archive/todo.md"
	s.SetTask(weird, "mtd_abc12345", Entry{TaskID: "task-1"})
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	s2, _ := Open(path)
	if _, ok := s2.Task(weird, "mtd_abc12345"); !ok {
		t.Error("path containing :: should round-trip via last-separator split")
	}
}
