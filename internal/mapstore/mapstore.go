// Package mapstore persists the identity mapping between document-local
// task markers and remote task identifiers.
//
// In memory the table is keyed twice (document path, then marker id); on
// disk it is a single JSON document with flat "<path>::<marker>" keys,
// kept for compatibility with earlier state files. The whole structure is
// rewritten atomically on save, so a crash mid-pass can only leave the
// previous consistent state behind.
package mapstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Entry maps one top-level task marker to its remote identity plus the
// hashes and timestamp the next reconciliation pass diffs against.
type Entry struct {
	CollectionID     string    `json:"list_id"`
	TaskID           string    `json:"task_id"`
	SyncedAt         time.Time `json:"synced_at"`
	LocalHash        string    `json:"local_hash"`
	RemoteHash       string    `json:"remote_hash"`
	RemoteModifiedAt time.Time `json:"remote_modified_at"`
}

// ChecklistEntry is the checklist-item analogue of Entry, additionally
// keyed to its parent remote task.
type ChecklistEntry struct {
	CollectionID     string    `json:"list_id"`
	ParentTaskID     string    `json:"parent_task_id"`
	ItemID           string    `json:"item_id"`
	SyncedAt         time.Time `json:"synced_at"`
	LocalHash        string    `json:"local_hash"`
	RemoteHash       string    `json:"remote_hash"`
	RemoteModifiedAt time.Time `json:"remote_modified_at"`
}

// document is the persisted wire shape. Settings are carried through as
// raw JSON so older state files survive a round trip untouched.
type document struct {
	Settings          map[string]json.RawMessage `json:"settings,omitempty"`
	TaskMappings      map[string]Entry           `json:"taskMappings"`
	ChecklistMappings map[string]ChecklistEntry  `json:"checklistMappings"`
}

// Store is the process-wide mapping table. It is mutated only inside a
// reconciliation pass and flushed synchronously at pass end.
type Store struct {
	path string

	mu         sync.Mutex
	settings   map[string]json.RawMessage
	tasks      map[string]map[string]Entry
	checklists map[string]map[string]ChecklistEntry
}

// Open loads the store from path. A missing file yields an empty store;
// unrecognized top-level shapes are dropped rather than failing the load.
func Open(path string) (*Store, error) {
	s := &Store{
		path:       path,
		tasks:      make(map[string]map[string]Entry),
		checklists: make(map[string]map[string]ChecklistEntry),
	}

	data, err := os.ReadFile(path) // #nosec G304 - controlled path from config
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading mapping store: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		// Corrupt or foreign state file: start empty rather than crash.
		// Reconciliation re-derives mappings from markers on the next pass.
		return s, nil
	}

	s.settings = doc.Settings
	for key, entry := range doc.TaskMappings {
		docPath, marker, ok := splitKey(key)
		if !ok {
			continue
		}
		s.ensureTaskTable(docPath)[marker] = entry
	}
	for key, entry := range doc.ChecklistMappings {
		docPath, marker, ok := splitKey(key)
		if !ok {
			continue
		}
		s.ensureChecklistTable(docPath)[marker] = entry
	}
	return s, nil
}

// splitKey parses a flat "<path>::<marker>" key. Document paths may
// themselves contain colons, so split on the last separator.
func splitKey(key string) (docPath, marker string, ok bool) {
	idx := strings.LastIndex(key, "::")
	if idx <= 0 || idx+2 >= len(key) {
		return "", "", false
	}
	return key[:idx], key[idx+2:], true
}

func joinKey(docPath, marker string) string {
	return docPath + "::" + marker
}

func (s *Store) ensureTaskTable(docPath string) map[string]Entry {
	t, ok := s.tasks[docPath]
	if !ok {
		t = make(map[string]Entry)
		s.tasks[docPath] = t
	}
	return t
}

func (s *Store) ensureChecklistTable(docPath string) map[string]ChecklistEntry {
	t, ok := s.checklists[docPath]
	if !ok {
		t = make(map[string]ChecklistEntry)
		s.checklists[docPath] = t
	}
	return t
}

// Task returns the mapping entry for (docPath, marker).
func (s *Store) Task(docPath, marker string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[docPath][marker]
	return e, ok
}

// SetTask inserts or replaces a task mapping entry.
func (s *Store) SetTask(docPath, marker string, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureTaskTable(docPath)[marker] = e
}

// DeleteTask removes a task mapping entry if present.
func (s *Store) DeleteTask(docPath, marker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks[docPath], marker)
}

// TasksFor returns a copy of all task entries for one document.
func (s *Store) TasksFor(docPath string) map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Entry, len(s.tasks[docPath]))
	for marker, e := range s.tasks[docPath] {
		out[marker] = e
	}
	return out
}

// Checklist returns the checklist mapping entry for (docPath, marker).
func (s *Store) Checklist(docPath, marker string) (ChecklistEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.checklists[docPath][marker]
	return e, ok
}

// SetChecklist inserts or replaces a checklist mapping entry.
func (s *Store) SetChecklist(docPath, marker string, e ChecklistEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureChecklistTable(docPath)[marker] = e
}

// DeleteChecklist removes a checklist mapping entry if present.
func (s *Store) DeleteChecklist(docPath, marker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checklists[docPath], marker)
}

// ChecklistsFor returns a copy of all checklist entries for one document.
func (s *Store) ChecklistsFor(docPath string) map[string]ChecklistEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ChecklistEntry, len(s.checklists[docPath]))
	for marker, e := range s.checklists[docPath] {
		out[marker] = e
	}
	return out
}

// Save writes the whole store to disk atomically (temp file + rename).
func (s *Store) Save() error {
	s.mu.Lock()
	doc := document{
		Settings:          s.settings,
		TaskMappings:      make(map[string]Entry),
		ChecklistMappings: make(map[string]ChecklistEntry),
	}
	for docPath, table := range s.tasks {
		for marker, e := range table {
			doc.TaskMappings[joinKey(docPath, marker)] = e
		}
	}
	for docPath, table := range s.checklists {
		for marker, e := range table {
			doc.ChecklistMappings[joinKey(docPath, marker)] = e
		}
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling mapping store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
