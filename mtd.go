// Package mtd provides a minimal public API for building custom tooling
// on top of mtd's data model.
//
// Most automation should drive the mtd CLI directly. This package
// exports only the types and helpers needed by Go programs that want to
// inspect mapping state or parse task documents programmatically.
package mtd

import (
	"os"
	"path/filepath"

	"github.com/tasksync/mtd/internal/canonical"
	"github.com/tasksync/mtd/internal/docstore"
	"github.com/tasksync/mtd/internal/engine"
	"github.com/tasksync/mtd/internal/mapstore"
	"github.com/tasksync/mtd/internal/task"
)

// Core types for working with task documents and mapping state
type (
	TaskRecord     = task.Record
	MappingEntry   = mapstore.Entry
	ChecklistEntry = mapstore.ChecklistEntry
	MappingStore   = mapstore.Store
	Vault          = docstore.Store
	Parser         = task.Parser
)

// Reconciliation types for driving sync passes programmatically
type (
	SyncContext  = engine.Context
	SyncOptions  = engine.Options
	SyncSummary  = engine.Summary
	RemoteClient = engine.RemoteClient
)

// Marker id prefixes embedded in rendered task lines
const (
	TaskMarkerPrefix      = task.TaskMarkerPrefix
	ChecklistMarkerPrefix = task.ChecklistMarkerPrefix
)

// NewSyncContext wires a reconciliation engine over an opened mapping
// store, a remote client and a vault. logf may be nil.
func NewSyncContext(store *MappingStore, client RemoteClient, vault *Vault, opts SyncOptions, logf func(string, ...interface{})) *SyncContext {
	return engine.NewContext(store, client, vault, opts, logf)
}

// OpenMappingStore loads the mapping state file at path. A missing file
// yields an empty store.
func OpenMappingStore(path string) (*MappingStore, error) {
	return mapstore.Open(path)
}

// OpenVault opens the document vault rooted at the given directory.
func OpenVault(root string) *Vault {
	return docstore.New(root)
}

// CanonicalTitle strips volatile metadata tokens from a task title the
// same way the sync engine does before comparing content.
func CanonicalTitle(title string) string {
	return canonical.Canonicalize(title)
}

// FindStatePath walks up from the current directory looking for a
// .mtd/state.json, mirroring the CLI's configuration discovery. Returns
// an empty string when none exists.
func FindStatePath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, ".mtd", "state.json")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		if dir == filepath.Dir(dir) {
			return ""
		}
	}
}
