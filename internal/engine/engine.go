// Package engine implements the reconciliation passes that keep vault
// documents and remote task collections converged: full two-way sync,
// lightweight local push, and the tag-routing sweep.
//
// Conflict resolution works on weak signals only (content hashes plus
// the remote modification clock, see DecideWinner). Passes are
// idempotent: re-running one over converged state performs no remote
// writes and leaves the document byte-identical.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tasksync/mtd/internal/canonical"
	"github.com/tasksync/mtd/internal/docstore"
	"github.com/tasksync/mtd/internal/mapstore"
	"github.com/tasksync/mtd/internal/router"
	"github.com/tasksync/mtd/internal/task"
	"github.com/tasksync/mtd/internal/todoapi"
)

// ErrPassRunning reports a rejected overlapping invocation. Timer,
// watcher and manual triggers race; whoever loses simply skips a turn.
var ErrPassRunning = errors.New("a reconciliation pass is already running")

// RemoteClient is the slice of the service API the engine consumes.
type RemoteClient interface {
	ListCollections(ctx context.Context) ([]todoapi.Collection, error)
	ListTasks(ctx context.Context, collectionID string, limit int, onlyActive bool) ([]todoapi.Task, error)
	CreateTask(ctx context.Context, collectionID string, create todoapi.TaskCreate) (*todoapi.Task, error)
	UpdateTask(ctx context.Context, collectionID, taskID string, patch todoapi.TaskPatch) error
	DeleteTask(ctx context.Context, collectionID, taskID string) error
	UpdateChecklistItem(ctx context.Context, collectionID, taskID, itemID string, displayName *string, checked bool) error
}

// DocumentStore is the slice of the vault the engine consumes.
type DocumentStore interface {
	Read(path string) (string, error)
	Replace(path, text string) error
	AllDocuments() ([]string, error)
	BoundDocuments() ([]docstore.Document, error)
}

// DeletionBehavior values.
const (
	DeleteByCompleting = "complete"
	DeleteOutright     = "delete"
)

// Options are the per-process engine settings.
type Options struct {
	DeletionBehavior    string
	FetchLimit          int
	PullTag             string
	PullTagWithListName bool
	Routes              []router.Rule
}

// Summary counts what one pass did, for user-facing notices.
type Summary struct {
	Created int
	Moved   int
	Pushed  int
	Pulled  int
	Deleted int
}

func (s *Summary) String() string {
	parts := []string{}
	add := func(n int, noun string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, noun))
		}
	}
	add(s.Created, "created")
	add(s.Moved, "moved")
	add(s.Pushed, "pushed")
	add(s.Pulled, "pulled")
	add(s.Deleted, "deleted")
	if len(parts) == 0 {
		return "already in sync"
	}
	return strings.Join(parts, ", ")
}

// Context wires one engine instance: mapping store, remote client,
// vault, routing rules and settings. A single Context serves all
// documents; the busy flag serializes passes process-wide.
type Context struct {
	store  *mapstore.Store
	client RemoteClient
	docs   DocumentStore
	routes *router.Router
	opts   Options
	logf   func(format string, args ...interface{})
	now    func() time.Time

	busy atomic.Bool

	// collections is cached after the first successful listing; display
	// names change rarely and re-listing per pass would dominate quota.
	collections []todoapi.Collection
}

// NewContext builds an engine context. logf may be nil.
func NewContext(store *mapstore.Store, client RemoteClient, docs DocumentStore, opts Options, logf func(string, ...interface{})) *Context {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Context{
		store:  store,
		client: client,
		docs:   docs,
		routes: router.New(opts.Routes),
		opts:   opts,
		logf:   logf,
		now:    time.Now,
	}
}

// acquire claims the single-pass guard.
func (c *Context) acquire() error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrPassRunning
	}
	return nil
}

func (c *Context) release() {
	c.busy.Store(false)
}

// knownCollections lists remote collections, serving the cache when
// warm. An authentication or transport failure here aborts the caller's
// pass before anything is mutated.
func (c *Context) knownCollections(ctx context.Context) ([]todoapi.Collection, error) {
	if c.collections != nil {
		return c.collections, nil
	}
	cols, err := c.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing remote collections: %w", err)
	}
	c.collections = cols
	return cols, nil
}

// boundCollections resolves a document's binding names against the
// known collections, sorted by display name for deterministic output.
// Names that match nothing are logged and skipped.
func (c *Context) boundCollections(ctx context.Context, doc docstore.Document) ([]todoapi.Collection, error) {
	known, err := c.knownCollections(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]todoapi.Collection, len(known))
	for _, col := range known {
		byName[strings.ToLower(col.DisplayName)] = col
	}

	var bound []todoapi.Collection
	for _, name := range doc.Lists {
		col, ok := byName[strings.ToLower(name)]
		if !ok {
			c.logf("document %s is bound to unknown collection %q, skipping it", doc.Path, name)
			continue
		}
		bound = append(bound, col)
	}
	sort.Slice(bound, func(i, j int) bool { return bound[i].DisplayName < bound[j].DisplayName })
	return bound, nil
}

// parser builds the per-pass line parser. Recognized tags are the
// routing tags plus the pull tag and its collection-suffixed variants,
// so tags this engine itself attaches always round-trip.
func (c *Context) parser(collections []todoapi.Collection) *task.Parser {
	tags := c.routes.Tags()
	if c.opts.PullTag != "" {
		tags = append(tags, c.opts.PullTag)
		for _, col := range collections {
			tags = append(tags, pullTagName(c.opts.PullTag, col.DisplayName))
		}
	}
	return &task.Parser{Tags: tags}
}

// tagForCollection picks the tag re-attached to tasks observed in a
// collection: the routing rule's tag when one targets the collection,
// else the global pull tag.
func (c *Context) tagForCollection(col todoapi.Collection) string {
	if tag, ok := c.routes.TagFor(col.ID); ok {
		return tag
	}
	if c.opts.PullTag == "" {
		return ""
	}
	if c.opts.PullTagWithListName {
		return pullTagName(c.opts.PullTag, col.DisplayName)
	}
	return c.opts.PullTag
}

func pullTagName(pullTag, displayName string) string {
	return pullTag + "/" + strings.ReplaceAll(displayName, " ", "-")
}

// remoteTaskHash computes the content hash of a remote task's observed
// state. HashTask canonicalizes the title itself.
func remoteTaskHash(t *todoapi.Task) string {
	return canonical.HashTask(t.Title, t.Completed(), t.Due.DueDate())
}

func remoteItemHash(item *todoapi.ChecklistItem) string {
	return canonical.HashChecklist(item.DisplayName, item.IsChecked)
}

// statusFor maps the document's boolean completion onto remote status.
func statusFor(completed bool) string {
	if completed {
		return todoapi.StatusCompleted
	}
	return todoapi.StatusNotStarted
}
