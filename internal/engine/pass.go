package engine

import (
	"context"
	"strings"

	"github.com/tasksync/mtd/internal/mapstore"
	"github.com/tasksync/mtd/internal/task"
	"github.com/tasksync/mtd/internal/todoapi"
)

// pass carries the working state of one reconciliation pass over one
// document. It exists for the duration of the pass only.
type pass struct {
	c       *Context
	docPath string
	text    string
	parser  *task.Parser
	builder *docBuilder
	sum     *Summary

	records  []*task.Record
	byMarker map[string]*task.Record

	// children maps a top-level task's marker to its nested checklist
	// records, derived from indentation at parse time.
	children map[string][]*task.Record
	isChild  map[*task.Record]bool

	bound    []todoapi.Collection
	boundIDs map[string]bool

	// seen tracks markers confirmed against (or freshly created on) the
	// remote side this pass; anything else is a prune candidate.
	seen      map[string]bool
	seenItems map[string]bool

	// incomplete guards pruning: a collection whose listing failed or was
	// cut off at the fetch limit proves nothing about absent tasks.
	incomplete       map[string]bool
	appendedSections map[string]bool

	// reverseItems maps remote checklist-item ids back to local markers.
	reverseItems map[string]string
}

func (c *Context) newPass(docPath, text string, parser *task.Parser, bound []todoapi.Collection) *pass {
	p := &pass{
		c:         c,
		docPath:   docPath,
		text:      text,
		parser:    parser,
		builder:   newDocBuilder(text),
		sum:       &Summary{},
		byMarker:  make(map[string]*task.Record),
		children:  make(map[string][]*task.Record),
		isChild:   make(map[*task.Record]bool),
		bound:     bound,
		boundIDs:  make(map[string]bool, len(bound)),
		seen:             make(map[string]bool),
		seenItems:        make(map[string]bool),
		incomplete:       make(map[string]bool),
		appendedSections: make(map[string]bool),
	}
	for _, col := range bound {
		p.boundIDs[col.ID] = true
	}

	parsed := parser.ParseDocument(text)
	var lastTop *task.Record
	for i := range parsed {
		rec := &parsed[i]
		p.records = append(p.records, rec)
		if rec.MarkerID != "" {
			p.byMarker[rec.MarkerID] = rec
		}
		// Indentation decides nesting: a deeper line under a task is a
		// checklist child; everything else starts a new top-level task.
		if lastTop != nil && len(rec.Indent) > len(lastTop.Indent) {
			p.isChild[rec] = true
			if lastTop.MarkerID != "" {
				p.children[lastTop.MarkerID] = append(p.children[lastTop.MarkerID], rec)
			}
			continue
		}
		lastTop = rec
	}
	return p
}

// detectDeletions implements local-deletion propagation: every mapping
// entry whose marker no longer parses out of the document is gone
// locally, so the remote side follows the configured policy. Failures
// are logged and swallowed; the entry is removed regardless so a
// permanently broken remote id cannot wedge every future pass.
func (p *pass) detectDeletions(ctx context.Context) {
	for marker, entry := range p.c.store.TasksFor(p.docPath) {
		if _, present := p.byMarker[marker]; present {
			continue
		}
		p.propagateTaskDeletion(ctx, marker, entry)
		p.c.store.DeleteTask(p.docPath, marker)
		p.sum.Deleted++
	}
	for marker, entry := range p.c.store.ChecklistsFor(p.docPath) {
		if _, present := p.byMarker[marker]; present {
			continue
		}
		// Checklist items cannot be deleted through the service API;
		// checking one off is the closest deletion analogue under either
		// policy, and keeps the merge from pulling the item back.
		err := p.c.client.UpdateChecklistItem(ctx, entry.CollectionID, entry.ParentTaskID, entry.ItemID, nil, true)
		if err != nil && !todoapi.IsNotFound(err) {
			p.c.logf("checking off removed checklist item %s: %v", marker, err)
		}
		p.c.store.DeleteChecklist(p.docPath, marker)
		p.sum.Deleted++
	}
}

func (p *pass) propagateTaskDeletion(ctx context.Context, marker string, entry mapstore.Entry) {
	var err error
	switch p.c.opts.DeletionBehavior {
	case DeleteOutright:
		err = p.c.client.DeleteTask(ctx, entry.CollectionID, entry.TaskID)
	default:
		status := todoapi.StatusCompleted
		err = p.c.client.UpdateTask(ctx, entry.CollectionID, entry.TaskID, todoapi.TaskPatch{Status: &status})
	}
	if err != nil && !todoapi.IsNotFound(err) {
		p.c.logf("propagating deletion of %s (remote %s): %v", marker, entry.TaskID, err)
	}
}

// pushLocalChanges implements the local-change fast path: for every
// marked task mapped into an allowed collection, skip when the content
// hash matches the stored one, otherwise patch the remote task and
// refresh both stored hashes.
func (p *pass) pushLocalChanges(ctx context.Context) {
	for _, rec := range p.records {
		if rec.MarkerID == "" || rec.IsChecklist() {
			continue
		}
		entry, ok := p.c.store.Task(p.docPath, rec.MarkerID)
		if !ok {
			continue
		}
		if len(p.boundIDs) > 0 && !p.boundIDs[entry.CollectionID] {
			continue
		}
		hash := rec.LocalHash()
		if hash == entry.LocalHash {
			continue
		}
		if err := p.pushTask(ctx, rec, entry); err != nil {
			p.c.logf("pushing %s to remote %s: %v", rec.MarkerID, entry.TaskID, err)
			continue
		}
		entry.LocalHash = hash
		entry.RemoteHash = hash
		entry.SyncedAt = p.c.now()
		p.c.store.SetTask(p.docPath, rec.MarkerID, entry)
		p.sum.Pushed++
	}
}

func (p *pass) pushTask(ctx context.Context, rec *task.Record, entry mapstore.Entry) error {
	title := rec.Title
	status := statusFor(rec.Completed)
	return p.c.client.UpdateTask(ctx, entry.CollectionID, entry.TaskID, todoapi.TaskPatch{
		Title:   &title,
		Status:  &status,
		DueSet:  true,
		DueDate: rec.DueDate,
	})
}

// uploadNewTasks implements new-task creation: every unmarked top-level
// task resolves a target collection by routing tag first, enclosing
// heading second. Unresolvable tasks stay local-only.
func (p *pass) uploadNewTasks(ctx context.Context, known []todoapi.Collection) {
	byName := make(map[string]todoapi.Collection, len(known))
	for _, col := range known {
		byName[strings.ToLower(col.DisplayName)] = col
	}

	for _, rec := range p.records {
		if rec.MarkerID != "" || p.isChild[rec] {
			continue
		}
		collectionID := ""
		if rule, ok := p.c.routes.Resolve(rec.Tag); ok {
			collectionID = rule.CollectionID
		} else if col, ok := byName[strings.ToLower(rec.Heading)]; ok {
			collectionID = col.ID
		}
		if collectionID == "" {
			continue
		}

		created, err := p.c.client.CreateTask(ctx, collectionID, todoapi.TaskCreate{
			Title:     rec.Title,
			Completed: rec.Completed,
			DueDate:   rec.DueDate,
		})
		if err != nil {
			p.c.logf("creating %q in collection %s: %v", rec.Title, collectionID, err)
			continue
		}

		rec.MarkerID = task.NewTaskMarkerID()
		p.byMarker[rec.MarkerID] = rec
		p.seen[rec.MarkerID] = true
		p.builder.replaceLine(rec.Line, rec.Render())
		p.c.store.SetTask(p.docPath, rec.MarkerID, mapstore.Entry{
			CollectionID:     collectionID,
			TaskID:           created.ID,
			SyncedAt:         p.c.now(),
			LocalHash:        rec.LocalHash(),
			RemoteHash:       remoteTaskHash(created),
			RemoteModifiedAt: created.LastModified,
		})
		p.sum.Created++
	}
}

// render flushes every parsed record back through the line codec. Lines
// whose render equals the original are still replaced; the builder
// output is compared against the source text before any write.
func (p *pass) render() {
	for _, rec := range p.records {
		p.builder.replaceLine(rec.Line, rec.Render())
	}
}

// flush writes the rebuilt document (only when it actually changed) and
// persists the mapping store.
func (p *pass) flush() error {
	if out := p.builder.build(); out != p.text {
		if err := p.c.docs.Replace(p.docPath, out); err != nil {
			return err
		}
	}
	return p.c.store.Save()
}
