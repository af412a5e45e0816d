package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/tasksync/mtd/internal/canonical"
	"github.com/tasksync/mtd/internal/docstore"
	"github.com/tasksync/mtd/internal/mapstore"
	"github.com/tasksync/mtd/internal/task"
	"github.com/tasksync/mtd/internal/todoapi"
)

// RunFullSync executes one complete reconciliation pass over one
// document: deletion detection, local push, new-task upload, remote
// fetch and merge per bound collection, mapping prune, render, persist.
// A failure to read the document or to reach the service at all aborts
// before anything is mutated.
func (c *Context) RunFullSync(ctx context.Context, docPath string) (*Summary, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.release()

	text, err := c.docs.Read(docPath)
	if err != nil {
		return nil, err
	}
	doc := docstore.Document{Path: docPath, Lists: docstore.Bindings(text)}
	bound, err := c.boundCollections(ctx, doc)
	if err != nil {
		return nil, err
	}
	known, err := c.knownCollections(ctx)
	if err != nil {
		return nil, err
	}

	p := c.newPass(docPath, text, c.parser(known), bound)
	p.detectDeletions(ctx)
	p.pushLocalChanges(ctx)
	p.uploadNewTasks(ctx, known)
	p.mergeRemote(ctx)
	p.pruneMappings()
	p.render()
	if err := p.flush(); err != nil {
		return nil, fmt.Errorf("persisting sync results for %s: %w", docPath, err)
	}
	return p.sum, nil
}

// RunLocalPushOnly executes the lightweight pass the document watcher
// triggers after a debounced edit: deletion detection and local-change
// push, no remote fetch. Cheap enough to run on every edit burst.
func (c *Context) RunLocalPushOnly(ctx context.Context, docPath string) (*Summary, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.release()

	text, err := c.docs.Read(docPath)
	if err != nil {
		return nil, err
	}
	doc := docstore.Document{Path: docPath, Lists: docstore.Bindings(text)}
	bound, err := c.boundCollections(ctx, doc)
	if err != nil {
		return nil, err
	}
	known, err := c.knownCollections(ctx)
	if err != nil {
		return nil, err
	}

	p := c.newPass(docPath, text, c.parser(known), bound)
	p.detectDeletions(ctx)
	p.pushLocalChanges(ctx)
	if err := c.store.Save(); err != nil {
		return nil, fmt.Errorf("persisting mapping store: %w", err)
	}
	return p.sum, nil
}

// mergeRemote fetches each bound collection and reconciles every remote
// task against its local counterpart. A failed fetch skips that
// collection only.
func (p *pass) mergeRemote(ctx context.Context) {
	reverse := make(map[string]string)
	for marker, entry := range p.c.store.TasksFor(p.docPath) {
		reverse[entry.TaskID] = marker
	}
	p.reverseItems = make(map[string]string)
	for marker, entry := range p.c.store.ChecklistsFor(p.docPath) {
		p.reverseItems[entry.ItemID] = marker
	}

	for _, col := range p.bound {
		// Mapped tasks are fetched regardless of status so remote
		// completion is observed; unmapped completed ones are skipped
		// below, never surfacing items closed before we ever saw them.
		tasks, err := p.c.client.ListTasks(ctx, col.ID, p.c.opts.FetchLimit, false)
		if err != nil {
			p.c.logf("fetching collection %q: %v", col.DisplayName, err)
			p.incomplete[col.ID] = true
			continue
		}
		if limit := p.c.opts.FetchLimit; limit > 0 && len(tasks) >= limit {
			// The listing was cut off at the limit, so a mapped task's
			// absence here does not mean it was deleted remotely.
			p.c.logf("collection %q listing truncated at %d tasks, pruning suspended", col.DisplayName, limit)
			p.incomplete[col.ID] = true
		}
		tag := p.c.tagForCollection(col)
		for i := range tasks {
			rt := &tasks[i]
			marker, mapped := reverse[rt.ID]
			if !mapped {
				if rt.Completed() {
					continue
				}
				p.pullNewTask(col, rt, tag)
				continue
			}
			rec := p.byMarker[marker]
			if rec == nil {
				// Line removed locally; deletion detection already
				// handled the mapping.
				continue
			}
			p.seen[marker] = true
			p.mergeTask(ctx, col, rec, rt, marker, tag)
		}
	}
}

// mergeTask reconciles one task present on both sides.
func (p *pass) mergeTask(ctx context.Context, col todoapi.Collection, rec *task.Record, rt *todoapi.Task, marker, tag string) {
	entry, ok := p.c.store.Task(p.docPath, marker)
	if !ok {
		return
	}
	localHash := rec.LocalHash()
	remoteHash := remoteTaskHash(rt)
	d := DecideWinner(
		TaskSnapshot{Hash: localHash},
		TaskSnapshot{Hash: remoteHash, ModifiedAt: rt.LastModified},
		SyncRecord{LocalHash: entry.LocalHash, RemoteHash: entry.RemoteHash, RemoteModifiedAt: entry.RemoteModifiedAt},
	)
	if d.RemoteStale {
		p.c.logf("stale remote signal for %s (remote %s): modification clock unchanged but content differs, keeping local", marker, rt.ID)
	}

	if d.Winner == WinnerRemote {
		rec.Title = canonical.Canonicalize(rt.Title)
		rec.Completed = rt.Completed()
		rec.DueDate = rt.Due.DueDate()
	} else if localHash != remoteHash {
		// Local won but remote still carries the losing state.
		if err := p.pushTask(ctx, rec, entry); err != nil {
			p.c.logf("pushing winning local state of %s: %v", marker, err)
		} else {
			p.sum.Pushed++
		}
	}
	p.attachTag(rec, tag)

	// Both stored hashes describe the rendered state. The remote clock
	// is acknowledged only when remote did not lose, so a rejected
	// remote edit is re-examined next pass.
	final := rec.LocalHash()
	entry.LocalHash = final
	entry.RemoteHash = final
	if d.Winner == WinnerRemote {
		entry.RemoteModifiedAt = rt.LastModified
	}
	entry.SyncedAt = p.c.now()
	p.c.store.SetTask(p.docPath, marker, entry)

	p.mergeChecklist(ctx, col, rec, rt)
}

// attachTag re-attaches the collection's routing or pull tag unless the
// record already carries a tag or the title literally contains it.
func (p *pass) attachTag(rec *task.Record, tag string) {
	if tag == "" || rec.Tag != "" {
		return
	}
	if strings.Contains(rec.Title, "#"+tag) {
		return
	}
	rec.Tag = tag
}

// pullNewTask surfaces a remote task never seen locally: a fresh marker,
// a rendered line inserted under the collection's heading (created at
// the document end when missing), and mapping entries for the task and
// each of its checklist items.
func (p *pass) pullNewTask(col todoapi.Collection, rt *todoapi.Task, tag string) {
	marker := task.NewTaskMarkerID()
	rec := &task.Record{
		Bullet:    "-",
		Completed: rt.Completed(),
		Title:     canonical.Canonicalize(rt.Title),
		DueDate:   rt.Due.DueDate(),
		MarkerID:  marker,
		Heading:   col.DisplayName,
	}
	p.attachTag(rec, tag)

	lines := []string{rec.Render()}
	for i := range rt.ChecklistItems {
		item := &rt.ChecklistItems[i]
		itemMarker := task.NewChecklistMarkerID()
		itemRec := &task.Record{
			Indent:    "    ",
			Bullet:    "-",
			Completed: item.IsChecked,
			Title:     canonical.Canonicalize(item.DisplayName),
			MarkerID:  itemMarker,
		}
		lines = append(lines, itemRec.Render())
		p.c.store.SetChecklist(p.docPath, itemMarker, mapstore.ChecklistEntry{
			CollectionID:     col.ID,
			ParentTaskID:     rt.ID,
			ItemID:           item.ID,
			SyncedAt:         p.c.now(),
			LocalHash:        itemRec.ChecklistHash(),
			RemoteHash:       remoteItemHash(item),
			RemoteModifiedAt: item.LastModified,
		})
		p.seenItems[itemMarker] = true
		p.sum.Pulled++
	}

	if anchor, ok := p.builder.sectionAnchor(col.DisplayName); ok {
		p.builder.insertAfter(anchor, lines...)
	} else if p.appendedSections[col.ID] {
		p.builder.appendLines(lines...)
	} else {
		p.appendedSections[col.ID] = true
		p.builder.appendLines(append([]string{"", "## " + col.DisplayName}, lines...)...)
	}

	p.c.store.SetTask(p.docPath, marker, mapstore.Entry{
		CollectionID:     col.ID,
		TaskID:           rt.ID,
		SyncedAt:         p.c.now(),
		LocalHash:        rec.LocalHash(),
		RemoteHash:       remoteTaskHash(rt),
		RemoteModifiedAt: rt.LastModified,
	})
	p.seen[marker] = true
	p.sum.Pulled++
}

// mergeChecklist reconciles a mapped task's checklist items with the
// nested lines under its document line.
func (p *pass) mergeChecklist(ctx context.Context, col todoapi.Collection, parent *task.Record, rt *todoapi.Task) {
	kids := p.children[parent.MarkerID]
	childIndent := parent.Indent + "    "
	lastLine := parent.Line
	if len(kids) > 0 {
		childIndent = kids[0].Indent
		lastLine = kids[len(kids)-1].Line
	}

	for i := range rt.ChecklistItems {
		item := &rt.ChecklistItems[i]
		marker, mapped := p.reverseItems[item.ID]
		var rec *task.Record
		if mapped {
			rec = p.byMarker[marker]
		}
		if rec == nil {
			if mapped {
				// Line removed locally; deletion detection handled it.
				continue
			}
			if item.IsChecked {
				// Same rule as tasks: items closed before we ever saw
				// them stay remote-only.
				continue
			}
			marker = task.NewChecklistMarkerID()
			rec = &task.Record{
				Indent:    childIndent,
				Bullet:    parent.Bullet,
				Completed: item.IsChecked,
				Title:     canonical.Canonicalize(item.DisplayName),
				MarkerID:  marker,
			}
			p.builder.insertAfter(lastLine, rec.Render())
			p.c.store.SetChecklist(p.docPath, marker, mapstore.ChecklistEntry{
				CollectionID:     col.ID,
				ParentTaskID:     rt.ID,
				ItemID:           item.ID,
				SyncedAt:         p.c.now(),
				LocalHash:        rec.ChecklistHash(),
				RemoteHash:       remoteItemHash(item),
				RemoteModifiedAt: item.LastModified,
			})
			p.seenItems[marker] = true
			p.sum.Pulled++
			continue
		}

		p.seenItems[marker] = true
		entry, ok := p.c.store.Checklist(p.docPath, marker)
		if !ok {
			continue
		}
		localHash := rec.ChecklistHash()
		remoteHash := remoteItemHash(item)
		d := DecideWinner(
			TaskSnapshot{Hash: localHash},
			TaskSnapshot{Hash: remoteHash, ModifiedAt: item.LastModified},
			SyncRecord{LocalHash: entry.LocalHash, RemoteHash: entry.RemoteHash, RemoteModifiedAt: entry.RemoteModifiedAt},
		)
		if d.Winner == WinnerLocal {
			if localHash != remoteHash {
				title := rec.Title
				if err := p.c.client.UpdateChecklistItem(ctx, col.ID, rt.ID, item.ID, &title, rec.Completed); err != nil {
					p.c.logf("pushing checklist item %s: %v", marker, err)
				} else {
					p.sum.Pushed++
				}
			}
		} else {
			rec.Title = canonical.Canonicalize(item.DisplayName)
			rec.Completed = item.IsChecked
		}

		final := rec.ChecklistHash()
		entry.LocalHash = final
		entry.RemoteHash = final
		if d.Winner == WinnerRemote {
			entry.RemoteModifiedAt = item.LastModified
		}
		entry.SyncedAt = p.c.now()
		p.c.store.SetChecklist(p.docPath, marker, entry)
	}

	// Local checklist lines whose remote item vanished follow it out.
	for _, kid := range kids {
		if kid.MarkerID == "" || p.seenItems[kid.MarkerID] {
			continue
		}
		if _, ok := p.c.store.Checklist(p.docPath, kid.MarkerID); !ok {
			continue
		}
		p.builder.dropLine(kid.Line)
		p.c.store.DeleteChecklist(p.docPath, kid.MarkerID)
		p.sum.Deleted++
	}
}

// pruneMappings removes mapping entries not confirmed by this pass:
// tasks deleted remotely lose their document line as well, while
// entries pointing at collections this document no longer binds keep
// their line but forget their mapping.
func (p *pass) pruneMappings() {
	for marker, entry := range p.c.store.TasksFor(p.docPath) {
		if p.seen[marker] || p.incomplete[entry.CollectionID] {
			continue
		}
		if !p.boundIDs[entry.CollectionID] {
			p.c.store.DeleteTask(p.docPath, marker)
			continue
		}
		rec := p.byMarker[marker]
		if rec == nil {
			p.c.store.DeleteTask(p.docPath, marker)
			continue
		}
		p.builder.dropLine(rec.Line)
		for _, kid := range p.children[marker] {
			p.builder.dropLine(kid.Line)
			if kid.MarkerID != "" {
				p.c.store.DeleteChecklist(p.docPath, kid.MarkerID)
			}
		}
		p.c.store.DeleteTask(p.docPath, marker)
		p.sum.Deleted++
	}

	for marker, entry := range p.c.store.ChecklistsFor(p.docPath) {
		if p.seenItems[marker] || p.incomplete[entry.CollectionID] {
			continue
		}
		p.c.store.DeleteChecklist(p.docPath, marker)
	}
}
