package engine

import (
	"context"
	"fmt"

	"github.com/tasksync/mtd/internal/mapstore"
	"github.com/tasksync/mtd/internal/task"
	"github.com/tasksync/mtd/internal/todoapi"
)

// ScanAndRouteAllDocuments sweeps every vault document for routing
// tags. An unmarked tagged task is created remotely in the rule's
// collection and its line rewritten in place with a fresh marker; a
// mapped task whose tag now routes elsewhere is moved (old remote task
// deleted best-effort, new one created, mapping replaced wholesale with
// the document marker unchanged). The mapping store is saved after each
// mutation, so an interrupted sweep never duplicates remote tasks.
func (c *Context) ScanAndRouteAllDocuments(ctx context.Context) (*Summary, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.release()

	known, err := c.knownCollections(ctx)
	if err != nil {
		return nil, err
	}
	parser := c.parser(known)

	paths, err := c.docs.AllDocuments()
	if err != nil {
		return nil, err
	}

	sum := &Summary{}
	for _, path := range paths {
		if err := c.scanDocument(ctx, path, parser, sum); err != nil {
			c.logf("scanning %s: %v", path, err)
		}
	}
	return sum, nil
}

func (c *Context) scanDocument(ctx context.Context, path string, parser *task.Parser, sum *Summary) error {
	text, err := c.docs.Read(path)
	if err != nil {
		return err
	}

	p := c.newPass(path, text, parser, nil)
	changed := false
	for _, rec := range p.records {
		if p.isChild[rec] || rec.IsChecklist() {
			continue
		}
		rule, ok := c.routes.Resolve(rec.Tag)
		if !ok {
			continue
		}

		if rec.MarkerID == "" {
			created, err := c.client.CreateTask(ctx, rule.CollectionID, todoapi.TaskCreate{
				Title:     rec.Title,
				Completed: rec.Completed,
				DueDate:   rec.DueDate,
			})
			if err != nil {
				c.logf("creating %q in %s: %v", rec.Title, rule.CollectionName, err)
				continue
			}
			rec.MarkerID = task.NewTaskMarkerID()
			p.builder.replaceLine(rec.Line, rec.Render())
			changed = true
			c.store.SetTask(path, rec.MarkerID, mapstore.Entry{
				CollectionID:     rule.CollectionID,
				TaskID:           created.ID,
				SyncedAt:         c.now(),
				LocalHash:        rec.LocalHash(),
				RemoteHash:       remoteTaskHash(created),
				RemoteModifiedAt: created.LastModified,
			})
			if err := c.store.Save(); err != nil {
				return fmt.Errorf("persisting mapping store: %w", err)
			}
			sum.Created++
			continue
		}

		entry, ok := c.store.Task(path, rec.MarkerID)
		if !ok || entry.CollectionID == rule.CollectionID {
			continue
		}

		// Tag now routes elsewhere: move the task. The old remote copy
		// may already be gone; that is not a failure.
		if err := c.client.DeleteTask(ctx, entry.CollectionID, entry.TaskID); err != nil && !todoapi.IsNotFound(err) {
			c.logf("deleting moved task %s from old collection: %v", rec.MarkerID, err)
		}
		created, err := c.client.CreateTask(ctx, rule.CollectionID, todoapi.TaskCreate{
			Title:     rec.Title,
			Completed: rec.Completed,
			DueDate:   rec.DueDate,
		})
		if err != nil {
			c.logf("recreating moved task %s in %s: %v", rec.MarkerID, rule.CollectionName, err)
			continue
		}
		c.store.SetTask(path, rec.MarkerID, mapstore.Entry{
			CollectionID:     rule.CollectionID,
			TaskID:           created.ID,
			SyncedAt:         c.now(),
			LocalHash:        rec.LocalHash(),
			RemoteHash:       remoteTaskHash(created),
			RemoteModifiedAt: created.LastModified,
		})
		if err := c.store.Save(); err != nil {
			return fmt.Errorf("persisting mapping store: %w", err)
		}
		sum.Moved++
	}

	if changed {
		if out := p.builder.build(); out != text {
			return c.docs.Replace(path, out)
		}
	}
	return nil
}
