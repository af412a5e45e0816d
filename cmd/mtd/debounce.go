package main

import (
	"sync"
	"time"
)

// docDebouncer coalesces bursts of writes to vault documents into one
// push per document after a quiet period. Each document path gets its
// own timer, so a burst of saves in one file never delays the push for
// another. Safe for concurrent use.
type docDebouncer struct {
	mu      sync.Mutex
	quiet   time.Duration
	push    func(path string)
	pending map[string]*pendingPush
}

// pendingPush tracks the armed timer for one document. The sequence
// number invalidates timers that fire after a later Touch re-armed the
// window.
type pendingPush struct {
	timer *time.Timer
	seq   uint64
}

func newDocDebouncer(quiet time.Duration, push func(path string)) *docDebouncer {
	return &docDebouncer{
		quiet:   quiet,
		push:    push,
		pending: make(map[string]*pendingPush),
	}
}

// Touch records a write to path and restarts its quiet-period window.
// The push runs once, after quiet has elapsed since the last Touch of
// that path.
func (d *docDebouncer) Touch(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pending[path]
	if !ok {
		p = &pendingPush{}
		d.pending[path] = p
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.seq++
	seq := p.seq

	p.timer = time.AfterFunc(d.quiet, func() {
		d.mu.Lock()
		if p.seq != seq {
			// A later Touch re-armed the window; this fire is stale.
			d.mu.Unlock()
			return
		}
		p.timer = nil
		delete(d.pending, path)
		d.mu.Unlock()
		d.push(path)
	})
}

// Stop cancels every pending push. Documents touched afterwards start
// fresh windows.
func (d *docDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for path, p := range d.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.seq++
		delete(d.pending, path)
	}
}
