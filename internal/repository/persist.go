package repository

import (
	"context"

	"github.com/gcsplan/planner/pkg/core"
)

// Op names a persistence step.
type Op string

const (
	OpSaveStore  Op = "save_store"
	OpWriteItem  Op = "write_item"
	OpRemoveItem Op = "remove_item"
	OpRenameItem Op = "rename_item"
)

// PersistOutcome reports the result of one background persistence step.
type PersistOutcome struct {
	Op       Op
	Revision uint64 // repository revision that queued the step
	Name     string // waypoint name, empty for store saves
	OldName  string // previous name for renames
	Count    int    // collection size for store saves
	Err      error
}

type job struct {
	op       Op
	revision uint64
	waypoint core.Waypoint
	oldName  string
	snapshot []core.Waypoint
	done     chan struct{} // flush barrier when non-nil
}

// run is the single persistence worker. Jobs execute in queue order.
func (r *Repository) run() {
	defer close(r.stopped)
	for {
		for {
			j, ok := r.jobs.Pop()
			if !ok {
				break
			}
			r.execute(j)
		}
		if _, open := <-r.jobs.Ready(); !open {
			// closed: nothing more can be pushed, drain what slipped in
			for _, j := range r.jobs.GetAndEmpty() {
				r.execute(j)
			}
			return
		}
	}
}

func (r *Repository) execute(j job) {
	if j.done != nil {
		close(j.done)
		return
	}

	out := PersistOutcome{Op: j.op, Revision: j.revision}
	ctx := context.Background()

	switch j.op {
	case OpSaveStore:
		out.Count = len(j.snapshot)
		out.Err = r.deps.Store.Save(ctx, j.snapshot)
	case OpWriteItem:
		out.Name = j.waypoint.Name
		if r.deps.Items != nil {
			out.Err = r.deps.Items.Write(j.waypoint)
		}
	case OpRemoveItem:
		out.Name = j.waypoint.Name
		if r.deps.Items != nil {
			out.Err = r.deps.Items.Remove(j.waypoint.Name)
		}
	case OpRenameItem:
		out.Name = j.waypoint.Name
		out.OldName = j.oldName
		if r.deps.Items != nil {
			out.Err = r.deps.Items.Rename(j.oldName, j.waypoint.Name, j.waypoint)
		}
	}

	if out.Err != nil {
		r.log.Error("Persistence failed",
			"op", out.Op,
			"name", out.Name,
			"revision", out.Revision,
			"error", out.Err)
	} else {
		r.log.Debug("Persisted", "op", out.Op, "name", out.Name, "revision", out.Revision)
	}

	r.hookMu.RLock()
	hooks := r.hooks
	r.hookMu.RUnlock()
	for _, h := range hooks {
		h(out)
	}
}

// OnPersist registers a callback for every persistence outcome. Callbacks
// run on the worker goroutine and must not call back into Flush.
func (r *Repository) OnPersist(fn func(PersistOutcome)) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Flush waits until everything queued before the call has been persisted.
func (r *Repository) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !r.jobs.Push(job{done: done}) {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and stops the worker.
func (r *Repository) Close() error {
	if n := r.jobs.Len(); n > 0 {
		r.log.Info("Draining persistence queue", "jobs", n)
	}
	r.jobs.Close()
	<-r.stopped
	return nil
}

// enqueue must be called with r.mu held so jobs land in mutation order.
func (r *Repository) enqueue(jobs ...job) {
	if !r.jobs.Push(jobs...) {
		r.log.Warn("Repository closed, dropping persistence", "jobs", len(jobs))
	}
}

func (r *Repository) saveJob() job {
	return job{op: OpSaveStore, revision: r.revision, snapshot: r.snapshotLocked()}
}
