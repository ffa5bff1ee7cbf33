package scheduler

import (
	"fmt"

	"fuzzexp/internal/backend"
	"fuzzexp/internal/resource"
	"fuzzexp/internal/types"
)

type runningEntry struct {
	assignment types.JobAssignment
	handle     backend.Handle
}

// registry tracks running jobs in launch order, so sweeps are deterministic.
type registry struct {
	order   []types.JobID
	entries map[types.JobID]runningEntry
}

func newRegistry() *registry {
	return &registry{entries: make(map[types.JobID]runningEntry)}
}

func (r *registry) add(e runningEntry) error {
	id := e.assignment.Job.ID()
	if _, ok := r.entries[id]; ok {
		return fmt.Errorf("%w: job %s registered twice", resource.ErrInvariantViolation, id)
	}
	r.order = append(r.order, id)
	r.entries[id] = e
	return nil
}

func (r *registry) remove(id types.JobID) (runningEntry, bool) {
	e, ok := r.entries[id]
	if !ok {
		return runningEntry{}, false
	}
	delete(r.entries, id)
	for i, cur := range r.order {
		if cur == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return e, true
}

func (r *registry) len() int {
	return len(r.entries)
}

// snapshot copies the entries so callers may remove while iterating the copy.
func (r *registry) snapshot() []runningEntry {
	out := make([]runningEntry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}
