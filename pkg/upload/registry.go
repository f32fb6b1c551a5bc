package upload

import (
	"sync"

	"github.com/google/uuid"
)

// Snapshot is an immutable view of the registry after one mutation.
// Entries lists existing files first, then local files in intake order.
type Snapshot struct {
	Version   uint64
	Entries   []Entry
	Uploading bool
}

// Locals returns the local entries of the snapshot.
func (s Snapshot) Locals() []LocalEntry {
	var out []LocalEntry
	for _, e := range s.Entries {
		if l, ok := e.(LocalEntry); ok {
			out = append(out, l)
		}
	}
	return out
}

// Remotes returns the existing entries of the snapshot.
func (s Snapshot) Remotes() []RemoteEntry {
	var out []RemoteEntry
	for _, e := range s.Entries {
		if r, ok := e.(RemoteEntry); ok {
			out = append(out, r)
		}
	}
	return out
}

// Registry holds existing and local entries. All writes go through
// mutate, which serializes them and publishes one Snapshot per change to
// subscribers in mutation order. Subscribers run synchronously and must
// neither mutate the registry nor cancel from within the callback.
type Registry struct {
	mu        sync.Mutex
	version   uint64
	remote    []RemoteEntry
	local     []*LocalEntry
	uploading bool
	closed    bool

	// notifyMu is taken before mu is released so deliveries keep mutation order.
	notifyMu sync.Mutex
	subs     map[int]func(Snapshot)
	nextSub  int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[int]func(Snapshot))}
}

// Subscribe registers fn for every subsequent snapshot. fn is called once
// immediately with the current state. The returned func cancels.
func (r *Registry) Subscribe(fn func(Snapshot)) (cancel func()) {
	r.mu.Lock()
	snap := r.snapshotLocked()
	r.notifyMu.Lock()
	r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	fn(snap)
	r.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.notifyMu.Lock()
			delete(r.subs, id)
			r.notifyMu.Unlock()
		})
	}
}

// Snapshot returns the current state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Entries returns existing entries first, then local entries.
func (r *Registry) Entries() []Entry {
	return r.Snapshot().Entries
}

// Counts returns the number of existing and local entries.
func (r *Registry) Counts() (existing, local int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.remote), len(r.local)
}

// SetExisting replaces every existing entry. An entry whose id is empty,
// repeats an earlier entry or belongs to a local entry gets a fresh id.
func (r *Registry) SetExisting(entries []RemoteEntry) {
	cp := append([]RemoteEntry(nil), entries...)
	r.mutate(func() bool {
		taken := make(map[string]bool, len(cp)+len(r.local))
		for _, e := range r.local {
			taken[e.ID] = true
		}
		for i := range cp {
			for cp[i].ID == "" || taken[cp[i].ID] {
				cp[i].ID = uuid.NewString()
			}
			taken[cp[i].ID] = true
		}
		r.remote = cp
		return true
	})
}

// Remove drops the entry with id. Local previews are released. Removing an
// existing entry only hides it; nothing is deleted on the server.
func (r *Registry) Remove(id string) (Entry, bool) {
	var removed Entry
	r.mutate(func() bool {
		for i, e := range r.remote {
			if e.ID == id {
				removed = e
				r.remote = append(r.remote[:i:i], r.remote[i+1:]...)
				return true
			}
		}
		for i, e := range r.local {
			if e.ID == id {
				e.Preview.Release()
				e.Preview = Preview{}
				removed = *e
				r.local = append(r.local[:i:i], r.local[i+1:]...)
				return true
			}
		}
		return false
	})
	return removed, removed != nil
}

// Close releases every local preview. Intake and upload are refused afterwards.
func (r *Registry) Close() {
	r.mutate(func() bool {
		if r.closed {
			return false
		}
		for _, e := range r.local {
			e.Preview.Release()
			e.Preview = Preview{}
		}
		r.closed = true
		return true
	})
}

// Closed reports whether Close was called.
func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// admit merges a validated batch. check sees the counts at merge time and
// may refuse the batch, in which case nothing changes and the batch
// previews are released.
func (r *Registry) admit(batch []*LocalEntry, replace bool, check func(existing, local int) error) error {
	var err error
	r.mutate(func() bool {
		if r.closed {
			err = ErrClosed
		} else if r.uploading {
			err = ErrBusy
		} else if check != nil {
			err = check(len(r.remote), len(r.local))
		}
		if err != nil {
			for _, e := range batch {
				e.Preview.Release()
			}
			return false
		}
		if replace {
			for _, e := range r.local {
				e.Preview.Release()
			}
			r.local = nil
		}
		r.local = append(r.local, batch...)
		return true
	})
	return err
}

// beginUpload moves every pending entry to uploading and returns copies
// of them in registry order.
func (r *Registry) beginUpload() ([]LocalEntry, error) {
	var (
		out []LocalEntry
		err error
	)
	r.mutate(func() bool {
		switch {
		case r.closed:
			err = ErrClosed
			return false
		case r.uploading:
			err = ErrBusy
			return false
		}
		for _, e := range r.local {
			if e.Status == StatusPending {
				e.Status = StatusUploading
				out = append(out, *e)
			}
		}
		if len(out) == 0 {
			err = ErrNothingToUpload
			return false
		}
		r.uploading = true
		return true
	})
	return out, err
}

// finishUpload applies per-entry outcomes and clears the in-flight flag.
// Entries removed while the upload ran are skipped.
func (r *Registry) finishUpload(outcomes map[string]outcome) {
	r.mutate(func() bool {
		for _, e := range r.local {
			o, ok := outcomes[e.ID]
			if !ok || !e.Status.canAdvance(o.status) {
				continue
			}
			e.Status = o.status
			e.Err = o.err
			if o.result != nil {
				res := *o.result
				e.Result = &res
			}
		}
		r.uploading = false
		return true
	})
}

type outcome struct {
	status Status
	err    string
	result *FileResult
}

func (r *Registry) snapshotLocked() Snapshot {
	entries := make([]Entry, 0, len(r.remote)+len(r.local))
	for _, e := range r.remote {
		entries = append(entries, e)
	}
	for _, e := range r.local {
		entries = append(entries, *e)
	}
	return Snapshot{Version: r.version, Entries: entries, Uploading: r.uploading}
}

// mutate runs fn under the registry lock. When fn reports a change the
// version is bumped and the new snapshot is delivered to subscribers.
func (r *Registry) mutate(fn func() bool) {
	r.mu.Lock()
	changed := fn()
	if !changed {
		r.mu.Unlock()
		return
	}
	r.version++
	snap := r.snapshotLocked()
	r.notifyMu.Lock()
	r.mu.Unlock()

	for _, fn := range r.subs {
		fn(snap)
	}
	r.notifyMu.Unlock()
}
