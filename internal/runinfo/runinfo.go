// Package runinfo implements the Running info record (spec.md §3): a
// lock-protected aggregate surfaced through a polling callback at most
// every 500ms except on forced updates.
package runinfo

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gaby/archivebackup/internal/engineopts"
)

// EntryProgress is one in-flight entry's transfer progress.
type EntryProgress struct {
	Name      string
	DoneBytes uint64
	TotalBytes uint64
}

// StorageProgress is one in-flight storage message's transfer progress.
type StorageProgress struct {
	Name       string
	DoneBytes  uint64
	TotalBytes uint64
}

// Snapshot is an immutable copy of RunningInfo handed to the callback.
type Snapshot struct {
	PerEntry     []EntryProgress
	PerStorage   []StorageProgress
	DoneCount    uint64
	DoneSize     uint64
	SkippedCount uint64
	SkippedSize  uint64
	ErrorCount   uint64
}

// Summary renders the one-line archive-end summary (spec.md §7: "At
// archive end, a single summary line follows"), using humanize for the
// byte-count formatting the spec's "with size ... annotation" calls for.
func (s Snapshot) Summary() string {
	return fmt.Sprintf("done=%d (%s) skipped=%d (%s) errors=%d",
		s.DoneCount, humanize.Bytes(s.DoneSize),
		s.SkippedCount, humanize.Bytes(s.SkippedSize),
		s.ErrorCount)
}

// Callback receives a Snapshot. It is invoked after the running-info
// lock is released, on every forced update and otherwise at most once
// per RunningInfoPollInterval.
type Callback func(Snapshot)

// RunningInfo is the shared, lock-protected aggregate (spec.md §5:
// "RunningInfo | driver | pipeline, workers, writer | running-info
// lock...").
type RunningInfo struct {
	mu sync.Mutex

	perEntry   map[string]*EntryProgress
	perStorage map[string]*StorageProgress

	doneCount    uint64
	doneSize     uint64
	skippedCount uint64
	skippedSize  uint64
	errorCount   uint64

	cb       Callback
	lastPoll time.Time
}

// New creates a RunningInfo reporting to cb, which may be nil.
func New(cb Callback) *RunningInfo {
	return &RunningInfo{
		perEntry:   make(map[string]*EntryProgress),
		perStorage: make(map[string]*StorageProgress),
		cb:         cb,
	}
}

// StartEntry registers a new in-flight entry with zero done bytes.
func (r *RunningInfo) StartEntry(name string, total uint64) {
	r.mu.Lock()
	r.perEntry[name] = &EntryProgress{Name: name, TotalBytes: total}
	r.mu.Unlock()
	r.poll(false)
}

// AdvanceEntry adds delta bytes to an in-flight entry's progress.
func (r *RunningInfo) AdvanceEntry(name string, delta uint64) {
	r.mu.Lock()
	if e, ok := r.perEntry[name]; ok {
		e.DoneBytes += delta
	}
	r.mu.Unlock()
	r.poll(false)
}

// FinishEntry removes name from per-entry tracking and folds its
// outcome into the aggregate counters.
func (r *RunningInfo) FinishEntry(name string, size uint64, skipped, errored bool) {
	r.mu.Lock()
	delete(r.perEntry, name)
	switch {
	case errored:
		r.errorCount++
	case skipped:
		r.skippedCount++
		r.skippedSize += size
	default:
		r.doneCount++
		r.doneSize += size
	}
	r.mu.Unlock()
	r.poll(true)
}

// StartStorage / AdvanceStorage / FinishStorage mirror the per-entry
// calls for the storage queue's in-flight intermediate-file transfer.
func (r *RunningInfo) StartStorage(name string, total uint64) {
	r.mu.Lock()
	r.perStorage[name] = &StorageProgress{Name: name, TotalBytes: total}
	r.mu.Unlock()
	r.poll(false)
}

func (r *RunningInfo) AdvanceStorage(name string, delta uint64) {
	r.mu.Lock()
	if s, ok := r.perStorage[name]; ok {
		s.DoneBytes += delta
	}
	r.mu.Unlock()
	r.poll(false)
}

func (r *RunningInfo) FinishStorage(name string) {
	r.mu.Lock()
	delete(r.perStorage, name)
	r.mu.Unlock()
	r.poll(true)
}

// Snapshot takes an immediate, consistent copy of the current state.
func (r *RunningInfo) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *RunningInfo) snapshotLocked() Snapshot {
	s := Snapshot{
		DoneCount:    r.doneCount,
		DoneSize:     r.doneSize,
		SkippedCount: r.skippedCount,
		SkippedSize:  r.skippedSize,
		ErrorCount:   r.errorCount,
	}
	for _, e := range r.perEntry {
		s.PerEntry = append(s.PerEntry, *e)
	}
	for _, st := range r.perStorage {
		s.PerStorage = append(s.PerStorage, *st)
	}
	return s
}

// poll invokes the callback if forced, or if RunningInfoPollInterval has
// elapsed since the last invocation (spec.md §3).
func (r *RunningInfo) poll(forced bool) {
	if r.cb == nil {
		return
	}
	r.mu.Lock()
	due := forced || time.Since(r.lastPoll) >= engineopts.RunningInfoPollInterval
	var snap Snapshot
	if due {
		r.lastPoll = time.Now()
		snap = r.snapshotLocked()
	}
	r.mu.Unlock()
	if due {
		r.cb(snap)
	}
}
