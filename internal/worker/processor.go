// Package worker implements EntryProcessor (spec.md §4.6): the worker
// body that consumes entry descriptors, applies include/exclude and
// collision policy, streams payloads, and (restore/convert) produces
// output.
package worker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gaby/archivebackup/internal/contracts"
	"github.com/gaby/archivebackup/internal/engineopts"
	"github.com/gaby/archivebackup/internal/fragment"
	"github.com/gaby/archivebackup/internal/jobstate"
	"github.com/gaby/archivebackup/internal/namedict"
	"github.com/gaby/archivebackup/internal/pipeline"
	"github.com/gaby/archivebackup/internal/queue"
	"github.com/gaby/archivebackup/internal/runinfo"
	"github.com/gaby/archivebackup/internal/strpattern"
)

// pausePollInterval matches the source's pause-polling cadence in the
// payload loop (spec.md §5: "external pause callback (polled with 500
// ms sleeps in the payload loop)").
const pausePollInterval = 500 * time.Millisecond

// Mode selects which of the three operations the processor runs under.
type Mode int

const (
	ModeTest Mode = iota
	ModeRestore
	ModeConvert
)

// ErrorHandler matches the job-options error handler shape (spec.md
// §6): it may downgrade an error to nil (success).
type ErrorHandler func(storageName, entryName string, err error, userData any) error

// Processor is one worker (spec.md §5: "N workers (consumers of entry
// queue; in convert mode also producers onto the destination archive
// via their own write cursor)").
type Processor struct {
	Mode        Mode
	StorageName string

	EntryQueue *queue.Queue[pipeline.Descriptor]
	DestHandle contracts.Handle // convert only: shared destination archive

	Tracker *fragment.Tracker
	Dict    *namedict.NameDictionary
	Include *namedict.EntryList
	Exclude *namedict.EntryList

	Options *engineopts.Options
	RunInfo *runinfo.RunningInfo
	State   *jobstate.State

	FS           contracts.FileSystem // restore destination
	LocalDest    bool                 // convert: destination is a local path
	ErrorHandler ErrorHandler
	Abort        func() bool
	Pause        func() bool
	Logf         func(format string, args ...any)

	epoch      uint64
	cursor     contracts.Cursor
	destCursor contracts.Cursor
}

// openDestCursor lazily opens this worker's write cursor onto the
// shared convert destination handle (spec.md §4.6/§4.8: each worker
// forwards entries onto the new archive via its own cursor, the same
// shape as the read side's per-thread OpenCursor).
func (p *Processor) openDestCursor() (contracts.Cursor, error) {
	if p.destCursor != nil {
		return p.destCursor, nil
	}
	if p.DestHandle == nil {
		return nil, fmt.Errorf("worker: internal error: convert destination handle not set")
	}
	c, err := p.DestHandle.OpenCursor(nil)
	if err != nil {
		return nil, fmt.Errorf("worker: open destination cursor: %w", err)
	}
	p.destCursor = c
	return c, nil
}

// cursorWriter adapts a destination Cursor's WriteData to io.Writer so
// convert-mode entries stream through the same payload-copy path as
// restore.
type cursorWriter struct {
	cursor contracts.Cursor
}

func (w *cursorWriter) Write(buf []byte) (int, error) {
	return w.cursor.WriteData(buf)
}

func (p *Processor) logf(format string, args ...any) {
	if p.Logf != nil {
		p.Logf(format, args...)
	}
}

func (p *Processor) warnf(format string, args ...any) {
	p.logf("worker: WARN "+format, args...)
}

// Run drains the entry queue until it closes, the job fails, or abort
// fires.
func (p *Processor) Run(ctx context.Context) error {
	defer func() {
		if p.cursor != nil {
			p.cursor.Close()
		}
		if p.destCursor != nil {
			p.destCursor.Close()
		}
	}()

	for {
		if p.Abort != nil && p.Abort() {
			p.State.Fail(jobstate.ErrAborted)
			return jobstate.ErrAborted
		}
		if p.State.Failed() {
			return nil
		}

		desc, ok := p.EntryQueue.Get()
		if !ok {
			return nil
		}

		if err := p.handle(ctx, desc); err != nil {
			p.State.Fail(err)
			return err
		}
	}
}

func (p *Processor) handle(ctx context.Context, desc pipeline.Descriptor) error {
	if p.cursor == nil || desc.ArchiveEpoch != p.epoch {
		if p.cursor != nil {
			p.cursor.Close()
		}
		cur, err := desc.ArchiveHandle.OpenCursor(desc.Crypto)
		if err != nil {
			return fmt.Errorf("worker: open cursor: %w", err)
		}
		p.cursor = cur
		p.epoch = desc.ArchiveEpoch
	}

	if err := p.cursor.Seek(desc.ByteOffset); err != nil {
		return fmt.Errorf("worker: seek: %w", err)
	}

	switch desc.EntryType {
	case contracts.EntryFile, contracts.EntryHardLink:
		return p.processFile(desc)
	case contracts.EntryImage:
		return p.processImage(desc)
	case contracts.EntryDirectory, contracts.EntryLink, contracts.EntrySpecial:
		return p.processSimple(desc)
	case contracts.EntryMeta:
		return p.processMeta()
	case contracts.EntrySignature, contracts.EntrySalt, contracts.EntryKey:
		return nil
	default:
		return fmt.Errorf("worker: internal error: unknown entry type %v", desc.EntryType)
	}
}

// onEntryError routes an entry-level failure through the job-options
// error handler, then the no-stop-on-error downgrade, per spec.md §4.6
// ("Failure semantics inside a worker").
func (p *Processor) onEntryError(name string, err error) error {
	if err == nil {
		return nil
	}
	if p.ErrorHandler != nil {
		err = p.ErrorHandler(p.StorageName, name, err, nil)
		if err == nil {
			return nil
		}
	}
	if p.Options.NoStopOnError {
		p.warnf("%s: %v (continuing)", name, err)
		return nil
	}
	return err
}

func (p *Processor) matches(entryType contracts.EntryType, name string) bool {
	if p.Include != nil && !p.Include.Match(entryType, name, strpattern.Unanchored) {
		return false
	}
	if p.Exclude != nil && p.Exclude.Match(entryType, name, strpattern.Unanchored) {
		return false
	}
	return true
}

// reservationOutcome is resolveDestination's verdict.
type reservationOutcome struct {
	finalName string
	skip      bool
}

// resolveDestination applies the collision table (spec.md §4.6) under
// the tracker lock: find-or-add the node, consult the NameDictionary,
// and decide stop/rename/overwrite/skip. It always adds to the
// dictionary on a successful (non-skip, non-error) reservation — the
// source's restore special-entry path was missing this under the
// exists-false branch (spec.md §9 open question); this implementation
// always adds.
//
// file-exists and fragment-exists are distinct events (spec.md §4.6
// collision table): file-exists means this name is already claimed by
// a prior entity (on disk or in the NameDictionary); fragment-exists
// means this specific byte range has already been recorded against
// this entity's own tracker node. A node simply existing is normal for
// the second and later fragment of one multi-fragment entity and must
// not by itself read as a collision.
func (p *Processor) resolveDestination(name string, totalSize, fragOffset, fragLength uint64) (reservationOutcome, error) {
	p.Tracker.Lock()
	defer p.Tracker.Unlock()

	node, nodeExists := p.Tracker.Find(name)
	onDisk := false
	if p.Mode == ModeRestore && p.FS != nil {
		onDisk = p.FS.Exists(p.destPath(name))
	}
	fileExists := !nodeExists && (onDisk || p.Dict.Contains(name))
	fragExists := nodeExists && fragment.RangeExists(node, fragOffset, fragLength)
	exists := fileExists || fragExists

	switch p.Options.ConflictPolicy {
	case engineopts.Stop:
		if exists {
			return reservationOutcome{}, &ErrFileExists{Name: name}
		}
	case engineopts.Rename:
		if exists {
			name = p.uniqueSibling(name)
		}
	case engineopts.Overwrite:
		// proceed; truncation/no-op happens where the destination is opened.
	case engineopts.SkipExisting:
		if exists {
			return reservationOutcome{skip: true}, nil
		}
	}

	if !nodeExists {
		p.Tracker.Add(name, totalSize, nil, 0)
	}
	p.Dict.Add(name)
	return reservationOutcome{finalName: name}, nil
}

// uniqueSibling generates a numeric-suffixed sibling name before the
// extension (spec.md S2: "a.log" -> "a-0.log"). Caller holds the
// tracker lock; Dict has its own lock and is always acquired after the
// tracker lock, never before, to keep lock order consistent.
func (p *Processor) uniqueSibling(name string) string {
	dir, base := contracts.SplitFileName(name)
	stem, ext := base, ""
	if idx := strings.LastIndexByte(base, '.'); idx > 0 {
		stem, ext = base[:idx], base[idx:]
	}
	for i := 0; ; i++ {
		candidate := contracts.AppendFileName(dir, fmt.Sprintf("%s-%d%s", stem, i, ext))
		if !p.Dict.Contains(candidate) {
			return candidate
		}
	}
}

func (p *Processor) destPath(name string) string {
	stripped := stripComponents(name, p.Options.DirectoryStripCount)
	return contracts.AppendFileName(p.Options.DestinationRoot, stripped)
}

func stripComponents(name string, n int) string {
	for ; n > 0; n-- {
		idx := strings.IndexByte(name, '/')
		if idx < 0 {
			return name
		}
		name = name[idx+1:]
	}
	return name
}

// streamPayload copies the current entry's payload from the cursor to
// dst in fixed BufferSize chunks, updating per-entry progress.
func (p *Processor) streamPayload(name string, dst io.Writer) error {
	buf := make([]byte, engineopts.BufferSize)
	for !p.cursor.EOFData() {
		if p.Abort != nil && p.Abort() {
			return jobstate.ErrAborted
		}
		for p.Pause != nil && p.Pause() {
			time.Sleep(pausePollInterval)
			if p.Abort != nil && p.Abort() {
				return jobstate.ErrAborted
			}
		}
		n, err := p.cursor.ReadData(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			p.RunInfo.AdvanceEntry(name, uint64(n))
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}
	return nil
}

// completeFragment adds [offset, offset+length) to the node's tracked
// ranges; if the node becomes complete, it finalizes destination
// metadata (restore only) and discards the node.
func (p *Processor) completeFragment(name string, offset, length uint64, info *contracts.FileInfo) {
	p.Tracker.Lock()
	defer p.Tracker.Unlock()

	node, ok := p.Tracker.Find(name)
	if !ok {
		return
	}
	fragment.AddRange(node, offset, length)
	if fragment.IsComplete(node) {
		if p.Mode == ModeRestore && info != nil {
			p.finalizeMetadata(name, *info)
		}
		p.Tracker.Discard(node)
	}
}

// finalizeMetadata applies ownership, permissions, timestamps, and
// extended attributes once a node completes (spec.md §4.6), downgrading
// owner/attribute errors to warnings under the matching job flags or on
// network filesystems.
func (p *Processor) finalizeMetadata(name string, info contracts.FileInfo) {
	if p.FS == nil {
		return
	}
	path := p.destPath(name)
	lf, err := p.FS.Open(path, true)
	if err != nil {
		p.warnf("finalize %s: %v", path, err)
		return
	}
	defer lf.Close()

	networked := p.FS.IsNetworkFilesystem(path)

	if err := lf.SetOwner(info.UID, info.GID); err != nil {
		if p.Options.NoStopOnOwnerError || networked {
			p.warnf("set owner %s: %v", path, err)
		} else {
			p.State.Fail(fmt.Errorf("worker: set owner %s: %w", path, err))
		}
	}
	if err := lf.SetPermission(info.Permissions); err != nil {
		p.warnf("set permission %s: %v", path, err)
	}
	if err := lf.SetInfo(info); err != nil {
		p.warnf("set timestamps %s: %v", path, err)
	}
	if len(info.Xattrs) > 0 {
		if err := lf.SetAttributes(info.Xattrs); err != nil {
			if p.Options.NoStopOnAttrError || networked {
				p.warnf("set xattrs %s: %v", path, err)
			} else {
				p.State.Fail(fmt.Errorf("worker: set xattrs %s: %w", path, err))
			}
		}
	}
}
