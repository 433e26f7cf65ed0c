// Package driver implements Driver (spec.md §4.8): the per-storage-name
// orchestrator that resolves archive names, spins up the pipeline,
// workers, and (convert only) the storage writer for each archive, and
// runs the end-of-job incomplete-fragment scan.
package driver

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/gaby/archivebackup/internal/contracts"
	"github.com/gaby/archivebackup/internal/engineopts"
	"github.com/gaby/archivebackup/internal/fragment"
	"github.com/gaby/archivebackup/internal/jobstate"
	"github.com/gaby/archivebackup/internal/namedict"
	"github.com/gaby/archivebackup/internal/pipeline"
	"github.com/gaby/archivebackup/internal/queue"
	"github.com/gaby/archivebackup/internal/runinfo"
	"github.com/gaby/archivebackup/internal/storagewriter"
	"github.com/gaby/archivebackup/internal/strpattern"
	"github.com/gaby/archivebackup/internal/worker"
)

// ErrEntryIncomplete is reported for each FragmentTracker node still
// present at archive end when fragment checking is enabled (spec.md
// §4.8).
type ErrEntryIncomplete struct{ Name string }

func (e *ErrEntryIncomplete) Error() string { return fmt.Sprintf("entry incomplete: %s", e.Name) }

// Driver runs one job (test, restore, or convert) across a set of
// storage names.
type Driver struct {
	Archive     contracts.Archive
	Storage     contracts.Storage
	FS          contracts.FileSystem // restore destination; nil for test/convert
	Crypto      contracts.Crypto
	Compression contracts.Compression
	Password    contracts.PasswordProvider

	Mode      worker.Mode
	LocalDest bool // convert: destination is a local filesystem path

	Include *namedict.EntryList
	Exclude *namedict.EntryList
	Options *engineopts.Options

	Callbacks contracts.Callbacks
	Logf      func(format string, args ...any)
}

func (d *Driver) isPaused() bool {
	return d.Callbacks.IsPaused != nil && d.Callbacks.IsPaused(nil)
}

func (d *Driver) logf(format string, args ...any) {
	if d.Logf != nil {
		d.Logf(format, args...)
	}
}

func (d *Driver) isAborted() bool {
	return d.Callbacks.IsAborted != nil && d.Callbacks.IsAborted(nil)
}

func (d *Driver) numWorkers() int {
	if d.Options.RestoreSingleThreaded {
		return 1
	}
	if d.Options.MaxThreads > 0 {
		return d.Options.MaxThreads
	}
	return runtime.NumCPU()
}

// Run processes every input storage name, returning the first observed
// terminal error, jobstate.ErrAborted, or nil (spec.md §4.8).
func (d *Driver) Run(ctx context.Context, storageNames []string) error {
	var firstErr error
	for _, raw := range storageNames {
		if d.isAborted() {
			return jobstate.ErrAborted
		}
		if err := d.runInput(ctx, raw); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// runInput resolves raw to either a single archive or, if it names a
// directory plus pattern, every matching entry in that directory.
func (d *Driver) runInput(ctx context.Context, raw string) error {
	name, isDirPattern, err := d.Storage.ParseName(raw)
	if err != nil {
		return fmt.Errorf("driver: parse name: %w", err)
	}
	if !isDirPattern {
		return d.runArchive(ctx, name)
	}

	pat, err := strpattern.Compile(strpattern.Glob, contracts.GetBaseName(raw), false)
	if err != nil {
		return fmt.Errorf("driver: compile pattern: %w", err)
	}

	dl, err := d.Storage.OpenDirectoryList(ctx, name)
	if err != nil {
		return fmt.Errorf("driver: open directory list: %w", err)
	}
	defer dl.Close()

	var firstErr error
	for {
		entry, ok, err := dl.Next()
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("driver: directory list: %w", err)
			}
			break
		}
		if !ok {
			break
		}
		if entry.Kind == contracts.DirEntryOther {
			continue
		}
		if _, _, matched := strpattern.Match(pat, entry.Name, 0, strpattern.FullyAnchored); !matched {
			continue
		}
		full := contracts.AppendFileName(name, entry.Name)
		if err := d.runArchive(ctx, full); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// runArchive drives one archive through Opening -> Verifying ->
// Streaming -> Draining -> Closed (spec.md §4.8).
func (d *Driver) runArchive(ctx context.Context, archiveName string) error {
	state := &jobstate.State{}
	tracker := fragment.New()
	dict := namedict.NewDictionary()
	ri := runinfo.New(func(snap runinfo.Snapshot) {
		if d.Callbacks.RunningInfo != nil {
			d.Callbacks.RunningInfo(snap, nil)
		}
	})

	entryQueue := queue.New[pipeline.Descriptor](engineopts.EntryQueueCapacity)
	var storageQueue *queue.Queue[storagewriter.Message]
	var destHandle contracts.Handle
	var destName string
	if d.Mode == worker.ModeConvert {
		// Unbounded: the queue only ever carries the single intermediate
		// file the destination archive handle materializes at Close, so
		// there is no producer/consumer backpressure to bound (spec.md
		// §4.4).
		storageQueue = queue.New[storagewriter.Message](0)

		// No destination-naming scheme is prescribed; ".converted" is
		// this repo's own convention for the rewritten archive.
		destName = archiveName + ".converted"
		h, err := d.Archive.Create(ctx, d.Storage, destName, d.Password)
		if err != nil {
			return fmt.Errorf("driver: create destination archive: %w", err)
		}
		destHandle = h
	}

	pl := &pipeline.Pipeline{
		Archive:   d.Archive,
		Storage:   d.Storage,
		Crypto:    d.Crypto,
		Password:  d.Password,
		Options:   d.Options,
		Queue:     entryQueue,
		IsAborted: d.isAborted,
		Failure:   state,
		Logf:      d.Logf,
	}

	// The writer starts before the pipeline and runs concurrently with
	// it and the workers (spec.md §4.8: "start N workers ... (convert
	// only) start the writer thread; run the pipeline ... join workers;
	// (convert only) close the destination archive, close the storage
	// queue, join writer"). It is joined only after the entry side has
	// fully drained and the storage queue is closed.
	var sw *storagewriter.Writer
	var writerErr error
	var writerDone chan struct{}
	if storageQueue != nil {
		sw = &storagewriter.Writer{
			Storage: d.Storage,
			Queue:   storageQueue,
			State:   state,
			RunInfo: ri,
			Logf:    d.Logf,
		}
		writerDone = make(chan struct{})
		go func() {
			defer close(writerDone)
			writerErr = sw.Run(ctx)
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pl.Run(gctx, archiveName) })

	for i := 0; i < d.numWorkers(); i++ {
		proc := &worker.Processor{
			Mode:         d.Mode,
			StorageName:  archiveName,
			EntryQueue:   entryQueue,
			DestHandle:   destHandle,
			Tracker:      tracker,
			Dict:         dict,
			Include:      d.Include,
			Exclude:      d.Exclude,
			Options:      d.Options,
			RunInfo:      ri,
			State:        state,
			FS:           d.FS,
			LocalDest:    d.LocalDest,
			ErrorHandler: worker.ErrorHandler(d.Callbacks.ErrorHandler),
			Abort:        d.isAborted,
			Pause:        d.isPaused,
			Logf:         d.Logf,
		}
		g.Go(func() error { return proc.Run(gctx) })
	}

	runErr := g.Wait()

	if d.Mode == worker.ModeConvert && destHandle != nil {
		switch cerr := destHandle.Close(); {
		case runErr != nil:
			// job already failed; just release the destination handle.
		case cerr != nil:
			runErr = fmt.Errorf("driver: close destination archive: %w", cerr)
		default:
			if path := destHandle.IntermediatePath(); path != "" {
				var size uint64
				if fi, statErr := os.Stat(path); statErr == nil {
					size = uint64(fi.Size())
				}
				storageQueue.Put(storagewriter.Message{
					DestinationName:  destName,
					IntermediatePath: path,
					Size:             size,
					IsLocalPath:      d.LocalDest,
				})
			}
		}
	}

	if storageQueue != nil {
		storageQueue.Close()
		<-writerDone
	}

	var incompleteErr error
	if !d.Options.NoFragmentCheck {
		tracker.ForEach(func(n *fragment.Node) {
			d.logf("driver: WARN %s: entry incomplete", n.Name)
			if d.Mode != worker.ModeTest {
				if info, ok := n.UserData.(contracts.FileInfo); ok && d.FS != nil {
					if lf, err := d.FS.Open(n.Name, true); err == nil {
						lf.SetInfo(info)
						lf.Close()
					}
				}
			}
			if incompleteErr == nil {
				incompleteErr = &ErrEntryIncomplete{Name: n.Name}
			}
		})
	}

	switch {
	case runErr != nil:
		return runErr
	case writerErr != nil:
		return writerErr
	case d.Mode != worker.ModeConvert && incompleteErr != nil:
		return incompleteErr
	default:
		return nil
	}
}
