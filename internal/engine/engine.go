// Package engine is the exposed surface (spec.md §6): test, restore,
// and convert entry points that wire the archive/storage/file-system
// collaborators into a Driver run.
package engine

import (
	"context"
	"time"

	"github.com/gaby/archivebackup/internal/contracts"
	"github.com/gaby/archivebackup/internal/driver"
	"github.com/gaby/archivebackup/internal/engineopts"
	"github.com/gaby/archivebackup/internal/namedict"
	"github.com/gaby/archivebackup/internal/runinfo"
	"github.com/gaby/archivebackup/internal/strpattern"
	"github.com/gaby/archivebackup/internal/worker"
)

// Dependencies bundles the external collaborators the core consumes
// (spec.md §6). FS is only required for Restore; LocalDest only
// matters for Convert.
type Dependencies struct {
	Archive     contracts.Archive
	Storage     contracts.Storage
	FS          contracts.FileSystem
	Crypto      contracts.Crypto
	Compression contracts.Compression
	LocalDest   bool
}

// ErrorHandler matches the restore error-callback shape (spec.md §6).
type ErrorHandler func(storageName, entryName string, err error, userData any) error

func compileList(ctx namedict.Context, patterns []string, ignoreCase bool) (*namedict.EntryList, error) {
	list := namedict.New(ctx)
	for _, raw := range patterns {
		pat, err := strpattern.Compile(strpattern.Glob, raw, ignoreCase)
		if err != nil {
			return nil, err
		}
		list.Add(namedict.MaskAll, pat)
	}
	return list, nil
}

func runningInfoBridge(cb runinfo.Callback) func(any, any) {
	if cb == nil {
		return nil
	}
	return func(snap any, _ any) {
		if s, ok := snap.(runinfo.Snapshot); ok {
			cb(s)
		}
	}
}

// Test verifies archive integrity without writing anything (spec.md
// §6: test(storages, include, exclude, options, running-info-cb,
// password-cb, aborted-cb, log) -> error).
func Test(
	ctx context.Context,
	deps Dependencies,
	storages, include, exclude []string,
	opts *engineopts.Options,
	runningInfoCB runinfo.Callback,
	passwordCB contracts.PasswordProvider,
	abortedCB func() bool,
	logf func(format string, args ...any),
) error {
	inc, err := compileList(namedict.Include, include, opts.IgnoreCasePatterns)
	if err != nil {
		return err
	}
	exc, err := compileList(namedict.Exclude, exclude, opts.IgnoreCasePatterns)
	if err != nil {
		return err
	}

	d := &driver.Driver{
		Archive:     deps.Archive,
		Storage:     deps.Storage,
		Crypto:      deps.Crypto,
		Compression: deps.Compression,
		Password:    passwordCB,
		Mode:        worker.ModeTest,
		Include:     inc,
		Exclude:     exc,
		Options:     opts,
		Callbacks: contracts.Callbacks{
			IsAborted:   func(any) bool { return abortedCB != nil && abortedCB() },
			RunningInfo: runningInfoBridge(runningInfoCB),
		},
		Logf: logf,
	}
	return d.Run(ctx, storages)
}

// Restore reconstructs files on disk (spec.md §6: restore(storages,
// include, exclude, options, running-info-cb, error-cb, password-cb,
// pause-cb, aborted-cb, log) -> error).
func Restore(
	ctx context.Context,
	deps Dependencies,
	storages, include, exclude []string,
	opts *engineopts.Options,
	runningInfoCB runinfo.Callback,
	errorCB ErrorHandler,
	passwordCB contracts.PasswordProvider,
	pauseCB func() bool,
	abortedCB func() bool,
	logf func(format string, args ...any),
) error {
	inc, err := compileList(namedict.Include, include, opts.IgnoreCasePatterns)
	if err != nil {
		return err
	}
	exc, err := compileList(namedict.Exclude, exclude, opts.IgnoreCasePatterns)
	if err != nil {
		return err
	}

	d := &driver.Driver{
		Archive:     deps.Archive,
		Storage:     deps.Storage,
		FS:          deps.FS,
		Crypto:      deps.Crypto,
		Compression: deps.Compression,
		Password:    passwordCB,
		Mode:        worker.ModeRestore,
		Include:     inc,
		Exclude:     exc,
		Options:     opts,
		Callbacks: contracts.Callbacks{
			IsAborted:   func(any) bool { return abortedCB != nil && abortedCB() },
			IsPaused:    func(any) bool { return pauseCB != nil && pauseCB() },
			RunningInfo: runningInfoBridge(runningInfoCB),
		},
		Logf: logf,
	}
	if errorCB != nil {
		d.Callbacks.ErrorHandler = func(storageName, entryName string, err error, userData any) error {
			return errorCB(storageName, entryName, err, userData)
		}
	}
	return d.Run(ctx, storages)
}

// Convert produces a new archive with different compression/crypto/
// metadata (spec.md §6: convert(storages, new-job-uuid,
// new-schedule-uuid, new-created-time, options, password-cb, log) ->
// error). Convert has no include/exclude surface: every entry is
// forwarded to the destination archive.
func Convert(
	ctx context.Context,
	deps Dependencies,
	storages []string,
	newJobUUID, newScheduleUUID string,
	newCreatedTime time.Time,
	opts *engineopts.Options,
	passwordCB contracts.PasswordProvider,
	logf func(format string, args ...any),
) error {
	o := *opts
	o.NewJobUUID = newJobUUID
	o.NewScheduleUUID = newScheduleUUID
	o.NewCreatedTimestamp = newCreatedTime

	d := &driver.Driver{
		Archive:     deps.Archive,
		Storage:     deps.Storage,
		Crypto:      deps.Crypto,
		Compression: deps.Compression,
		Password:    passwordCB,
		Mode:        worker.ModeConvert,
		LocalDest:   deps.LocalDest,
		Options:     &o,
		Logf:        logf,
	}
	return d.Run(ctx, storages)
}
