// Package engineopts holds Job options (spec.md §3): the read-only
// configuration threaded explicitly through the pipeline, workers, and
// storage writer for one job run. This replaces the source's global
// globalOptions singleton (spec.md §9, Design Notes) with an explicit,
// per-worker context value — no process-wide mutable state in the core.
package engineopts

import "time"

// ConflictPolicy is the restore-conflict policy (spec.md §3, §4.6).
type ConflictPolicy int

const (
	Stop ConflictPolicy = iota
	Rename
	Overwrite
	SkipExisting
)

// Options is consumed, never owned, by the pipeline/workers/writer: it is
// passed by reference through the per-worker context (spec.md §9).
type Options struct {
	Include []string
	Exclude []string
	IgnoreCasePatterns bool

	DestinationRoot    string
	DirectoryStripCount int
	ConflictPolicy     ConflictPolicy

	DryRun             bool
	SparseFiles        bool
	NoFragmentCheck    bool
	NoStopOnError      bool
	NoStopOnOwnerError bool
	NoStopOnAttrError  bool

	SkipSignatureVerify bool
	ForceSignatureVerify bool

	// Convert-only.
	NewCompressionAlgorithm string
	NewCryptoAlgorithm      string
	NewJobUUID              string
	NewScheduleUUID         string
	NewCreatedTimestamp     time.Time
	NewComment              string

	// MaxThreads caps worker count; <=0 means "logical CPU count"
	// (spec.md §4.8). RestoreSingleThreaded forces exactly one worker.
	MaxThreads            int
	RestoreSingleThreaded bool
}

// BufferSize is the fixed per-thread payload buffer size (spec.md §5:
// "Buffers are per-thread 64 KiB byte arrays; no sharing").
const BufferSize = 64 * 1024

// EntryQueueCapacity is the entry queue's fixed capacity (spec.md §4.4).
const EntryQueueCapacity = 256

// RunningInfoPollInterval bounds how often the running-info callback may
// fire except on forced updates (spec.md §3).
const RunningInfoPollInterval = 500 * time.Millisecond
