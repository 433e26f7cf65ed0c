// Package pipeline implements ArchivePipeline (spec.md §4.5): it turns
// one storage name into a sequence of entry descriptors published onto
// the entry queue.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gaby/archivebackup/internal/contracts"
	"github.com/gaby/archivebackup/internal/engineopts"
	"github.com/gaby/archivebackup/internal/jobstate"
	"github.com/gaby/archivebackup/internal/queue"
)

// ErrInvalidSignature is surfaced when signature verification fails and
// ForceSignatureVerify is set (spec.md §6 error codes).
var ErrInvalidSignature = errors.New("invalid signature")

// FailureSink lets the pipeline observe a job-wide terminal failure set
// by a worker, so it can stop publishing (spec.md §4.5: "Loop exits...
// on a terminal failure flag set by any worker").
type FailureSink interface {
	Failed() bool
}

// Pipeline drives one archive's entry stream onto Queue.
type Pipeline struct {
	Archive  contracts.Archive
	Storage  contracts.Storage
	Crypto   contracts.Crypto
	Password contracts.PasswordProvider
	Options  *engineopts.Options
	Queue    *queue.Queue[Descriptor]

	// IsAborted is the external cooperative-abort callback (spec.md §6).
	IsAborted func() bool
	Failure   FailureSink

	Logf func(format string, args ...any)
}

func (p *Pipeline) logf(format string, args ...any) {
	if p.Logf != nil {
		p.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Run opens storageName, optionally verifies signatures, then iterates
// archive entries publishing descriptors until end-of-archive, abort, or
// failure. It always closes the queue on return (spec.md §4.5).
func (p *Pipeline) Run(ctx context.Context, storageName string) error {
	defer p.Queue.Close()

	name, _, err := p.Storage.ParseName(storageName)
	if err != nil {
		return fmt.Errorf("pipeline: parse name: %w", err)
	}
	if ok, err := p.Storage.Exists(ctx, name); err != nil {
		return fmt.Errorf("pipeline: check exists: %w", err)
	} else if !ok {
		return fmt.Errorf("pipeline: archive not found: %s", name)
	}

	handle, err := p.Archive.Open(ctx, p.Storage, name, nil, contracts.ArchiveOpenFlags{SkipUnknownChunks: true}, p.Password)
	if err != nil {
		return fmt.Errorf("pipeline: open archive: %w", err)
	}
	defer handle.Close()

	if !p.Options.SkipSignatureVerify {
		state, verr := handle.VerifySignatures()
		switch {
		case verr != nil:
			return fmt.Errorf("pipeline: verify signatures: %w", verr)
		case state == contracts.SignatureNoPublicKey && !p.Options.ForceSignatureVerify:
			p.logf("pipeline: %s: signature skipped (no public key)", name)
		case state == contracts.SignatureValid || state == contracts.SignatureSkipped:
			// proceed
		default:
			if p.Options.ForceSignatureVerify {
				return fmt.Errorf("pipeline: %s: %w", name, ErrInvalidSignature)
			}
			p.logf("pipeline: %s: WARN invalid signature state=%v", name, state)
		}
	}

	cursor, err := handle.OpenCursor(nil)
	if err != nil {
		return fmt.Errorf("pipeline: open cursor: %w", err)
	}
	defer cursor.Close()

	var lastSignatureOffset uint64
	for {
		if p.aborted(ctx) {
			return fmt.Errorf("pipeline: %w", jobstate.ErrAborted)
		}
		if p.Failure != nil && p.Failure.Failed() {
			return nil
		}
		if cursor.EOF() {
			return nil
		}

		next, err := cursor.GetNextEntry()
		if err != nil {
			return fmt.Errorf("pipeline: next entry: %w", err)
		}

		if next.Type == contracts.EntrySignature {
			if !p.Options.SkipSignatureVerify {
				if _, verr := cursor.VerifySignatureEntry(lastSignatureOffset); verr != nil {
					p.logf("pipeline: %s: signature segment verify WARN: %v", name, verr)
				}
			}
			lastSignatureOffset = next.Offset
			if err := cursor.SkipEntry(); err != nil {
				return fmt.Errorf("pipeline: skip signature entry: %w", err)
			}
			continue
		}

		desc := Descriptor{
			ArchiveEpoch:  1,
			ArchiveHandle: handle,
			EntryType:     next.Type,
			Crypto:        next.Crypto,
			ByteOffset:    next.Offset,
		}
		if !p.Queue.Put(desc) {
			return nil
		}

		if err := cursor.SkipEntry(); err != nil {
			return fmt.Errorf("pipeline: skip entry: %w", err)
		}
	}
}

func (p *Pipeline) aborted(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return p.IsAborted != nil && p.IsAborted()
}
