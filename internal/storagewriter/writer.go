// Package storagewriter implements StorageWriter (spec.md §4.7): the
// single consumer of the storage queue in convert mode, responsible for
// committing the locally materialized destination archive to its final
// storage location with rollback-on-failure semantics.
package storagewriter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/natefinch/atomic"

	"github.com/gaby/archivebackup/internal/contracts"
	"github.com/gaby/archivebackup/internal/jobstate"
	"github.com/gaby/archivebackup/internal/queue"
	"github.com/gaby/archivebackup/internal/runinfo"
)

// ErrNoSpace marks a storage-backend write failure that must not be
// retried (spec.md §4.7: "NoSpace errors do not retry").
var ErrNoSpace = errors.New("no space left on destination")

// Message is the storage queue's one unit of work: the intermediate
// file the driver obtained from closing the destination archive handle
// once every worker had finished forwarding entries into it.
type Message struct {
	DestinationName  string
	IntermediatePath string
	Size             uint64
	IsLocalPath      bool
}

const maxAttempts = 3

// Writer drains the storage queue until it closes.
type Writer struct {
	Storage contracts.Storage
	Queue   *queue.Queue[Message]
	State   *jobstate.State
	RunInfo *runinfo.RunningInfo

	Logf func(format string, args ...any)
}

func (w *Writer) logf(format string, args ...any) {
	if w.Logf != nil {
		w.Logf(format, args...)
	}
}

// Run consumes messages until the queue is closed. Once the job state
// has failed, remaining messages are drained by deleting their
// intermediate files only (spec.md §4.7, final paragraph).
func (w *Writer) Run(ctx context.Context) error {
	for {
		msg, ok := w.Queue.Get()
		if !ok {
			return nil
		}
		if w.State.Failed() {
			os.Remove(msg.IntermediatePath)
			continue
		}
		if err := w.commit(ctx, msg); err != nil {
			w.State.Fail(err)
		}
	}
}

func (w *Writer) commit(ctx context.Context, msg Message) (err error) {
	defer os.Remove(msg.IntermediatePath)

	w.RunInfo.StartStorage(msg.DestinationName, msg.Size)
	defer w.RunInfo.FinishStorage(msg.DestinationName)

	f, statErr := os.Stat(msg.IntermediatePath)
	if statErr != nil {
		return fmt.Errorf("storagewriter: stat intermediate: %w", statErr)
	}
	_ = f

	rollback := msg.DestinationName + ".rollback"
	existed, existsErr := w.Storage.Exists(ctx, msg.DestinationName)
	if existsErr != nil {
		return fmt.Errorf("storagewriter: check destination: %w", existsErr)
	}
	if existed {
		if err := w.Storage.Rename(ctx, msg.DestinationName, rollback); err != nil {
			return fmt.Errorf("storagewriter: rollback rename: %w", err)
		}
	}

	writeErr := w.write(ctx, msg)
	if writeErr == nil {
		if existed {
			if err := w.Storage.Delete(ctx, rollback); err != nil {
				w.logf("storagewriter: %s: rollback cleanup WARN: %v", rollback, err)
			}
		}
		return nil
	}

	w.Storage.Delete(ctx, msg.DestinationName)
	if existed {
		if err := w.Storage.Rename(ctx, rollback, msg.DestinationName); err != nil {
			w.logf("storagewriter: %s: rollback restore FAILED: %v", msg.DestinationName, err)
		}
	}
	return writeErr
}

func (w *Writer) write(ctx context.Context, msg Message) error {
	if msg.IsLocalPath {
		in, err := os.Open(msg.IntermediatePath)
		if err != nil {
			return fmt.Errorf("storagewriter: open intermediate: %w", err)
		}
		defer in.Close()
		if err := atomic.WriteFile(msg.DestinationName, in); err != nil {
			return fmt.Errorf("storagewriter: atomic write: %w", err)
		}
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := w.streamOnce(ctx, msg); err != nil {
			if errors.Is(err, ErrNoSpace) {
				return err
			}
			lastErr = err
			w.logf("storagewriter: %s: attempt %d/%d failed: %v", msg.DestinationName, attempt, maxAttempts, err)
			continue
		}
		return nil
	}
	return fmt.Errorf("storagewriter: %s: all attempts failed: %w", msg.DestinationName, lastErr)
}

func (w *Writer) streamOnce(ctx context.Context, msg Message) error {
	in, err := os.Open(msg.IntermediatePath)
	if err != nil {
		return fmt.Errorf("open intermediate: %w", err)
	}
	defer in.Close()

	dst, err := w.Storage.Create(ctx, msg.DestinationName, msg.Size, true)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	buf := make([]byte, 64*1024)
	var written uint64
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				dst.Close()
				return fmt.Errorf("write destination: %w", werr)
			}
			written += uint64(n)
			w.RunInfo.AdvanceStorage(msg.DestinationName, uint64(n))
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			dst.Close()
			return fmt.Errorf("read intermediate: %w", rerr)
		}
	}
	return dst.Close()
}
