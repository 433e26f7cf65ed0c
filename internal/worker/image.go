package worker

import (
	"fmt"
	"io"

	"github.com/gaby/archivebackup/internal/contracts"
	"github.com/gaby/archivebackup/internal/engineopts"
	"github.com/gaby/archivebackup/internal/jobstate"
	"github.com/gaby/archivebackup/internal/pipeline"
)

// processImage implements the Image branch of spec.md §4.6: same shape
// as File but the unit is a filesystem block, tracked in byte units.
func (p *Processor) processImage(desc pipeline.Descriptor) error {
	hdr, err := p.cursor.ReadImageEntry()
	if err != nil {
		return p.onEntryError("", fmt.Errorf("read image entry: %w", err))
	}
	name := hdr.Name

	if !p.matches(contracts.EntryImage, name) {
		return p.cursor.CloseEntry()
	}
	if hdr.BlockSize > uint64(engineopts.BufferSize) {
		p.cursor.CloseEntry()
		return p.onEntryError(name, &ErrInvalidDeviceBlockSize{Name: name, BlockSize: hdr.BlockSize})
	}

	totalBytes := hdr.BlockCount * hdr.BlockSize
	p.RunInfo.StartEntry(name, totalBytes)

	outcome, err := p.resolveDestination(name, totalBytes, 0, totalBytes)
	if err != nil {
		p.RunInfo.FinishEntry(name, 0, false, true)
		p.cursor.CloseEntry()
		return p.onEntryError(name, err)
	}
	if outcome.skip {
		p.RunInfo.FinishEntry(name, totalBytes, true, false)
		return p.cursor.CloseEntry()
	}

	var dst io.Writer = io.Discard
	closeDst := func() error { return nil }
	if !p.Options.DryRun {
		switch p.Mode {
		case ModeRestore:
			path := p.destPath(outcome.finalName)
			var lf contracts.LocalFile
			if p.FS.IsDevice(path) {
				lf, err = p.FS.Open(path, true)
			} else {
				lf, err = p.FS.Create(path)
			}
			if err != nil {
				p.RunInfo.FinishEntry(name, 0, false, true)
				p.cursor.CloseEntry()
				return p.onEntryError(name, err)
			}
			dst, closeDst = lf, lf.Close
		case ModeConvert:
			dc, derr := p.openDestCursor()
			if derr != nil {
				p.RunInfo.FinishEntry(name, 0, false, true)
				p.cursor.CloseEntry()
				return p.onEntryError(name, derr)
			}
			if err := dc.NewImageEntry(hdr); err != nil {
				p.RunInfo.FinishEntry(name, 0, false, true)
				p.cursor.CloseEntry()
				return p.onEntryError(name, err)
			}
			dst, closeDst = &cursorWriter{cursor: dc}, dc.CloseEntry
		}
	}

	blocksPerChunk := uint64(engineopts.BufferSize) / max64(hdr.BlockSize, 1)
	chunk := blocksPerChunk * hdr.BlockSize
	buf := make([]byte, chunk)
	remaining := hdr.BlockCount

	for remaining > 0 {
		if p.Abort != nil && p.Abort() {
			closeDst()
			return jobstate.ErrAborted
		}
		take := blocksPerChunk
		if remaining < take {
			take = remaining
		}
		n, rerr := p.cursor.ReadData(buf[:take*hdr.BlockSize])
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				closeDst()
				p.RunInfo.FinishEntry(name, 0, false, true)
				p.cursor.CloseEntry()
				return p.onEntryError(name, werr)
			}
			p.RunInfo.AdvanceEntry(name, uint64(n))
		}
		if rerr != nil && rerr != io.EOF {
			closeDst()
			p.RunInfo.FinishEntry(name, 0, false, true)
			p.cursor.CloseEntry()
			return p.onEntryError(name, rerr)
		}
		remaining -= take
	}
	if cerr := closeDst(); cerr != nil {
		p.RunInfo.FinishEntry(name, 0, false, true)
		p.cursor.CloseEntry()
		return p.onEntryError(name, cerr)
	}

	info := hdr.Info
	p.completeFragment(outcome.finalName, 0, totalBytes, &info)
	p.RunInfo.FinishEntry(name, totalBytes, false, false)
	return p.cursor.CloseEntry()
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
