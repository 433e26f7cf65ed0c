package worker

import (
	"fmt"
	"io"

	"github.com/gaby/archivebackup/internal/contracts"
	"github.com/gaby/archivebackup/internal/pipeline"
)

// processFile implements the File/HardLink branch of spec.md §4.6.
// HardLink entries process only the first name's content; on restore,
// every remaining name becomes an additional link to that first name
// via FS.MakeHardLink, and on convert the full name list is forwarded
// unchanged onto the destination's new hardlink entry.
func (p *Processor) processFile(desc pipeline.Descriptor) error {
	var hdr contracts.FileEntryHeader
	var err error
	if desc.EntryType == contracts.EntryHardLink {
		hdr, err = p.cursor.ReadHardLinkEntry()
	} else {
		hdr, err = p.cursor.ReadFileEntry()
	}
	if err != nil {
		return p.onEntryError("", fmt.Errorf("read file entry: %w", err))
	}
	name := hdr.Names[0]

	if !p.matches(contracts.EntryFile, name) {
		return p.cursor.CloseEntry()
	}

	p.RunInfo.StartEntry(name, hdr.FragmentSize)

	outcome, err := p.resolveDestination(name, hdr.Size, hdr.FragmentOffset, hdr.FragmentSize)
	if err != nil {
		p.RunInfo.FinishEntry(name, 0, false, true)
		p.cursor.CloseEntry()
		return p.onEntryError(name, err)
	}
	if outcome.skip {
		p.RunInfo.FinishEntry(name, hdr.FragmentSize, true, false)
		return p.cursor.CloseEntry()
	}
	finalName := outcome.finalName

	var dst io.Writer = io.Discard
	var closeDst = func() error { return nil }

	if p.Options.DryRun {
		// leave dst as io.Discard
	} else {
		switch p.Mode {
		case ModeRestore:
			path := p.destPath(finalName)
			if mkErr := p.FS.MakeDirectory(contracts.GetDirectoryName(path), 0o755); mkErr != nil {
				p.warnf("mkdir %s: %v", path, mkErr)
			}
			lf, cerr := p.FS.Create(path)
			if cerr != nil {
				p.RunInfo.FinishEntry(name, 0, false, true)
				p.cursor.CloseEntry()
				return p.onEntryError(name, cerr)
			}
			if p.Options.SparseFiles {
				lf.Truncate(int64(hdr.Size))
			}
			if _, serr := lf.Seek(int64(hdr.FragmentOffset), io.SeekStart); serr != nil {
				lf.Close()
				p.RunInfo.FinishEntry(name, 0, false, true)
				p.cursor.CloseEntry()
				return p.onEntryError(name, serr)
			}
			dst, closeDst = lf, lf.Close
		case ModeConvert:
			dc, derr := p.openDestCursor()
			if derr != nil {
				p.RunInfo.FinishEntry(name, 0, false, true)
				p.cursor.CloseEntry()
				return p.onEntryError(name, derr)
			}
			outHdr := hdr
			outHdr.Names = append([]string(nil), hdr.Names...)
			if err := dc.NewFileEntry(outHdr); err != nil {
				p.RunInfo.FinishEntry(name, 0, false, true)
				p.cursor.CloseEntry()
				return p.onEntryError(name, err)
			}
			dst, closeDst = &cursorWriter{cursor: dc}, dc.CloseEntry
		}
	}

	streamErr := p.streamPayload(name, dst)
	if cerr := closeDst(); cerr != nil && streamErr == nil {
		streamErr = cerr
	}
	if streamErr != nil {
		p.RunInfo.FinishEntry(name, 0, false, true)
		p.cursor.CloseEntry()
		return p.onEntryError(name, streamErr)
	}

	if desc.EntryType == contracts.EntryHardLink && p.Mode == ModeRestore && !p.Options.DryRun {
		firstPath := p.destPath(finalName)
		for _, extra := range hdr.Names[1:] {
			if lerr := p.FS.MakeHardLink(firstPath, p.destPath(extra)); lerr != nil {
				p.RunInfo.FinishEntry(name, 0, false, true)
				p.cursor.CloseEntry()
				return p.onEntryError(extra, fmt.Errorf("make hard link: %w", lerr))
			}
		}
	}

	info := hdr.Info
	p.completeFragment(finalName, hdr.FragmentOffset, hdr.FragmentSize, &info)
	p.RunInfo.FinishEntry(name, hdr.FragmentSize, false, false)

	if !hdr.DeltaUsed && !hdr.ByteCompressUsed && !p.cursor.EOFData() {
		p.warnf("%s: trailing data after uncompressed stream", name)
	}
	return p.cursor.CloseEntry()
}
