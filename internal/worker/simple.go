package worker

import (
	"fmt"

	"github.com/gaby/archivebackup/internal/contracts"
	"github.com/gaby/archivebackup/internal/pipeline"
)

// processSimple implements the Directory/Link/Special branch of
// spec.md §4.6: no payload, collision policy applies, metadata is
// applied as a single final step since these entries are always
// "complete" the instant they're read.
func (p *Processor) processSimple(desc pipeline.Descriptor) error {
	var name string
	var info contracts.FileInfo
	var create func() error

	switch desc.EntryType {
	case contracts.EntryDirectory:
		hdr, err := p.cursor.ReadDirectoryEntry()
		if err != nil {
			return p.onEntryError("", fmt.Errorf("read directory entry: %w", err))
		}
		name, info = hdr.Name, hdr.Info
		create = func() error {
			switch p.Mode {
			case ModeRestore:
				return p.FS.MakeDirectory(p.destPath(name), 0o755)
			case ModeConvert:
				dc, derr := p.openDestCursor()
				if derr != nil {
					return derr
				}
				return dc.NewDirectoryEntry(hdr)
			}
			return nil
		}
	case contracts.EntryLink:
		hdr, err := p.cursor.ReadLinkEntry()
		if err != nil {
			return p.onEntryError("", fmt.Errorf("read link entry: %w", err))
		}
		name, info = hdr.Name, hdr.Info
		create = func() error {
			switch p.Mode {
			case ModeRestore:
				return p.FS.MakeLink(hdr.Target, p.destPath(name))
			case ModeConvert:
				dc, derr := p.openDestCursor()
				if derr != nil {
					return derr
				}
				return dc.NewLinkEntry(hdr)
			}
			return nil
		}
	case contracts.EntrySpecial:
		hdr, err := p.cursor.ReadSpecialEntry()
		if err != nil {
			return p.onEntryError("", fmt.Errorf("read special entry: %w", err))
		}
		name, info = hdr.Name, hdr.Info
		create = func() error {
			switch p.Mode {
			case ModeRestore:
				return p.FS.MakeSpecial(p.destPath(name), hdr.Kind, hdr.Major, hdr.Minor)
			case ModeConvert:
				dc, derr := p.openDestCursor()
				if derr != nil {
					return derr
				}
				return dc.NewSpecialEntry(hdr)
			}
			return nil
		}
	default:
		return fmt.Errorf("worker: internal error: unexpected simple entry type %v", desc.EntryType)
	}

	entryType := desc.EntryType
	if !p.matches(entryType, name) {
		return p.cursor.CloseEntry()
	}

	p.RunInfo.StartEntry(name, 0)

	outcome, err := p.resolveDestination(name, 0, 0, 0)
	if err != nil {
		p.RunInfo.FinishEntry(name, 0, false, true)
		p.cursor.CloseEntry()
		return p.onEntryError(name, err)
	}
	if outcome.skip {
		p.RunInfo.FinishEntry(name, 0, true, false)
		return p.cursor.CloseEntry()
	}

	if !p.Options.DryRun {
		if err := create(); err != nil {
			p.RunInfo.FinishEntry(name, 0, false, true)
			p.cursor.CloseEntry()
			return p.onEntryError(name, err)
		}
		if p.Mode == ModeRestore {
			p.finalizeMetadata(outcome.finalName, info)
		}
	}

	p.Tracker.Lock()
	if node, ok := p.Tracker.Find(outcome.finalName); ok {
		p.Tracker.Discard(node)
	}
	p.Tracker.Unlock()

	p.RunInfo.FinishEntry(name, 0, false, false)
	return p.cursor.CloseEntry()
}
