package worker

import "fmt"

// processMeta implements the convert-only Meta branch of spec.md §4.6:
// read the source meta entry, override fields the job options set, and
// emit a new meta entry on the destination cursor.
func (p *Processor) processMeta() error {
	hdr, err := p.cursor.ReadMetaEntry()
	if err != nil {
		return p.onEntryError("", fmt.Errorf("read meta entry: %w", err))
	}

	if p.Mode != ModeConvert {
		return p.cursor.CloseEntry()
	}

	if p.Options.NewJobUUID != "" {
		hdr.JobUUID = p.Options.NewJobUUID
	}
	if p.Options.NewScheduleUUID != "" {
		hdr.ScheduleUUID = p.Options.NewScheduleUUID
	}
	if !p.Options.NewCreatedTimestamp.IsZero() {
		hdr.CreatedAt = p.Options.NewCreatedTimestamp
	}
	if p.Options.NewComment != "" {
		hdr.Comment = p.Options.NewComment
	}

	dc, err := p.openDestCursor()
	if err != nil {
		p.cursor.CloseEntry()
		return p.onEntryError("", err)
	}
	if err := dc.NewMetaEntry(hdr); err != nil {
		p.cursor.CloseEntry()
		return p.onEntryError("", fmt.Errorf("write meta entry: %w", err))
	}
	return p.cursor.CloseEntry()
}
