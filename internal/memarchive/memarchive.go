// Package memarchive is an in-memory contracts.Archive double used by
// the engine's own tests and by the CLI's local demo backend. Entries
// are registered ahead of time; byte-offset is simply the entry's
// index, since there is no real on-disk format to seek within.
package memarchive

import (
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gaby/archivebackup/internal/contracts"
)

// Entry is one archive entry: exactly one of the header pointers is
// set, matching Type.
type Entry struct {
	Type   contracts.EntryType
	Crypto contracts.CryptoContext

	File      *contracts.FileEntryHeader
	Image     *contracts.ImageEntryHeader
	Directory *contracts.DirectoryEntryHeader
	Link      *contracts.LinkEntryHeader
	Special   *contracts.SpecialEntryHeader
	Meta      *contracts.MetaEntryHeader

	// Payload is the entry's fragment/block bytes, for File/Image/HardLink.
	Payload []byte
}

func (e Entry) size() uint64 {
	switch e.Type {
	case contracts.EntryFile, contracts.EntryHardLink:
		if e.File != nil {
			return e.File.FragmentSize
		}
	case contracts.EntryImage:
		if e.Image != nil {
			return e.Image.BlockCount * e.Image.BlockSize
		}
	}
	return 0
}

// Archive holds pre-registered archives by name, and captures whatever
// a convert destination cursor writes, keyed by the name passed to
// Create.
type Archive struct {
	mu       sync.Mutex
	archives map[string][]Entry
	written  map[string][]Entry
	sigState contracts.SignatureState
}

// New creates an empty Archive double.
func New() *Archive {
	return &Archive{
		archives: make(map[string][]Entry),
		written:  make(map[string][]Entry),
		sigState: contracts.SignatureValid,
	}
}

// Register associates name with a fixed entry sequence, readable via Open.
func (a *Archive) Register(name string, entries []Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archives[name] = entries
}

// SetSignatureState overrides the state VerifySignatures reports (for
// exercising the pipeline's downgrade/force logic in tests).
func (a *Archive) SetSignatureState(state contracts.SignatureState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sigState = state
}

// Written returns whatever a destination cursor produced under name
// (convert mode), for test assertions.
func (a *Archive) Written(name string) []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.written[name]
}

func (a *Archive) Open(_ context.Context, _ contracts.Storage, name string, _ []string, _ contracts.ArchiveOpenFlags, _ contracts.PasswordProvider) (contracts.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries, ok := a.archives[name]
	if !ok {
		return nil, fmt.Errorf("memarchive: archive not found: %s", name)
	}
	return &handle{entries: entries, sigState: a.sigState}, nil
}

func (a *Archive) Create(_ context.Context, _ contracts.Storage, name string, _ contracts.PasswordProvider) (contracts.Handle, error) {
	return &handle{owner: a, destName: name}, nil
}

type handle struct {
	entries  []Entry
	sigState contracts.SignatureState

	owner    *Archive
	destName string

	mu               sync.Mutex
	written          []Entry
	intermediatePath string
}

func (h *handle) OpenCursor(crypto contracts.CryptoContext) (contracts.Cursor, error) {
	return &cursor{h: h}, nil
}

func (h *handle) VerifySignatures() (contracts.SignatureState, error) {
	return h.sigState, nil
}

// Close finalizes a destination handle: the written entries, gathered
// from however many cursors wrote into this archive, are recorded on
// the owning Archive for test assertions and materialized to a local
// file standing in for the "locally materialized archive" a real
// convert implementation would produce (spec.md glossary).
func (h *handle) Close() error {
	if h.owner == nil {
		return nil
	}
	h.owner.mu.Lock()
	h.owner.written[h.destName] = h.written
	h.owner.mu.Unlock()

	f, err := os.CreateTemp("", "memarchive-dest-*.bin")
	if err != nil {
		return fmt.Errorf("memarchive: materialize intermediate: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(h.written); err != nil {
		return fmt.Errorf("memarchive: encode intermediate: %w", err)
	}
	h.intermediatePath = f.Name()
	return nil
}

// IntermediatePath returns the local path Close materialized, empty
// before Close or for read-side handles.
func (h *handle) IntermediatePath() string { return h.intermediatePath }

type cursor struct {
	h   *handle
	pos int

	dataPos    int
	writingIdx int
}

func (c *cursor) Seek(offset uint64) error { c.pos = int(offset); return nil }
func (c *cursor) Tell() (uint64, error)    { return uint64(c.pos), nil }
func (c *cursor) EOF() bool                { return c.pos >= len(c.h.entries) }

func (c *cursor) entryAt() (*Entry, error) {
	if c.pos < 0 || c.pos >= len(c.h.entries) {
		return nil, fmt.Errorf("memarchive: cursor out of range")
	}
	return &c.h.entries[c.pos], nil
}

func (c *cursor) GetNextEntry() (contracts.NextEntry, error) {
	if c.EOF() {
		return contracts.NextEntry{}, io.EOF
	}
	e := c.h.entries[c.pos]
	c.dataPos = 0
	return contracts.NextEntry{Type: e.Type, Crypto: e.Crypto, Offset: uint64(c.pos), Size: e.size()}, nil
}

func (c *cursor) SkipEntry() error {
	c.pos++
	c.dataPos = 0
	return nil
}

func (c *cursor) ReadFileEntry() (contracts.FileEntryHeader, error) {
	e, err := c.entryAt()
	if err != nil || e.File == nil {
		return contracts.FileEntryHeader{}, fmt.Errorf("memarchive: not a file entry")
	}
	return *e.File, nil
}

func (c *cursor) ReadHardLinkEntry() (contracts.FileEntryHeader, error) { return c.ReadFileEntry() }

func (c *cursor) ReadImageEntry() (contracts.ImageEntryHeader, error) {
	e, err := c.entryAt()
	if err != nil || e.Image == nil {
		return contracts.ImageEntryHeader{}, fmt.Errorf("memarchive: not an image entry")
	}
	return *e.Image, nil
}

func (c *cursor) ReadDirectoryEntry() (contracts.DirectoryEntryHeader, error) {
	e, err := c.entryAt()
	if err != nil || e.Directory == nil {
		return contracts.DirectoryEntryHeader{}, fmt.Errorf("memarchive: not a directory entry")
	}
	return *e.Directory, nil
}

func (c *cursor) ReadLinkEntry() (contracts.LinkEntryHeader, error) {
	e, err := c.entryAt()
	if err != nil || e.Link == nil {
		return contracts.LinkEntryHeader{}, fmt.Errorf("memarchive: not a link entry")
	}
	return *e.Link, nil
}

func (c *cursor) ReadSpecialEntry() (contracts.SpecialEntryHeader, error) {
	e, err := c.entryAt()
	if err != nil || e.Special == nil {
		return contracts.SpecialEntryHeader{}, fmt.Errorf("memarchive: not a special entry")
	}
	return *e.Special, nil
}

func (c *cursor) ReadMetaEntry() (contracts.MetaEntryHeader, error) {
	e, err := c.entryAt()
	if err != nil || e.Meta == nil {
		return contracts.MetaEntryHeader{}, fmt.Errorf("memarchive: not a meta entry")
	}
	return *e.Meta, nil
}

func (c *cursor) ReadData(buf []byte) (int, error) {
	e, err := c.entryAt()
	if err != nil {
		return 0, err
	}
	if c.dataPos >= len(e.Payload) {
		return 0, io.EOF
	}
	n := copy(buf, e.Payload[c.dataPos:])
	c.dataPos += n
	return n, nil
}

func (c *cursor) EOFData() bool {
	e, err := c.entryAt()
	if err != nil {
		return true
	}
	return c.dataPos >= len(e.Payload)
}

func (c *cursor) CloseEntry() error { return nil }

func (c *cursor) appendWritten(e Entry) {
	c.h.mu.Lock()
	defer c.h.mu.Unlock()
	c.h.written = append(c.h.written, e)
	c.writingIdx = len(c.h.written) - 1
}

func (c *cursor) NewFileEntry(h contracts.FileEntryHeader) error {
	c.appendWritten(Entry{Type: contracts.EntryFile, File: &h})
	return nil
}

func (c *cursor) NewImageEntry(h contracts.ImageEntryHeader) error {
	c.appendWritten(Entry{Type: contracts.EntryImage, Image: &h})
	return nil
}

func (c *cursor) NewDirectoryEntry(h contracts.DirectoryEntryHeader) error {
	c.appendWritten(Entry{Type: contracts.EntryDirectory, Directory: &h})
	return nil
}

func (c *cursor) NewLinkEntry(h contracts.LinkEntryHeader) error {
	c.appendWritten(Entry{Type: contracts.EntryLink, Link: &h})
	return nil
}

func (c *cursor) NewSpecialEntry(h contracts.SpecialEntryHeader) error {
	c.appendWritten(Entry{Type: contracts.EntrySpecial, Special: &h})
	return nil
}

func (c *cursor) NewMetaEntry(h contracts.MetaEntryHeader) error {
	c.appendWritten(Entry{Type: contracts.EntryMeta, Meta: &h})
	return nil
}

func (c *cursor) WriteData(buf []byte) (int, error) {
	c.h.mu.Lock()
	defer c.h.mu.Unlock()
	if c.writingIdx < 0 || c.writingIdx >= len(c.h.written) {
		return 0, fmt.Errorf("memarchive: write_data with no open destination entry")
	}
	c.h.written[c.writingIdx].Payload = append(c.h.written[c.writingIdx].Payload, buf...)
	return len(buf), nil
}

func (c *cursor) VerifySignatureEntry(fromOffset uint64) (contracts.SignatureState, error) {
	return contracts.SignatureValid, nil
}

func (c *cursor) Close() error { return nil }
