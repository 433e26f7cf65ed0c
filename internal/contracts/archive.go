// Package contracts names the external collaborators the engine core
// consumes: the archive layer, the storage layer, the file layer, and
// the handful of small callback-shaped dependencies (pattern, compression,
// crypto, thread pool). None of these are implemented here — only their
// contracts. internal/memarchive and internal/memstorage provide the
// in-memory doubles used by tests and the CLI's local-file demo backend.
package contracts

import (
	"context"
	"time"
)

// EntryType tags the kind of one archive entry.
type EntryType int

const (
	EntryUnknown EntryType = iota
	EntryFile
	EntryImage
	EntryDirectory
	EntryLink
	EntryHardLink
	EntrySpecial
	EntryMeta
	EntrySignature
	EntrySalt
	EntryKey
)

func (t EntryType) String() string {
	switch t {
	case EntryFile:
		return "file"
	case EntryImage:
		return "image"
	case EntryDirectory:
		return "directory"
	case EntryLink:
		return "link"
	case EntryHardLink:
		return "hardlink"
	case EntrySpecial:
		return "special"
	case EntryMeta:
		return "meta"
	case EntrySignature:
		return "signature"
	case EntrySalt:
		return "salt"
	case EntryKey:
		return "key"
	default:
		return "unknown"
	}
}

// SignatureState is the result of verifying a signature segment.
type SignatureState int

const (
	SignatureUnknown SignatureState = iota
	SignatureValid
	SignatureSkipped
	SignatureInvalid
	SignatureNoPublicKey
)

// CryptoContext is opaque per-entry decryption parameters attached to an
// archive segment. The core never inspects it; it only threads it from
// descriptor to worker to the archive's read/write calls.
type CryptoContext any

// FileInfo carries the subset of entry metadata the core must round-trip:
// timestamps, permissions, ownership, extended attributes.
type FileInfo struct {
	ModTime     time.Time
	AccessTime  time.Time
	ChangeTime  time.Time
	Permissions uint32
	UID         uint32
	GID         uint32
	Xattrs      map[string][]byte
}

// FileEntryHeader is what read_file_entry/read_hardlink_entry returns.
type FileEntryHeader struct {
	Names            []string // len==1 for File, >=1 for HardLink
	Size             uint64
	Info             FileInfo
	FragmentOffset   uint64
	FragmentSize     uint64
	CompressionAlgo  string
	DeltaUsed        bool
	ByteCompressUsed bool
}

// ImageEntryHeader is what read_image_entry returns.
type ImageEntryHeader struct {
	Name       string
	BlockSize  uint64
	BlockCount uint64
	Info       FileInfo
}

// DirectoryEntryHeader, LinkEntryHeader, SpecialEntryHeader carry only
// metadata (§3: "the rest carry only metadata").
type DirectoryEntryHeader struct {
	Name string
	Info FileInfo
}

type LinkEntryHeader struct {
	Name   string
	Target string
	Info   FileInfo
}

type SpecialKind int

const (
	SpecialFIFO SpecialKind = iota
	SpecialCharDevice
	SpecialBlockDevice
	SpecialSocket
)

type SpecialEntryHeader struct {
	Name  string
	Kind  SpecialKind
	Major uint32
	Minor uint32
	Info  FileInfo
}

// MetaEntryHeader is what read_meta_entry returns (convert-only, §4.6).
type MetaEntryHeader struct {
	HostName    string
	UserName    string
	JobUUID     string
	ScheduleUUID string
	ArchiveType string
	CreatedAt   time.Time
	Comment     string
}

// NextEntry is what get_next_archive_entry returns while iterating.
type NextEntry struct {
	Type   EntryType
	Crypto CryptoContext
	Offset uint64
	Size   uint64
}

// PasswordProvider supplies a name/password pair on demand (get_name_password).
type PasswordProvider func(userData any) (name, password string)

// Cursor is a per-thread read/write position into an open archive handle,
// obtained via Handle.OpenCursor (the source's open_handle). Each worker
// owns exactly one; it is never shared.
type Cursor interface {
	Seek(offset uint64) error
	Tell() (uint64, error)
	EOF() bool

	GetNextEntry() (NextEntry, error)
	SkipEntry() error

	ReadFileEntry() (FileEntryHeader, error)
	ReadImageEntry() (ImageEntryHeader, error)
	ReadDirectoryEntry() (DirectoryEntryHeader, error)
	ReadLinkEntry() (LinkEntryHeader, error)
	ReadHardLinkEntry() (FileEntryHeader, error)
	ReadSpecialEntry() (SpecialEntryHeader, error)
	ReadMetaEntry() (MetaEntryHeader, error)

	ReadData(buf []byte) (int, error)
	EOFData() bool
	CloseEntry() error

	// NewXEntry family (convert destination side). dest is nil for test/restore.
	NewFileEntry(h FileEntryHeader) error
	NewImageEntry(h ImageEntryHeader) error
	NewDirectoryEntry(h DirectoryEntryHeader) error
	NewLinkEntry(h LinkEntryHeader) error
	NewSpecialEntry(h SpecialEntryHeader) error
	NewMetaEntry(h MetaEntryHeader) error
	WriteData(buf []byte) (int, error)

	VerifySignatureEntry(fromOffset uint64) (SignatureState, error)

	Close() error
}

// Handle is a shared archive handle: read-only when opened via Open,
// write-only when opened via Create. Workers derive independent
// cursors from it.
type Handle interface {
	OpenCursor(crypto CryptoContext) (Cursor, error)
	VerifySignatures() (SignatureState, error)

	// IntermediatePath returns the local path of the fully
	// materialized destination archive once Close has returned, for
	// handles obtained via Create (convert's destination side, spec.md
	// §4.7/§4.8). Empty for handles obtained via Open.
	IntermediatePath() string

	Close() error
}

// ArchiveOpenFlags mirror the source's "skip unknown chunks" style bits.
type ArchiveOpenFlags struct {
	SkipUnknownChunks bool
}

// Archive is the archive layer contract (§6). create is the convert
// destination-side constructor; open is the read side.
type Archive interface {
	Open(ctx context.Context, storage Storage, name string, deltaSources []string, flags ArchiveOpenFlags, password PasswordProvider) (Handle, error)
	Create(ctx context.Context, storage Storage, name string, password PasswordProvider) (Handle, error)
}

// DeltaSourceList is passed through to Open but never interpreted here.
type DeltaSourceList = []string
