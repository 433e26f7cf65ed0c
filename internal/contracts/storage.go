package contracts

import (
	"context"
	"io"
)

// DirEntryKind narrows a directory-list entry to what the Driver cares
// about: file/link/hardlink, matched against an archive-name pattern.
type DirEntryKind int

const (
	DirEntryOther DirEntryKind = iota
	DirEntryFile
	DirEntryLink
	DirEntryHardLink
)

// DirListEntry is one row from Storage.ReadDirectoryList.
type DirListEntry struct {
	Name string
	Kind DirEntryKind
}

// DirectoryList iterates a storage-backend directory (used when the
// driver's input name is a directory containing an archive-name pattern).
type DirectoryList interface {
	Next() (DirListEntry, bool, error)
	Close() error
}

// Writer is the write-and-seek primitive the storage layer hands back
// from Create; StorageWriter streams bytes into it.
type Writer interface {
	io.Writer
	io.Closer
}

// Storage is the storage layer contract (§6). Transport-specific backends
// (local disk, network, removable media) are out of scope; only the
// shape consumed by the core is named here.
type Storage interface {
	Init(ctx context.Context, specifier string, bandwidthLimit int, priority int) error
	ParseName(raw string) (name string, isDirectoryPattern bool, err error)
	PrintableName(name string) string
	Exists(ctx context.Context, name string) (bool, error)
	Rename(ctx context.Context, from, to string) error
	Delete(ctx context.Context, name string) error
	Create(ctx context.Context, name string, size uint64, force bool) (Writer, error)

	OpenDirectoryList(ctx context.Context, dirName string) (DirectoryList, error)
}
