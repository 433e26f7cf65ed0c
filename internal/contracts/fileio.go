package contracts

import (
	"io"
	"time"
)

// LocalFile is the file layer contract (§6): low-level file I/O
// primitives on the restore/convert destination filesystem.
type LocalFile interface {
	io.ReadWriteSeeker
	io.Closer
	Truncate(size int64) error
	SetInfo(info FileInfo) error
	SetOwner(uid, gid uint32) error
	SetPermission(perm uint32) error
	SetAttributes(xattrs map[string][]byte) error
}

// FileSystem is the local-filesystem side of the file layer contract:
// operations that don't need an open handle.
type FileSystem interface {
	Open(path string, writable bool) (LocalFile, error)
	Create(path string) (LocalFile, error)
	Exists(path string) bool
	GetInfo(path string) (FileInfo, bool, error)
	MakeDirectory(path string, perm uint32) error
	MakeLink(oldPath, newPath string) error
	MakeHardLink(existing, newPath string) error
	MakeSpecial(path string, kind SpecialKind, major, minor uint32) error
	IsDevice(path string) bool
	IsNetworkFilesystem(path string) bool
}

// SplitFileName / AppendFileName / GetDirectoryName / GetBaseName are pure
// path helpers; they live as free functions rather than an interface
// since they carry no state (see internal/strpattern for the owned
// string type they operate over conceptually).
func SplitFileName(p string) (dir, base string) {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i], p[i+1:]
		}
	}
	return "", p
}

func AppendFileName(dir, name string) string {
	if dir == "" {
		return name
	}
	if dir[len(dir)-1] == '/' {
		return dir + name
	}
	return dir + "/" + name
}

func GetDirectoryName(p string) string {
	dir, _ := SplitFileName(p)
	return dir
}

func GetBaseName(p string) string {
	_, base := SplitFileName(p)
	return base
}

// zeroTime is the FileInfo.ModTime sentinel meaning "not set".
var zeroTime time.Time
