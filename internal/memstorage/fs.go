package memstorage

import (
	"fmt"
	"io"
	"sync"

	"github.com/gaby/archivebackup/internal/contracts"
)

// FS is an in-memory contracts.FileSystem double used as the restore
// destination in tests: paths map directly to byte slices instead of
// real inodes.
type FS struct {
	mu    sync.Mutex
	files map[string]*fsFile
	dirs  map[string]bool
}

type fsFile struct {
	data     []byte
	info     contracts.FileInfo
	isDevice bool
}

// NewFS creates an empty destination filesystem double.
func NewFS() *FS {
	return &FS{files: make(map[string]*fsFile), dirs: make(map[string]bool)}
}

func (f *FS) Open(path string, writable bool) (contracts.LocalFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[path]; !ok {
		if !writable {
			return nil, fmt.Errorf("memstorage: open: not found: %s", path)
		}
		f.files[path] = &fsFile{}
	}
	return &localFile{fs: f, path: path}, nil
}

func (f *FS) Create(path string) (contracts.LocalFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = &fsFile{}
	return &localFile{fs: f, path: path}, nil
}

func (f *FS) Exists(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[path]; ok {
		return true
	}
	return f.dirs[path]
}

func (f *FS) GetInfo(path string) (contracts.FileInfo, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ff, ok := f.files[path]
	if !ok {
		return contracts.FileInfo{}, false, nil
	}
	return ff.info, true, nil
}

func (f *FS) MakeDirectory(path string, _ uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs[path] = true
	return nil
}

func (f *FS) MakeLink(oldPath, newPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[newPath] = &fsFile{data: []byte(oldPath)}
	return nil
}

func (f *FS) MakeHardLink(existing, newPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ff, ok := f.files[existing]
	if !ok {
		return fmt.Errorf("memstorage: hardlink source missing: %s", existing)
	}
	f.files[newPath] = ff
	return nil
}

func (f *FS) MakeSpecial(path string, _ contracts.SpecialKind, _, _ uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = &fsFile{isDevice: true}
	return nil
}

func (f *FS) IsDevice(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ff, ok := f.files[path]
	return ok && ff.isDevice
}

func (f *FS) IsNetworkFilesystem(string) bool { return false }

// File returns the committed bytes at path, for test assertions.
func (f *FS) File(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ff, ok := f.files[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), ff.data...), true
}

type localFile struct {
	fs   *FS
	path string
	pos  int
}

func (l *localFile) Read(p []byte) (int, error) {
	l.fs.mu.Lock()
	defer l.fs.mu.Unlock()
	ff := l.fs.files[l.path]
	if ff == nil || l.pos >= len(ff.data) {
		return 0, io.EOF
	}
	n := copy(p, ff.data[l.pos:])
	l.pos += n
	return n, nil
}

func (l *localFile) Write(p []byte) (int, error) {
	l.fs.mu.Lock()
	defer l.fs.mu.Unlock()
	ff := l.fs.files[l.path]
	if ff == nil {
		ff = &fsFile{}
		l.fs.files[l.path] = ff
	}
	end := l.pos + len(p)
	if end > len(ff.data) {
		grown := make([]byte, end)
		copy(grown, ff.data)
		ff.data = grown
	}
	copy(ff.data[l.pos:end], p)
	l.pos = end
	return len(p), nil
}

func (l *localFile) Seek(offset int64, whence int) (int64, error) {
	l.fs.mu.Lock()
	defer l.fs.mu.Unlock()
	ff := l.fs.files[l.path]
	size := 0
	if ff != nil {
		size = len(ff.data)
	}
	switch whence {
	case io.SeekStart:
		l.pos = int(offset)
	case io.SeekCurrent:
		l.pos += int(offset)
	case io.SeekEnd:
		l.pos = size + int(offset)
	}
	return int64(l.pos), nil
}

func (l *localFile) Close() error { return nil }

func (l *localFile) Truncate(size int64) error {
	l.fs.mu.Lock()
	defer l.fs.mu.Unlock()
	ff := l.fs.files[l.path]
	if ff == nil {
		ff = &fsFile{}
		l.fs.files[l.path] = ff
	}
	if int(size) <= len(ff.data) {
		ff.data = ff.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, ff.data)
		ff.data = grown
	}
	return nil
}

func (l *localFile) SetInfo(info contracts.FileInfo) error {
	l.fs.mu.Lock()
	defer l.fs.mu.Unlock()
	ff := l.fs.files[l.path]
	if ff == nil {
		return fmt.Errorf("memstorage: set_info: not found: %s", l.path)
	}
	ff.info.ModTime, ff.info.AccessTime, ff.info.ChangeTime = info.ModTime, info.AccessTime, info.ChangeTime
	return nil
}

func (l *localFile) SetOwner(uid, gid uint32) error {
	l.fs.mu.Lock()
	defer l.fs.mu.Unlock()
	ff := l.fs.files[l.path]
	if ff == nil {
		return fmt.Errorf("memstorage: set_owner: not found: %s", l.path)
	}
	ff.info.UID, ff.info.GID = uid, gid
	return nil
}

func (l *localFile) SetPermission(perm uint32) error {
	l.fs.mu.Lock()
	defer l.fs.mu.Unlock()
	ff := l.fs.files[l.path]
	if ff == nil {
		return fmt.Errorf("memstorage: set_permission: not found: %s", l.path)
	}
	ff.info.Permissions = perm
	return nil
}

func (l *localFile) SetAttributes(xattrs map[string][]byte) error {
	l.fs.mu.Lock()
	defer l.fs.mu.Unlock()
	ff := l.fs.files[l.path]
	if ff == nil {
		return fmt.Errorf("memstorage: set_attributes: not found: %s", l.path)
	}
	ff.info.Xattrs = xattrs
	return nil
}
