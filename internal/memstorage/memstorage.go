// Package memstorage is an in-memory contracts.Storage double: archive
// blobs and convert destinations live in a map instead of on a real
// transport. Used by the engine's own tests and by the CLI's local
// demo backend.
package memstorage

import (
	"context"
	"fmt"
	"sync"

	"github.com/gaby/archivebackup/internal/contracts"
)

// Storage holds named byte blobs (archives and convert destinations)
// and named directory listings (for the directory-pattern input form).
type Storage struct {
	mu    sync.Mutex
	blobs map[string][]byte
	dirs  map[string][]contracts.DirListEntry
}

// New creates an empty Storage double.
func New() *Storage {
	return &Storage{
		blobs: make(map[string][]byte),
		dirs:  make(map[string][]contracts.DirListEntry),
	}
}

// Put registers a blob as already existing (archive content is opaque
// here; only presence/absence and rename/delete matter to the core).
func (s *Storage) Put(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[name] = data
}

// Get returns a previously Put or Create-committed blob.
func (s *Storage) Get(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[name]
	return b, ok
}

// SetDirectory registers the listing OpenDirectoryList(dirName) returns.
func (s *Storage) SetDirectory(dirName string, entries []contracts.DirListEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[dirName] = entries
}

func (s *Storage) Init(_ context.Context, _ string, _ int, _ int) error { return nil }

func (s *Storage) ParseName(raw string) (string, bool, error) {
	dir, base := contracts.SplitFileName(raw)
	for _, r := range base {
		if r == '*' || r == '?' {
			return dir, true, nil
		}
	}
	return raw, false, nil
}

func (s *Storage) PrintableName(name string) string { return name }

func (s *Storage) Exists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[name]
	return ok, nil
}

func (s *Storage) Rename(_ context.Context, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[from]
	if !ok {
		return fmt.Errorf("memstorage: rename: not found: %s", from)
	}
	delete(s.blobs, from)
	s.blobs[to] = b
	return nil
}

func (s *Storage) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, name)
	return nil
}

func (s *Storage) Create(_ context.Context, name string, _ uint64, _ bool) (contracts.Writer, error) {
	return &writer{storage: s, name: name}, nil
}

func (s *Storage) OpenDirectoryList(_ context.Context, dirName string) (contracts.DirectoryList, error) {
	s.mu.Lock()
	entries := s.dirs[dirName]
	s.mu.Unlock()
	return &dirList{entries: entries}, nil
}

type writer struct {
	storage *Storage
	name    string
	buf     []byte
}

func (w *writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *writer) Close() error {
	w.storage.mu.Lock()
	w.storage.blobs[w.name] = w.buf
	w.storage.mu.Unlock()
	return nil
}

type dirList struct {
	entries []contracts.DirListEntry
	idx     int
}

func (d *dirList) Next() (contracts.DirListEntry, bool, error) {
	if d.idx >= len(d.entries) {
		return contracts.DirListEntry{}, false, nil
	}
	e := d.entries[d.idx]
	d.idx++
	return e, true, nil
}

func (d *dirList) Close() error { return nil }
