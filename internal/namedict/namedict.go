// Package namedict implements EntryList and NameDictionary (spec.md
// §4.3): include/exclude pattern evaluation over archive entry names,
// and destination-path collision tracking for one job run.
package namedict

import (
	"sync"

	"github.com/gaby/archivebackup/internal/contracts"
	"github.com/gaby/archivebackup/internal/strpattern"
)

// EntryMask selects which entry types a pattern applies to. Zero means
// "applies to all types".
type EntryMask uint32

const (
	MaskAll EntryMask = 0
)

// Rule pairs an entry-type mask with a compiled pattern.
type Rule struct {
	Mask    EntryMask
	Pattern *strpattern.Pattern
}

// Context selects the identity element returned for an empty list
// (spec.md §4.3: include treats empty as "match all", exclude as
// "match none").
type Context int

const (
	Include Context = iota
	Exclude
)

// EntryList is an ordered list of (mask, pattern) rules.
type EntryList struct {
	ctx   Context
	rules []Rule
}

// New creates an EntryList for the given context.
func New(ctx Context) *EntryList {
	return &EntryList{ctx: ctx}
}

// Add appends a rule.
func (l *EntryList) Add(mask EntryMask, p *strpattern.Pattern) {
	l.rules = append(l.rules, Rule{Mask: mask, Pattern: p})
}

// Len reports how many rules are registered.
func (l *EntryList) Len() int { return len(l.rules) }

// Match is the disjunction of pattern.Match over the list for entryType
// and name, short-circuiting on the first hit. An empty list returns the
// identity for the list's context.
func (l *EntryList) Match(entryType contracts.EntryType, name string, mode strpattern.Mode) bool {
	if len(l.rules) == 0 {
		return l.ctx == Include
	}
	for _, r := range l.rules {
		if r.Mask != MaskAll && r.Mask&EntryMask(1<<uint(entryType)) == 0 {
			continue
		}
		if _, _, ok := strpattern.Match(r.Pattern, name, 0, mode); ok {
			return true
		}
	}
	return false
}

// NameDictionary is a mutable set of destination path bytes guarded by
// its own lock (spec.md §4.3, invariant I6).
type NameDictionary struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// NewDictionary creates an empty NameDictionary.
func NewDictionary() *NameDictionary {
	return &NameDictionary{paths: make(map[string]struct{})}
}

// Contains reports whether path has already been reserved.
func (d *NameDictionary) Contains(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.paths[path]
	return ok
}

// Add reserves path. Adding an already-present path is a no-op (property
// test 8: cardinality unchanged).
func (d *NameDictionary) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paths[path] = struct{}{}
}

// Len reports the number of reserved paths.
func (d *NameDictionary) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.paths)
}
