// Package jobstate holds the one piece of state every thread in a job
// run shares beyond FragmentTracker/NameDictionary/RunningInfo: the
// terminal failure flag (spec.md §4.8, §5: "first writer wins").
package jobstate

import (
	"errors"
	"sync"
)

// ErrAborted is the sentinel failure recorded when the external abort
// callback fires (spec.md §4.8: "Return ... Aborted if the external
// abort callback returned true").
var ErrAborted = errors.New("aborted")

// State is the job-wide terminal failure flag. The first caller to Fail
// wins; later calls are no-ops (spec.md §4.6: "set the job-wide failure
// error (first writer wins) and exit the worker loop").
type State struct {
	mu  sync.Mutex
	err error
}

// Fail records err as the job's terminal error if none is set yet. It
// reports whether this call was the one that set it.
func (s *State) Fail(err error) bool {
	if err == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false
	}
	s.err = err
	return true
}

// Failed reports whether a terminal error has been recorded. It
// satisfies pipeline.FailureSink.
func (s *State) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err != nil
}

// Err returns the recorded terminal error, or nil.
func (s *State) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
