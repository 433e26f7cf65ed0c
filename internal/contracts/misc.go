package contracts

import "context"

// Compression is the compression layer contract (§6): the core only
// needs to know whether a stream was compressed, to decide whether
// unexpected trailing bytes are worth a warning (§4.6, File/HardLink,
// final paragraph).
type Compression interface {
	IsCompressed(algorithm string) bool
}

// Crypto is the crypto layer contract (§6): the core only needs to
// classify a signature verification outcome.
type Crypto interface {
	IsValidSignatureState(state SignatureState) bool
}

// ThreadPool is the thread pool contract (§6). The engine's own
// implementation (internal/driver) uses golang.org/x/sync/errgroup
// directly rather than this interface's Run/JoinAll shape, but the
// contract is named here because spec.md §6 lists it as an injected
// collaborator distinct from the driver's own pool choice.
type ThreadPool interface {
	Run(ctx context.Context, fn func(ctx context.Context) error)
	JoinAll() error
	NumberOfCores() int
}

// Callbacks bundles the small external callback-shaped dependencies
// named in §6.
type Callbacks struct {
	GetNamePassword func(userData any) (name, password string)
	IsPaused        func(userData any) bool
	IsAborted       func(userData any) bool
	ErrorHandler    func(storageName, entryName string, err error, userData any) error
	RunningInfo     func(snapshot any, userData any)
}
