package pipeline

import "github.com/gaby/archivebackup/internal/contracts"

// Descriptor is the entry descriptor passed through the entry queue
// (spec.md §3). It is small; ownership is "consumer reads, then drops".
type Descriptor struct {
	ArchiveEpoch  uint64
	ArchiveHandle contracts.Handle
	EntryType     contracts.EntryType
	Crypto        contracts.CryptoContext
	ByteOffset    uint64
}
