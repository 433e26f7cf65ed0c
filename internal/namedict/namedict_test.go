package namedict

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gaby/archivebackup/internal/contracts"
	"github.com/gaby/archivebackup/internal/strpattern"
)

func mustPattern(t *testing.T, src string) *strpattern.Pattern {
	t.Helper()
	p, err := strpattern.Compile(strpattern.Glob, src, false)
	require.NoError(t, err)
	return p
}

func TestEntryListEmptyIdentity(t *testing.T) {
	inc := New(Include)
	require.True(t, inc.Match(contracts.EntryFile, "anything", strpattern.FullyAnchored))

	exc := New(Exclude)
	require.False(t, exc.Match(contracts.EntryFile, "anything", strpattern.FullyAnchored))
}

func TestEntryListDisjunction(t *testing.T) {
	l := New(Include)
	l.Add(MaskAll, mustPattern(t, "*.txt"))
	l.Add(MaskAll, mustPattern(t, "*.log"))

	require.True(t, l.Match(contracts.EntryFile, "a.txt", strpattern.AnchoredEnd))
	require.True(t, l.Match(contracts.EntryFile, "a.log", strpattern.AnchoredEnd))
	require.False(t, l.Match(contracts.EntryFile, "a.bin", strpattern.AnchoredEnd))
}

func TestNameDictionary(t *testing.T) {
	d := NewDictionary()
	d.Add("/tmp/out/a.log")
	require.True(t, d.Contains("/tmp/out/a.log"))
	require.Equal(t, 1, d.Len())

	d.Add("/tmp/out/a.log")
	require.Equal(t, 1, d.Len())

	d.Add("/tmp/out/a-0.log")
	require.Equal(t, 2, d.Len())
}
