package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gaby/archivebackup/internal/contracts"
	"github.com/gaby/archivebackup/internal/driver"
	"github.com/gaby/archivebackup/internal/engineopts"
	"github.com/gaby/archivebackup/internal/enginelog"
	"github.com/gaby/archivebackup/internal/jobstate"
	"github.com/gaby/archivebackup/internal/memarchive"
	"github.com/gaby/archivebackup/internal/memstorage"
	"github.com/gaby/archivebackup/internal/worker"
)

// S1 — test of a two-fragment file (spec.md §8 S1): after test, the
// two fragments [0,8) and [8,4) of a 12-byte file together complete
// the entity and the job reports success.
func TestScenarioTwoFragmentFile(t *testing.T) {
	ar := memarchive.New()
	ar.Register("backup.arc", []memarchive.Entry{
		{
			Type:    contracts.EntryFile,
			File:    &contracts.FileEntryHeader{Names: []string{"/etc/hostname"}, Size: 12, FragmentOffset: 0, FragmentSize: 8},
			Payload: []byte("12345678"),
		},
		{
			Type:    contracts.EntryFile,
			File:    &contracts.FileEntryHeader{Names: []string{"/etc/hostname"}, Size: 12, FragmentOffset: 8, FragmentSize: 4},
			Payload: []byte("9012"),
		},
	})
	st := memstorage.New()
	st.Put("backup.arc", nil)

	opts := &engineopts.Options{}
	err := Test(context.Background(), Dependencies{Archive: ar, Storage: st},
		[]string{"backup.arc"}, nil, nil, opts, nil, nil, nil, enginelog.Discard)
	require.NoError(t, err)
}

// S2 — restore with conflict policy Rename (spec.md §8 S2): a
// pre-existing destination is left untouched and the new content lands
// on a numeric-suffixed sibling.
func TestScenarioRestoreRename(t *testing.T) {
	ar := memarchive.New()
	ar.Register("backup.arc", []memarchive.Entry{
		{
			Type:    contracts.EntryFile,
			File:    &contracts.FileEntryHeader{Names: []string{"a.log"}, Size: 5, FragmentOffset: 0, FragmentSize: 5},
			Payload: []byte("hello"),
		},
	})
	st := memstorage.New()
	st.Put("backup.arc", nil)

	destFS := memstorage.NewFS()
	_, err := destFS.Create("/tmp/out/a.log")
	require.NoError(t, err)

	opts := &engineopts.Options{DestinationRoot: "/tmp/out", ConflictPolicy: engineopts.Rename}
	err = Restore(context.Background(), Dependencies{Archive: ar, Storage: st, FS: destFS},
		[]string{"backup.arc"}, nil, nil, opts, nil, nil, nil, nil, nil, enginelog.Discard)
	require.NoError(t, err)

	sibling, ok := destFS.File("/tmp/out/a-0.log")
	require.True(t, ok)
	require.Equal(t, []byte("hello"), sibling)

	original, ok := destFS.File("/tmp/out/a.log")
	require.True(t, ok)
	require.Empty(t, original)
}

// Hard link fan-out (spec.md §4.6): only the first name's content is
// written; every remaining name becomes an additional link to it.
func TestScenarioRestoreHardLinkFanOut(t *testing.T) {
	ar := memarchive.New()
	ar.Register("backup.arc", []memarchive.Entry{
		{
			Type:    contracts.EntryHardLink,
			File:    &contracts.FileEntryHeader{Names: []string{"a.dat", "b.dat", "c.dat"}, Size: 5, FragmentOffset: 0, FragmentSize: 5},
			Payload: []byte("hello"),
		},
	})
	st := memstorage.New()
	st.Put("backup.arc", nil)

	destFS := memstorage.NewFS()

	opts := &engineopts.Options{DestinationRoot: "/tmp/out"}
	err := Restore(context.Background(), Dependencies{Archive: ar, Storage: st, FS: destFS},
		[]string{"backup.arc"}, nil, nil, opts, nil, nil, nil, nil, nil, enginelog.Discard)
	require.NoError(t, err)

	a, ok := destFS.File("/tmp/out/a.dat")
	require.True(t, ok)
	require.Equal(t, []byte("hello"), a)

	b, ok := destFS.File("/tmp/out/b.dat")
	require.True(t, ok)
	require.Equal(t, []byte("hello"), b)

	c, ok := destFS.File("/tmp/out/c.dat")
	require.True(t, ok)
	require.Equal(t, []byte("hello"), c)
}

// S3 — restore with conflict policy Stop and no_stop_on_error=true
// (spec.md §8 S3): FileExists is downgraded to a warning and the job
// still exits success.
func TestScenarioStopDowngraded(t *testing.T) {
	ar := memarchive.New()
	ar.Register("backup.arc", []memarchive.Entry{
		{
			Type:    contracts.EntryFile,
			File:    &contracts.FileEntryHeader{Names: []string{"a.log"}, Size: 5, FragmentOffset: 0, FragmentSize: 5},
			Payload: []byte("hello"),
		},
	})
	st := memstorage.New()
	st.Put("backup.arc", nil)

	destFS := memstorage.NewFS()
	_, err := destFS.Create("/tmp/out/a.log")
	require.NoError(t, err)

	opts := &engineopts.Options{DestinationRoot: "/tmp/out", ConflictPolicy: engineopts.Stop, NoStopOnError: true}
	err = Restore(context.Background(), Dependencies{Archive: ar, Storage: st, FS: destFS},
		[]string{"backup.arc"}, nil, nil, opts, nil, nil, nil, nil, nil, enginelog.Discard)
	require.NoError(t, err)
}

// S4 — incomplete entry at end (spec.md §8 S4): the archive provides
// only the first 8 bytes of a 12-byte file; the driver reports
// EntryIncomplete unless no_fragment_check is set.
func TestScenarioIncompleteEntry(t *testing.T) {
	buildArchive := func() (*memarchive.Archive, *memstorage.Storage) {
		ar := memarchive.New()
		ar.Register("backup.arc", []memarchive.Entry{
			{
				Type:    contracts.EntryFile,
				File:    &contracts.FileEntryHeader{Names: []string{"partial.bin"}, Size: 12, FragmentOffset: 0, FragmentSize: 8},
				Payload: []byte("12345678"),
			},
		})
		st := memstorage.New()
		st.Put("backup.arc", nil)
		return ar, st
	}

	t.Run("reported by default", func(t *testing.T) {
		ar, st := buildArchive()
		opts := &engineopts.Options{}
		err := Test(context.Background(), Dependencies{Archive: ar, Storage: st},
			[]string{"backup.arc"}, nil, nil, opts, nil, nil, nil, enginelog.Discard)
		require.Error(t, err)
		var incomplete *driver.ErrEntryIncomplete
		require.True(t, errors.As(err, &incomplete))
	})

	t.Run("suppressed by no_fragment_check", func(t *testing.T) {
		ar, st := buildArchive()
		opts := &engineopts.Options{NoFragmentCheck: true}
		err := Test(context.Background(), Dependencies{Archive: ar, Storage: st},
			[]string{"backup.arc"}, nil, nil, opts, nil, nil, nil, enginelog.Discard)
		require.NoError(t, err)
	})
}

// TestScenarioConvertRewritesArchive exercises the convert driver loop
// (spec.md §8 S5's shape, minus a real crypto swap which this core
// never owns): a source archive's File entry, payload included, is
// forwarded onto the destination archive the driver creates as
// "backup.arc.converted".
func TestScenarioConvertRewritesArchive(t *testing.T) {
	ar := memarchive.New()
	ar.Register("backup.arc", []memarchive.Entry{
		{
			Type:    contracts.EntryFile,
			File:    &contracts.FileEntryHeader{Names: []string{"data.bin"}, Size: 4, FragmentOffset: 0, FragmentSize: 4},
			Payload: []byte("abcd"),
		},
	})
	st := memstorage.New()
	st.Put("backup.arc", nil)

	opts := &engineopts.Options{}
	err := Convert(context.Background(), Dependencies{Archive: ar, Storage: st},
		[]string{"backup.arc"}, "", "", time.Time{}, opts, nil, enginelog.Discard)
	require.NoError(t, err)

	written := ar.Written("backup.arc.converted")
	require.Len(t, written, 1)
	require.Equal(t, contracts.EntryFile, written[0].Type)
	require.Equal(t, []byte("abcd"), written[0].Payload)
}

// TestScenarioConvertForwardsMetaAndDirectory exercises the convert
// destination cursor for entry types that carry no payload: a Meta
// entry has its job UUID and comment overridden per the job options,
// and a Directory entry is forwarded unchanged. One worker is used so
// the destination receives the entries in archive order.
func TestScenarioConvertForwardsMetaAndDirectory(t *testing.T) {
	ar := memarchive.New()
	ar.Register("backup.arc", []memarchive.Entry{
		{
			Type: contracts.EntryMeta,
			Meta: &contracts.MetaEntryHeader{JobUUID: "old-uuid", Comment: "old"},
		},
		{
			Type:      contracts.EntryDirectory,
			Directory: &contracts.DirectoryEntryHeader{Name: "etc"},
		},
	})
	st := memstorage.New()
	st.Put("backup.arc", nil)

	opts := &engineopts.Options{MaxThreads: 1}
	err := Convert(context.Background(), Dependencies{Archive: ar, Storage: st},
		[]string{"backup.arc"}, "new-uuid", "", time.Time{}, opts, nil, enginelog.Discard)
	require.NoError(t, err)

	written := ar.Written("backup.arc.converted")
	require.Len(t, written, 2)
	require.Equal(t, contracts.EntryMeta, written[0].Type)
	require.Equal(t, "new-uuid", written[0].Meta.JobUUID)
	require.Equal(t, "old", written[0].Meta.Comment)
	require.Equal(t, contracts.EntryDirectory, written[1].Type)
	require.Equal(t, "etc", written[1].Directory.Name)
}

// S6 — abort (spec.md §8 S6): an IsAborted callback that reports true
// from the start stops the job with jobstate.ErrAborted.
func TestScenarioAbortMidStream(t *testing.T) {
	ar := memarchive.New()
	var entries []memarchive.Entry
	for i := 0; i < 5; i++ {
		entries = append(entries, memarchive.Entry{
			Type:    contracts.EntryFile,
			File:    &contracts.FileEntryHeader{Names: []string{"f" + string(rune('a'+i))}, Size: 1, FragmentOffset: 0, FragmentSize: 1},
			Payload: []byte("x"),
		})
	}
	ar.Register("backup.arc", entries)
	st := memstorage.New()
	st.Put("backup.arc", nil)

	opts := &engineopts.Options{}
	err := Test(context.Background(), Dependencies{Archive: ar, Storage: st},
		[]string{"backup.arc"}, nil, nil, opts, nil, nil, func() bool { return true }, enginelog.Discard)
	require.ErrorIs(t, err, jobstate.ErrAborted)
}

// TestSignatureNoPublicKeyDowngrade exercises the pipeline's NoPublicKey downgrade
// path (spec.md §4.5): a missing public key without force is a
// skip, not a failure.
func TestSignatureNoPublicKeyDowngrade(t *testing.T) {
	ar := memarchive.New()
	ar.Register("backup.arc", []memarchive.Entry{
		{
			Type:    contracts.EntryFile,
			File:    &contracts.FileEntryHeader{Names: []string{"f"}, Size: 1, FragmentOffset: 0, FragmentSize: 1},
			Payload: []byte("x"),
		},
	})
	ar.SetSignatureState(contracts.SignatureNoPublicKey)
	st := memstorage.New()
	st.Put("backup.arc", nil)

	opts := &engineopts.Options{}
	err := Test(context.Background(), Dependencies{Archive: ar, Storage: st},
		[]string{"backup.arc"}, nil, nil, opts, nil, nil, nil, enginelog.Discard)
	require.NoError(t, err)
}

// TestModeConstantsWired is a one-line guard that worker.ModeTest is
// the zero Mode value, so a Driver whose Mode field is left unset runs
// in test mode.
func TestModeConstantsWired(t *testing.T) {
	require.Equal(t, worker.ModeTest, worker.Mode(0))
}
