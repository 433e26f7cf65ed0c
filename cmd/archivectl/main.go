// Command archivectl is the CLI front end for the archive backup
// engine core: test/restore/convert subcommands over the in-memory
// demo archive/storage backends (internal/memarchive,
// internal/memstorage). Real transport-specific storage backends and
// the archive chunk format are out of scope (spec.md §1 Non-goals);
// this binary exists to drive the engine end-to-end, the way the
// teacher's single edrmount binary drives its own core.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/gaby/archivebackup/internal/contracts"
	"github.com/gaby/archivebackup/internal/engine"
	"github.com/gaby/archivebackup/internal/engineconfig"
	"github.com/gaby/archivebackup/internal/enginelog"
	"github.com/gaby/archivebackup/internal/index"
	"github.com/gaby/archivebackup/internal/memarchive"
	"github.com/gaby/archivebackup/internal/memstorage"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "test":
		runTest(os.Args[2:])
	case "restore":
		runRestore(os.Args[2:])
	case "convert":
		runConvert(os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "archivectl: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: archivectl <test|restore|convert> [flags] <fixture.json> <storage-name>...

Each storage name must be registered in fixture.json, a demo archive
description consumed by internal/memarchive. --index records each
run's outcome in a sqlite run-history file.`)
}

type commonFlags struct {
	config              string
	include             []string
	exclude             []string
	ignoreCase          bool
	maxThreads          int
	restoreSingle       bool
	noStopOnError       bool
	skipSignatureVerify bool
	indexPath           string
}

func bindCommon(fs *pflag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.config, "config", "", "path to archivectl config (HuJSON)")
	fs.StringSliceVar(&c.include, "include", nil, "include glob pattern (repeatable)")
	fs.StringSliceVar(&c.exclude, "exclude", nil, "exclude glob pattern (repeatable)")
	fs.BoolVar(&c.ignoreCase, "ignore-case", false, "case-insensitive include/exclude patterns")
	fs.IntVar(&c.maxThreads, "max-threads", 0, "worker count (0 = logical CPU count)")
	fs.BoolVar(&c.restoreSingle, "single-threaded", false, "force exactly one worker")
	fs.BoolVar(&c.noStopOnError, "no-stop-on-error", false, "downgrade per-entry errors to warnings")
	fs.BoolVar(&c.skipSignatureVerify, "skip-signature-verify", false, "skip archive signature verification")
	fs.StringVar(&c.indexPath, "index", "", "optional sqlite run-history path")
	return c
}

func loadOptions(c *commonFlags) (*engineconfig.Config, error) {
	cfg, err := engineconfig.Load(c.config)
	if err != nil {
		return nil, err
	}
	if len(c.include) > 0 {
		cfg.DefaultOptions.Include = c.include
	}
	if len(c.exclude) > 0 {
		cfg.DefaultOptions.Exclude = c.exclude
	}
	cfg.DefaultOptions.IgnoreCasePatterns = cfg.DefaultOptions.IgnoreCasePatterns || c.ignoreCase
	if c.maxThreads != 0 {
		cfg.DefaultOptions.MaxThreads = c.maxThreads
	}
	cfg.DefaultOptions.RestoreSingleThreaded = cfg.DefaultOptions.RestoreSingleThreaded || c.restoreSingle
	cfg.DefaultOptions.NoStopOnError = cfg.DefaultOptions.NoStopOnError || c.noStopOnError
	cfg.DefaultOptions.SkipSignatureVerify = cfg.DefaultOptions.SkipSignatureVerify || c.skipSignatureVerify
	return &cfg, nil
}

// fixture is the demo archive description file: one entry per storage
// name, a flat list of files to register with memarchive.
type fixture struct {
	Archives map[string][]fixtureFile `json:"archives"`
}

type fixtureFile struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

func loadFixture(path string) (*memarchive.Archive, *memstorage.Storage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("archivectl: read fixture: %w", err)
	}
	var fx fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		return nil, nil, fmt.Errorf("archivectl: parse fixture: %w", err)
	}

	ar := memarchive.New()
	st := memstorage.New()
	for name, files := range fx.Archives {
		st.Put(name, nil)
		var entries []memarchive.Entry
		for _, f := range files {
			data := []byte(f.Data)
			entries = append(entries, memarchive.Entry{
				Type: contracts.EntryFile,
				File: &contracts.FileEntryHeader{
					Names:          []string{f.Name},
					Size:           uint64(len(data)),
					FragmentOffset: 0,
					FragmentSize:   uint64(len(data)),
				},
				Payload: data,
			})
		}
		ar.Register(name, entries)
	}
	return ar, st, nil
}

func runTest(args []string) {
	fs := pflag.NewFlagSet("test", pflag.ExitOnError)
	c := bindCommon(fs)
	fs.Parse(args)
	rest := fs.Args()
	if len(rest) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := loadOptions(c)
	if err != nil {
		log.Fatalf("archivectl: %v", err)
	}
	ar, st, err := loadFixture(rest[0])
	if err != nil {
		log.Fatalf("archivectl: %v", err)
	}

	idx := openIndex(c.indexPath)
	defer closeIndex(idx)

	opts := cfg.DefaultOptions.ToEngineOptions()
	for _, name := range rest[1:] {
		started := time.Now()
		err := engine.Test(context.Background(), engine.Dependencies{Archive: ar, Storage: st},
			[]string{name}, cfg.DefaultOptions.Include, cfg.DefaultOptions.Exclude, opts,
			nil, nil, nil, enginelog.Std("test: "))
		recordRun(idx, "test", name, started, err)
		if err != nil {
			log.Fatalf("archivectl: test %s: %v", name, err)
		}
		fmt.Printf("%s: OK\n", name)
	}
}

func runRestore(args []string) {
	fs := pflag.NewFlagSet("restore", pflag.ExitOnError)
	c := bindCommon(fs)
	dest := fs.String("dest", "", "destination root")
	conflict := fs.String("conflict", "stop", "stop|rename|overwrite|skip_existing")
	fs.Parse(args)
	rest := fs.Args()
	if len(rest) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := loadOptions(c)
	if err != nil {
		log.Fatalf("archivectl: %v", err)
	}
	cfg.DefaultOptions.DestinationRoot = *dest
	cfg.DefaultOptions.ConflictPolicy = *conflict

	ar, st, err := loadFixture(rest[0])
	if err != nil {
		log.Fatalf("archivectl: %v", err)
	}
	destFS := memstorage.NewFS()

	idx := openIndex(c.indexPath)
	defer closeIndex(idx)

	opts := cfg.DefaultOptions.ToEngineOptions()
	for _, name := range rest[1:] {
		started := time.Now()
		err := engine.Restore(context.Background(), engine.Dependencies{Archive: ar, Storage: st, FS: destFS},
			[]string{name}, cfg.DefaultOptions.Include, cfg.DefaultOptions.Exclude, opts,
			nil, nil, nil, nil, nil, enginelog.Std("restore: "))
		recordRun(idx, "restore", name, started, err)
		if err != nil {
			log.Fatalf("archivectl: restore %s: %v", name, err)
		}
		fmt.Printf("%s: OK\n", name)
	}
}

func runConvert(args []string) {
	fs := pflag.NewFlagSet("convert", pflag.ExitOnError)
	c := bindCommon(fs)
	newJobUUID := fs.Bool("new-job-uuid", false, "assign a new random job UUID")
	newComment := fs.String("comment", "", "new archive comment")
	fs.Parse(args)
	rest := fs.Args()
	if len(rest) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := loadOptions(c)
	if err != nil {
		log.Fatalf("archivectl: %v", err)
	}

	ar, st, err := loadFixture(rest[0])
	if err != nil {
		log.Fatalf("archivectl: %v", err)
	}

	jobUUID := ""
	if *newJobUUID {
		jobUUID = uuid.NewString()
	}
	cfg.DefaultOptions.DestinationRoot = ""

	idx := openIndex(c.indexPath)
	defer closeIndex(idx)

	opts := cfg.DefaultOptions.ToEngineOptions()
	opts.NewComment = *newComment
	for _, name := range rest[1:] {
		started := time.Now()
		destName := name + ".converted"
		err := engine.Convert(context.Background(), engine.Dependencies{Archive: ar, Storage: st},
			[]string{name}, jobUUID, "", time.Time{}, opts, nil, enginelog.Std("convert: "))
		recordRun(idx, "convert", name, started, err)
		if err != nil {
			log.Fatalf("archivectl: convert %s: %v", name, err)
		}
		fmt.Printf("%s -> %s: OK\n", name, destName)
	}
}

func openIndex(path string) *index.Index {
	if path == "" {
		return nil
	}
	idx, err := index.Open(path)
	if err != nil {
		log.Fatalf("archivectl: index: %v", err)
	}
	return idx
}

func closeIndex(idx *index.Index) {
	if idx != nil {
		idx.Close()
	}
}

func recordRun(idx *index.Index, mode, storageName string, started time.Time, runErr error) {
	if idx == nil {
		return
	}
	if err := idx.RecordRun(index.RunSummary{
		Mode:        mode,
		StorageName: storageName,
		StartedAt:   started,
		FinishedAt:  time.Now(),
		Err:         runErr,
	}); err != nil {
		log.Printf("archivectl: record run: %v", err)
	}
}
