// Package engineconfig loads the archivectl job-options config file
// (spec.md §3, "Job options"), following the teacher's Load/
// EnsureConfigFile bootstrap idiom but parsing HuJSON so the file can
// carry comments.
package engineconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	"github.com/gaby/archivebackup/internal/engineopts"
)

// OptionsConfig is the JSON/HuJSON shape of Job options (spec.md §3).
type OptionsConfig struct {
	Include             []string `json:"include"`
	Exclude             []string `json:"exclude"`
	IgnoreCasePatterns  bool     `json:"ignore_case_patterns"`
	DestinationRoot     string   `json:"destination_root"`
	DirectoryStripCount int      `json:"directory_strip_count"`

	// ConflictPolicy is one of "stop", "rename", "overwrite", "skip_existing".
	ConflictPolicy string `json:"conflict_policy"`

	DryRun               bool `json:"dry_run"`
	SparseFiles          bool `json:"sparse_files"`
	NoFragmentCheck      bool `json:"no_fragment_check"`
	NoStopOnError        bool `json:"no_stop_on_error"`
	NoStopOnOwnerError   bool `json:"no_stop_on_owner_error"`
	NoStopOnAttrError    bool `json:"no_stop_on_attribute_error"`
	SkipSignatureVerify  bool `json:"skip_signature_verify"`
	ForceSignatureVerify bool `json:"force_signature_verify"`

	MaxThreads            int  `json:"max_threads"`
	RestoreSingleThreaded bool `json:"restore_single_threaded"`
}

// LogConfig controls the CLI's logging verbosity.
type LogConfig struct {
	Level string `json:"level"`
}

// Config is the top-level archivectl configuration.
type Config struct {
	DefaultOptions OptionsConfig `json:"default_options"`
	Log            LogConfig     `json:"log"`
}

// Default returns safe first-boot defaults.
func Default() Config {
	return Config{
		DefaultOptions: OptionsConfig{ConflictPolicy: "stop"},
		Log:            LogConfig{Level: "info"},
	}
}

// EnsureConfigFile writes Default() to path if nothing exists there
// yet. It never overwrites an existing file.
func EnsureConfigFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("engineconfig: write default config: %w", err)
	}
	return nil
}

// Load reads and parses path as HuJSON, falling back to Default() when
// path is empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	std, err := hujson.Standardize(raw)
	if err != nil {
		return cfg, fmt.Errorf("engineconfig: parse %s: %w", path, err)
	}
	if err := json.Unmarshal(std, &cfg); err != nil {
		return cfg, fmt.Errorf("engineconfig: decode %s: %w", path, err)
	}
	return cfg, nil
}

// ToEngineOptions builds the engine's Options from the config, leaving
// the caller to apply any CLI-flag overrides afterward.
func (c OptionsConfig) ToEngineOptions() *engineopts.Options {
	o := &engineopts.Options{
		Include:               c.Include,
		Exclude:               c.Exclude,
		IgnoreCasePatterns:    c.IgnoreCasePatterns,
		DestinationRoot:       c.DestinationRoot,
		DirectoryStripCount:   c.DirectoryStripCount,
		ConflictPolicy:        parseConflictPolicy(c.ConflictPolicy),
		DryRun:                c.DryRun,
		SparseFiles:           c.SparseFiles,
		NoFragmentCheck:       c.NoFragmentCheck,
		NoStopOnError:         c.NoStopOnError,
		NoStopOnOwnerError:    c.NoStopOnOwnerError,
		NoStopOnAttrError:     c.NoStopOnAttrError,
		SkipSignatureVerify:   c.SkipSignatureVerify,
		ForceSignatureVerify:  c.ForceSignatureVerify,
		MaxThreads:            c.MaxThreads,
		RestoreSingleThreaded: c.RestoreSingleThreaded,
	}
	return o
}

func parseConflictPolicy(s string) engineopts.ConflictPolicy {
	switch s {
	case "rename":
		return engineopts.Rename
	case "overwrite":
		return engineopts.Overwrite
	case "skip_existing":
		return engineopts.SkipExisting
	default:
		return engineopts.Stop
	}
}
