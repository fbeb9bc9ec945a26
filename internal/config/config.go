// Package config loads the partition engine's tunables: sane built-in
// defaults, optionally overridden by an ".ini" sidecar file next to the
// partition, optionally overridden again by environment variables. This
// mirrors the teacher's own config layering (a built-in default ini
// document merged with an on-disk one).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/ini.v1"
)

// loadOptions mirrors the teacher's config loading: unrecognized lines
// in a sidecar file are skipped rather than treated as an error, so an
// older Pippin binary can still read a newer config file.
var loadOptions = ini.LoadOptions{SkipUnrecognizableLines: true}

// Config holds the partition engine's operating parameters (spec §4.6).
type Config struct {
	// SnapshotThresholdBytes is the aggregate log size, since the owning
	// snapshot, past which a new snapshot is due.
	SnapshotThresholdBytes int64
	// LogSiblingCount is how many sibling log files a session alternates
	// writes across once it has written more than once (spec §4.6: "it
	// may create a sibling and alternate").
	LogSiblingCount int
}

func defaultDocument() *ini.File {
	cfg := ini.Empty(loadOptions)
	core := cfg.Section("core")
	defaults := map[string]string{
		"snapshot_threshold_bytes": "4194304",
		"log_sibling_count":        "2",
	}
	for k, v := range defaults {
		_, _ = core.NewKey(k, v)
	}
	return cfg
}

// SidecarName is the config file this package looks for alongside a
// partition's snapshot/log files.
const SidecarName = "pippin.ini"

// Load builds a Config for the partition rooted at dir: built-in
// defaults, then dir/pippin.ini if present, then environment variable
// overrides (PIPPIN_SNAPSHOT_THRESHOLD_BYTES, PIPPIN_LOG_SIBLING_COUNT).
func Load(dir string) (*Config, error) {
	doc := defaultDocument()

	sidecar := filepath.Join(dir, SidecarName)
	if _, err := os.Stat(sidecar); err == nil {
		if err := doc.Append(sidecar); err != nil {
			return nil, fmt.Errorf("config: could not read %s: %w", sidecar, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: could not stat %s: %w", sidecar, err)
	}

	core := doc.Section("core")
	out := &Config{
		SnapshotThresholdBytes: core.Key("snapshot_threshold_bytes").MustInt64(4194304),
		LogSiblingCount:        core.Key("log_sibling_count").MustInt(2),
	}

	applyEnvOverrides(out)
	return out, nil
}

func applyEnvOverrides(c *Config) {
	if v, ok := envInt64("PIPPIN_SNAPSHOT_THRESHOLD_BYTES"); ok {
		c.SnapshotThresholdBytes = v
	}
	if v, ok := envInt("PIPPIN_LOG_SIBLING_COUNT"); ok {
		c.LogSiblingCount = v
	}
}

func envInt64(name string) (int64, bool) {
	raw, present := os.LookupEnv(name)
	if !present {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envInt(name string) (int, bool) {
	v, ok := envInt64(name)
	return int(v), ok
}
