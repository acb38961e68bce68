package integration

import "fmt"

// Package integration assembles a running ledger out of its parts: a key-value
// database chosen by a storage preset, the snapshot store on top of it, the
// custody bank and the engine restored from the latest snapshot.
//
// Presets bundle the storage knobs into named profiles so operators can pick
// one with a single flag:
//   cfg := integration.LitePreset()    // in-memory, for tests and demos
//   cfg := integration.DefaultPreset() // leveldb with modest caches
//   cfg := integration.FullPreset()    // leveldb tuned for long-running services

const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
)

// PresetConfig captures the storage parameters that vary across profiles.
type PresetConfig struct {
	Name    string // human-readable identifier (e.g., "lite", "full")
	Backend string // BackendMemory or BackendLevelDB
	CacheMB int    // leveldb block cache and write buffer budget
	Handles int    // leveldb open file handles
	// KeepSnapshots is how many snapshots survive pruning; zero keeps all of them.
	KeepSnapshots uint64
}

func DefaultPreset() PresetConfig {
	return PresetConfig{
		Name:          "default",
		Backend:       BackendLevelDB,
		CacheMB:       64,
		Handles:       256,
		KeepSnapshots: 1024,
	}
}

// LitePreset keeps everything in memory. State is lost on exit.
func LitePreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "lite"
	cfg.Backend = BackendMemory
	cfg.CacheMB = 0
	cfg.Handles = 0
	cfg.KeepSnapshots = 16
	return cfg
}

// FullPreset keeps every snapshot on disk, so any past state can be audited
// by hash, and gives leveldb large caches.
func FullPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "full"
	cfg.CacheMB = 512
	cfg.Handles = 1024
	cfg.KeepSnapshots = 0
	return cfg
}

// GetPresetByName looks up a preset by its string identifier.
func GetPresetByName(name string) (PresetConfig, error) {
	switch name {
	case "lite":
		return LitePreset(), nil
	case "full":
		return FullPreset(), nil
	case "default":
		return DefaultPreset(), nil
	default:
		return PresetConfig{}, fmt.Errorf("unknown preset: %q (valid: lite, full, default)", name)
	}
}

// ApplyPreset merges preset into target. Zero numeric fields of preset leave
// target untouched, except KeepSnapshots where zero is meaningful.
func ApplyPreset(target *PresetConfig, preset PresetConfig) {
	if preset.Backend != "" {
		target.Backend = preset.Backend
	}
	if preset.CacheMB > 0 {
		target.CacheMB = preset.CacheMB
	}
	if preset.Handles > 0 {
		target.Handles = preset.Handles
	}
	target.KeepSnapshots = preset.KeepSnapshots
	if preset.Name != "" {
		target.Name = preset.Name
	}
}
