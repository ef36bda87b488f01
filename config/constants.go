package config

import "github.com/brettbedarf/kvfs/internal/util"

// CLI verbosity values accepted by ConfigOverride.LogLvl.
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultLogLvl = util.InfoLevel

	DefaultFsName = "kvfs"
	DefaultName   = "kvfs"

	// DefaultAttrTimeout is the attribute cache timeout in seconds
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the directory entry cache timeout in seconds
	DefaultEntryTimeout = 1.0

	DefaultFileMode uint32 = 0o644
	DefaultDirMode  uint32 = 0o755

	// DefaultRamFSSize caps ramfs mounts that do not set their own size.
	// Empty means unlimited.
	DefaultRamFSSize = ""
)

// DefaultMounts is the table used when no mounts are configured: a ramfs
// root, devices at /dev and scratch space at /tmp.
func DefaultMounts() []MountConfig {
	return []MountConfig{
		{Path: "/", Type: "ramfs"},
		{Path: "/dev", Type: "devfs"},
		{Path: "/tmp", Type: "ramfs", Size: "64MiB"},
	}
}
