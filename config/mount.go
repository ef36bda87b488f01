package config

import (
	"errors"
	"fmt"

	"github.com/brettbedarf/kvfs"
	"github.com/dustin/go-humanize"
)

// MountOptions holds high-level settings for serving over FUSE.
// No go-fuse types are exposed here.
type MountOptions struct {
	Debug  bool   // fuse debug logs
	FsName string // mount's FsName
	Name   string // mount's Name
}

// MountConfig is one row of the mount table. Type names a registered
// filesystem type; Size is a human readable capacity like "64MiB".
type MountConfig struct {
	Path     string   `yaml:"path" json:"path"`
	Type     string   `yaml:"type" json:"type"`
	Size     string   `yaml:"size,omitempty" json:"size,omitempty"`
	RAMDisks []string `yaml:"ram_disks,omitempty" json:"ram_disks,omitempty"` // devfs only
}

// Bytes parses Size. An empty size is 0 (unlimited).
func (m MountConfig) Bytes() (int64, error) {
	return parseSize(m.Size)
}

// RAMDiskBytes parses every RAMDisks entry.
func (m MountConfig) RAMDiskBytes() ([]int, error) {
	sizes := make([]int, 0, len(m.RAMDisks))
	for _, s := range m.RAMDisks {
		n, err := parseSize(s)
		if err != nil {
			return nil, err
		}
		sizes = append(sizes, int(n))
	}
	return sizes, nil
}

func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(n), nil
}

var ErrNoRootMount = errors.New("first mount must be \"/\"")

// ValidateMounts checks that the table starts at "/", has no duplicate
// paths and that every size parses.
func ValidateMounts(mounts []MountConfig) error {
	if len(mounts) == 0 || !kvfs.Abs(mounts[0].Path).IsRoot() {
		return ErrNoRootMount
	}
	seen := make(map[kvfs.AbsPath]bool, len(mounts))
	for _, m := range mounts {
		p := kvfs.Abs(m.Path)
		if seen[p] {
			return fmt.Errorf("duplicate mount %s: %w", p, kvfs.AlreadyExists)
		}
		seen[p] = true
		if m.Type == "" {
			return fmt.Errorf("mount %s has no type: %w", p, kvfs.InvalidInput)
		}
		if _, err := m.Bytes(); err != nil {
			return fmt.Errorf("mount %s: %w", p, err)
		}
		if _, err := m.RAMDiskBytes(); err != nil {
			return fmt.Errorf("mount %s: %w", p, err)
		}
	}
	return nil
}
