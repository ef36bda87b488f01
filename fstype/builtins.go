package fstype

import (
	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/config"
	"github.com/brettbedarf/kvfs/devices"
	"github.com/brettbedarf/kvfs/filesystem"
	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/dustin/go-humanize"
)

type BuiltInType = string

const (
	RamFSType BuiltInType = "ramfs"
	DevFSType BuiltInType = "devfs"
)

// RegisterBuiltins registers all built-in filesystem types on [Default].
func RegisterBuiltins(types ...BuiltInType) {
	Default.RegisterBuiltins(types...)
}

// RegisterBuiltins registers all built-in filesystem types by default
// or only the specific ones if keys are provided
func (r *Registry) RegisterBuiltins(types ...BuiltInType) {
	if len(types) == 0 {
		types = append(types, RamFSType, DevFSType)
	}

	for _, key := range types {
		switch key {
		case RamFSType:
			r.Register(RamFSType, newRamFS)
		case DevFSType:
			r.Register(DevFSType, newDevFS)
		}
	}
}

func newRamFS(m config.MountConfig, cfg *config.Config) (kvfs.FileSystem, error) {
	size, err := m.Bytes()
	if err != nil {
		return nil, err
	}
	if m.Size == "" {
		if size, err = (config.MountConfig{Size: cfg.RamFSSize}).Bytes(); err != nil {
			return nil, err
		}
	}
	logger := util.GetLogger("fstype.ramfs")
	logger.Debug().
		Str("path", m.Path).
		Str("size", humanize.IBytes(uint64(size))).
		Msg("Creating ramfs")
	return filesystem.NewRamFS(filesystem.Options{
		Name:     RamFSType,
		MaxSize:  size,
		RootMode: cfg.DirMode,
	}), nil
}

// newDevFS creates a devfs holding the standard device set plus the
// configured RAM disks.
func newDevFS(m config.MountConfig, cfg *config.Config) (kvfs.FileSystem, error) {
	disks, err := m.RAMDiskBytes()
	if err != nil {
		return nil, err
	}
	fs := filesystem.NewDevFS(filesystem.Options{Name: DevFSType, RootMode: cfg.DirMode})
	if _, err := devices.Populate(fs, devices.Options{RAMDisks: disks}); err != nil {
		return nil, err
	}
	return fs, nil
}
