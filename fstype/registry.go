// Package fstype maps the type names used in the mount table to filesystem
// factories.
package fstype

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/config"
	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/brettbedarf/kvfs/mount"
	"go.uber.org/multierr"
)

// Factory builds the filesystem for one mount table row.
type Factory func(m config.MountConfig, cfg *config.Config) (kvfs.FileSystem, error)

// Registry holds the factories for each filesystem type name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Default is the registry used by the package level functions.
var Default = NewRegistry()

// Register ties a factory to a type name and should be called for each
// filesystem type during app init. The first registration for a name wins.
func (r *Registry) Register(fsType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[fsType]; ok {
		return
	}
	r.factories[fsType] = f
}

// Registered lists the known type names in order.
func (r *Registry) Registered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// New builds the filesystem m names. All expected types should be
// registered with [Registry.Register] before calling this function.
func (r *Registry) New(m config.MountConfig, cfg *config.Config) (kvfs.FileSystem, error) {
	r.mu.RLock()
	f, ok := r.factories[m.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no factory for %q: %w", m.Type, kvfs.Unsupported)
	}
	return f(m, cfg)
}

// Build creates every filesystem in cfg's mount table and assembles the
// root directory. Filesystems already built are unmounted when a later
// one fails.
func (r *Registry) Build(cfg *config.Config) (*mount.RootDirectory, error) {
	logger := util.GetLogger("fstype.Build")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	entries := make([]mount.MountPoint, 0, len(cfg.Mounts))
	for _, m := range cfg.Mounts {
		fs, err := r.New(m, cfg)
		if err != nil {
			for _, e := range slices.Backward(entries) {
				err = multierr.Append(err, e.FS.Unmount())
			}
			return nil, fmt.Errorf("mount %s: %w", m.Path, err)
		}
		logger.Debug().Str("path", m.Path).Str("type", m.Type).Str("id", fs.ID()).Msg("Built filesystem")
		entries = append(entries, mount.MountPoint{Path: kvfs.Abs(m.Path), FS: fs})
	}
	return mount.NewRootDirectory(entries)
}

func Register(fsType string, f Factory) { Default.Register(fsType, f) }

func Registered() []string { return Default.Registered() }

func New(m config.MountConfig, cfg *config.Config) (kvfs.FileSystem, error) {
	return Default.New(m, cfg)
}

func Build(cfg *config.Config) (*mount.RootDirectory, error) {
	return Default.Build(cfg)
}
