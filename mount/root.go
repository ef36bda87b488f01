// Package mount routes path operations across the primary filesystem and the
// filesystems mounted below it.
package mount

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/internal/util"
	"go.uber.org/multierr"
)

// ErrNoFileSystem is returned when the mount list has no entry for "/".
var ErrNoFileSystem = errors.New("no filesystem found")

// MountPoint splices the root of FS into the tree at Path.
type MountPoint struct {
	Path kvfs.AbsPath
	FS   kvfs.FileSystem
}

// RootDirectory owns the primary filesystem and the mount table. Every path
// operation goes to the filesystem whose mount path is the longest
// whole-segment prefix of the target.
type RootDirectory struct {
	primary kvfs.FileSystem

	mu     sync.RWMutex // Protects the fields below
	mounts []MountPoint
	closed bool
}

// NewRootDirectory builds the mount table from an ordered list. The first
// entry must be "/" and becomes the primary filesystem; the rest are mounted
// in order.
func NewRootDirectory(entries []MountPoint) (*RootDirectory, error) {
	logger := util.GetLogger("RootDirectory.New")
	if len(entries) == 0 || !entries[0].Path.IsRoot() || entries[0].FS == nil {
		return nil, ErrNoFileSystem
	}
	r := &RootDirectory{primary: entries[0].FS}
	for _, e := range entries[1:] {
		if err := r.Mount(e.Path, e.FS); err != nil {
			return nil, multierr.Append(err, r.Close())
		}
	}
	logger.Info().Str("primary", r.primary.Name()).Int("mounts", len(entries)-1).Msg("Mount table ready")
	return r, nil
}

// Primary returns the filesystem mounted at "/".
func (r *RootDirectory) Primary() kvfs.FileSystem {
	return r.primary
}

// Mounts returns a snapshot of the mount table without the primary.
func (r *RootDirectory) Mounts() []MountPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.mounts)
}

// Mount attaches fs at p. The target must be an empty directory in the
// filesystem currently serving p; a missing target is created.
func (r *RootDirectory) Mount(p kvfs.AbsPath, fs kvfs.FileSystem) error {
	logger := util.GetLogger("RootDirectory.Mount")
	if p.IsRoot() || fs == nil {
		return kvfs.NewPathError("mount", p.String(), kvfs.InvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return kvfs.NewPathError("mount", p.String(), kvfs.NotFound)
	}
	if slices.ContainsFunc(r.mounts, func(m MountPoint) bool { return m.Path == p }) {
		return kvfs.NewPathError("mount", p.String(), kvfs.AlreadyExists)
	}

	t := r.routeLocked(p)
	target, err := t.root.Lookup(t.rel)
	switch {
	case errors.Is(err, kvfs.NotFound):
		if _, err := kvfs.CreateRecursive(t.root, t.rel, kvfs.TypeDir, kvfs.DefaultDirMode); err != nil {
			return kvfs.NewPathError("mount", p.String(), err)
		}
	case err != nil:
		return kvfs.NewPathError("mount", p.String(), err)
	case target.Type() != kvfs.TypeDir:
		return kvfs.NewPathError("mount", p.String(), kvfs.NotADirectory)
	default:
		empty, err := target.IsEmpty()
		if err != nil {
			return kvfs.NewPathError("mount", p.String(), err)
		}
		if !empty {
			return kvfs.NewPathError("mount", p.String(), kvfs.DirectoryNotEmpty)
		}
	}

	r.mounts = append(r.mounts, MountPoint{Path: p, FS: fs})
	logger.Info().Str("path", p.String()).Str("fs", fs.Name()).Str("id", fs.ID()).Msg("Mounted filesystem")
	return nil
}

// Unmount detaches the filesystem at p. A mount with other mounts beneath
// it is busy.
func (r *RootDirectory) Unmount(p kvfs.AbsPath) error {
	logger := util.GetLogger("RootDirectory.Unmount")
	r.mu.Lock()
	i := slices.IndexFunc(r.mounts, func(m MountPoint) bool { return m.Path == p })
	if i < 0 {
		r.mu.Unlock()
		return kvfs.NewPathError("unmount", p.String(), kvfs.InvalidInput)
	}
	for _, m := range r.mounts {
		if m.Path != p && m.Path.HasPrefix(p) {
			r.mu.Unlock()
			return kvfs.NewPathError("unmount", p.String(), kvfs.PermissionDenied)
		}
	}
	m := r.mounts[i]
	r.mounts = slices.Delete(r.mounts, i, i+1)
	r.mu.Unlock()

	logger.Info().Str("path", p.String()).Str("fs", m.FS.Name()).Msg("Unmounting filesystem")
	return kvfs.NewPathError("unmount", p.String(), m.FS.Unmount())
}

// Close unmounts everything, most recent mount first, and then the primary.
// Errors from every filesystem are combined.
func (r *RootDirectory) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	mounts := r.mounts
	r.mounts = nil
	r.mu.Unlock()

	var err error
	for _, m := range slices.Backward(mounts) {
		err = multierr.Append(err, kvfs.NewPathError("unmount", m.Path.String(), m.FS.Unmount()))
	}
	return multierr.Append(err, kvfs.NewPathError("unmount", "/", r.primary.Unmount()))
}

// target is a path routed to one filesystem.
type target struct {
	fs    kvfs.FileSystem
	root  kvfs.Node
	rel   kvfs.RelPath
	mount *MountPoint // nil when routed to the primary
}

// isMountPoint reports whether the path names a mount point itself.
func (t target) isMountPoint() bool {
	return t.mount != nil && t.rel.IsEmpty()
}

func (r *RootDirectory) route(p kvfs.AbsPath) target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.routeLocked(p)
}

func (r *RootDirectory) routeLocked(p kvfs.AbsPath) target {
	var best *MountPoint
	for i := range r.mounts {
		m := &r.mounts[i]
		if !p.HasPrefix(m.Path) {
			continue
		}
		if best == nil || len(m.Path.String()) > len(best.Path.String()) {
			best = m
		}
	}
	if best == nil {
		return target{fs: r.primary, root: r.primary.RootDir(), rel: p.Rel()}
	}
	rel, _ := p.StripPrefix(best.Path)
	mp := *best
	return target{fs: best.FS, root: best.FS.RootDir(), rel: rel, mount: &mp}
}

// FileSystemOf returns the filesystem serving p.
func (r *RootDirectory) FileSystemOf(p kvfs.AbsPath) kvfs.FileSystem {
	return r.route(p).fs
}

func (r *RootDirectory) Lookup(p kvfs.AbsPath) (kvfs.Node, error) {
	logger := util.GetLogger("RootDirectory.Lookup")
	t := r.route(p)
	logger.Trace().Str("path", p.String()).Str("fs", t.fs.Name()).Str("rel", t.rel.String()).Msg("Routed")
	node, err := t.root.Lookup(t.rel)
	return node, kvfs.NewPathError("lookup", p.String(), err)
}

// Stat returns the attributes of the node at p.
func (r *RootDirectory) Stat(p kvfs.AbsPath) (kvfs.Attr, error) {
	node, err := r.Lookup(p)
	if err != nil {
		return kvfs.Attr{}, err
	}
	attr, err := node.GetAttr()
	return attr, kvfs.NewPathError("stat", p.String(), err)
}

// Create makes a node at p. Like kvfs.Node.Create, an existing node is
// returned along with AlreadyExists; a mount point always exists.
func (r *RootDirectory) Create(p kvfs.AbsPath, typ kvfs.NodeType, mode uint32) (kvfs.Node, error) {
	t := r.route(p)
	if t.isMountPoint() {
		return t.root, kvfs.NewPathError("create", p.String(), kvfs.AlreadyExists)
	}
	node, err := t.root.Create(t.rel, typ, mode)
	return node, kvfs.NewPathError("create", p.String(), err)
}

// CreateRecursive is mkdir -p across mounts: each prefix of p is created in
// the filesystem that serves it.
func (r *RootDirectory) CreateRecursive(p kvfs.AbsPath, typ kvfs.NodeType, mode uint32) (kvfs.Node, error) {
	comps := p.Components()
	if len(comps) == 0 {
		root := r.primary.RootDir()
		if typ == kvfs.TypeDir {
			return root, nil
		}
		return root, kvfs.NewPathError("create", "/", kvfs.AlreadyExists)
	}
	return kvfs.CreatePrefixes(len(comps), func(depth int, t kvfs.NodeType, m uint32) (kvfs.Node, error) {
		return r.Create(kvfs.Abs(strings.Join(comps[:depth], "/")), t, m)
	}, typ, mode)
}

// Unlink removes p. Mount points cannot be removed.
func (r *RootDirectory) Unlink(p kvfs.AbsPath) error {
	t := r.route(p)
	if t.isMountPoint() {
		return kvfs.NewPathError("unlink", p.String(), kvfs.PermissionDenied)
	}
	return kvfs.NewPathError("unlink", p.String(), t.root.Unlink(t.rel))
}

// Rename moves from to to inside one filesystem. Mount points, directories
// holding mount points, and moves between filesystems are refused.
func (r *RootDirectory) Rename(from, to kvfs.AbsPath) error {
	r.mu.RLock()
	src, dst := r.routeLocked(from), r.routeLocked(to)
	busy := slices.ContainsFunc(r.mounts, func(m MountPoint) bool {
		return m.Path.HasPrefix(from) || m.Path.HasPrefix(to)
	})
	r.mu.RUnlock()

	switch {
	case src.isMountPoint() || dst.isMountPoint() || busy:
		return kvfs.NewPathError("rename", from.String(), kvfs.PermissionDenied)
	case src.fs.ID() != dst.fs.ID():
		return kvfs.NewPathError("rename", from.String(), kvfs.PermissionDenied)
	}
	return kvfs.NewPathError("rename", from.String(), src.root.Rename(src.rel, dst.rel))
}

// Link adds the name p for target.
func (r *RootDirectory) Link(p kvfs.AbsPath, target kvfs.Node) error {
	t := r.route(p)
	if t.isMountPoint() {
		return kvfs.NewPathError("link", p.String(), kvfs.AlreadyExists)
	}
	return kvfs.NewPathError("link", p.String(), t.root.Link(t.rel, target))
}

// ReadDir lists the directory at p starting at index start.
func (r *RootDirectory) ReadDir(p kvfs.AbsPath, start int, buf []kvfs.DirEntry) (int, error) {
	node, err := r.Lookup(p)
	if err != nil {
		return 0, err
	}
	n, err := node.ReadDir(start, buf)
	return n, kvfs.NewPathError("readdir", p.String(), err)
}
