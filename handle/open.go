// Package handle implements capability-checked File and Directory handles
// over kvfs nodes.
package handle

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/internal/util"
)

// ErrClosed is returned by operations on a closed handle.
var ErrClosed = fmt.Errorf("handle already closed: %w", kvfs.InvalidInput)

// Resolver turns absolute paths into nodes. *mount.RootDirectory is the
// usual implementation.
type Resolver interface {
	Lookup(p kvfs.AbsPath) (kvfs.Node, error)
	Create(p kvfs.AbsPath, typ kvfs.NodeType, mode uint32) (kvfs.Node, error)
}

// Open opens the file at p. With OCreate a missing file is created with
// mode; OExcl then requires that it did not exist.
func Open(r Resolver, p kvfs.AbsPath, flags kvfs.OpenFlags, mode uint32) (*File, error) {
	logger := util.GetLogger("handle.Open")
	node, err := r.Lookup(p)
	switch {
	case errors.Is(err, kvfs.NotFound) && flags.Has(kvfs.OCreate):
		if _, err := r.Create(p, kvfs.TypeFile, mode); err != nil {
			if !errors.Is(err, kvfs.AlreadyExists) || flags.Has(kvfs.OExcl) {
				return nil, err
			}
		}
		if node, err = r.Lookup(p); err != nil {
			return nil, err
		}
		logger.Trace().Str("path", p.String()).Msg("Created file")
	case err != nil:
		return nil, err
	case flags.Has(kvfs.OCreate | kvfs.OExcl):
		return nil, kvfs.NewPathError("open", p.String(), kvfs.AlreadyExists)
	}
	return OpenNode(p, node, flags)
}

// Create opens p for reading and writing, creating or truncating it.
func Create(r Resolver, p kvfs.AbsPath, mode uint32) (*File, error) {
	return Open(r, p, kvfs.ORdWr|kvfs.OCreate|kvfs.OTrunc, mode)
}

// CreateNew is Create that fails with AlreadyExists when p exists.
func CreateNew(r Resolver, p kvfs.AbsPath, mode uint32) (*File, error) {
	return Open(r, p, kvfs.ORdWr|kvfs.OCreate|kvfs.OExcl, mode)
}

// OpenNode binds an already resolved node to a new File handle. p is only
// recorded for reporting.
func OpenNode(p kvfs.AbsPath, node kvfs.Node, flags kvfs.OpenFlags) (*File, error) {
	switch {
	case flags.Has(kvfs.ODirectory) && node.Type() != kvfs.TypeDir:
		return nil, kvfs.NewPathError("open", p.String(), kvfs.NotADirectory)
	case node.Type() == kvfs.TypeDir:
		return nil, kvfs.NewPathError("open", p.String(), kvfs.IsADirectory)
	}
	required := flags.RequiredCap()
	if err := checkPerm(node, required); err != nil {
		return nil, kvfs.NewPathError("open", p.String(), err)
	}
	if flags.Has(kvfs.OTrunc) && flags.Writable() {
		if err := node.Truncate(0); err != nil && !errors.Is(err, kvfs.Unsupported) {
			return nil, kvfs.NewPathError("open", p.String(), err)
		}
	}
	bound, err := bind(node, flags)
	if err != nil {
		return nil, kvfs.NewPathError("open", p.String(), err)
	}
	f := &File{
		path:  p,
		node:  kvfs.Wrap(bound, required),
		flags: flags,
		rel:   newRelease(bound, flags),
	}
	f.nonblock.Store(flags.Has(kvfs.ONonblock))
	runtime.AddCleanup(f, releaseOnCollect, f.rel)
	return f, nil
}

// checkPerm compares required with the owner bits the node reports.
func checkPerm(node kvfs.Node, required kvfs.Cap) error {
	attr, err := node.GetAttr()
	if err != nil {
		return err
	}
	if perm := kvfs.CapFromMode(attr.Mode); !perm.Contains(required) {
		return &kvfs.CapabilityError{Required: required, Granted: perm}
	}
	return nil
}

// bind runs the node's open hook, which may hand back another node.
func bind(node kvfs.Node, flags kvfs.OpenFlags) (kvfs.Node, error) {
	bound, err := node.Open(flags)
	if err != nil {
		return nil, err
	}
	if bound == nil {
		return node, nil
	}
	return bound, nil
}

// release calls Node.Release exactly once, either from Close or when an
// unclosed handle is collected.
type release struct {
	node  kvfs.Node
	flags kvfs.OpenFlags
	done  atomic.Bool
}

func newRelease(node kvfs.Node, flags kvfs.OpenFlags) *release {
	return &release{node: node, flags: flags}
}

func (r *release) run() error {
	if r.done.Swap(true) {
		return nil
	}
	return r.node.Release(r.flags)
}

func releaseOnCollect(r *release) {
	if err := r.run(); err != nil {
		logger := util.GetLogger("handle")
		logger.Warn().Err(err).Msg("Release of unclosed handle failed")
	}
}

func (r *release) closed() bool {
	return r.done.Load()
}
