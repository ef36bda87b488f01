// Package server exposes a mount table on a host directory over FUSE.
package server

import (
	"errors"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/config"
	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/brettbedarf/kvfs/mount"
	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"
)

// inoKey names an inode inside one filesystem of the mount table.
type inoKey struct {
	fsID string
	ino  uint64
}

// Server bridges a RootDirectory to the kernel. Inode numbers of the
// mounted filesystems overlap, so each (filesystem, inode) pair gets its
// own host inode number.
type Server struct {
	root   *mount.RootDirectory
	cfg    *config.Config
	inos   *xsync.Map[inoKey, uint64]
	next   atomic.Uint64
	server *fuse.Server
}

// New creates a Server for root given your config.
func New(root *mount.RootDirectory, cfg *config.Config) *Server {
	s := &Server{
		root: root,
		cfg:  cfg,
		inos: xsync.NewMap[inoKey, uint64](),
	}
	s.next.Store(fuse.FUSE_ROOT_ID)
	if attr, err := root.Primary().RootDir().GetAttr(); err == nil {
		s.inos.Store(inoKey{root.Primary().ID(), attr.Ino}, fuse.FUSE_ROOT_ID)
	}
	return s
}

// Root returns the node for "/".
func (s *Server) Root() *Node {
	return &Node{srv: s}
}

// ino returns the host inode number of ino in the filesystem fsID.
func (s *Server) ino(fsID string, ino uint64) uint64 {
	if v, ok := s.inos.Load(inoKey{fsID, ino}); ok {
		return v
	}
	v, _ := s.inos.LoadOrStore(inoKey{fsID, ino}, s.next.Add(1))
	return v
}

func (s *Server) options() *gofs.Options {
	attr := time.Duration(s.cfg.AttrTimeout * float64(time.Second))
	entry := time.Duration(s.cfg.EntryTimeout * float64(time.Second))
	opts := s.cfg.MountOptions
	return &gofs.Options{
		MountOptions: fuse.MountOptions{
			Name:   opts.Name,
			FsName: opts.FsName,
			Debug:  opts.Debug || s.cfg.LogLvl == util.TraceLevel,
			Logger: util.NewLogLogger("FuseServer", util.DebugLevel),
		},
		AttrTimeout:  &attr,
		EntryTimeout: &entry,
		Logger:       util.NewLogLogger("FuseNodes", util.DebugLevel),
	}
}

// Serve mounts and serves the filesystem at the given mountPoint.
func (s *Server) Serve(mountPoint string) error {
	logger := util.GetLogger("Server.Serve")
	srv, err := gofs.Mount(mountPoint, s.Root(), s.options())
	if err != nil {
		return err
	}
	s.server = srv
	logger.Info().Str("mountpoint", mountPoint).Msg("Serving over FUSE")
	return nil
}

// Wait blocks until the filesystem is unmounted.
func (s *Server) Wait() {
	if s.server != nil {
		s.server.Wait()
	}
}

// Unmount cleanly unmounts the filesystem.
func (s *Server) Unmount() error {
	if s.server == nil {
		return nil
	}
	return s.server.Unmount()
}

// errno maps a VFS error onto the errno returned to the kernel. The kernel
// treats ENOSYS as "never call this again", so unsupported operations get
// ENOTSUP instead.
func errno(err error) syscall.Errno {
	if errors.Is(err, kvfs.Unsupported) {
		return syscall.ENOTSUP
	}
	return kvfs.Errno(err)
}
