package filesystem

import (
	"fmt"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/google/uuid"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"
)

// Options configures a FileSystem.
type Options struct {
	// Name is reported by FileSystem.Name; defaults to the tree kind.
	Name string
	// MaxSize caps the bytes held by all files; 0 means unlimited.
	MaxSize int64
	// RootMode holds the permission bits of the root directory.
	RootMode uint32
}

// FileSystem is an in-memory tree of directories, regular files and fifos.
// A fixed FileSystem (devfs) only changes through Install.
type FileSystem struct {
	id       string
	name     string
	root     *Dir
	fixed    bool
	maxSize  int64
	used     atomic.Int64
	lastIno  atomic.Uint64                 // Last fuse Attr.Ino assigned; incremented when new nodes are created
	inodes   *xsync.Map[uint64, kvfs.Node] // live nodes by inode number
	renameMu sync.Mutex
	unmount  atomic.Bool
}

var _ kvfs.FileSystem = (*FileSystem)(nil)

// NewRamFS returns an empty writable tree.
func NewRamFS(opts Options) *FileSystem {
	if opts.Name == "" {
		opts.Name = "ramfs"
	}
	return newFS(opts, false)
}

// NewDevFS returns an empty fixed tree. Nodes are added with Install;
// callers through the kvfs.Node interface cannot create, remove or rename
// entries.
func NewDevFS(opts Options) *FileSystem {
	if opts.Name == "" {
		opts.Name = "devfs"
	}
	return newFS(opts, true)
}

func newFS(opts Options, fixed bool) *FileSystem {
	fs := &FileSystem{
		id:      uuid.NewString(),
		name:    opts.Name,
		fixed:   fixed,
		maxSize: opts.MaxSize,
		inodes:  xsync.NewMap[uint64, kvfs.Node](),
	}
	mode := opts.RootMode
	if mode == 0 {
		mode = kvfs.DefaultDirMode
	}
	fs.lastIno.Store(fuse.FUSE_ROOT_ID)
	fs.root = newDir(fs, nil, fuse.FUSE_ROOT_ID, mode)
	fs.inodes.Store(fuse.FUSE_ROOT_ID, fs.root)
	return fs
}

func (fs *FileSystem) ID() string {
	return fs.id
}

func (fs *FileSystem) Name() string {
	return fs.name
}

func (fs *FileSystem) RootDir() kvfs.Node {
	return fs.root
}

// Root returns the root as its concrete type.
func (fs *FileSystem) Root() *Dir {
	return fs.root
}

// Used returns the bytes currently held by files.
func (fs *FileSystem) Used() int64 {
	return fs.used.Load()
}

// MaxSize returns the configured capacity; 0 means unlimited.
func (fs *FileSystem) MaxSize() int64 {
	return fs.maxSize
}

// Unmount is a no-op for memory trees apart from logging; the nodes stay
// valid for handles that are still open.
func (fs *FileSystem) Unmount() error {
	if fs.unmount.Swap(true) {
		return nil
	}
	logger := util.GetLogger("FileSystem.Unmount")
	logger.Debug().Str("id", fs.id).Str("name", fs.name).
		Int("inodes", fs.inodes.Size()).Msg("Unmounted")
	return nil
}

// NodeByIno returns the live node with the given inode number.
func (fs *FileSystem) NodeByIno(ino uint64) (kvfs.Node, bool) {
	return fs.inodes.Load(ino)
}

// Install places node at p, creating missing directories on the way. It
// works on fixed trees too and is how devfs gets populated.
func (fs *FileSystem) Install(p kvfs.RelPath, node kvfs.Node) error {
	logger := util.GetLogger("FileSystem.Install")
	if p.IsEmpty() || p.Base() == ".." {
		return kvfs.NewPathError("install", p.String(), kvfs.InvalidInput)
	}
	dir, err := fs.installDirs(p.Dir())
	if err != nil {
		return kvfs.NewPathError("install", p.String(), err)
	}
	if _, err := dir.addChild(p.Base(), true, func() (kvfs.Node, error) {
		return node, nil
	}); err != nil {
		return kvfs.NewPathError("install", p.String(), err)
	}
	logger.Debug().Str("fs", fs.name).Str("path", p.String()).Str("type", node.Type().String()).Msg("Installed node")
	return nil
}

// InstallDir is mkdir -p that works on fixed trees too.
func (fs *FileSystem) InstallDir(p kvfs.RelPath) (*Dir, error) {
	dir, err := fs.installDirs(p)
	return dir, kvfs.NewPathError("install", p.String(), err)
}

func (fs *FileSystem) installDirs(p kvfs.RelPath) (*Dir, error) {
	cur := fs.root
	for _, name := range p.Components() {
		if name == ".." {
			return nil, kvfs.InvalidInput
		}
		next, err := cur.addChild(name, true, func() (kvfs.Node, error) {
			return fs.newNode(cur, kvfs.TypeDir, kvfs.DefaultDirMode)
		})
		if err != nil && next == nil {
			return nil, err
		}
		dir, ok := next.(*Dir)
		if !ok {
			return nil, kvfs.NotADirectory
		}
		cur = dir
	}
	return cur, nil
}

// newNode allocates a node of typ below parent and registers its inode.
func (fs *FileSystem) newNode(parent *Dir, typ kvfs.NodeType, perm uint32) (kvfs.Node, error) {
	var node kvfs.Node
	switch typ {
	case kvfs.TypeDir:
		node = newDir(fs, parent, fs.lastIno.Add(1), perm)
	case kvfs.TypeFile:
		node = newFile(fs, fs.lastIno.Add(1), perm)
	case kvfs.TypeFifo:
		node = newFifo(fs.lastIno.Add(1), perm)
	default:
		return nil, fmt.Errorf("create %s node: %w", typ, kvfs.Unsupported)
	}
	fs.inodes.Store(node.(inoder).inode().Ino(), node)
	return node, nil
}

// owns reports whether node was allocated by fs and is still linked.
func (fs *FileSystem) owns(node kvfs.Node) bool {
	in, ok := node.(inoder)
	if !ok {
		return false
	}
	cur, ok := fs.inodes.Load(in.inode().Ino())
	return ok && cur == node
}

// dropLink releases one name of node. The inode leaves the registry and a
// file gives its bytes back once the last name is gone.
func (fs *FileSystem) dropLink(node kvfs.Node) {
	in, ok := node.(inoder)
	if !ok || !fs.owns(node) {
		return
	}
	if _, isDir := node.(*Dir); !isDir && in.inode().dropLink() > 0 {
		return
	}
	fs.inodes.Delete(in.inode().Ino())
	if f, ok := node.(*File); ok {
		f.release()
	}
}

// reserve accounts n more bytes against the capacity.
func (fs *FileSystem) reserve(n int64) bool {
	if fs.maxSize <= 0 {
		fs.used.Add(n)
		return true
	}
	for {
		used := fs.used.Load()
		if used+n > fs.maxSize {
			return false
		}
		if fs.used.CompareAndSwap(used, used+n) {
			return true
		}
	}
}

func (fs *FileSystem) unreserve(n int64) {
	fs.used.Add(-n)
}

// move relinks child from src/srcName to dst/dstName. done is false when
// src no longer holds child by the time the locks are taken.
func (fs *FileSystem) move(src *Dir, srcName string, dst *Dir, dstName string, child kvfs.Node) (done bool, err error) {
	var ctx lockContext
	defer ctx.Close()
	ctx.lockPair(src, dst)

	if src.detached || dst.detached {
		return true, kvfs.NotFound
	}
	if cur, ok := src.children[srcName]; !ok {
		return true, kvfs.NotFound
	} else if cur != child {
		return false, nil
	}

	childDir, isDir := child.(*Dir)
	if existing, ok := dst.children[dstName]; ok {
		if existing == child {
			// both names are links to the same inode
			return true, nil
		}
		exDir, exIsDir := existing.(*Dir)
		switch {
		case isDir && !exIsDir:
			return true, kvfs.NotADirectory
		case !isDir && exIsDir:
			return true, kvfs.IsADirectory
		case exIsDir:
			if err := exDir.detach(); err != nil {
				return true, err
			}
		}
		fs.dropLink(existing)
	}

	delete(src.children, srcName)
	dst.children[dstName] = child
	if isDir {
		ctx.lock(childDir)
		childDir.parent = weak.Make(dst)
	}
	src.touch()
	if dst != src {
		dst.touch()
	}
	return true, nil
}
