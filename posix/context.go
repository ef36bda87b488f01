// Package posix provides a process-like context over a mount table: a
// current directory, cwd-relative path resolution and a descriptor table of
// open handles.
package posix

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/handle"
	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/brettbedarf/kvfs/mount"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/multierr"
)

// MaxFDs bounds the descriptor table.
const MaxFDs = 1024

var (
	ErrBadFD        = fmt.Errorf("bad file descriptor: %w", kvfs.InvalidInput)
	ErrTooManyFiles = errors.New("too many open files")
)

// FD is an index into a Context's descriptor table.
type FD int

// descriptor is an open handle. Dup'd FDs point at the same descriptor and
// share its cursor; the handle closes with the last reference.
type descriptor struct {
	file *handle.File
	dir  *handle.Directory
	refs atomic.Int32
}

// acquire takes a reference unless the last one is already gone.
func (d *descriptor) acquire() bool {
	for {
		n := d.refs.Load()
		if n <= 0 {
			return false
		}
		if d.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (d *descriptor) release() error {
	if d.refs.Add(-1) > 0 {
		return nil
	}
	if d.dir != nil {
		return d.dir.Close()
	}
	return d.file.Close()
}

// Context carries the state a process would: the mount table it sees, its
// working directory and its descriptors.
type Context struct {
	root *mount.RootDirectory
	fds  *xsync.Map[FD, *descriptor]

	mu  sync.RWMutex // Protects cwd
	cwd kvfs.AbsPath
}

// NewContext starts at "/" with an empty descriptor table.
func NewContext(root *mount.RootDirectory) *Context {
	return &Context{
		root: root,
		fds:  xsync.NewMap[FD, *descriptor](),
		cwd:  kvfs.Abs("/"),
	}
}

func (c *Context) Root() *mount.RootDirectory {
	return c.root
}

// Resolve turns p into an absolute path, relative ones against the working
// directory.
func (c *Context) Resolve(p string) kvfs.AbsPath {
	if len(p) > 0 && p[0] == '/' {
		return kvfs.Abs(p)
	}
	return c.Getcwd().Join(kvfs.Rel(p))
}

func (c *Context) Getcwd() kvfs.AbsPath {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cwd
}

// Chdir changes the working directory to p, which must be a directory the
// context may traverse.
func (c *Context) Chdir(p string) error {
	abs := c.Resolve(p)
	node, err := c.root.Lookup(abs)
	if err != nil {
		return err
	}
	if node.Type() != kvfs.TypeDir {
		return kvfs.NewPathError("chdir", abs.String(), kvfs.NotADirectory)
	}
	attr, err := node.GetAttr()
	if err != nil {
		return kvfs.NewPathError("chdir", abs.String(), err)
	}
	if !kvfs.CapFromMode(attr.Mode).Contains(kvfs.CapExecute) {
		return kvfs.NewPathError("chdir", abs.String(), &kvfs.CapabilityError{
			Required: kvfs.CapExecute,
			Granted:  kvfs.CapFromMode(attr.Mode),
		})
	}
	c.mu.Lock()
	c.cwd = abs
	c.mu.Unlock()
	return nil
}

// Open opens p and returns the lowest free descriptor. Directories are
// opened as directory handles.
func (c *Context) Open(p string, flags kvfs.OpenFlags, mode uint32) (FD, error) {
	logger := util.GetLogger("Context.Open")
	abs := c.Resolve(p)
	desc := &descriptor{}
	node, err := c.root.Lookup(abs)
	if err == nil && node.Type() == kvfs.TypeDir {
		if flags.Has(kvfs.OCreate | kvfs.OExcl) {
			return -1, kvfs.NewPathError("open", abs.String(), kvfs.AlreadyExists)
		}
		desc.dir, err = handle.OpenDirNode(abs, node, flags)
	} else {
		desc.file, err = handle.Open(c.root, abs, flags, mode)
	}
	if err != nil {
		return -1, err
	}
	desc.refs.Store(1)
	fd, err := c.install(desc)
	if err != nil {
		return -1, multierr.Append(err, desc.release())
	}
	logger.Trace().Str("path", abs.String()).Int("fd", int(fd)).Msg("Opened")
	return fd, nil
}

// install stores desc in the lowest free slot.
func (c *Context) install(desc *descriptor) (FD, error) {
	for fd := FD(0); fd < MaxFDs; fd++ {
		if _, loaded := c.fds.LoadOrStore(fd, desc); !loaded {
			return fd, nil
		}
	}
	return -1, ErrTooManyFiles
}

func (c *Context) lookup(fd FD) (*descriptor, error) {
	desc, ok := c.fds.Load(fd)
	if !ok {
		return nil, ErrBadFD
	}
	return desc, nil
}

func (c *Context) file(fd FD) (*handle.File, error) {
	desc, err := c.lookup(fd)
	if err != nil {
		return nil, err
	}
	if desc.file == nil {
		return nil, kvfs.NewPathError("fd", desc.dir.Path().String(), kvfs.IsADirectory)
	}
	return desc.file, nil
}

func (c *Context) Close(fd FD) error {
	desc, ok := c.fds.LoadAndDelete(fd)
	if !ok {
		return ErrBadFD
	}
	return desc.release()
}

// CloseAll closes every descriptor, combining the errors.
func (c *Context) CloseAll() error {
	var err error
	c.fds.Range(func(fd FD, _ *descriptor) bool {
		err = multierr.Append(err, c.Close(fd))
		return true
	})
	return err
}

// Dup returns the lowest free descriptor sharing fd's handle.
func (c *Context) Dup(fd FD) (FD, error) {
	desc, err := c.lookup(fd)
	if err != nil {
		return -1, err
	}
	if !desc.acquire() {
		return -1, ErrBadFD
	}
	nfd, err := c.install(desc)
	if err != nil {
		desc.release()
		return -1, err
	}
	return nfd, nil
}

// Dup2 makes target share fd's handle. An open target is closed first; a
// failure to close it is logged, not returned.
func (c *Context) Dup2(fd, target FD) (FD, error) {
	logger := util.GetLogger("Context.Dup2")
	desc, err := c.lookup(fd)
	if err != nil {
		return -1, err
	}
	if target < 0 || target >= MaxFDs {
		return -1, ErrBadFD
	}
	if fd == target {
		return target, nil
	}
	if !desc.acquire() {
		return -1, ErrBadFD
	}
	if prev, loaded := c.fds.LoadAndStore(target, desc); loaded {
		if err := prev.release(); err != nil {
			logger.Warn().Err(err).Int("fd", int(target)).Msg("Closing replaced descriptor failed")
		}
	}
	return target, nil
}

func (c *Context) Read(fd FD, p []byte) (int, error) {
	f, err := c.file(fd)
	if err != nil {
		return 0, err
	}
	return f.Read(p)
}

func (c *Context) Write(fd FD, p []byte) (int, error) {
	f, err := c.file(fd)
	if err != nil {
		return 0, err
	}
	return f.Write(p)
}

func (c *Context) Seek(fd FD, offset int64, whence int) (int64, error) {
	f, err := c.file(fd)
	if err != nil {
		return 0, err
	}
	return f.Seek(offset, whence)
}

func (c *Context) Fsync(fd FD) error {
	f, err := c.file(fd)
	if err != nil {
		return err
	}
	return f.Flush()
}

func (c *Context) Ftruncate(fd FD, size int64) error {
	f, err := c.file(fd)
	if err != nil {
		return err
	}
	return f.Truncate(size)
}

func (c *Context) Ioctl(fd FD, cmd uint, arg any) (int, error) {
	f, err := c.file(fd)
	if err != nil {
		return 0, err
	}
	return f.Ioctl(cmd, arg)
}

func (c *Context) SetNonblocking(fd FD, on bool) error {
	f, err := c.file(fd)
	if err != nil {
		return err
	}
	f.SetNonblocking(on)
	return nil
}

// Fstat works on both file and directory descriptors.
func (c *Context) Fstat(fd FD) (kvfs.Attr, error) {
	desc, err := c.lookup(fd)
	if err != nil {
		return kvfs.Attr{}, err
	}
	if desc.dir != nil {
		return desc.dir.Stat()
	}
	return desc.file.Stat()
}

func (c *Context) Poll(fd FD) (kvfs.PollEvents, error) {
	desc, err := c.lookup(fd)
	if err != nil {
		return 0, err
	}
	if desc.dir != nil {
		return desc.dir.Poll()
	}
	return desc.file.Poll()
}

// ReadDir reads the next entries of a directory descriptor.
func (c *Context) ReadDir(fd FD, buf []kvfs.DirEntry) (int, error) {
	desc, err := c.lookup(fd)
	if err != nil {
		return 0, err
	}
	if desc.dir == nil {
		return 0, kvfs.NewPathError("readdir", desc.file.Path().String(), kvfs.NotADirectory)
	}
	return desc.dir.ReadDir(buf)
}

func (c *Context) Stat(p string) (kvfs.Attr, error) {
	return c.root.Stat(c.Resolve(p))
}

func (c *Context) Mkdir(p string, mode uint32) error {
	_, err := c.root.Create(c.Resolve(p), kvfs.TypeDir, mode)
	return err
}

func (c *Context) MkdirAll(p string, mode uint32) error {
	_, err := c.root.CreateRecursive(c.Resolve(p), kvfs.TypeDir, mode)
	return err
}

// Mkfifo creates a named pipe at p.
func (c *Context) Mkfifo(p string, mode uint32) error {
	_, err := c.root.Create(c.Resolve(p), kvfs.TypeFifo, mode)
	return err
}

func (c *Context) Unlink(p string) error {
	return c.root.Unlink(c.Resolve(p))
}

func (c *Context) Rename(from, to string) error {
	return c.root.Rename(c.Resolve(from), c.Resolve(to))
}

// Link gives the node at oldname the additional name newname.
func (c *Context) Link(oldname, newname string) error {
	node, err := c.root.Lookup(c.Resolve(oldname))
	if err != nil {
		return err
	}
	return c.root.Link(c.Resolve(newname), node)
}
