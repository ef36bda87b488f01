package server

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/config"
	"github.com/brettbedarf/kvfs/devices"
	"github.com/brettbedarf/kvfs/filesystem"
	"github.com/brettbedarf/kvfs/handle"
	"github.com/brettbedarf/kvfs/mount"
	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *Node) {
	t.Helper()
	devfs := filesystem.NewDevFS(filesystem.Options{})
	_, err := devices.Populate(devfs, devices.Options{})
	require.NoError(t, err)

	root, err := mount.NewRootDirectory([]mount.MountPoint{
		{Path: kvfs.Abs("/"), FS: filesystem.NewRamFS(filesystem.Options{})},
		{Path: kvfs.Abs("/dev"), FS: devfs},
		{Path: kvfs.Abs("/tmp"), FS: filesystem.NewRamFS(filesystem.Options{Name: "tmp"})},
	})
	require.NoError(t, err)
	t.Cleanup(func() { root.Close() })

	srv := New(root, config.NewConfig(nil))
	node := srv.Root()
	gofs.NewNodeFS(node, &gofs.Options{})
	return srv, node
}

func TestFillAttr(t *testing.T) {
	now := time.Unix(1700000000, 0)
	var out fuse.Attr
	fillAttr(&out, kvfs.Attr{
		Ino:     7,
		Type:    kvfs.TypeFile,
		Mode:    0o640,
		Size:    1025,
		Nlink:   2,
		Uid:     1000,
		Gid:     100,
		Blksize: 4096,
		Atime:   now,
		Mtime:   now,
		Ctime:   now,
	}, 42)

	assert.Equal(t, uint64(42), out.Ino)
	assert.Equal(t, uint64(1025), out.Size)
	assert.Equal(t, uint64(3), out.Blocks)
	assert.Equal(t, uint32(syscall.S_IFREG|0o640), out.Mode)
	assert.Equal(t, uint32(2), out.Nlink)
	assert.Equal(t, uint32(1000), out.Uid)
	assert.Equal(t, uint32(100), out.Gid)
	assert.Equal(t, uint32(4096), out.Blksize)
	assert.Equal(t, uint64(now.Unix()), out.Mtime)
}

func TestErrno(t *testing.T) {
	tests := []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{kvfs.NewPathError("open", "/x", kvfs.NotFound), syscall.ENOENT},
		{kvfs.Unsupported, syscall.ENOTSUP},
		{kvfs.NewPathError("mknod", "/x", kvfs.Unsupported), syscall.ENOTSUP},
		{errors.New("boom"), syscall.EIO},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errno(tt.err), "%v", tt.err)
	}
}

func TestServer_Ino(t *testing.T) {
	srv, _ := newTestServer(t)

	primary := srv.root.Primary().ID()
	tmp := srv.root.FileSystemOf(kvfs.Abs("/tmp")).ID()
	assert.Equal(t, uint64(fuse.FUSE_ROOT_ID), srv.ino(primary, fuse.FUSE_ROOT_ID))

	a := srv.ino(tmp, fuse.FUSE_ROOT_ID)
	b := srv.ino(primary, 5)
	assert.NotEqual(t, uint64(fuse.FUSE_ROOT_ID), a)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, srv.ino(tmp, fuse.FUSE_ROOT_ID))
	assert.Equal(t, b, srv.ino(primary, 5))
}

func TestServer_Options(t *testing.T) {
	cfg := config.NewConfig(nil)
	cfg.AttrTimeout = 2.5
	cfg.FsName = "scratch"
	srv := New(mustRoot(t), cfg)

	opts := srv.options()
	assert.Equal(t, 2500*time.Millisecond, *opts.AttrTimeout)
	assert.Equal(t, time.Second, *opts.EntryTimeout)
	assert.Equal(t, "scratch", opts.FsName)
	assert.NotNil(t, opts.Logger)
	assert.NotNil(t, opts.MountOptions.Logger)
}

func mustRoot(t *testing.T) *mount.RootDirectory {
	t.Helper()
	root, err := mount.NewRootDirectory([]mount.MountPoint{
		{Path: kvfs.Abs("/"), FS: filesystem.NewRamFS(filesystem.Options{})},
	})
	require.NoError(t, err)
	return root
}

func TestNode_Getattr(t *testing.T) {
	_, node := newTestServer(t)
	ctx := context.Background()

	var out fuse.AttrOut
	require.Equal(t, syscall.Errno(0), node.Getattr(ctx, nil, &out))
	assert.Equal(t, uint64(fuse.FUSE_ROOT_ID), out.Ino)
	assert.Equal(t, uint32(syscall.S_IFDIR|kvfs.DefaultDirMode), out.Mode)
}

func TestNode_LookupAcrossMounts(t *testing.T) {
	_, node := newTestServer(t)
	ctx := context.Background()

	var out fuse.EntryOut
	inode, e := node.Lookup(ctx, "tmp", &out)
	require.Equal(t, syscall.Errno(0), e)
	assert.True(t, inode.IsDir())
	assert.NotEqual(t, uint64(fuse.FUSE_ROOT_ID), out.Ino)

	_, e = node.Lookup(ctx, "missing", &out)
	assert.Equal(t, syscall.ENOENT, e)
}

func TestNode_CreateReadWrite(t *testing.T) {
	_, node := newTestServer(t)
	ctx := context.Background()

	var out fuse.EntryOut
	inode, fh, _, e := node.Create(ctx, "a.txt", syscall.O_RDWR, 0o644, &out)
	require.Equal(t, syscall.Errno(0), e)
	assert.Equal(t, uint32(syscall.S_IFREG|0o644), out.Mode)
	node.AddChild("a.txt", inode, true)

	h := fh.(*fileHandle)
	assert.False(t, h.stream)
	n, e := h.Write(ctx, []byte("hello world"), 0)
	require.Equal(t, syscall.Errno(0), e)
	assert.Equal(t, uint32(11), n)

	res, e := h.Read(ctx, make([]byte, 5), 6)
	require.Equal(t, syscall.Errno(0), e)
	data, _ := res.Bytes(nil)
	assert.Equal(t, "world", string(data))

	// Reads past the end are short, not errors.
	res, e = h.Read(ctx, make([]byte, 8), 64)
	require.Equal(t, syscall.Errno(0), e)
	assert.Zero(t, res.Size())

	var attr fuse.AttrOut
	require.Equal(t, syscall.Errno(0), node.Getattr(ctx, fh, &attr))
	assert.Equal(t, uint64(11), attr.Size)
	assert.Equal(t, out.Ino, attr.Ino)

	assert.Equal(t, syscall.Errno(0), h.Fsync(ctx, 0))
	assert.Equal(t, syscall.Errno(0), h.Release(ctx))

	_, _, _, e = node.Create(ctx, "a.txt", syscall.O_RDWR|syscall.O_EXCL, 0o644, &out)
	assert.Equal(t, syscall.EEXIST, e)
}

func TestNode_Setattr(t *testing.T) {
	_, node := newTestServer(t)
	ctx := context.Background()

	var out fuse.EntryOut
	inode, fh, _, e := node.Create(ctx, "a.txt", syscall.O_WRONLY, 0o644, &out)
	require.Equal(t, syscall.Errno(0), e)
	node.AddChild("a.txt", inode, true)
	_, e = fh.(*fileHandle).Write(ctx, []byte("hello"), 0)
	require.Equal(t, syscall.Errno(0), e)
	fh.(*fileHandle).Release(ctx)

	child := inode.Operations().(*Node)
	in := &fuse.SetAttrIn{}
	in.Valid = fuse.FATTR_SIZE | fuse.FATTR_MODE
	in.Size = 2
	in.Mode = 0o600

	var attr fuse.AttrOut
	require.Equal(t, syscall.Errno(0), child.Setattr(ctx, nil, in, &attr))
	assert.Equal(t, uint64(2), attr.Size)
	assert.Equal(t, uint32(syscall.S_IFREG|0o600), attr.Mode)

	// Without write permission the size cannot change.
	in.Valid = fuse.FATTR_MODE
	in.Mode = 0o400
	require.Equal(t, syscall.Errno(0), child.Setattr(ctx, nil, in, &attr))
	in.Valid = fuse.FATTR_SIZE
	in.Size = 0
	assert.Equal(t, syscall.EACCES, child.Setattr(ctx, nil, in, &attr))
}

func TestNode_Namespace(t *testing.T) {
	srv, node := newTestServer(t)
	ctx := context.Background()

	var out fuse.EntryOut
	dir, e := node.Mkdir(ctx, "docs", 0o755, &out)
	require.Equal(t, syscall.Errno(0), e)
	assert.True(t, dir.IsDir())
	node.AddChild("docs", dir, true)

	file, e := dir.Operations().(*Node).Mknod(ctx, "notes", syscall.S_IFREG|0o644, 0, &out)
	require.Equal(t, syscall.Errno(0), e)
	dir.AddChild("notes", file, true)

	fifo, e := node.Mknod(ctx, "pipe", syscall.S_IFIFO|0o644, 0, &out)
	require.Equal(t, syscall.Errno(0), e)
	assert.Equal(t, uint32(syscall.S_IFIFO), fifo.Mode())

	_, e = node.Link(ctx, file, "alias", &out)
	require.Equal(t, syscall.Errno(0), e)
	assert.Equal(t, uint32(2), out.Nlink)

	stream, e := node.Readdir(ctx)
	require.Equal(t, syscall.Errno(0), e)
	var names []string
	for stream.HasNext() {
		entry, e := stream.Next()
		require.Equal(t, syscall.Errno(0), e)
		names = append(names, entry.Name)
	}
	assert.ElementsMatch(t, []string{"docs", "pipe", "alias", "dev", "tmp"}, names)

	assert.Equal(t, syscall.EISDIR, node.Unlink(ctx, "docs"))
	assert.Equal(t, syscall.ENOTDIR, node.Rmdir(ctx, "alias"))
	assert.Equal(t, syscall.ENOTEMPTY, node.Rmdir(ctx, "docs"))
	assert.Equal(t, syscall.Errno(0), node.Unlink(ctx, "alias"))

	assert.Equal(t, syscall.EINVAL, node.Rename(ctx, "pipe", node, "fifo", 1))
	require.Equal(t, syscall.Errno(0), node.Rename(ctx, "pipe", dir.Operations().(*Node), "fifo", 0))
	_, err := srv.root.Stat(kvfs.Abs("/docs/fifo"))
	assert.NoError(t, err)

	_, e = node.Mkdir(ctx, "docs", 0o755, &out)
	assert.Equal(t, syscall.EEXIST, e)
}

func TestFileHandle_Stream(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	f, err := handle.Open(srv.root, kvfs.Abs("/dev/zero"), kvfs.ORdOnly, 0)
	require.NoError(t, err)
	fh, flags, err := newFileHandle(srv, f)
	require.NoError(t, err)
	assert.True(t, fh.stream)
	assert.Equal(t, uint32(fuse.FOPEN_DIRECT_IO), flags)

	res, e := fh.Read(ctx, []byte{1, 2, 3, 4}, 1<<20)
	require.Equal(t, syscall.Errno(0), e)
	data, _ := res.Bytes(nil)
	assert.Equal(t, []byte{0, 0, 0, 0}, data)

	n, e := fh.Write(ctx, []byte("x"), 0)
	assert.Equal(t, syscall.EACCES, e)
	assert.Zero(t, n)
	assert.Equal(t, syscall.Errno(0), fh.Release(ctx))
	assert.Equal(t, syscall.Errno(0), fh.Release(ctx), "release is idempotent")
}
