package server

import (
	"context"
	"errors"
	"syscall"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/handle"
	"github.com/brettbedarf/kvfs/internal/util"
	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Node is a kernel inode. It holds no VFS state of its own; every call
// resolves the inode's current path through the mount table.
type Node struct {
	gofs.Inode
	srv *Server
}

var (
	_ gofs.NodeLookuper  = (*Node)(nil)
	_ gofs.NodeGetattrer = (*Node)(nil)
	_ gofs.NodeSetattrer = (*Node)(nil)
	_ gofs.NodeReaddirer = (*Node)(nil)
	_ gofs.NodeOpener    = (*Node)(nil)
	_ gofs.NodeCreater   = (*Node)(nil)
	_ gofs.NodeMkdirer   = (*Node)(nil)
	_ gofs.NodeMknoder   = (*Node)(nil)
	_ gofs.NodeUnlinker  = (*Node)(nil)
	_ gofs.NodeRmdirer   = (*Node)(nil)
	_ gofs.NodeRenamer   = (*Node)(nil)
	_ gofs.NodeLinker    = (*Node)(nil)
)

func (n *Node) path() kvfs.AbsPath {
	return kvfs.Abs(n.Path(nil))
}

func (n *Node) child(name string) kvfs.AbsPath {
	return kvfs.Abs(n.Path(nil) + "/" + name)
}

// entry fills out for the node at p and returns its kernel inode.
func (n *Node) entry(ctx context.Context, p kvfs.AbsPath, node kvfs.Node, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	attr, err := node.GetAttr()
	if err != nil {
		return nil, errno(err)
	}
	ino := n.srv.ino(n.srv.root.FileSystemOf(p).ID(), attr.Ino)
	fillAttr(&out.Attr, attr, ino)
	child := &Node{srv: n.srv}
	return n.NewInode(ctx, child, gofs.StableAttr{Mode: attr.Type.Mode(), Ino: ino}), 0
}

func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	p := n.child(name)
	node, err := n.srv.root.Lookup(p)
	if err != nil {
		return nil, errno(err)
	}
	return n.entry(ctx, p, node, out)
}

func (n *Node) Getattr(ctx context.Context, fh gofs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if h, ok := fh.(*fileHandle); ok {
		return h.Getattr(ctx, out)
	}
	p := n.path()
	attr, err := n.srv.root.Stat(p)
	if err != nil {
		return errno(err)
	}
	fillAttr(&out.Attr, attr, n.srv.ino(n.srv.root.FileSystemOf(p).ID(), attr.Ino))
	return 0
}

// Setattr supports mode and size changes. Truncation goes through a
// write handle so permission bits are honored.
func (n *Node) Setattr(ctx context.Context, fh gofs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	logger := util.GetLogger("Node.Setattr")
	p := n.path()
	if mode, ok := in.GetMode(); ok {
		node, err := n.srv.root.Lookup(p)
		if err != nil {
			return errno(err)
		}
		if err := node.SetMode(mode & kvfs.PermMask); err != nil {
			return errno(err)
		}
	}
	if size, ok := in.GetSize(); ok {
		// Devices and fifos ignore O_TRUNC.
		if err := n.truncate(fh, p, int64(size)); err != nil && !errors.Is(err, kvfs.Unsupported) {
			logger.Debug().Err(err).Str("path", p.String()).Msg("Truncate failed")
			return errno(err)
		}
	}
	return n.Getattr(ctx, fh, out)
}

func (n *Node) truncate(fh gofs.FileHandle, p kvfs.AbsPath, size int64) error {
	if h, ok := fh.(*fileHandle); ok {
		return h.f.Truncate(size)
	}
	f, err := handle.Open(n.srv.root, p, kvfs.OWrOnly, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(size)
}

func (n *Node) Readdir(context.Context) (gofs.DirStream, syscall.Errno) {
	p := n.path()
	d, err := handle.OpenDir(n.srv.root, p, kvfs.ORdOnly)
	if err != nil {
		return nil, errno(err)
	}
	defer d.Close()
	entries, err := d.Entries()
	if err != nil {
		return nil, errno(err)
	}

	fsID := n.srv.root.FileSystemOf(p).ID()
	list := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		list = append(list, fuse.DirEntry{
			Name: e.Name,
			Mode: e.Type.Mode(),
			Ino:  n.srv.ino(fsID, e.Ino),
		})
	}
	return gofs.NewListDirStream(list), 0
}

func (n *Node) Open(_ context.Context, flags uint32) (gofs.FileHandle, uint32, syscall.Errno) {
	f, err := handle.Open(n.srv.root, n.path(), kvfs.OpenFlags(flags)&^kvfs.OCreate, 0)
	if err != nil {
		return nil, 0, errno(err)
	}
	fh, fuseFlags, err := newFileHandle(n.srv, f)
	if err != nil {
		f.Close()
		return nil, 0, errno(err)
	}
	return fh, fuseFlags, 0
}

func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofs.Inode, gofs.FileHandle, uint32, syscall.Errno) {
	p := n.child(name)
	f, err := handle.Open(n.srv.root, p, kvfs.OpenFlags(flags)|kvfs.OCreate, mode&kvfs.PermMask)
	if err != nil {
		return nil, nil, 0, errno(err)
	}
	fh, fuseFlags, err := newFileHandle(n.srv, f)
	if err == nil {
		var node kvfs.Node
		if node, err = n.srv.root.Lookup(p); err == nil {
			inode, e := n.entry(ctx, p, node, out)
			if e == 0 {
				return inode, fh, fuseFlags, 0
			}
			f.Close()
			return nil, nil, 0, e
		}
	}
	f.Close()
	return nil, nil, 0, errno(err)
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	p := n.child(name)
	node, err := n.srv.root.Create(p, kvfs.TypeDir, mode&kvfs.PermMask)
	if err != nil {
		return nil, errno(err)
	}
	return n.entry(ctx, p, node, out)
}

// Mknod creates the node types the backing filesystem supports, which for
// ramfs means regular files and fifos.
func (n *Node) Mknod(ctx context.Context, name string, mode uint32, _ uint32, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	p := n.child(name)
	node, err := n.srv.root.Create(p, kvfs.TypeFromMode(mode), mode&kvfs.PermMask)
	if err != nil {
		return nil, errno(err)
	}
	return n.entry(ctx, p, node, out)
}

func (n *Node) Unlink(_ context.Context, name string) syscall.Errno {
	return n.remove(name, false)
}

func (n *Node) Rmdir(_ context.Context, name string) syscall.Errno {
	return n.remove(name, true)
}

func (n *Node) remove(name string, dir bool) syscall.Errno {
	p := n.child(name)
	node, err := n.srv.root.Lookup(p)
	if err != nil {
		return errno(err)
	}
	switch isDir := node.Type() == kvfs.TypeDir; {
	case dir && !isDir:
		return syscall.ENOTDIR
	case !dir && isDir:
		return syscall.EISDIR
	}
	return errno(n.srv.root.Unlink(p))
}

// Rename supports plain renames only; RENAME_EXCHANGE and RENAME_NOREPLACE
// are refused.
func (n *Node) Rename(_ context.Context, name string, newParent gofs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	if flags != 0 {
		return syscall.EINVAL
	}
	to := kvfs.Abs(newParent.EmbeddedInode().Path(nil) + "/" + newName)
	return errno(n.srv.root.Rename(n.child(name), to))
}

func (n *Node) Link(ctx context.Context, target gofs.InodeEmbedder, name string, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	node, err := n.srv.root.Lookup(kvfs.Abs(target.EmbeddedInode().Path(nil)))
	if err != nil {
		return nil, errno(err)
	}
	p := n.child(name)
	if err := n.srv.root.Link(p, node); err != nil {
		return nil, errno(err)
	}
	return n.entry(ctx, p, node, out)
}
