package server

import (
	"github.com/brettbedarf/kvfs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// fillAttr copies a into out, replacing the inode number with the host one.
func fillAttr(out *fuse.Attr, a kvfs.Attr, ino uint64) {
	out.Ino = ino
	out.Size = a.Size
	out.Blocks = (a.Size + 511) / 512
	out.Mode = a.Type.Mode() | a.Mode&kvfs.PermMask
	out.Nlink = a.Nlink
	out.Owner = fuse.Owner{Uid: a.Uid, Gid: a.Gid}
	out.Rdev = a.Rdev
	out.Blksize = a.Blksize
	out.SetTimes(&a.Atime, &a.Mtime, &a.Ctime)
}
