package filesystem

import (
	"os"
	"sync"
	"time"

	"github.com/brettbedarf/kvfs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Inode holds the metadata shared by every link to a node.
type Inode struct {
	// Low-level fuse wire protocol attributes; Only access directly if
	// handling locks manually
	fuseAttr *fuse.Attr
	mu       sync.RWMutex
}

func NewInode(attr *fuse.Attr) *Inode {
	return &Inode{fuseAttr: attr}
}

// CopyAttr returns a thread-safe copy of the inode's attributes
func (n *Inode) CopyAttr() fuse.Attr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return *n.fuseAttr
}

// Ino returns the inode number; it never changes.
func (n *Inode) Ino() uint64 {
	return n.fuseAttr.Ino
}

// GetAttr converts the fuse attributes into a kvfs.Attr snapshot.
func (n *Inode) GetAttr() (kvfs.Attr, error) {
	return AttrFromFuse(n.CopyAttr()), nil
}

// SetMode replaces the permission bits and keeps the type bits.
func (n *Inode) SetMode(mode uint32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fuseAttr.Mode = n.fuseAttr.Mode&^kvfs.PermMask | mode&kvfs.PermMask
	setTime(&n.fuseAttr.Ctime, &n.fuseAttr.Ctimensec, time.Now())
	return nil
}

func (n *Inode) perm() uint32 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.fuseAttr.Mode & kvfs.PermMask
}

// setSize records a new size and bumps mtime/ctime.
func (n *Inode) setSize(size uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fuseAttr.Size = size
	n.fuseAttr.Blocks = (size + 511) / 512
	n.touchLocked()
}

func (n *Inode) touch() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.touchLocked()
}

func (n *Inode) touchLocked() {
	now := time.Now()
	setTime(&n.fuseAttr.Mtime, &n.fuseAttr.Mtimensec, now)
	setTime(&n.fuseAttr.Ctime, &n.fuseAttr.Ctimensec, now)
}

func (n *Inode) addLink() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fuseAttr.Nlink++
	setTime(&n.fuseAttr.Ctime, &n.fuseAttr.Ctimensec, time.Now())
}

// dropLink decrements Nlink and returns what is left.
func (n *Inode) dropLink() uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fuseAttr.Nlink > 0 {
		n.fuseAttr.Nlink--
	}
	setTime(&n.fuseAttr.Ctime, &n.fuseAttr.Ctimensec, time.Now())
	return n.fuseAttr.Nlink
}

// AttrFromFuse converts fuse wire attributes into a kvfs.Attr.
func AttrFromFuse(a fuse.Attr) kvfs.Attr {
	return kvfs.Attr{
		Ino:     a.Ino,
		Type:    kvfs.TypeFromMode(a.Mode),
		Mode:    a.Mode & kvfs.PermMask,
		Size:    a.Size,
		Nlink:   a.Nlink,
		Uid:     a.Owner.Uid,
		Gid:     a.Owner.Gid,
		Rdev:    a.Rdev,
		Blksize: a.Blksize,
		Atime:   time.Unix(int64(a.Atime), int64(a.Atimensec)),
		Mtime:   time.Unix(int64(a.Mtime), int64(a.Mtimensec)),
		Ctime:   time.Unix(int64(a.Ctime), int64(a.Ctimensec)),
	}
}

func setTime(sec *uint64, nsec *uint32, t time.Time) {
	*sec = uint64(t.Unix())
	*nsec = uint32(t.Nanosecond())
}

// newDefaultAttr returns the default attributes for a new node of typ
func newDefaultAttr(ino uint64, typ kvfs.NodeType, perm uint32) *fuse.Attr {
	now := time.Now()
	attr := &fuse.Attr{
		Ino:   ino,
		Mode:  typ.Mode() | perm&kvfs.PermMask,
		Nlink: 1,
		Owner: fuse.Owner{
			Uid: uint32(os.Getuid()),
			Gid: uint32(os.Getgid()),
		},
		Blksize: 4096, // preferred size for fs ops
	}
	setTime(&attr.Atime, &attr.Atimensec, now)
	setTime(&attr.Mtime, &attr.Mtimensec, now)
	setTime(&attr.Ctime, &attr.Ctimensec, now)
	return attr
}
