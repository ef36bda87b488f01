// Package devices provides character and block device nodes that can be
// installed into a devfs tree.
package devices

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/brettbedarf/kvfs"
	"golang.org/x/sys/unix"
)

// Device inode numbers start well above anything a memory tree hands out so
// listings never show two nodes with the same number.
const inoBase = 1 << 32

var lastIno atomic.Uint64

// base carries the attributes every device node reports.
type base struct {
	kvfs.DefaultLeaf

	typ  kvfs.NodeType
	ino  uint64
	rdev uint32

	attrMu sync.Mutex
	mode   uint32
	ctime  time.Time
}

func newBase(typ kvfs.NodeType, major, minor uint32, mode uint32) base {
	return base{
		typ:   typ,
		ino:   inoBase + lastIno.Add(1),
		rdev:  uint32(unix.Mkdev(major, minor)),
		mode:  mode & kvfs.PermMask,
		ctime: time.Now(),
	}
}

func (b *base) Type() kvfs.NodeType {
	return b.typ
}

func (b *base) GetAttr() (kvfs.Attr, error) {
	b.attrMu.Lock()
	defer b.attrMu.Unlock()
	return kvfs.Attr{
		Ino:     b.ino,
		Type:    b.typ,
		Mode:    b.mode,
		Nlink:   1,
		Rdev:    b.rdev,
		Blksize: 4096,
		Atime:   b.ctime,
		Mtime:   b.ctime,
		Ctime:   b.ctime,
	}, nil
}

func (b *base) SetMode(mode uint32) error {
	b.attrMu.Lock()
	defer b.attrMu.Unlock()
	b.mode = mode & kvfs.PermMask
	b.ctime = time.Now()
	return nil
}

func (b *base) Fsync() error {
	return nil
}

// Truncate is accepted so O_TRUNC opens of devices succeed.
func (b *base) Truncate(int64) error {
	return nil
}
