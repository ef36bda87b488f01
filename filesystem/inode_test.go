package filesystem

import (
	"sync"
	"syscall"
	"testing"

	"github.com/brettbedarf/kvfs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestInode(ino uint64, typ kvfs.NodeType) *Inode {
	return NewInode(newDefaultAttr(ino, typ, 0o644))
}

func TestInode_AttrCopy(t *testing.T) {
	inode := createTestInode(7, kvfs.TypeFile)

	attrCopy := inode.CopyAttr()
	attrCopy.Size = 9999

	assert.Equal(t, uint64(0), inode.CopyAttr().Size, "copy must not alias the inode")
	assert.Equal(t, uint64(7), inode.Ino())
}

func TestInode_GetAttr(t *testing.T) {
	inode := createTestInode(3, kvfs.TypeFifo)

	attr, err := inode.GetAttr()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), attr.Ino)
	assert.Equal(t, kvfs.TypeFifo, attr.Type)
	assert.Equal(t, uint32(0o644), attr.Mode)
	assert.Equal(t, uint32(1), attr.Nlink)
	assert.False(t, attr.Mtime.IsZero())
}

func TestInode_SetModeKeepsType(t *testing.T) {
	inode := createTestInode(2, kvfs.TypeDir)

	require.NoError(t, inode.SetMode(0o700|syscall.S_IFREG))

	raw := inode.CopyAttr()
	assert.Equal(t, uint32(syscall.S_IFDIR), raw.Mode&syscall.S_IFMT)
	assert.Equal(t, uint32(0o700), raw.Mode&kvfs.PermMask)
}

func TestInode_LinkCount(t *testing.T) {
	inode := createTestInode(4, kvfs.TypeFile)

	inode.addLink()
	inode.addLink()
	assert.Equal(t, uint32(3), inode.CopyAttr().Nlink)

	assert.Equal(t, uint32(2), inode.dropLink())
	assert.Equal(t, uint32(1), inode.dropLink())
	assert.Equal(t, uint32(0), inode.dropLink())
	assert.Equal(t, uint32(0), inode.dropLink(), "never wraps below zero")
}

func TestInode_SetSize(t *testing.T) {
	inode := createTestInode(5, kvfs.TypeFile)
	before := inode.CopyAttr()

	inode.setSize(1025)

	after := inode.CopyAttr()
	assert.Equal(t, uint64(1025), after.Size)
	assert.Equal(t, uint64(3), after.Blocks)
	assert.GreaterOrEqual(t, after.Mtime, before.Mtime)
}

func TestAttrFromFuse(t *testing.T) {
	a := fuse.Attr{
		Ino:   9,
		Size:  10,
		Mode:  syscall.S_IFCHR | 0o666,
		Nlink: 1,
		Rdev:  0x103,
		Owner: fuse.Owner{Uid: 1000, Gid: 100},
	}
	a.Mtime = 1700000000

	attr := AttrFromFuse(a)
	assert.Equal(t, kvfs.TypeCharDevice, attr.Type)
	assert.Equal(t, uint32(0o666), attr.Mode)
	assert.Equal(t, uint32(0x103), attr.Rdev)
	assert.Equal(t, uint32(1000), attr.Uid)
	assert.Equal(t, int64(1700000000), attr.Mtime.Unix())
}

func TestInode_ConcurrentAccess(t *testing.T) {
	inode := createTestInode(6, kvfs.TypeFile)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			inode.setSize(uint64(i))
		}()
		go func() {
			defer wg.Done()
			_, err := inode.GetAttr()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Less(t, inode.CopyAttr().Size, uint64(10))
}
