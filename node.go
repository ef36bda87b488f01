package kvfs

import (
	"syscall"
	"time"
)

// NodeType is the closed set of node kinds. Callers that need to treat a node
// specially ask for its kind rather than asserting on a concrete type.
type NodeType uint8

const (
	TypeFile NodeType = iota
	TypeDir
	TypeCharDevice
	TypeBlockDevice
	TypeFifo
	TypeSocket
	TypeSymlink
)

var typeNames = [...]string{"file", "dir", "chardev", "blockdev", "fifo", "socket", "symlink"}

func (t NodeType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// Mode returns the S_IFMT bits for the node type.
func (t NodeType) Mode() uint32 {
	switch t {
	case TypeDir:
		return syscall.S_IFDIR
	case TypeCharDevice:
		return syscall.S_IFCHR
	case TypeBlockDevice:
		return syscall.S_IFBLK
	case TypeFifo:
		return syscall.S_IFIFO
	case TypeSocket:
		return syscall.S_IFSOCK
	case TypeSymlink:
		return syscall.S_IFLNK
	default:
		return syscall.S_IFREG
	}
}

// TypeFromMode recovers the node type from S_IFMT bits.
func TypeFromMode(mode uint32) NodeType {
	switch mode & syscall.S_IFMT {
	case syscall.S_IFDIR:
		return TypeDir
	case syscall.S_IFCHR:
		return TypeCharDevice
	case syscall.S_IFBLK:
		return TypeBlockDevice
	case syscall.S_IFIFO:
		return TypeFifo
	case syscall.S_IFSOCK:
		return TypeSocket
	case syscall.S_IFLNK:
		return TypeSymlink
	default:
		return TypeFile
	}
}

// PermMask selects the permission bits of a mode.
const PermMask = 0o7777

// Attr is a snapshot of node metadata.
type Attr struct {
	Ino     uint64
	Type    NodeType
	Mode    uint32 // permission bits only
	Size    uint64
	Nlink   uint32
	Uid     uint32
	Gid     uint32
	Rdev    uint32
	Blksize uint32
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
}

// DirEntry is one slot of a directory listing.
type DirEntry struct {
	Name string
	Ino  uint64
	Type NodeType
}

// PollEvents reports readiness of a node.
type PollEvents uint8

const (
	PollReadable PollEvents = 1 << iota
	PollWritable
	PollHangup
)

func (e PollEvents) Has(ev PollEvents) bool {
	return e&ev == ev
}

// Node is the polymorphic unit of every filesystem tree. Backends embed
// Unsupported (or Leaf) and override what they implement.
type Node interface {
	// Type reports the node's kind.
	Type() NodeType
	GetAttr() (Attr, error)
	SetMode(mode uint32) error

	// File operations. ReadAt returns 0, nil at end of data.
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Fsync() error
	Truncate(size int64) error

	// Directory operations. Paths are relative to the receiver.
	Parent() (Node, error)
	Lookup(p RelPath) (Node, error)
	// Create makes a new node of typ at p. When p already exists it returns
	// the existing node together with an AlreadyExists error.
	Create(p RelPath, typ NodeType, mode uint32) (Node, error)
	Link(p RelPath, target Node) error
	Unlink(p RelPath) error
	Rename(from, to RelPath) error
	// ReadDir fills buf with entries starting at index start. Indices 0 and 1
	// are "." and "..". Filling fewer than len(buf) entries means the end of
	// the directory was reached.
	ReadDir(start int, buf []DirEntry) (int, error)
	IsEmpty() (bool, error)

	// Open may hand back a different node to bind to the new handle.
	Open(flags OpenFlags) (Node, error)
	// Release is called once per successful Open when the handle goes away.
	Release(flags OpenFlags) error
	Ioctl(cmd uint, arg any) (int, error)
	Poll() (PollEvents, error)
}

// FileSystem provides the root directory of a mountable tree.
type FileSystem interface {
	// ID uniquely identifies this filesystem instance.
	ID() string
	Name() string
	RootDir() Node
	// Unmount is called once when the filesystem leaves the mount table.
	Unmount() error
}
