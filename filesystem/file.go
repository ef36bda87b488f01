package filesystem

import (
	"math"
	"sync"

	"github.com/brettbedarf/kvfs"
)

// MaxFileSize bounds a single file regardless of the filesystem's MaxSize.
const MaxFileSize = 1 << 32

// File is a regular file backed by a byte slice.
type File struct {
	kvfs.DefaultLeaf
	*Inode
	fs *FileSystem

	mu       sync.RWMutex
	data     []byte
	released bool // capacity already returned to fs
}

func newFile(fs *FileSystem, ino uint64, perm uint32) *File {
	return &File{
		Inode: NewInode(newDefaultAttr(ino, kvfs.TypeFile, perm)),
		fs:    fs,
	}
}

func (f *File) Type() kvfs.NodeType {
	return kvfs.TypeFile
}

// ReadAt copies from off; it returns 0, nil at or past the end.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, kvfs.InvalidInput
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if off >= int64(len(f.data)) {
		return 0, nil
	}
	return copy(p, f.data[off:]), nil
}

// WriteAt grows the file as needed; a gap before off reads as zeros.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, kvfs.InvalidInput
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off > math.MaxInt64-int64(len(p)) {
		return 0, kvfs.InvalidInput
	}
	end := off + int64(len(p))
	if end > MaxFileSize {
		return 0, kvfs.StorageFull
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.resizeLocked(max(end, int64(len(f.data)))); err != nil {
		return 0, err
	}
	n := copy(f.data[off:], p)
	f.setSize(uint64(len(f.data)))
	return n, nil
}

func (f *File) Truncate(size int64) error {
	if size < 0 {
		return kvfs.InvalidInput
	}
	if size > MaxFileSize {
		return kvfs.StorageFull
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.resizeLocked(size); err != nil {
		return err
	}
	f.setSize(uint64(size))
	return nil
}

// resizeLocked grows or shrinks data to size, charging the difference
// against the filesystem capacity.
func (f *File) resizeLocked(size int64) error {
	cur := int64(len(f.data))
	switch {
	case size > cur:
		if !f.released && !f.fs.reserve(size-cur) {
			return kvfs.StorageFull
		}
		if size > int64(cap(f.data)) {
			grown := make([]byte, size, max(size, 2*int64(cap(f.data))))
			copy(grown, f.data)
			f.data = grown
		} else {
			f.data = f.data[:size]
		}
	case size < cur:
		if !f.released {
			f.fs.unreserve(cur - size)
		}
		clear(f.data[size:])
		f.data = f.data[:size]
	}
	return nil
}

// release hands the file's bytes back to the filesystem. The data stays
// readable for handles that still hold the node.
func (f *File) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.released {
		f.released = true
		f.fs.unreserve(int64(len(f.data)))
	}
}

func (f *File) Fsync() error {
	return nil
}

func (f *File) Poll() (kvfs.PollEvents, error) {
	return kvfs.PollReadable | kvfs.PollWritable, nil
}
