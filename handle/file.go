package handle

import (
	"errors"
	"io"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/brettbedarf/kvfs"
)

// File is an open non-directory node. The capability set is fixed at open
// time; the cursor is shared by every operation on the handle.
type File struct {
	path     kvfs.AbsPath
	node     kvfs.Wrapped[kvfs.Node]
	flags    kvfs.OpenFlags
	rel      *release
	nonblock atomic.Bool

	mu     sync.Mutex // Protects offset
	offset int64
}

var (
	_ io.ReadWriteSeeker = (*File)(nil)
	_ io.ReaderAt        = (*File)(nil)
	_ io.WriterAt        = (*File)(nil)
	_ io.Closer          = (*File)(nil)
)

func (f *File) Path() kvfs.AbsPath { return f.path }

func (f *File) Flags() kvfs.OpenFlags { return f.flags }

// Cap returns the capabilities granted at open time.
func (f *File) Cap() kvfs.Cap { return f.node.Granted() }

// access checks that the handle is open and holds required.
func (f *File) access(op string, required kvfs.Cap) (kvfs.Node, error) {
	if f.rel.closed() {
		return nil, kvfs.NewPathError(op, f.path.String(), ErrClosed)
	}
	node, err := f.node.Access(required)
	if err != nil {
		return nil, kvfs.NewPathError(op, f.path.String(), err)
	}
	return node, nil
}

// Read reads from the cursor and advances it. It returns io.EOF once the
// node reports end of data.
func (f *File) Read(p []byte) (int, error) {
	node, err := f.access("read", kvfs.CapRead)
	if err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		f.mu.Lock()
		n, err := node.ReadAt(p, f.offset)
		if n > 0 {
			f.offset += int64(n)
		}
		f.mu.Unlock()
		if f.retry(err) {
			continue
		}
		switch {
		case err != nil:
			return n, kvfs.NewPathError("read", f.path.String(), err)
		case n == 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write writes p at the cursor. In append mode the cursor first moves to
// the current end of the node. Short node writes are retried until p is
// consumed.
func (f *File) Write(p []byte) (int, error) {
	node, err := f.access("write", kvfs.CapWrite)
	if err != nil {
		return 0, err
	}
	var total int
	for total < len(p) {
		f.mu.Lock()
		if f.flags.Has(kvfs.OAppend) {
			attr, err := node.GetAttr()
			if err != nil {
				f.mu.Unlock()
				return total, kvfs.NewPathError("write", f.path.String(), err)
			}
			f.offset = int64(attr.Size)
		}
		n, err := node.WriteAt(p[total:], f.offset)
		f.offset += int64(n)
		f.mu.Unlock()
		total += n

		if f.retry(err) {
			continue
		}
		switch {
		case err != nil:
			return total, kvfs.NewPathError("write", f.path.String(), err)
		case n == 0:
			return total, kvfs.NewPathError("write", f.path.String(), kvfs.WriteZero)
		}
	}
	return total, nil
}

// Seek moves the cursor. Positions before zero or past math.MaxInt64 are
// InvalidInput.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	node, err := f.access("seek", kvfs.CapNone)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.offset
	case io.SeekEnd:
		attr, err := node.GetAttr()
		if err != nil {
			return 0, kvfs.NewPathError("seek", f.path.String(), err)
		}
		if attr.Size > math.MaxInt64 {
			return 0, kvfs.NewPathError("seek", f.path.String(), kvfs.InvalidInput)
		}
		base = int64(attr.Size)
	default:
		return 0, kvfs.NewPathError("seek", f.path.String(), kvfs.InvalidInput)
	}
	if (offset > 0 && base > math.MaxInt64-offset) || base+offset < 0 {
		return 0, kvfs.NewPathError("seek", f.path.String(), kvfs.InvalidInput)
	}
	f.offset = base + offset
	return f.offset, nil
}

// ReadAt reads at off without touching the cursor. Like io.ReaderAt it
// only returns fewer than len(p) bytes together with an error.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	node, err := f.access("read", kvfs.CapRead)
	if err != nil {
		return 0, err
	}
	var total int
	for total < len(p) {
		n, err := node.ReadAt(p[total:], off+int64(total))
		total += n
		if f.retry(err) {
			continue
		}
		switch {
		case err != nil:
			return total, kvfs.NewPathError("read", f.path.String(), err)
		case n == 0:
			return total, io.EOF
		}
	}
	return total, nil
}

// WriteAt writes at off without touching the cursor.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	node, err := f.access("write", kvfs.CapWrite)
	if err != nil {
		return 0, err
	}
	var total int
	for total < len(p) {
		n, err := node.WriteAt(p[total:], off+int64(total))
		total += n
		if f.retry(err) {
			continue
		}
		switch {
		case err != nil:
			return total, kvfs.NewPathError("write", f.path.String(), err)
		case n == 0:
			return total, kvfs.NewPathError("write", f.path.String(), kvfs.WriteZero)
		}
	}
	return total, nil
}

// retry reports whether a WouldBlock should be waited out. Blocking handles
// yield the processor and try again.
func (f *File) retry(err error) bool {
	if !errors.Is(err, kvfs.WouldBlock) || f.nonblock.Load() {
		return false
	}
	runtime.Gosched()
	return true
}

// Flush pushes buffered data to the node's backing store.
func (f *File) Flush() error {
	node, err := f.access("flush", kvfs.CapNone)
	if err != nil {
		return err
	}
	return kvfs.NewPathError("flush", f.path.String(), node.Fsync())
}

func (f *File) Stat() (kvfs.Attr, error) {
	node, err := f.access("stat", kvfs.CapNone)
	if err != nil {
		return kvfs.Attr{}, err
	}
	attr, err := node.GetAttr()
	return attr, kvfs.NewPathError("stat", f.path.String(), err)
}

func (f *File) Truncate(size int64) error {
	node, err := f.access("truncate", kvfs.CapWrite)
	if err != nil {
		return err
	}
	return kvfs.NewPathError("truncate", f.path.String(), node.Truncate(size))
}

func (f *File) Poll() (kvfs.PollEvents, error) {
	node, err := f.access("poll", kvfs.CapNone)
	if err != nil {
		return 0, err
	}
	ev, err := node.Poll()
	return ev, kvfs.NewPathError("poll", f.path.String(), err)
}

// Ioctl forwards a device control request to the node.
func (f *File) Ioctl(cmd uint, arg any) (int, error) {
	node, err := f.access("ioctl", kvfs.CapNone)
	if err != nil {
		return 0, err
	}
	n, err := node.Ioctl(cmd, arg)
	return n, kvfs.NewPathError("ioctl", f.path.String(), err)
}

// SetNonblocking switches WouldBlock from being waited out to being
// returned.
func (f *File) SetNonblocking(on bool) {
	f.nonblock.Store(on)
}

func (f *File) Nonblocking() bool {
	return f.nonblock.Load()
}

// Close releases the node. Further calls are no-ops.
func (f *File) Close() error {
	return kvfs.NewPathError("close", f.path.String(), f.rel.run())
}
