package filesystem

import (
	"bytes"
	"sync"

	"github.com/brettbedarf/kvfs"
)

// PipeBufSize is the capacity of a fifo's buffer.
const PipeBufSize = 64 * 1024

// Fifo is a named pipe. Reads and writes never block: they fail with
// WouldBlock and the handle layer decides whether to retry.
type Fifo struct {
	kvfs.DefaultLeaf
	*Inode

	mu      sync.Mutex
	buf     bytes.Buffer
	readers int
	writers int
}

func newFifo(ino uint64, perm uint32) *Fifo {
	return &Fifo{Inode: NewInode(newDefaultAttr(ino, kvfs.TypeFifo, perm))}
}

func (f *Fifo) Type() kvfs.NodeType {
	return kvfs.TypeFifo
}

// Open counts the reader and writer ends.
func (f *Fifo) Open(flags kvfs.OpenFlags) (kvfs.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if flags.Readable() {
		f.readers++
	}
	if flags.Writable() {
		f.writers++
	}
	return nil, nil
}

func (f *Fifo) Release(flags kvfs.OpenFlags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if flags.Readable() && f.readers > 0 {
		f.readers--
	}
	if flags.Writable() && f.writers > 0 {
		f.writers--
	}
	return nil
}

// ReadAt ignores off. An empty pipe reports end of data once every writer
// is gone and WouldBlock while one is still open.
func (f *Fifo) ReadAt(p []byte, _ int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buf.Len() == 0 {
		if f.writers == 0 {
			return 0, nil
		}
		return 0, kvfs.WouldBlock
	}
	n, _ := f.buf.Read(p)
	return n, nil
}

// WriteAt ignores off and writes as much as fits.
func (f *Fifo) WriteAt(p []byte, _ int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readers == 0 {
		return 0, kvfs.BrokenPipe
	}
	space := PipeBufSize - f.buf.Len()
	if space == 0 {
		return 0, kvfs.WouldBlock
	}
	n := min(space, len(p))
	f.buf.Write(p[:n])
	return n, nil
}

func (f *Fifo) GetAttr() (kvfs.Attr, error) {
	attr := AttrFromFuse(f.CopyAttr())
	f.mu.Lock()
	attr.Size = uint64(f.buf.Len())
	f.mu.Unlock()
	return attr, nil
}

// Truncate is accepted and ignored so O_TRUNC opens succeed.
func (f *Fifo) Truncate(int64) error {
	return nil
}

func (f *Fifo) Fsync() error {
	return nil
}

func (f *Fifo) Poll() (kvfs.PollEvents, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ev kvfs.PollEvents
	if f.buf.Len() > 0 || f.writers == 0 {
		ev |= kvfs.PollReadable
	}
	if f.readers > 0 && f.buf.Len() < PipeBufSize {
		ev |= kvfs.PollWritable
	}
	if f.writers == 0 || f.readers == 0 {
		ev |= kvfs.PollHangup
	}
	return ev, nil
}
