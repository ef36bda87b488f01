package devices

import (
	"sync"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/dustin/go-humanize"
)

// IoctlGetSize asks a block device for its size in bytes; arg is a *uint64.
const IoctlGetSize uint = 0x80081272

// RAMDisk is a fixed-size block device held in memory.
type RAMDisk struct {
	base

	mu   sync.RWMutex
	data []byte
}

// NewRAMDisk returns a zero-filled disk of size bytes using minor number
// minor.
func NewRAMDisk(minor uint32, size int) *RAMDisk {
	logger := util.GetLogger("RAMDisk")
	logger.Debug().Uint32("minor", minor).Str("size", humanize.IBytes(uint64(size))).Msg("Allocated RAM disk")
	return &RAMDisk{
		base: newBase(kvfs.TypeBlockDevice, 1, minor, 0o660),
		data: make([]byte, size),
	}
}

func (d *RAMDisk) Size() int64 {
	return int64(len(d.data))
}

func (d *RAMDisk) GetAttr() (kvfs.Attr, error) {
	attr, err := d.base.GetAttr()
	attr.Size = uint64(len(d.data))
	return attr, err
}

// ReadAt returns 0, nil at or past the end of the disk.
func (d *RAMDisk) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, kvfs.InvalidInput
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if off >= int64(len(d.data)) {
		return 0, nil
	}
	return copy(p, d.data[off:]), nil
}

// WriteAt writes what fits; a write starting at or past the end fails with
// StorageFull.
func (d *RAMDisk) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, kvfs.InvalidInput
	}
	if len(p) == 0 {
		return 0, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if off >= int64(len(d.data)) {
		return 0, kvfs.StorageFull
	}
	return copy(d.data[off:], p), nil
}

func (d *RAMDisk) Ioctl(cmd uint, arg any) (int, error) {
	switch cmd {
	case IoctlGetSize:
		size, ok := arg.(*uint64)
		if !ok || size == nil {
			return 0, kvfs.BadAddress
		}
		*size = uint64(len(d.data))
		return 0, nil
	default:
		return 0, kvfs.Unsupported
	}
}

func (d *RAMDisk) Poll() (kvfs.PollEvents, error) {
	return kvfs.PollReadable | kvfs.PollWritable, nil
}
