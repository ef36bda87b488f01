package devices

import "github.com/brettbedarf/kvfs"

const memMajor = 1

// Null discards writes and reads as empty.
type Null struct {
	base
}

func NewNull() *Null {
	return &Null{base: newBase(kvfs.TypeCharDevice, memMajor, 3, 0o666)}
}

func (*Null) ReadAt([]byte, int64) (int, error) {
	return 0, nil
}

func (*Null) WriteAt(p []byte, _ int64) (int, error) {
	return len(p), nil
}

func (*Null) Poll() (kvfs.PollEvents, error) {
	return kvfs.PollReadable | kvfs.PollWritable, nil
}

// Zero reads as an endless run of zero bytes and discards writes.
type Zero struct {
	base
}

func NewZero() *Zero {
	return &Zero{base: newBase(kvfs.TypeCharDevice, memMajor, 5, 0o666)}
}

func (*Zero) ReadAt(p []byte, _ int64) (int, error) {
	clear(p)
	return len(p), nil
}

func (*Zero) WriteAt(p []byte, _ int64) (int, error) {
	return len(p), nil
}

func (*Zero) Poll() (kvfs.PollEvents, error) {
	return kvfs.PollReadable | kvfs.PollWritable, nil
}

// Full reads like Zero but every write fails with StorageFull.
type Full struct {
	base
}

func NewFull() *Full {
	return &Full{base: newBase(kvfs.TypeCharDevice, memMajor, 7, 0o666)}
}

func (*Full) ReadAt(p []byte, _ int64) (int, error) {
	clear(p)
	return len(p), nil
}

func (*Full) WriteAt(p []byte, _ int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return 0, kvfs.StorageFull
}

func (*Full) Poll() (kvfs.PollEvents, error) {
	return kvfs.PollReadable | kvfs.PollWritable, nil
}
