package filesystem

import (
	"bytes"
	"testing"

	"github.com/brettbedarf/kvfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFifo(t *testing.T) kvfs.Node {
	t.Helper()
	fs := NewRamFS(Options{})
	f, err := fs.Root().Create(kvfs.Rel("pipe"), kvfs.TypeFifo, 0o600)
	require.NoError(t, err)
	require.Equal(t, kvfs.TypeFifo, f.Type())
	return f
}

func TestFifo_ReadWrite(t *testing.T) {
	f := newTestFifo(t)
	_, err := f.Open(kvfs.ORdOnly)
	require.NoError(t, err)
	_, err = f.Open(kvfs.OWrOnly)
	require.NoError(t, err)

	buf := make([]byte, 8)
	_, err = f.ReadAt(buf, 0)
	assert.ErrorIs(t, err, kvfs.WouldBlock, "empty with a writer")

	n, err := f.WriteAt([]byte("ping"), 100)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	attr, err := f.GetAttr()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), attr.Size)

	n, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	require.NoError(t, f.Release(kvfs.OWrOnly))
	n, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Zero(t, n, "no writers left means end of data")
}

func TestFifo_BrokenPipe(t *testing.T) {
	f := newTestFifo(t)
	_, err := f.Open(kvfs.OWrOnly)
	require.NoError(t, err)

	_, err = f.WriteAt([]byte("x"), 0)
	assert.ErrorIs(t, err, kvfs.BrokenPipe)

	ev, err := f.Poll()
	require.NoError(t, err)
	assert.True(t, ev.Has(kvfs.PollHangup))
	assert.False(t, ev.Has(kvfs.PollWritable))
}

func TestFifo_Full(t *testing.T) {
	f := newTestFifo(t)
	_, err := f.Open(kvfs.ORdWr)
	require.NoError(t, err)

	big := bytes.Repeat([]byte{'a'}, PipeBufSize+10)
	n, err := f.WriteAt(big, 0)
	require.NoError(t, err)
	assert.Equal(t, PipeBufSize, n, "short write up to capacity")

	_, err = f.WriteAt([]byte("b"), 0)
	assert.ErrorIs(t, err, kvfs.WouldBlock)

	ev, err := f.Poll()
	require.NoError(t, err)
	assert.Equal(t, kvfs.PollReadable, ev)
}

func TestFifo_ReleaseNeverNegative(t *testing.T) {
	f := newTestFifo(t)

	require.NoError(t, f.Release(kvfs.ORdWr))
	_, err := f.Open(kvfs.ORdOnly)
	require.NoError(t, err)
	_, err = f.Open(kvfs.OWrOnly)
	require.NoError(t, err)

	n, err := f.WriteAt([]byte("ok"), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, f.Truncate(0), "truncate is ignored")
}
