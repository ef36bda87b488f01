package kvfs

import (
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, NewPathError("lookup", "/x", nil))

	err := NewPathError("unlink", "/etc/motd", NotFound)
	assert.EqualError(t, err, "unlink /etc/motd: not found")
	assert.ErrorIs(t, err, NotFound)
	assert.NotErrorIs(t, err, AlreadyExists)

	var pe *PathError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, "unlink", pe.Op)

	assert.EqualError(t, NewPathError("sync", "", Io), "sync: i/o error")
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Other, KindOf(nil))
	assert.Equal(t, Other, KindOf(io.EOF))
	assert.Equal(t, StorageFull, KindOf(StorageFull))
	wrapped := fmt.Errorf("write: %w", NewPathError("write", "/tmp/x", StorageFull))
	assert.Equal(t, StorageFull, KindOf(wrapped))
	assert.Equal(t, PermissionDenied, KindOf(&CapabilityError{Required: CapWrite, Granted: CapRead}))
}

func TestErrno(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{NotFound, syscall.ENOENT},
		{NewPathError("create", "/a", AlreadyExists), syscall.EEXIST},
		{NotADirectory, syscall.ENOTDIR},
		{IsADirectory, syscall.EISDIR},
		{DirectoryNotEmpty, syscall.ENOTEMPTY},
		{&CapabilityError{Required: CapWrite}, syscall.EACCES},
		{InvalidInput, syscall.EINVAL},
		{Unsupported, syscall.ENOSYS},
		{WouldBlock, syscall.EAGAIN},
		{StorageFull, syscall.ENOSPC},
		{BrokenPipe, syscall.EPIPE},
		{errors.New("opaque"), syscall.EIO},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Errno(tt.err), "%v", tt.err)
	}
}

func TestErrorKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "directory not empty", DirectoryNotEmpty.Error())
	assert.Equal(t, "kind(200)", ErrorKind(200).String())
}

func TestNodeType_Mode(t *testing.T) {
	t.Parallel()

	for _, typ := range []NodeType{TypeFile, TypeDir, TypeCharDevice, TypeBlockDevice, TypeFifo, TypeSocket, TypeSymlink} {
		assert.Equal(t, typ, TypeFromMode(typ.Mode()|0o644), typ.String())
	}
	assert.Equal(t, "dir", TypeDir.String())
}
