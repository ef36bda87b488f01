package kvfs

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrorKind classifies every error surfaced by the VFS core. ErrorKind values
// are errors themselves so callers can test with errors.Is(err, kvfs.NotFound)
// regardless of how much context has been wrapped around them.
type ErrorKind uint8

const (
	Other ErrorKind = iota
	NotFound
	AlreadyExists
	NotADirectory
	IsADirectory
	DirectoryNotEmpty
	PermissionDenied
	InvalidInput
	InvalidData
	Unsupported
	WouldBlock
	StorageFull
	Io
	BadAddress
	UnexpectedEOF
	WriteZero
	BrokenPipe
)

var kindNames = [...]string{
	Other:             "other error",
	NotFound:          "not found",
	AlreadyExists:     "already exists",
	NotADirectory:     "not a directory",
	IsADirectory:      "is a directory",
	DirectoryNotEmpty: "directory not empty",
	PermissionDenied:  "permission denied",
	InvalidInput:      "invalid input",
	InvalidData:       "invalid data",
	Unsupported:       "unsupported",
	WouldBlock:        "operation would block",
	StorageFull:       "no space left",
	Io:                "i/o error",
	BadAddress:        "bad address",
	UnexpectedEOF:     "unexpected end of file",
	WriteZero:         "write zero",
	BrokenPipe:        "broken pipe",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k ErrorKind) Error() string {
	return k.String()
}

// PathError records the operation and path that failed along with the cause.
type PathError struct {
	Op   string // Operation that failed (e.g., "lookup", "unlink")
	Path string // Affected path
	Err  error  // Underlying error
}

func (e *PathError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// NewPathError wraps err with the failing op and path. A nil err stays nil.
func NewPathError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &PathError{Op: op, Path: path, Err: err}
}

// KindOf returns the ErrorKind carried by err, or Other when err has none.
func KindOf(err error) ErrorKind {
	if err == nil {
		return Other
	}
	var kind ErrorKind
	if errors.As(err, &kind) {
		return kind
	}
	return Other
}

var kindErrno = map[ErrorKind]syscall.Errno{
	NotFound:          unix.ENOENT,
	AlreadyExists:     unix.EEXIST,
	NotADirectory:     unix.ENOTDIR,
	IsADirectory:      unix.EISDIR,
	DirectoryNotEmpty: unix.ENOTEMPTY,
	PermissionDenied:  unix.EACCES,
	InvalidInput:      unix.EINVAL,
	InvalidData:       unix.EINVAL,
	Unsupported:       unix.ENOSYS,
	WouldBlock:        unix.EAGAIN,
	StorageFull:       unix.ENOSPC,
	Io:                unix.EIO,
	BadAddress:        unix.EFAULT,
	UnexpectedEOF:     unix.EIO,
	WriteZero:         unix.EIO,
	BrokenPipe:        unix.EPIPE,
}

// Errno converts err into the errno a kernel-facing caller expects.
// nil maps to 0 and errors without a kind map to EIO.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	if errno, ok := kindErrno[KindOf(err)]; ok {
		return errno
	}
	return unix.EIO
}
