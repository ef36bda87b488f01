package server

import (
	"context"
	"errors"
	"io"
	"syscall"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/handle"
	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// fileHandle is the kernel's view of an open handle.File. Regular files
// and block devices are addressed by offset; streams use the handle's
// cursor.
type fileHandle struct {
	f      *handle.File
	stream bool
	srv    *Server
}

var (
	_ gofs.FileReader    = (*fileHandle)(nil)
	_ gofs.FileWriter    = (*fileHandle)(nil)
	_ gofs.FileFlusher   = (*fileHandle)(nil)
	_ gofs.FileFsyncer   = (*fileHandle)(nil)
	_ gofs.FileReleaser  = (*fileHandle)(nil)
	_ gofs.FileGetattrer = (*fileHandle)(nil)
)

func newFileHandle(srv *Server, f *handle.File) (*fileHandle, uint32, error) {
	attr, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	fh := &fileHandle{f: f, srv: srv}
	var fuseFlags uint32
	switch attr.Type {
	case kvfs.TypeFile, kvfs.TypeBlockDevice:
	default:
		fh.stream = true
		fuseFlags = fuse.FOPEN_DIRECT_IO
	}
	return fh, fuseFlags, nil
}

func (h *fileHandle) Read(_ context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	var (
		n   int
		err error
	)
	if h.stream {
		n, err = h.f.Read(dest)
	} else {
		n, err = h.f.ReadAt(dest, off)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errno(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *fileHandle) Write(_ context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	var (
		n   int
		err error
	)
	if h.stream {
		n, err = h.f.Write(data)
	} else {
		n, err = h.f.WriteAt(data, off)
	}
	if err != nil && n == 0 {
		return 0, errno(err)
	}
	return uint32(n), 0
}

func (h *fileHandle) Flush(context.Context) syscall.Errno {
	if err := h.f.Flush(); err != nil && !errors.Is(err, kvfs.Unsupported) {
		return errno(err)
	}
	return 0
}

func (h *fileHandle) Fsync(ctx context.Context, _ uint32) syscall.Errno {
	return h.Flush(ctx)
}

func (h *fileHandle) Release(context.Context) syscall.Errno {
	return errno(h.f.Close())
}

func (h *fileHandle) Getattr(_ context.Context, out *fuse.AttrOut) syscall.Errno {
	attr, err := h.f.Stat()
	if err != nil {
		return errno(err)
	}
	fsID := h.srv.root.FileSystemOf(h.f.Path()).ID()
	fillAttr(&out.Attr, attr, h.srv.ino(fsID, attr.Ino))
	return 0
}
