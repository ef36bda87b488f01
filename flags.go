package kvfs

import "golang.org/x/sys/unix"

// OpenFlags carries O_* values as understood by the host.
type OpenFlags int

const (
	ORdOnly    OpenFlags = unix.O_RDONLY
	OWrOnly    OpenFlags = unix.O_WRONLY
	ORdWr      OpenFlags = unix.O_RDWR
	OAccMode   OpenFlags = unix.O_ACCMODE
	OCreate    OpenFlags = unix.O_CREAT
	OExcl      OpenFlags = unix.O_EXCL
	OTrunc     OpenFlags = unix.O_TRUNC
	OAppend    OpenFlags = unix.O_APPEND
	ONonblock  OpenFlags = unix.O_NONBLOCK
	ODirectory OpenFlags = unix.O_DIRECTORY
)

func (f OpenFlags) Has(flag OpenFlags) bool {
	return f&flag == flag
}

func (f OpenFlags) Readable() bool {
	mode := f & OAccMode
	return mode == ORdOnly || mode == ORdWr
}

func (f OpenFlags) Writable() bool {
	mode := f & OAccMode
	return mode == OWrOnly || mode == ORdWr
}

// RequiredCap maps the access mode to the capabilities a handle needs.
func (f OpenFlags) RequiredCap() Cap {
	var c Cap
	if f.Readable() {
		c |= CapRead
	}
	if f.Writable() {
		c |= CapWrite
	}
	return c
}
