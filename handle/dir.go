package handle

import (
	"io"
	"runtime"
	"sync"

	"github.com/brettbedarf/kvfs"
)

// Directory is an open directory. It always carries EXECUTE so that names
// below it can be resolved.
type Directory struct {
	path kvfs.AbsPath
	node kvfs.Wrapped[kvfs.Node]
	rel  *release

	mu  sync.Mutex // Protects pos
	pos int
}

// OpenDir opens the directory at p. Only read-only access is accepted.
func OpenDir(r Resolver, p kvfs.AbsPath, flags kvfs.OpenFlags) (*Directory, error) {
	node, err := r.Lookup(p)
	if err != nil {
		return nil, err
	}
	return OpenDirNode(p, node, flags)
}

// OpenDirNode binds an already resolved directory node to a handle.
func OpenDirNode(p kvfs.AbsPath, node kvfs.Node, flags kvfs.OpenFlags) (*Directory, error) {
	switch {
	case node.Type() != kvfs.TypeDir:
		return nil, kvfs.NewPathError("opendir", p.String(), kvfs.NotADirectory)
	case flags.Writable():
		return nil, kvfs.NewPathError("opendir", p.String(), kvfs.IsADirectory)
	}
	required := flags.RequiredCap()
	if err := checkPerm(node, required); err != nil {
		return nil, kvfs.NewPathError("opendir", p.String(), err)
	}
	bound, err := bind(node, flags)
	if err != nil {
		return nil, kvfs.NewPathError("opendir", p.String(), err)
	}
	d := &Directory{
		path: p,
		node: kvfs.Wrap(bound, required|kvfs.CapExecute),
		rel:  newRelease(bound, flags),
	}
	runtime.AddCleanup(d, releaseOnCollect, d.rel)
	return d, nil
}

func (d *Directory) Path() kvfs.AbsPath { return d.path }

func (d *Directory) Cap() kvfs.Cap { return d.node.Granted() }

func (d *Directory) access(op string, required kvfs.Cap) (kvfs.Node, error) {
	if d.rel.closed() {
		return nil, kvfs.NewPathError(op, d.path.String(), ErrClosed)
	}
	node, err := d.node.Access(required)
	if err != nil {
		return nil, kvfs.NewPathError(op, d.path.String(), err)
	}
	return node, nil
}

// ReadDir fills buf from the current position and advances past the
// entries returned. It returns 0, io.EOF once the listing is exhausted.
func (d *Directory) ReadDir(buf []kvfs.DirEntry) (int, error) {
	node, err := d.access("readdir", kvfs.CapRead)
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := node.ReadDir(d.pos, buf)
	if err != nil {
		return n, kvfs.NewPathError("readdir", d.path.String(), err)
	}
	d.pos += n
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Entries reads everything left in the listing.
func (d *Directory) Entries() ([]kvfs.DirEntry, error) {
	var out []kvfs.DirEntry
	buf := make([]kvfs.DirEntry, 32)
	for {
		n, err := d.ReadDir(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}

// Rewind restarts the listing from ".".
func (d *Directory) Rewind() {
	d.mu.Lock()
	d.pos = 0
	d.mu.Unlock()
}

func (d *Directory) Stat() (kvfs.Attr, error) {
	node, err := d.access("stat", kvfs.CapNone)
	if err != nil {
		return kvfs.Attr{}, err
	}
	attr, err := node.GetAttr()
	return attr, kvfs.NewPathError("stat", d.path.String(), err)
}

func (d *Directory) Poll() (kvfs.PollEvents, error) {
	node, err := d.access("poll", kvfs.CapNone)
	if err != nil {
		return 0, err
	}
	ev, err := node.Poll()
	return ev, kvfs.NewPathError("poll", d.path.String(), err)
}

// Lookup resolves p relative to the directory.
func (d *Directory) Lookup(p kvfs.RelPath) (kvfs.Node, error) {
	node, err := d.access("lookup", kvfs.CapExecute)
	if err != nil {
		return nil, err
	}
	child, err := node.Lookup(p)
	return child, kvfs.NewPathError("lookup", d.path.Join(p).String(), err)
}

func (d *Directory) Close() error {
	return kvfs.NewPathError("close", d.path.String(), d.rel.run())
}
