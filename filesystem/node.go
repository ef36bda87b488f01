package filesystem

import (
	"maps"
	"slices"
	"weak"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/puzpuzpuz/xsync/v4"
)

// inoder is implemented by every node this package allocates.
type inoder interface {
	inode() *Inode
}

func (n *Inode) inode() *Inode {
	return n
}

// Dir is an in-memory directory. Children are kvfs.Node values so foreign
// nodes (devices) can be installed next to files and subdirectories.
type Dir struct {
	kvfs.DefaultNode
	*Inode
	fs *FileSystem

	mu       *xsync.RBMutex        // Protects the fields below
	children map[string]kvfs.Node // child nodes by name
	parent   weak.Pointer[Dir]    // zero for the root and detached dirs
	detached bool                 // set once unlinked; no new children
}

func newDir(fs *FileSystem, parent *Dir, ino uint64, perm uint32) *Dir {
	d := &Dir{
		Inode:    NewInode(newDefaultAttr(ino, kvfs.TypeDir, perm)),
		fs:       fs,
		mu:       xsync.NewRBMutex(),
		children: make(map[string]kvfs.Node),
	}
	if parent != nil {
		d.parent = weak.Make(parent)
	}
	return d
}

func (d *Dir) Type() kvfs.NodeType {
	return kvfs.TypeDir
}

// GetAttr reports the number of children as the directory size.
func (d *Dir) GetAttr() (kvfs.Attr, error) {
	attr := AttrFromFuse(d.CopyAttr())
	t := d.mu.RLock()
	attr.Size = uint64(len(d.children))
	d.mu.RUnlock(t)
	return attr, nil
}

func (d *Dir) SetMode(mode uint32) error {
	return d.Inode.SetMode(mode)
}

func (d *Dir) ReadAt([]byte, int64) (int, error) {
	return 0, kvfs.IsADirectory
}

func (d *Dir) WriteAt([]byte, int64) (int, error) {
	return 0, kvfs.IsADirectory
}

func (d *Dir) Truncate(int64) error {
	return kvfs.IsADirectory
}

func (d *Dir) Fsync() error {
	return nil
}

func (d *Dir) Poll() (kvfs.PollEvents, error) {
	return kvfs.PollReadable, nil
}

// parentDir returns the containing directory. The root and detached
// directories have none.
func (d *Dir) parentDir() (*Dir, error) {
	t := d.mu.RLock()
	defer d.mu.RUnlock(t)
	if d.detached {
		return nil, kvfs.NotFound
	}
	p := d.parent.Value()
	if p == nil {
		return nil, kvfs.NotFound
	}
	return p, nil
}

func (d *Dir) Parent() (kvfs.Node, error) {
	p, err := d.parentDir()
	if err != nil {
		return nil, err
	}
	return p, nil
}

// isAncestorOf reports whether other lies strictly below d.
func (d *Dir) isAncestorOf(other *Dir) bool {
	for cur, err := other.parentDir(); err == nil; cur, err = cur.parentDir() {
		if cur == d {
			return true
		}
	}
	return false
}

// GetChild returns a child node.
func (d *Dir) GetChild(name string) (kvfs.Node, bool) {
	t := d.mu.RLock()
	defer d.mu.RUnlock(t)
	child, ok := d.children[name]
	return child, ok
}

// step resolves a single path segment.
func (d *Dir) step(name string) (kvfs.Node, error) {
	if name == ".." {
		p, err := d.parentDir()
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	child, ok := d.GetChild(name)
	if !ok {
		return nil, kvfs.NotFound
	}
	return child, nil
}

// Lookup resolves p one segment at a time. Every step after the first is
// delegated to the child, so the walk may leave this package's nodes.
func (d *Dir) Lookup(p kvfs.RelPath) (kvfs.Node, error) {
	head, rest, more := p.Split()
	if head == "" {
		return d, nil
	}
	next, err := d.step(head)
	if err != nil {
		return nil, err
	}
	if !more {
		return next, nil
	}
	return next.Lookup(rest)
}

func (d *Dir) Create(p kvfs.RelPath, typ kvfs.NodeType, mode uint32) (kvfs.Node, error) {
	head, rest, more := p.Split()
	if more {
		next, err := d.step(head)
		if err != nil {
			return nil, err
		}
		return next.Create(rest, typ, mode)
	}
	switch head {
	case "":
		return d, kvfs.AlreadyExists
	case "..":
		parent, err := d.parentDir()
		if err != nil {
			return nil, err
		}
		return parent, kvfs.AlreadyExists
	}
	return d.addChild(head, false, func() (kvfs.Node, error) {
		return d.fs.newNode(d, typ, mode)
	})
}

// addChild inserts the node built by mk under name. An existing child is
// returned together with AlreadyExists. force bypasses the fixed-tree check.
func (d *Dir) addChild(name string, force bool, mk func() (kvfs.Node, error)) (kvfs.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.detached {
		return nil, kvfs.NotFound
	}
	if existing, ok := d.children[name]; ok {
		return existing, kvfs.AlreadyExists
	}
	if d.fs.fixed && !force {
		return nil, kvfs.PermissionDenied
	}
	node, err := mk()
	if err != nil {
		return nil, err
	}
	d.children[name] = node
	d.touch()
	return node, nil
}

// Link adds a second name for target, which must be a non-directory node of
// the same filesystem.
func (d *Dir) Link(p kvfs.RelPath, target kvfs.Node) error {
	head, rest, more := p.Split()
	if more {
		next, err := d.step(head)
		if err != nil {
			return err
		}
		return next.Link(rest, target)
	}
	if head == "" || head == ".." {
		return kvfs.AlreadyExists
	}
	if target.Type() == kvfs.TypeDir {
		return kvfs.PermissionDenied
	}
	ino, ok := target.(inoder)
	if !ok || !d.fs.owns(target) {
		return kvfs.InvalidInput
	}
	_, err := d.addChild(head, false, func() (kvfs.Node, error) {
		ino.inode().addLink()
		return target, nil
	})
	return err
}

func (d *Dir) Unlink(p kvfs.RelPath) error {
	head, rest, more := p.Split()
	if more {
		next, err := d.step(head)
		if err != nil {
			return err
		}
		return next.Unlink(rest)
	}
	if head == "" || head == ".." {
		return kvfs.InvalidInput
	}
	return d.removeChild(head)
}

func (d *Dir) removeChild(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	child, ok := d.children[name]
	if !ok {
		return kvfs.NotFound
	}
	if d.fs.fixed {
		return kvfs.PermissionDenied
	}
	if sub, ok := child.(*Dir); ok {
		if err := sub.detach(); err != nil {
			return err
		}
	}
	delete(d.children, name)
	d.fs.dropLink(child)
	d.touch()
	return nil
}

// detach marks an empty directory as removed. Callers hold the parent lock.
func (d *Dir) detach() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.children) > 0 {
		return kvfs.DirectoryNotEmpty
	}
	d.detached = true
	d.parent = weak.Pointer[Dir]{}
	return nil
}

// Rename moves the node at from to to. Both paths are relative to d and
// must resolve inside this filesystem. An existing destination is replaced
// when the kinds agree and a destination directory is empty.
func (d *Dir) Rename(from, to kvfs.RelPath) error {
	logger := util.GetLogger("Dir.Rename")
	for _, p := range []kvfs.RelPath{from, to} {
		if base := p.Base(); base == "" || base == ".." {
			return kvfs.InvalidInput
		}
	}
	if d.fs.fixed {
		return kvfs.PermissionDenied
	}

	// Renames serialize per filesystem so the ancestry checks below hold
	// until the move is done.
	d.fs.renameMu.Lock()
	defer d.fs.renameMu.Unlock()

	srcDir, err := d.lookupDir(from.Dir())
	if err != nil {
		return err
	}
	dstDir, err := d.lookupDir(to.Dir())
	if err != nil {
		return err
	}
	srcName, dstName := from.Base(), to.Base()
	if srcDir == dstDir && srcName == dstName {
		_, err := srcDir.step(srcName)
		return err
	}

	for {
		child, err := srcDir.step(srcName)
		if err != nil {
			return err
		}
		if sub, ok := child.(*Dir); ok && (sub == dstDir || sub.isAncestorOf(dstDir)) {
			return kvfs.InvalidInput
		}
		if existing, ok := dstDir.GetChild(dstName); ok {
			// replacing an ancestor of the source can never succeed
			if ex, ok := existing.(*Dir); ok && (ex == srcDir || ex.isAncestorOf(srcDir)) {
				return kvfs.DirectoryNotEmpty
			}
		}
		done, err := d.fs.move(srcDir, srcName, dstDir, dstName, child)
		if done {
			if err == nil {
				logger.Trace().Str("from", from.String()).Str("to", to.String()).Msg("Renamed")
			}
			return err
		}
		// child was replaced between the check and the lock
	}
}

// lookupDir resolves p to a directory of d's filesystem.
func (d *Dir) lookupDir(p kvfs.RelPath) (*Dir, error) {
	node, err := d.Lookup(p)
	if err != nil {
		return nil, err
	}
	dir, ok := node.(*Dir)
	if !ok {
		if node.Type() == kvfs.TypeDir {
			// a directory of some other filesystem
			return nil, kvfs.PermissionDenied
		}
		return nil, kvfs.NotADirectory
	}
	if dir.fs != d.fs {
		return nil, kvfs.PermissionDenied
	}
	return dir, nil
}

func (d *Dir) ReadDir(start int, buf []kvfs.DirEntry) (int, error) {
	if start < 0 {
		return 0, kvfs.InvalidInput
	}
	t := d.mu.RLock()
	names := slices.Sorted(maps.Keys(d.children))
	nodes := make([]kvfs.Node, len(names))
	for i, name := range names {
		nodes[i] = d.children[name]
	}
	parent := d.parent.Value()
	d.mu.RUnlock(t)

	if parent == nil {
		parent = d
	}
	n := 0
	for i := start; n < len(buf); i++ {
		switch {
		case i == 0:
			buf[n] = kvfs.DirEntry{Name: ".", Ino: d.Ino(), Type: kvfs.TypeDir}
		case i == 1:
			buf[n] = kvfs.DirEntry{Name: "..", Ino: parent.Ino(), Type: kvfs.TypeDir}
		case i-2 < len(names):
			buf[n] = entryFor(names[i-2], nodes[i-2])
		default:
			return n, nil
		}
		n++
	}
	return n, nil
}

func entryFor(name string, node kvfs.Node) kvfs.DirEntry {
	entry := kvfs.DirEntry{Name: name, Type: node.Type()}
	if attr, err := node.GetAttr(); err == nil {
		entry.Ino = attr.Ino
	}
	return entry
}

func (d *Dir) IsEmpty() (bool, error) {
	t := d.mu.RLock()
	defer d.mu.RUnlock(t)
	return len(d.children) == 0, nil
}
