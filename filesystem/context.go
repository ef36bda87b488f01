package filesystem

// lockContext collects the locks held by one multi-directory operation.
// Calling Close unwinds every unlock callback in reverse order.
//
// NOTE: lockContext itself is **not** thread-safe meaning references
// to it should not be shared between goroutines
type lockContext struct {
	closeFns []func()
}

// lock write-locks d and records the unlock.
func (ctx *lockContext) lock(d *Dir) {
	d.mu.Lock()
	ctx.AddClose(d.mu.Unlock)
}

// lockPair write-locks two directories of the same tree. An ancestor is
// always locked before its descendants; unrelated directories are locked in
// inode order. a and b may be the same directory.
func (ctx *lockContext) lockPair(a, b *Dir) {
	switch {
	case a == b:
		ctx.lock(a)
	case a.isAncestorOf(b):
		ctx.lock(a)
		ctx.lock(b)
	case b.isAncestorOf(a):
		ctx.lock(b)
		ctx.lock(a)
	case a.Ino() < b.Ino():
		ctx.lock(a)
		ctx.lock(b)
	default:
		ctx.lock(b)
		ctx.lock(a)
	}
}

// AddClose pushes a cleanup callback (e.g., unlock) onto the end of the stack.
func (ctx *lockContext) AddClose(fn func()) {
	ctx.closeFns = append(ctx.closeFns, fn)
}

// Close unwinds all cleanup callbacks in reverse order.
// Safe to call even if ctx is nil or no locks were acquired; it is
// a no-op in those cases, so you can `defer ctx.Close()` unconditionally.
func (ctx *lockContext) Close() {
	if ctx == nil {
		return
	}
	for i := len(ctx.closeFns) - 1; i >= 0; i-- {
		ctx.closeFns[i]()
	}
	ctx.closeFns = nil
}
