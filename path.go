package kvfs

import "strings"

// Canonicalize reduces p to its canonical spelling. Empty and "." segments are
// dropped and ".." removes the preceding segment. A leading ".." survives in a
// relative path but is dropped at the root of an absolute one. An absolute
// input keeps its leading "/"; a relative input that reduces to nothing
// becomes "" (self).
func Canonicalize(p string) string {
	segs, abs := canonicalSegments(p, strings.HasPrefix(p, "/"))
	if abs {
		return "/" + strings.Join(segs, "/")
	}
	return strings.Join(segs, "/")
}

func canonicalSegments(p string, abs bool) ([]string, bool) {
	out := make([]string, 0, strings.Count(p, "/")+1)
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(out) > 0 && out[len(out)-1] != ".." {
				out = out[:len(out)-1]
			} else if !abs {
				out = append(out, "..")
			}
		default:
			out = append(out, seg)
		}
	}
	return out, abs
}

// AbsPath is a canonical absolute path. It always starts with "/" and never
// holds "." or empty segments. The zero value is "/" and is the only
// representation of the root, so AbsPath values compare with ==.
type AbsPath struct {
	p string // "" for the root
}

// Abs canonicalizes s as an absolute path. A missing leading "/" is implied.
func Abs(s string) AbsPath {
	segs, _ := canonicalSegments(s, true)
	if len(segs) == 0 {
		return AbsPath{}
	}
	return AbsPath{p: "/" + strings.Join(segs, "/")}
}

func (a AbsPath) String() string {
	if a.p == "" {
		return "/"
	}
	return a.p
}

func (a AbsPath) IsRoot() bool {
	return a.String() == "/"
}

// Components returns the path segments; the root has none.
func (a AbsPath) Components() []string {
	if a.IsRoot() {
		return nil
	}
	return strings.Split(a.String()[1:], "/")
}

// Base returns the last segment, or "" for the root.
func (a AbsPath) Base() string {
	s := a.String()
	return s[strings.LastIndexByte(s, '/')+1:]
}

// Parent returns the containing directory. The root is its own parent.
func (a AbsPath) Parent() AbsPath {
	s := a.String()
	i := strings.LastIndexByte(s, '/')
	if i <= 0 {
		return AbsPath{}
	}
	return AbsPath{p: s[:i]}
}

// Join resolves r against a.
func (a AbsPath) Join(r RelPath) AbsPath {
	if r.IsEmpty() {
		return a
	}
	return Abs(a.String() + "/" + r.String())
}

// Rel returns a as a path relative to the root.
func (a AbsPath) Rel() RelPath {
	return RelPath{p: strings.TrimPrefix(a.String(), "/")}
}

// HasPrefix reports whether prefix is a whole-segment prefix of a: either
// equal to a or followed in a by "/". "/mnt" is a prefix of "/mnt/x" but not
// of "/mntx".
func (a AbsPath) HasPrefix(prefix AbsPath) bool {
	if prefix.IsRoot() {
		return true
	}
	s, pre := a.String(), prefix.String()
	return s == pre || strings.HasPrefix(s, pre+"/")
}

// StripPrefix returns the remainder of a below prefix.
func (a AbsPath) StripPrefix(prefix AbsPath) (RelPath, bool) {
	if !a.HasPrefix(prefix) {
		return RelPath{}, false
	}
	if prefix.IsRoot() {
		return a.Rel(), true
	}
	rest := strings.TrimPrefix(a.String(), prefix.String())
	return RelPath{p: strings.TrimPrefix(rest, "/")}, true
}

// RelPath is a canonical relative path. It never starts with "/" and may only
// hold ".." as leading segments. The empty path means "self".
type RelPath struct {
	p string
}

// Rel canonicalizes s as a path relative to some directory. Leading slashes
// are ignored, so Rel("/bar//f1") equals Rel("bar/f1").
func Rel(s string) RelPath {
	segs, _ := canonicalSegments(s, false)
	return RelPath{p: strings.Join(segs, "/")}
}

func (r RelPath) String() string {
	return r.p
}

func (r RelPath) IsEmpty() bool {
	return r.p == ""
}

func (r RelPath) Components() []string {
	if r.p == "" {
		return nil
	}
	return strings.Split(r.p, "/")
}

// Split returns the first segment and the remainder. hasRest is false when
// head is the last (or only) segment.
func (r RelPath) Split() (head string, rest RelPath, hasRest bool) {
	i := strings.IndexByte(r.p, '/')
	if i < 0 {
		return r.p, RelPath{}, false
	}
	return r.p[:i], RelPath{p: r.p[i+1:]}, true
}

// Base returns the last segment.
func (r RelPath) Base() string {
	return r.p[strings.LastIndexByte(r.p, '/')+1:]
}

// Dir returns everything but the last segment.
func (r RelPath) Dir() RelPath {
	i := strings.LastIndexByte(r.p, '/')
	if i < 0 {
		return RelPath{}
	}
	return RelPath{p: r.p[:i]}
}

func (r RelPath) Join(other RelPath) RelPath {
	switch {
	case r.IsEmpty():
		return other
	case other.IsEmpty():
		return r
	}
	return Rel(r.p + "/" + other.p)
}
