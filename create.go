package kvfs

import (
	"errors"
	"strings"
)

// DefaultDirMode is used for directories created implicitly.
const DefaultDirMode = 0o755

// PrefixCreator creates the node named by the first depth components of some
// path being built.
type PrefixCreator func(depth int, typ NodeType, mode uint32) (Node, error)

// CreatePrefixes creates every prefix of a path of n components, in order,
// with create. Intermediate prefixes are directories and may already exist;
// the last one gets typ and mode. When the final node already exists the
// call succeeds only if both it and typ are directories.
func CreatePrefixes(n int, create PrefixCreator, typ NodeType, mode uint32) (Node, error) {
	var node Node
	for depth := 1; depth <= n; depth++ {
		last := depth == n
		t, m := TypeDir, uint32(DefaultDirMode)
		if last {
			t, m = typ, mode
		}
		next, err := create(depth, t, m)
		if err != nil {
			if !errors.Is(err, AlreadyExists) || next == nil {
				return nil, err
			}
			if !last && next.Type() != TypeDir {
				return nil, NotADirectory
			}
			if last && (typ != TypeDir || next.Type() != TypeDir) {
				return next, err
			}
		}
		node = next
	}
	return node, nil
}

// CreateRecursive is mkdir -p below dir: every missing component of p is
// created, existing directories on the way are kept.
func CreateRecursive(dir Node, p RelPath, typ NodeType, mode uint32) (Node, error) {
	comps := p.Components()
	if len(comps) == 0 {
		if typ == TypeDir {
			return dir, nil
		}
		return dir, AlreadyExists
	}
	return CreatePrefixes(len(comps), func(depth int, t NodeType, m uint32) (Node, error) {
		return dir.Create(Rel(strings.Join(comps[:depth], "/")), t, m)
	}, typ, mode)
}
