package checklist

import "strings"

// treeResolver resolves dotted paths against the metrics record tree.
// Paths are rooted at the item's source path by default; a path whose first
// segment is a top-level key of the record (or that already carries the
// source-path prefix) is resolved from the root instead, which prevents
// double-prefixing like a.b.a.b.c.
type treeResolver struct {
	root       map[string]any
	sourcePath string
}

func newTreeResolver(root map[string]any, sourcePath string) *treeResolver {
	return &treeResolver{root: root, sourcePath: sourcePath}
}

func (r *treeResolver) Resolve(dotted string) (any, bool) {
	if dotted == "" {
		return nil, false
	}

	first := dotted
	if i := strings.IndexByte(dotted, '.'); i >= 0 {
		first = dotted[:i]
	}

	// Root-relative: the path names a top-level record section, or already
	// repeats the source-path prefix.
	if _, topLevel := r.root[first]; topLevel ||
		dotted == r.sourcePath ||
		(r.sourcePath != "" && strings.HasPrefix(dotted, r.sourcePath+".")) {
		return resolvePath(r.root, dotted)
	}

	if r.sourcePath == "" {
		return resolvePath(r.root, dotted)
	}
	return resolvePath(r.root, r.sourcePath+"."+dotted)
}

// resolvePath walks a dotted path through nested JSON objects. found is false
// as soon as any segment is absent or a non-object is traversed.
func resolvePath(root map[string]any, dotted string) (any, bool) {
	if dotted == "" {
		return nil, false
	}

	var current any = root
	for _, segment := range strings.Split(dotted, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
