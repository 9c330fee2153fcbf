package filetree

import (
	"context"
	"strings"

	"github.com/llbuild2/llbuild2-go/cas"
)

/***************************************
 * Insert-at-path / remove-at-path (§4.3)
 ***************************************/

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// InsertAtPath wraps tree inside a chain of singleton-directory objects
// from the innermost path component outward, then merges the result into
// base (last-wins, so the inserted tree overrides anything already at that
// path in base).
func InsertAtPath(ctx context.Context, store cas.Store, base cas.DataID, path string, tree cas.DataID, treeEntrySize int64) (cas.DataID, error) {
	components := splitPath(path)
	if len(components) == 0 {
		return Merge(ctx, store, base, tree)
	}

	wrapped := tree
	wrappedType := FILETYPE_DIRECTORY
	wrappedSize := treeEntrySize

	for i := len(components) - 1; i >= 0; i-- {
		obj := EncodeDirectory(
			[]DirectoryEntry{{Name: components[i], Type: wrappedType, Size: wrappedSize}},
			[]cas.DataID{wrapped},
		)
		id, err := cas.PutObject(ctx, store, obj)
		if err != nil {
			return cas.NilDataID, err
		}
		wrapped = id
		wrappedType = FILETYPE_DIRECTORY
	}

	return Merge(ctx, store, base, wrapped)
}

// RemoveAtPath recursively rebuilds directories along path, dropping the
// leaf entry they name. If any intermediate component is absent, the
// original tree is returned unchanged (removing something already absent
// is a no-op, not an error).
func RemoveAtPath(ctx context.Context, store cas.Store, root cas.DataID, path string) (cas.DataID, error) {
	components := splitPath(path)
	if len(components) == 0 {
		return root, nil
	}
	return removeAtPath(ctx, store, root, components)
}

func removeAtPath(ctx context.Context, store cas.Store, dirID cas.DataID, components []string) (cas.DataID, error) {
	parsed, err := FetchAndParse(ctx, store, dirID, FILETYPE_DIRECTORY)
	if err != nil {
		return cas.NilDataID, err
	}
	if parsed.Kind != PARSEDKIND_DIRECTORY {
		return dirID, nil // not a directory: path can't be resolved further, leave unchanged
	}

	idx, ok := LookupEntry(parsed.Children, components[0])
	if !ok {
		return dirID, nil // component absent: unchanged
	}

	entries := make([]DirectoryEntry, len(parsed.Children))
	copy(entries, parsed.Children)
	children := make([]cas.DataID, len(parsed.Refs))
	copy(children, parsed.Refs)

	if len(components) == 1 {
		entries = append(entries[:idx], entries[idx+1:]...)
		children = append(children[:idx], children[idx+1:]...)
	} else {
		newChild, err := removeAtPath(ctx, store, children[idx], components[1:])
		if err != nil {
			return cas.NilDataID, err
		}
		if newChild == children[idx] {
			return dirID, nil // nothing changed further down: reuse the existing object
		}
		children[idx] = newChild
	}

	obj := EncodeDirectory(entries, children)
	return cas.PutObject(ctx, store, obj)
}
