package filetree

import (
	"context"
	"sort"

	"github.com/llbuild2/llbuild2-go/cas"
)

/***************************************
 * Merge: N-way last-wins merge of trees (§4.3 "Merge")
 *
 * Trees are passed in reverse so the core algorithm walks "rows" of
 * identically-named children left to right, first non-nil child wins for
 * non-directories; when >=2 rows are directories, dedupe by id then
 * recurse; otherwise pass through.
 ***************************************/

// Merge combines trees with last-wins semantics: trees[len(trees)-1] wins
// over earlier entries at any non-directory path. A single-element or
// empty input is handled degenerately (returns that tree, or NilDataID).
func Merge(ctx context.Context, store cas.Store, trees ...cas.DataID) (cas.DataID, error) {
	switch len(trees) {
	case 0:
		return cas.NilDataID, nil
	case 1:
		return trees[0], nil
	}

	// walk "reversed" so index 0 is the highest-priority (last-wins) tree.
	reversed := make([]cas.DataID, len(trees))
	for i, id := range trees {
		reversed[len(trees)-1-i] = id
	}
	id, _, err := mergeTrees(ctx, store, reversed)
	return id, err
}

// mergeTrees returns the merged directory's DataID alongside its aggregate
// size (the sum of its entries' sizes, §3's "directory size = sum of
// entries" invariant) so a recursing caller can carry that size up into the
// DirectoryEntry referencing it, without re-fetching what EncodeDirectory
// already computed.
func mergeTrees(ctx context.Context, store cas.Store, reversed []cas.DataID) (cas.DataID, int64, error) {
	type row struct {
		name     string
		typ      FileType
		size     int64
		children []cas.DataID // one entry per tree that has this name, in reversed (priority) order, NilDataID if absent
	}
	rowByName := make(map[string]*row)
	var order []string

	parsedDirs := make([]ParsedObject, len(reversed))
	for i, id := range reversed {
		parsed, err := FetchAndParse(ctx, store, id, FILETYPE_DIRECTORY)
		if err != nil {
			return cas.NilDataID, 0, err
		}
		if parsed.Kind != PARSEDKIND_DIRECTORY {
			return cas.NilDataID, 0, FormatError{Reason: "merge: expected a directory object"}
		}
		parsedDirs[i] = parsed
	}

	for i, dir := range parsedDirs {
		for j, entry := range dir.Children {
			r, ok := rowByName[entry.Name]
			if !ok {
				r = &row{name: entry.Name, typ: entry.Type, size: entry.Size, children: make([]cas.DataID, len(reversed))}
				rowByName[entry.Name] = r
				order = append(order, entry.Name)
			}
			r.children[i] = dir.Refs[j]
			// row was created on first occurrence, i.e. the highest-priority
			// tree that has this name (i ascends in priority order) -- its
			// type/size is already what "first non-nil wins" wants.
		}
	}
	sort.Strings(order)

	outEntries := make([]DirectoryEntry, 0, len(order))
	outChildren := make([]cas.DataID, 0, len(order))

	for _, name := range order {
		r := rowByName[name]

		dirIDs := make([]cas.DataID, 0, len(r.children))
		winner := cas.NilDataID
		allDirectories := true
		for _, id := range r.children {
			if id == cas.NilDataID {
				continue
			}
			parsed, err := FetchAndParse(ctx, store, id, FILETYPE_DIRECTORY)
			isDir := err == nil && parsed.Kind == PARSEDKIND_DIRECTORY
			if !isDir {
				allDirectories = false
			} else if !containsID(dirIDs, id) {
				dirIDs = append(dirIDs, id)
			}
			if winner == cas.NilDataID {
				winner = id
			}
		}

		if allDirectories && len(dirIDs) >= 2 {
			mergedID, mergedSize, err := mergeTrees(ctx, store, dirIDs)
			if err != nil {
				return cas.NilDataID, 0, err
			}
			outEntries = append(outEntries, DirectoryEntry{Name: name, Type: FILETYPE_DIRECTORY, Size: mergedSize})
			outChildren = append(outChildren, mergedID)
			continue
		}
		if allDirectories && len(dirIDs) == 1 {
			outEntries = append(outEntries, DirectoryEntry{Name: name, Type: FILETYPE_DIRECTORY, Size: r.size})
			outChildren = append(outChildren, dirIDs[0])
			continue
		}

		// first non-nil child wins for non-directories (r.children is already
		// in priority order since reversed[] put the highest-priority tree
		// first).
		outEntries = append(outEntries, DirectoryEntry{Name: name, Type: r.typ, Size: r.size})
		outChildren = append(outChildren, winner)
	}

	obj := EncodeDirectory(outEntries, outChildren)
	id, err := cas.PutObject(ctx, store, obj)
	if err != nil {
		return cas.NilDataID, 0, err
	}

	var aggregateSize int64
	for _, e := range outEntries {
		aggregateSize += e.Size
	}
	return id, aggregateSize, nil
}

func containsID(ids []cas.DataID, id cas.DataID) bool {
	for _, it := range ids {
		if it == id {
			return true
		}
	}
	return false
}
