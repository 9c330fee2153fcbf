package filetree

import (
	"context"
	"fmt"
	"sort"

	"github.com/llbuild2/llbuild2-go/internal/base"
	"github.com/llbuild2/llbuild2-go/cas"
)

/***************************************
 * Parsing: turn an object (plus the type advertised by its parent) into a
 * filesystem object the exporter (§4.3) can act on (§4.2 algorithm).
 ***************************************/

type ParsedKind int8

const (
	PARSEDKIND_BLOB ParsedKind = iota
	PARSEDKIND_DIRECTORY
	PARSEDKIND_CHUNKEDFILE
)

// ParsedObject is the decoded shape of one CAS object, independent of how
// it will be consumed (exported to disk, read as a range, merged).
type ParsedObject struct {
	Kind        ParsedKind
	Type        FileType
	Size        int64
	Compression Compression

	// PARSEDKIND_BLOB: the object's data *is* the content (refs empty).
	Blob []byte

	// PARSEDKIND_DIRECTORY: one entry per child, Children[i] pairs with
	// Refs[i] in declaration (lex-sorted) order.
	Children []DirectoryEntry
	Refs     []cas.DataID

	// PARSEDKIND_CHUNKEDFILE: chunk ids in order; ChunkSize is the nominal
	// (uncompressed) size of all but possibly the last chunk.
	ChunkIDs  []cas.DataID
	ChunkSize int64
}

// FormatError reports the codec could not make sense of an object under the
// advertised type (§7 IOFormat).
type FormatError struct {
	Reason string
}

func (e FormatError) Error() string { return fmt.Sprintf("filetree: format error: %s", e.Reason) }

// Parse implements §4.2's parsing algorithm. It performs no I/O: obj must
// already have been fetched from the store.
func Parse(obj cas.Object, advertisedType FileType) (ParsedObject, error) {
	if len(obj.Refs) == 0 {
		return ParsedObject{
			Kind: PARSEDKIND_BLOB,
			Type: advertisedType,
			Size: int64(len(obj.Data)),
			Blob: obj.Data,
		}, nil
	}

	fi, err := DecodeFileInfo(obj.Data)
	if err != nil {
		return ParsedObject{}, FormatError{Reason: err.Error()}
	}

	switch {
	case fi.Type.IsDirectory():
		if len(fi.InlineChildren) != len(obj.Refs) {
			return ParsedObject{}, FormatError{Reason: "directory entry/ref count mismatch"}
		}
		return ParsedObject{
			Kind:     PARSEDKIND_DIRECTORY,
			Type:     fi.Type,
			Size:     fi.Size,
			Children: fi.InlineChildren,
			Refs:     obj.Refs,
		}, nil

	case fi.Type.IsRegular() && fi.FixedChunkSize == fi.Size && len(obj.Refs) == 1:
		return ParsedObject{
			Kind:        PARSEDKIND_CHUNKEDFILE,
			Type:        fi.Type,
			Size:        fi.Size,
			Compression: fi.Compression,
			ChunkIDs:    obj.Refs,
			ChunkSize:   fi.FixedChunkSize,
		}, nil

	case fi.Type.IsRegular() && fi.FixedChunkSize < fi.Size:
		return ParsedObject{
			Kind:        PARSEDKIND_CHUNKEDFILE,
			Type:        fi.Type,
			Size:        fi.Size,
			Compression: fi.Compression,
			ChunkIDs:    obj.Refs,
			ChunkSize:   fi.FixedChunkSize,
		}, nil

	default:
		return ParsedObject{}, FormatError{Reason: fmt.Sprintf("unrecognized layout for type %v", fi.Type)}
	}
}

func FetchAndParse(ctx context.Context, store cas.Store, id cas.DataID, advertisedType FileType) (ParsedObject, error) {
	obj, err := store.Get(ctx, id)
	if err != nil {
		return ParsedObject{}, err
	}
	if obj == nil {
		return ParsedObject{}, cas.NotFoundError{ID: id}
	}
	return Parse(*obj, advertisedType)
}

/***************************************
 * Directory encoding
 ***************************************/

// EncodeDirectory builds the CAS object for a directory: entries must
// already be sorted and unique by name (callers -- Import's leaf-to-root
// pass, Merge -- are responsible for that; this function asserts it).
func EncodeDirectory(entries []DirectoryEntry, children []cas.DataID) cas.Object {
	base.Assert(func() bool { return len(entries) == len(children) })
	base.Assert(func() bool { return isSortedUniqueEntries(entries) })

	var totalSize int64
	for _, e := range entries {
		totalSize += e.Size
	}

	fi := FileInfo{
		Type:           FILETYPE_DIRECTORY,
		Size:           totalSize,
		InlineChildren: entries,
	}
	return cas.MakeObject(EncodeFileInfo(&fi), children...)
}

func isSortedUniqueEntries(entries []DirectoryEntry) bool {
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Name >= entries[i].Name {
			return false
		}
	}
	return true
}

// LookupEntry performs the binary search described in §4.2: O(log n), no
// allocation, returns (index, true) or (0, false).
func LookupEntry(entries []DirectoryEntry, name string) (int, bool) {
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Name >= name })
	if i < len(entries) && entries[i].Name == name {
		return i, true
	}
	return 0, false
}

/***************************************
 * Chunked-file encoding
 ***************************************/

// EncodeChunkedFile builds the outer FileInfo object for a (possibly
// single-chunk) regular file, given the already-stored chunk ids and the
// nominal chunk size used to produce them.
func EncodeChunkedFile(fileType FileType, size int64, compression Compression, chunkSize int64, chunks []cas.DataID) cas.Object {
	base.Assert(func() bool { return fileType.IsRegular() })
	fi := FileInfo{
		Type:           fileType,
		Size:           size,
		Compression:    compression,
		FixedChunkSize: chunkSize,
	}
	return cas.MakeObject(EncodeFileInfo(&fi), chunks...)
}

// EncodeCompressedChunk wraps a blob of already-compressed bytes with a
// single-ref FileInfo recording the uncompressed size, so a reader can tell
// a compressed chunk from a raw one purely from the object shape (§4.2:
// "if a chunk object carries a FileInfo with compression=zstd").
func EncodeCompressedChunk(uncompressedSize int64, compressedBlobID cas.DataID) cas.Object {
	fi := FileInfo{
		Type:           FILETYPE_PLAINFILE,
		Size:           uncompressedSize,
		Compression:    COMPRESSION_ZSTD,
		FixedChunkSize: uncompressedSize,
	}
	return cas.MakeObject(EncodeFileInfo(&fi), compressedBlobID)
}
