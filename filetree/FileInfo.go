package filetree

import (
	"bytes"
	"fmt"

	"github.com/llbuild2/llbuild2-go/internal/base"
)

/***************************************
 * FileInfo / DirectoryEntry: the structured record attached to a directory
 * or chunked-file CAS object (spec §3, §4.2)
 *
 * FileInfo is only ever present in an object's data when that object has at
 * least one ref: a bare blob (refs empty) is its own payload, advertised by
 * the parent's DirectoryEntry.Type. This mirrors the codec's parsing rule 1
 * in §4.2 -- small files and symlinks never pay for a FileInfo wrapper.
 ***************************************/

type FileType int8

const (
	FILETYPE_PLAINFILE FileType = iota
	FILETYPE_EXECUTABLE
	FILETYPE_SYMLINK
	FILETYPE_DIRECTORY
)

func (t FileType) String() string {
	switch t {
	case FILETYPE_PLAINFILE:
		return "PlainFile"
	case FILETYPE_EXECUTABLE:
		return "Executable"
	case FILETYPE_SYMLINK:
		return "Symlink"
	case FILETYPE_DIRECTORY:
		return "Directory"
	default:
		return "Unknown"
	}
}
func (t FileType) IsDirectory() bool { return t == FILETYPE_DIRECTORY }
func (t FileType) IsRegular() bool {
	return t == FILETYPE_PLAINFILE || t == FILETYPE_EXECUTABLE
}

type Compression int8

const (
	COMPRESSION_NONE Compression = iota
	COMPRESSION_ZSTD
)

// DirectoryEntry is one row of a directory's inline child list. Entries
// within one FileInfo must be strictly ordered and unique by Name (§3
// invariants); the matching child DataID lives at the same index in the
// directory object's Refs, not inside the entry itself.
type DirectoryEntry struct {
	Name string
	Type FileType
	Size int64
}

func (e *DirectoryEntry) Serialize(ar base.Archive) {
	ar.String(&e.Name)
	var t int32 = int32(e.Type)
	ar.Int32(&t)
	e.Type = FileType(t)
	ar.Int64(&e.Size)
}

// FileInfo is the payload of any non-leaf CAS object: a directory (payload
// = InlineChildren) or the outer object of a chunked/single-chunk file
// (payload = FixedChunkSize). Exactly one of the two is meaningful,
// discriminated by Type.
type FileInfo struct {
	Type           FileType
	Size           int64
	Compression    Compression
	FixedChunkSize int64
	InlineChildren []DirectoryEntry
}

func (fi *FileInfo) Serialize(ar base.Archive) {
	var t int32 = int32(fi.Type)
	ar.Int32(&t)
	fi.Type = FileType(t)

	ar.Int64(&fi.Size)

	var c int32 = int32(fi.Compression)
	ar.Int32(&c)
	fi.Compression = Compression(c)

	ar.Int64(&fi.FixedChunkSize)

	base.SerializeMany(ar, func(e *DirectoryEntry) { e.Serialize(ar) }, &fi.InlineChildren)
}

func EncodeFileInfo(fi *FileInfo) []byte {
	var buf bytes.Buffer
	ar := base.NewArchiveBinaryWriter(&buf, base.AR_DETERMINISM)
	defer ar.Close()
	fi.Serialize(&ar)
	base.LogPanicIfFailed(LogFileTree, ar.Error())
	return buf.Bytes()
}

func DecodeFileInfo(data []byte) (fi FileInfo, err error) {
	ar := base.NewArchiveBinaryReader(bytes.NewReader(data))
	defer ar.Close()
	fi.Serialize(&ar)
	if err = ar.Error(); err != nil {
		err = fmt.Errorf("filetree: corrupt file info: %w", err)
	}
	return
}

var LogFileTree = base.NewLogCategory("FileTree")
