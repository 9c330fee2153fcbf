package filetree

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/llbuild2/llbuild2-go/cas"
	"github.com/llbuild2/llbuild2-go/internal/base"
)

/***************************************
 * Blob reads (§4.2 "Blob reads")
 *
 * read(range) on a chunked file: resolve the covering chunks, fetch and
 * decompress each, splice into one contiguous buffer. Reads outside
 * [0,size) fail with BadRange.
 ***************************************/

type BadRangeError struct {
	Offset, Length, Size int64
}

func (e BadRangeError) Error() string {
	return fmt.Sprintf("filetree: range [%d,%d) out of bounds for blob of size %d", e.Offset, e.Offset+e.Length, e.Size)
}

// ReadRange reads [offset, offset+length) of a parsed chunked file (or a
// whole blob, via ReadAll). parsed must be PARSEDKIND_CHUNKEDFILE.
func ReadRange(ctx context.Context, store cas.Store, parsed ParsedObject, offset, length int64) ([]byte, error) {
	base.Assert(func() bool { return parsed.Kind == PARSEDKIND_CHUNKEDFILE })

	if offset < 0 || length < 0 || offset+length > parsed.Size {
		return nil, BadRangeError{Offset: offset, Length: length, Size: parsed.Size}
	}
	if length == 0 {
		return []byte{}, nil
	}

	startChunk := offset / parsed.ChunkSize
	endChunk := (offset + length + parsed.ChunkSize - 1) / parsed.ChunkSize

	result := make([]byte, 0, length)
	cursor := startChunk * parsed.ChunkSize

	for ci := startChunk; ci < endChunk; ci++ {
		chunkBytes, err := fetchChunk(ctx, store, parsed.ChunkIDs[ci])
		if err != nil {
			return nil, err
		}

		lo := int64(0)
		hi := int64(len(chunkBytes))
		if cursor < offset {
			lo = offset - cursor
		}
		if cursor+hi > offset+length {
			hi = offset + length - cursor
		}
		result = append(result, chunkBytes[lo:hi]...)

		cursor += int64(len(chunkBytes))
	}

	return result, nil
}

func ReadAll(ctx context.Context, store cas.Store, parsed ParsedObject) ([]byte, error) {
	switch parsed.Kind {
	case PARSEDKIND_BLOB:
		return parsed.Blob, nil
	case PARSEDKIND_CHUNKEDFILE:
		return ReadRange(ctx, store, parsed, 0, parsed.Size)
	default:
		return nil, FormatError{Reason: "ReadAll on a directory object"}
	}
}

// fetchChunk resolves one chunk id to its (possibly decompressed) bytes. A
// chunk object is itself parsed with §4.2's generic rule: refs-empty means
// raw bytes, otherwise it is a single-ref FileInfo wrapper recording
// compression=zstd over the one referenced blob.
func fetchChunk(ctx context.Context, store cas.Store, id cas.DataID) ([]byte, error) {
	obj, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, cas.NotFoundError{ID: id}
	}

	if len(obj.Refs) == 0 {
		return obj.Data, nil
	}

	fi, err := DecodeFileInfo(obj.Data)
	if err != nil {
		return nil, FormatError{Reason: err.Error()}
	}
	if fi.Compression != COMPRESSION_ZSTD || len(obj.Refs) != 1 {
		return nil, FormatError{Reason: "chunk object has refs but is not a recognized compressed-chunk wrapper"}
	}

	rawObj, err := store.Get(ctx, obj.Refs[0])
	if err != nil {
		return nil, err
	}
	if rawObj == nil {
		return nil, cas.NotFoundError{ID: obj.Refs[0]}
	}

	reader := base.NewCompressedReader(bytes.NewReader(rawObj.Data), base.CompressionOptionFormat(base.COMPRESSION_FORMAT_ZSTD))
	defer reader.Close()

	// fi.Size is the uncompressed size recorded at compression time, used as
	// an allocation hint -- actual decompressed size is whatever io.Copy
	// writes, since the estimate only needs to be a reasonable overestimate.
	buf := bytes.NewBuffer(make([]byte, 0, fi.Size))
	if _, err := io.Copy(buf, reader); err != nil {
		return nil, fmt.Errorf("filetree: decompressing chunk: %w", err)
	}
	return buf.Bytes(), nil
}
