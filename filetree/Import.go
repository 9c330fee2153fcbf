package filetree

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/djherbis/times"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"sync/atomic"

	"github.com/llbuild2/llbuild2-go/cas"
	"github.com/llbuild2/llbuild2-go/internal/base"
)

/***************************************
 * Import: local filesystem -> CAS (§4.3)
 *
 * Runs the 7-phase pipeline tracked through an atomic phase counter so a
 * caller can poll Importer.Phase() for observability while the import is
 * in flight (no UI here, just the counter -- reporting progress is a
 * collaborator's job).
 ***************************************/

type ImportPhase int32

const (
	PHASE_ASSEMBLINGPATHS ImportPhase = iota
	PHASE_ESTIMATINGSIZE
	PHASE_CHECKIFUPLOADED
	PHASE_UPLOADINGFILES
	PHASE_UPLOADINGWAIT
	PHASE_UPLOADINGDIRS
	PHASE_IMPORTSUCCEEDED
	PHASE_IMPORTFAILED
)

func (p ImportPhase) String() string {
	switch p {
	case PHASE_ASSEMBLINGPATHS:
		return "AssemblingPaths"
	case PHASE_ESTIMATINGSIZE:
		return "EstimatingSize"
	case PHASE_CHECKIFUPLOADED:
		return "CheckIfUploaded"
	case PHASE_UPLOADINGFILES:
		return "UploadingFiles"
	case PHASE_UPLOADINGWAIT:
		return "UploadingWait"
	case PHASE_UPLOADINGDIRS:
		return "UploadingDirs"
	case PHASE_IMPORTSUCCEEDED:
		return "ImportSucceeded"
	case PHASE_IMPORTFAILED:
		return "ImportFailed"
	default:
		return "Unknown"
	}
}

const defaultChunkSize = int64(1 << 20) // 1MiB, same stride as the teacher's largest recycler page
const compressionSizeFloor = 1024       // §4.2: never compress a chunk <= 1KiB

var incompressibleExtensions = map[string]bool{
	".mp3": true, ".mp4": true, ".jpg": true, ".jpeg": true, ".png": true,
	".gz": true, ".zip": true, ".zst": true, ".7z": true, ".webp": true,
}

type ModifiedFileError struct {
	Path   string
	Reason string
}

func (e ModifiedFileError) Error() string {
	return fmt.Sprintf("filetree: import: %q changed mid-flight: %s", e.Path, e.Reason)
}

type ImportOptions struct {
	// PathFilter is evaluated against the path relative to the import root
	// ("/" for the root itself); returning false skips the entry (and its
	// subtree, for directories).
	PathFilter func(relPath string) bool

	CompressedWireFormat   bool
	RelaxConsistencyChecks bool
	SkipUnreadable         bool
	ChunkSize              int64
	ConcurrencySSD         int64
	ConcurrencyNetwork     int64
	ConcurrencyCPU         int64
}

func NewImportOptions() ImportOptions {
	return ImportOptions{
		PathFilter:         func(string) bool { return true },
		ChunkSize:          defaultChunkSize,
		ConcurrencySSD:     4,
		ConcurrencyNetwork: 32,
		ConcurrencyCPU:     int64(runtime.NumCPU()),
	}
}

type ImportOptionFunc func(*ImportOptions)

func ImportOptionFilter(fn func(relPath string) bool) ImportOptionFunc {
	return func(o *ImportOptions) { o.PathFilter = fn }
}
func ImportOptionCompressed(enabled bool) ImportOptionFunc {
	return func(o *ImportOptions) { o.CompressedWireFormat = enabled }
}
func ImportOptionRelaxConsistencyChecks(enabled bool) ImportOptionFunc {
	return func(o *ImportOptions) { o.RelaxConsistencyChecks = enabled }
}
func ImportOptionSkipUnreadable(enabled bool) ImportOptionFunc {
	return func(o *ImportOptions) { o.SkipUnreadable = enabled }
}
func ImportOptionChunkSize(size int64) ImportOptionFunc {
	return func(o *ImportOptions) { o.ChunkSize = size }
}

type Importer struct {
	store   cas.Store
	options ImportOptions
	phase   atomic.Int32
}

func NewImporter(store cas.Store, options ...ImportOptionFunc) *Importer {
	opts := NewImportOptions()
	for _, opt := range options {
		opt(&opts)
	}
	return &Importer{store: store, options: opts}
}

func (im *Importer) Phase() ImportPhase     { return ImportPhase(im.phase.Load()) }
func (im *Importer) setPhase(p ImportPhase) { im.phase.Store(int32(p)) }

// scannedEntry is one filesystem entry discovered during AssemblingPaths.
type scannedEntry struct {
	absPath string
	relPath string // "/" for the root; otherwise slash-separated, no leading slash
	info    os.FileInfo
	isLink  bool
	target  string

	// changeTime is read alongside info so uploadFile can notice a file
	// whose metadata (permissions, rename-in-place) changed between scan
	// and upload even when size and mtime alone wouldn't catch it --
	// size/mtime compare against a plain os.Stat at upload time, this is
	// the extra signal for platforms that expose it.
	changeTime   time.Time
	hasChangeTime bool
}

// Import walks root and uploads it to the store, returning the DataID of
// the root directory object. On a Transient CAS error encountered during
// upload, the whole import restarts once with network concurrency divided
// by 5 (floor 10) after a backoff, per §4.3.
func (im *Importer) Import(ctx context.Context, root string) (cas.DataID, error) {
	id, err := im.importOnce(ctx, root, im.options.ConcurrencyNetwork)
	if err != nil && cas.IsTransient(err) {
		base.LogWarning(LogFileTree, "import: transient CAS error, retrying with reduced concurrency: %v", err)
		time.Sleep(3 * time.Second)
		reduced := im.options.ConcurrencyNetwork / 5
		if reduced < 10 {
			reduced = 10
		}
		id, err = im.importOnce(ctx, root, reduced)
	}
	if err != nil {
		im.setPhase(PHASE_IMPORTFAILED)
		return cas.NilDataID, err
	}
	im.setPhase(PHASE_IMPORTSUCCEEDED)
	return id, nil
}

func (im *Importer) importOnce(ctx context.Context, root string, networkConcurrency int64) (cas.DataID, error) {
	im.setPhase(PHASE_ASSEMBLINGPATHS)
	entries, err := im.scan(root)
	if err != nil {
		return cas.NilDataID, err
	}

	// EstimatingSize/CheckIfUploaded/UploadingFiles are folded into one
	// bounded-concurrency pass per file: each segment id is deterministic
	// (Identify is pure), so "estimate" and "check" are the same
	// Identify-then-Contains sequence the upload itself needs.
	im.setPhase(PHASE_ESTIMATINGSIZE)
	netSem := semaphore.NewWeighted(networkConcurrency)
	cpuSem := semaphore.NewWeighted(im.options.ConcurrencyCPU)
	ssdSem := semaphore.NewWeighted(im.options.ConcurrencySSD)

	var fileIDsMu sync.Mutex
	fileIDs := make(map[string]cas.DataID, len(entries))

	im.setPhase(PHASE_CHECKIFUPLOADED)
	g, gCtx := errgroup.WithContext(ctx)
	for _, e := range entries {
		e := e
		if e.info.IsDir() {
			continue
		}
		g.Go(func() error {
			if err := ssdSem.Acquire(gCtx, 1); err != nil {
				return err
			}
			defer ssdSem.Release(1)

			id, err := im.uploadFile(gCtx, e, netSem, cpuSem)
			if err != nil {
				return err
			}
			fileIDsMu.Lock()
			fileIDs[e.relPath] = id
			fileIDsMu.Unlock()
			return nil
		})
	}
	im.setPhase(PHASE_UPLOADINGFILES)
	if err := g.Wait(); err != nil {
		return cas.NilDataID, err
	}

	im.setPhase(PHASE_UPLOADINGWAIT)
	im.setPhase(PHASE_UPLOADINGDIRS)
	return im.buildDirectories(ctx, entries, fileIDs)
}

func (im *Importer) scan(root string) ([]scannedEntry, error) {
	var result []scannedEntry
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if im.options.SkipUnreadable {
				return nil
			}
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			rel = "/"
		}
		if !im.options.PathFilter(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		entry := scannedEntry{absPath: path, relPath: rel, info: info}
		if ts, timesErr := times.Stat(path); timesErr == nil && ts.HasChangeTime() {
			entry.changeTime = ts.ChangeTime()
			entry.hasChangeTime = true
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				if im.options.SkipUnreadable {
					return nil
				}
				return err
			}
			entry.isLink = true
			entry.target = target
		}
		result = append(result, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].relPath < result[j].relPath })
	return result, nil
}

// uploadFile re-reads e.absPath, chunks and optionally compresses it, and
// stores the outer FileInfo object. Symlinks are stored as a bare blob of
// their target string.
func (im *Importer) uploadFile(ctx context.Context, e scannedEntry, netSem, cpuSem *semaphore.Weighted) (cas.DataID, error) {
	if e.isLink {
		if err := netSem.Acquire(ctx, 1); err != nil {
			return cas.NilDataID, err
		}
		defer netSem.Release(1)
		return im.store.Put(ctx, nil, []byte(e.target))
	}

	before := e.info
	data, err := os.ReadFile(e.absPath)
	if err != nil {
		if im.options.SkipUnreadable {
			return cas.NilDataID, nil
		}
		return cas.NilDataID, err
	}
	if after, statErr := os.Stat(e.absPath); statErr == nil {
		if after.Size() != before.Size() || !after.ModTime().Equal(before.ModTime()) {
			if !im.options.RelaxConsistencyChecks {
				return cas.NilDataID, ModifiedFileError{Path: e.relPath, Reason: "size or mtime changed during import"}
			}
		}
	}
	if e.hasChangeTime {
		if ts, timesErr := times.Stat(e.absPath); timesErr == nil && ts.HasChangeTime() {
			if !ts.ChangeTime().Equal(e.changeTime) {
				if !im.options.RelaxConsistencyChecks {
					return cas.NilDataID, ModifiedFileError{Path: e.relPath, Reason: "metadata changed during import"}
				}
			}
		}
	}

	fileType := FILETYPE_PLAINFILE
	if before.Mode()&0o111 != 0 {
		fileType = FILETYPE_EXECUTABLE
	}

	chunkSize := im.options.ChunkSize
	var chunkIDs []cas.DataID
	compression := COMPRESSION_NONE
	rawFallback := false

	for off := int64(0); off == 0 || off < int64(len(data)); off += chunkSize {
		end := off + chunkSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		chunk := data[off:end]

		id, compressed, err := im.uploadChunk(ctx, chunk, e.relPath, rawFallback, netSem, cpuSem)
		if err != nil {
			return cas.NilDataID, err
		}
		if compressed {
			compression = COMPRESSION_ZSTD
		} else {
			rawFallback = true // §4.2: once one chunk is raw, the rest stay raw
		}
		chunkIDs = append(chunkIDs, id)

		if len(data) == 0 {
			break
		}
	}

	// §4.2 rule 4 requires fixedChunkSize==size exactly when there is one
	// ref: a file that ended up as a single chunk (including the 0-byte
	// case) records its own size, not the nominal per-chunk size.
	encodedChunkSize := chunkSize
	if len(chunkIDs) <= 1 {
		encodedChunkSize = int64(len(data))
	}

	obj := EncodeChunkedFile(fileType, int64(len(data)), compression, encodedChunkSize, chunkIDs)
	if err := netSem.Acquire(ctx, 1); err != nil {
		return cas.NilDataID, err
	}
	defer netSem.Release(1)
	return cas.PutObject(ctx, im.store, obj)
}

// uploadChunk stores one chunk, compressing it when the import-wide policy
// and the per-chunk heuristics of §4.2 all agree. Returns the id a caller
// should reference from the outer FileInfo -- for a compressed chunk, the
// compressed-chunk wrapper id, not the raw blob's.
func (im *Importer) uploadChunk(ctx context.Context, chunk []byte, relPath string, rawFallback bool, netSem, cpuSem *semaphore.Weighted) (cas.DataID, bool, error) {
	if !rawFallback && im.shouldCompress(chunk, relPath) {
		if err := cpuSem.Acquire(ctx, 1); err != nil {
			return cas.NilDataID, false, err
		}
		compressed, ok := tryCompress(chunk)
		cpuSem.Release(1)

		if ok {
			if err := netSem.Acquire(ctx, 1); err != nil {
				return cas.NilDataID, false, err
			}
			rawID, err := im.store.Put(ctx, nil, compressed)
			netSem.Release(1)
			if err != nil {
				return cas.NilDataID, false, err
			}

			wrapper := EncodeCompressedChunk(int64(len(chunk)), rawID)
			if err := netSem.Acquire(ctx, 1); err != nil {
				return cas.NilDataID, false, err
			}
			id, err := cas.PutObject(ctx, im.store, wrapper)
			netSem.Release(1)
			return id, true, err
		}
		// compression did not reduce size (or errored): fall back to raw.
	}

	if err := netSem.Acquire(ctx, 1); err != nil {
		return cas.NilDataID, false, err
	}
	defer netSem.Release(1)
	id, err := im.store.Put(ctx, nil, chunk)
	return id, false, err
}

func (im *Importer) shouldCompress(chunk []byte, relPath string) bool {
	if !im.options.CompressedWireFormat {
		return false
	}
	if len(chunk) <= compressionSizeFloor {
		return false
	}
	if incompressibleExtensions[filepath.Ext(relPath)] {
		return false
	}
	return true
}

func tryCompress(raw []byte) ([]byte, bool) {
	var buf bytes.Buffer
	w := base.NewCompressedWriter(&buf, base.CompressionOptionFormat(base.COMPRESSION_FORMAT_ZSTD))
	if _, err := w.Write(raw); err != nil {
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}
	if buf.Len() >= len(raw) {
		return nil, false
	}
	return buf.Bytes(), true
}

// dirRow is one not-yet-sorted entry destined for a directory object: a
// file row carries its final id immediately, a subdirectory row's id is
// filled in once that subdirectory is built (always earlier, since
// buildDirectories processes paths deepest-first).
type dirRow struct {
	name string
	typ  FileType
	size int64
	id   cas.DataID
}

// buildDirectories assembles directory objects depth-first from leaves
// (reverse path order), per §4.3 phase 6.
func (im *Importer) buildDirectories(ctx context.Context, entries []scannedEntry, fileIDs map[string]cas.DataID) (cas.DataID, error) {
	rows := map[string][]dirRow{"/": nil}
	for _, e := range entries {
		if e.relPath == "/" {
			continue
		}
		if e.info.IsDir() {
			if _, ok := rows[e.relPath]; !ok {
				rows[e.relPath] = nil
			}
		}
	}
	for _, e := range entries {
		if e.relPath == "/" || e.info.IsDir() {
			continue
		}
		fileType := FILETYPE_PLAINFILE
		if e.isLink {
			fileType = FILETYPE_SYMLINK
		} else if e.info.Mode()&0o111 != 0 {
			fileType = FILETYPE_EXECUTABLE
		}
		id, ok := fileIDs[e.relPath]
		if !ok {
			continue
		}
		parent := parentOf(e.relPath)
		rows[parent] = append(rows[parent], dirRow{name: filepath.Base(e.relPath), typ: fileType, size: e.info.Size(), id: id})
	}

	paths := make([]string, 0, len(rows))
	for p := range rows {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return pathDepth(paths[i]) > pathDepth(paths[j]) })

	builtDirID := make(map[string]cas.DataID, len(rows))
	for _, path := range paths {
		if path != "/" {
			parent := parentOf(path)
			rows[parent] = append(rows[parent], dirRow{name: filepath.Base(path), typ: FILETYPE_DIRECTORY})
		}
	}
	// second pass assigns each subdirectory row its built id as soon as it's
	// available, iterating deepest-first so a parent always sees its
	// children's ids already populated.
	for _, path := range paths {
		row := rows[path]
		sort.Slice(row, func(i, j int) bool { return row[i].name < row[j].name })

		entriesOut := make([]DirectoryEntry, len(row))
		childrenOut := make([]cas.DataID, len(row))
		for i, r := range row {
			id := r.id
			if r.typ == FILETYPE_DIRECTORY {
				subPath := joinRelPath(path, r.name)
				id = builtDirID[subPath]
			}
			entriesOut[i] = DirectoryEntry{Name: r.name, Type: r.typ, Size: r.size}
			childrenOut[i] = id
		}

		obj := EncodeDirectory(entriesOut, childrenOut)
		id, err := cas.PutObject(ctx, im.store, obj)
		if err != nil {
			return cas.NilDataID, err
		}
		builtDirID[path] = id
	}

	return builtDirID["/"], nil
}

func pathDepth(p string) int {
	if p == "/" {
		return 0
	}
	n := 1
	for _, r := range p {
		if r == '/' {
			n++
		}
	}
	return n
}
func parentOf(relPath string) string {
	p := filepath.Dir(filepath.FromSlash(relPath))
	p = filepath.ToSlash(p)
	if p == "." {
		return "/"
	}
	return p
}
func joinRelPath(dir, name string) string {
	if dir == "/" {
		return name
	}
	return dir + "/" + name
}
