package filetree

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/llbuild2/llbuild2-go/cas"
)

/***************************************
 * Export: CAS -> local filesystem (§4.3)
 *
 * A concurrent walker streams objects breadth-first from the root id; for
 * each object the codec's Parse yields filesystem objects which a
 * materializer writes to disk. Permissions: executable -> 0o777, regular ->
 * 0o666, subject to umask (applied by the OS when OpenFile creates the
 * file). Objects carry no explicit mode, so no per-file mode overrides this
 * rule, and an existing file keeps its mode when it is truncated.
 ***************************************/

type ExportOptions struct {
	Concurrency int64
}

func NewExportOptions() ExportOptions {
	return ExportOptions{Concurrency: 16}
}

type ExportOptionFunc func(*ExportOptions)

func ExportOptionConcurrency(n int64) ExportOptionFunc {
	return func(o *ExportOptions) { o.Concurrency = n }
}

// Export materializes the tree rooted at id under destRoot, which must
// already exist.
func Export(ctx context.Context, store cas.Store, id cas.DataID, destRoot string, options ...ExportOptionFunc) error {
	return ExportAs(ctx, store, id, FILETYPE_DIRECTORY, destRoot, options...)
}

// ExportAs is Export generalized to a root that isn't necessarily a
// directory -- needed when a single action input names a plain file or
// symlink object directly rather than a tree (§4.4 "stage inputs").
func ExportAs(ctx context.Context, store cas.Store, id cas.DataID, advertisedType FileType, destPath string, options ...ExportOptionFunc) error {
	opts := NewExportOptions()
	for _, opt := range options {
		opt(&opts)
	}

	sem := semaphore.NewWeighted(opts.Concurrency)
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return exportNode(gCtx, store, id, advertisedType, destPath, g, sem)
	})
	return g.Wait()
}

func exportNode(ctx context.Context, store cas.Store, id cas.DataID, advertisedType FileType, destPath string, g *errgroup.Group, sem *semaphore.Weighted) error {
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer sem.Release(1)

	parsed, err := FetchAndParse(ctx, store, id, advertisedType)
	if err != nil {
		return err
	}

	switch parsed.Kind {
	case PARSEDKIND_DIRECTORY:
		if err := os.MkdirAll(destPath, 0o777); err != nil {
			return err
		}
		for i, child := range parsed.Children {
			childID := parsed.Refs[i]
			childPath := filepath.Join(destPath, child.Name)
			childType := child.Type
			g.Go(func() error {
				return exportNode(ctx, store, childID, childType, childPath, g, sem)
			})
		}
		return nil

	case PARSEDKIND_BLOB:
		if advertisedType == FILETYPE_SYMLINK {
			return materializeSymlink(childTargetOf(parsed), destPath)
		}
		return materializeRegular(parsed.Blob, advertisedType, destPath)

	case PARSEDKIND_CHUNKEDFILE:
		data, err := ReadAll(ctx, store, parsed)
		if err != nil {
			return err
		}
		return materializeRegular(data, parsed.Type, destPath)

	default:
		return FormatError{Reason: "unknown parsed kind during export"}
	}
}

func childTargetOf(parsed ParsedObject) string {
	return string(parsed.Blob)
}

func materializeRegular(data []byte, fileType FileType, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o777); err != nil {
		return err
	}
	mode := os.FileMode(0o666)
	if fileType == FILETYPE_EXECUTABLE {
		mode = 0o777
	}
	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

func materializeSymlink(target, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o777); err != nil {
		return err
	}
	err := os.Symlink(target, destPath)
	if os.IsExist(err) {
		if rmErr := os.Remove(destPath); rmErr != nil {
			return rmErr
		}
		err = os.Symlink(target, destPath)
	}
	return err
}
