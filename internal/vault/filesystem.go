package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"webfile-go/internal/webfile"
)

// FileSystemVault stores blobs as files below one directory per area:
//
//	<root>/
//	  public/
//	    ab/cd/abcd...   (storage path of a public blob)
//	  private/
//	    ab/cd/abcd...
//
// Writes go to a temp file in the destination directory and are renamed
// into place, so a blob is either complete or absent.
type FileSystemVault struct {
	root string
}

// NewFileSystemVault creates a filesystem vault rooted at the given path.
func NewFileSystemVault(root string) (*FileSystemVault, error) {
	for _, a := range []webfile.Area{webfile.AreaPublic, webfile.AreaPrivate} {
		if err := os.MkdirAll(filepath.Join(root, string(a)), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", a, err)
		}
	}
	return &FileSystemVault{root: root}, nil
}

// pathFor maps a ref to its file. Paths that would escape the area directory
// are rejected.
func (v *FileSystemVault) pathFor(ref webfile.StorageRef) (string, error) {
	if ref.Area != webfile.AreaPublic && ref.Area != webfile.AreaPrivate {
		return "", fmt.Errorf("unknown area %q", ref.Area)
	}
	clean := path.Clean(ref.Path)
	if ref.Path == "" || path.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid storage path %q", ref.Path)
	}
	return filepath.Join(v.root, string(ref.Area), filepath.FromSlash(clean)), nil
}

// Put stores content at ref. If the blob already exists the reader is
// drained and the existing file is kept.
func (v *FileSystemVault) Put(ctx context.Context, ref webfile.StorageRef, r io.Reader, size int64) error {
	dest, err := v.pathFor(ref)
	if err != nil {
		return err
	}
	r = webfile.NewContextReader(ctx, r)

	if _, err := os.Stat(dest); err == nil {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if size >= 0 && written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	return writeFile(dest, r, size)
}

// Get writes the blob at ref to w.
func (v *FileSystemVault) Get(ctx context.Context, ref webfile.StorageRef, w io.Writer) error {
	src, err := v.pathFor(ref)
	if err != nil {
		return err
	}

	f, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: blob %s", webfile.ErrNotFound, ref)
		}
		return fmt.Errorf("failed to open blob: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, webfile.NewContextReader(ctx, f)); err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}
	return nil
}

// Exists reports whether ref is stored.
func (v *FileSystemVault) Exists(_ context.Context, ref webfile.StorageRef) (bool, error) {
	p, err := v.pathFor(ref)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat blob: %w", err)
	}
}

// Move renames the blob into the other area's directory. When the
// destination already holds the same path the source is simply removed.
func (v *FileSystemVault) Move(ctx context.Context, ref webfile.StorageRef, to webfile.Area) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, dest, err := v.transferPaths(ref, to)
	if err != nil {
		return err
	}

	if _, err := os.Stat(dest); err == nil {
		if err := os.Remove(src); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove source blob: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := os.Rename(src, dest); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: blob %s", webfile.ErrNotFound, ref)
		}
		return fmt.Errorf("failed to move blob: %w", err)
	}
	return nil
}

// Copy writes a second copy of the blob into the other area.
func (v *FileSystemVault) Copy(ctx context.Context, ref webfile.StorageRef, to webfile.Area) error {
	src, dest, err := v.transferPaths(ref, to)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dest); err == nil {
		return nil
	}

	f, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: blob %s", webfile.ErrNotFound, ref)
		}
		return fmt.Errorf("failed to open blob: %w", err)
	}
	defer f.Close()

	return writeFile(dest, webfile.NewContextReader(ctx, f), -1)
}

func (v *FileSystemVault) transferPaths(ref webfile.StorageRef, to webfile.Area) (string, string, error) {
	src, err := v.pathFor(ref)
	if err != nil {
		return "", "", err
	}
	dest, err := v.pathFor(ref.In(to))
	if err != nil {
		return "", "", err
	}
	return src, dest, nil
}

// Delete removes the blob at ref. Missing blobs are not an error.
func (v *FileSystemVault) Delete(_ context.Context, ref webfile.StorageRef) error {
	p, err := v.pathFor(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// ValidateSetup verifies that both area directories exist and are writable.
func (v *FileSystemVault) ValidateSetup(context.Context) error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root is not a directory: %s", v.root)
	}

	for _, a := range []webfile.Area{webfile.AreaPublic, webfile.AreaPrivate} {
		dir := filepath.Join(v.root, string(a))
		tmp, err := os.CreateTemp(dir, ".writable-*")
		if err != nil {
			return fmt.Errorf("vault %s area not writable: %w", a, err)
		}
		tmp.Close()
		os.Remove(tmp.Name())
	}
	return nil
}

// writeFile writes r to destPath through a temp file in the same directory.
// A non-negative expectedSize is verified before the rename.
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if expectedSize >= 0 && written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

var _ webfile.ContentStore = (*FileSystemVault)(nil)
