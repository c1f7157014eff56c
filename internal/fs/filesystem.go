// Package fs reads upload sources from the local filesystem.
package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Source is a local regular file selected for upload.
type Source struct {
	// Path is the absolute path on disk.
	Path string
	// RelPath is the path relative to the upload root, using '/' separators.
	// For a single-file upload it is the file's basename.
	RelPath string

	info fs.FileInfo
	stat *statData
}

// Dir returns the directory part of RelPath, or "" for files at the root.
func (s *Source) Dir() string {
	dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(s.RelPath)))
	if dir == "." {
		return ""
	}
	return dir
}

// Size returns the size seen when the source was found.
func (s *Source) Size() int64 { return s.info.Size() }

// checkMode rejects the special file types uploads cannot represent.
func checkMode(path string, mode fs.FileMode) error {
	switch {
	case mode&os.ModeSymlink != 0:
		return fmt.Errorf("symlinks not supported: %s", path)
	case mode&os.ModeDevice != 0:
		return fmt.Errorf("device files not supported: %s", path)
	case mode&os.ModeNamedPipe != 0:
		return fmt.Errorf("named pipes not supported: %s", path)
	case mode&os.ModeSocket != 0:
		return fmt.Errorf("sockets not supported: %s", path)
	}
	return nil
}

func newSource(path, rel string, info fs.FileInfo) (*Source, error) {
	st, err := extractStatData(info)
	if err != nil {
		return nil, err
	}
	return &Source{Path: path, RelPath: filepath.ToSlash(rel), info: info, stat: st}, nil
}

// FindSources resolves rawPath and returns the files to upload. A regular
// file yields itself. A directory yields its regular files, descending into
// subdirectories when recursive is set. Paths matched by ignore are skipped;
// an ignored directory is not entered. Results are sorted by RelPath.
func FindSources(rawPath string, recursive bool, ignore *IgnoreMatcher) ([]*Source, error) {
	root, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	info, err := os.Lstat(root)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}
	if err := checkMode(root, info.Mode()); err != nil {
		return nil, err
	}

	if !info.IsDir() {
		src, err := newSource(root, filepath.Base(root), info)
		if err != nil {
			return nil, err
		}
		return []*Source{src}, nil
	}

	var sources []*Source
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive || ignore.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ignore.Match(rel, false) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		src, err := newSource(p, rel, info)
		if err != nil {
			return err
		}
		sources = append(sources, src)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].RelPath < sources[j].RelPath })
	return sources, nil
}

// Open opens the source for reading. The returned file is seekable, so the
// upload is hashed in place without spooling.
func (s *Source) Open() (*os.File, error) {
	return os.Open(s.Path)
}

// CheckUnchanged re-stats the source and reports an error if it was modified
// since it was found. Access time is ignored since reading updates it.
func (s *Source) CheckUnchanged() error {
	info, err := os.Stat(s.Path)
	if err != nil {
		return fmt.Errorf("re-stat file: %w", err)
	}
	st, err := extractStatData(info)
	if err != nil {
		return err
	}

	switch {
	case s.info.Size() != info.Size():
		return fmt.Errorf("size changed: %d -> %d", s.info.Size(), info.Size())
	case s.info.Mode() != info.Mode():
		return fmt.Errorf("mode changed: %v -> %v", s.info.Mode(), info.Mode())
	case !s.info.ModTime().Equal(info.ModTime()):
		return fmt.Errorf("mtime changed: %v -> %v", s.info.ModTime(), info.ModTime())
	case !s.stat.Ctime.Equal(st.Ctime):
		return fmt.Errorf("ctime changed: %v -> %v", s.stat.Ctime, st.Ctime)
	}
	return nil
}
