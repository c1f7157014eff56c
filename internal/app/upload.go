package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"webfile-go/internal/fs"
	"webfile-go/internal/model"
	"webfile-go/internal/webfile"
)

// uploadBatch caps the number of local files held open at once.
const uploadBatch = 256

// UploadResult pairs a local source with the file row created for it.
type UploadResult struct {
	Source string // path relative to the upload root
	File   *model.File
}

// Upload reads rawPath from disk and uploads it below the folder at dest.
// A directory's files keep their layout relative to it; missing folders are
// created on the way. Subdirectories are only entered when recursive is set.
func (a *WebfileApp) Upload(ctx context.Context, p *model.Principal, rawPath, dest string, recursive bool, public *bool) ([]*UploadResult, error) {
	var results []*UploadResult
	err := a.run(ctx, true, func() error {
		root, err := filepath.Abs(rawPath)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		info, err := os.Stat(root)
		if err != nil {
			return fmt.Errorf("stat path: %w", err)
		}
		ignoreRoot := root
		if !info.IsDir() {
			ignoreRoot = filepath.Dir(root)
		}
		ignore, err := fs.NewDefaultIgnoreMatcher(ignoreRoot, a.cfg.Filesystem.Ignore)
		if err != nil {
			return fmt.Errorf("loading ignore patterns: %w", err)
		}
		sources, err := fs.FindSources(root, recursive, ignore)
		if err != nil {
			return err
		}

		base, err := a.resolveFolder(ctx, p, dest)
		if err != nil {
			return err
		}

		for start := 0; start < len(sources); start += uploadBatch {
			end := min(start+uploadBatch, len(sources))
			batch, err := a.uploadSources(ctx, p, base, sources[start:end], public)
			results = append(results, batch...)
			if err != nil {
				return err
			}
		}
		return nil
	})
	return results, err
}

func (a *WebfileApp) uploadSources(ctx context.Context, p *model.Principal, base *string, sources []*fs.Source, public *bool) ([]*UploadResult, error) {
	folders := map[string]*string{"": base}
	reqs := make([]webfile.UploadRequest, 0, len(sources))
	var opened []*os.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()

	for _, src := range sources {
		folderID, ok := folders[src.Dir()]
		if !ok {
			var err error
			folderID, err = a.ensureFolder(ctx, p, base, src.Dir(), public)
			if err != nil {
				return nil, fmt.Errorf("creating folders for %s: %w", src.RelPath, err)
			}
			folders[src.Dir()] = folderID
		}
		f, err := src.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", src.RelPath, err)
		}
		opened = append(opened, f)
		reqs = append(reqs, webfile.UploadRequest{
			Name:     filepath.Base(src.Path),
			FolderID: folderID,
			IsPublic: public,
			Content:  f,
		})
	}

	files, uploadErr := a.service.UploadFiles(ctx, p, reqs)

	var results []*UploadResult
	var errs []error
	if uploadErr != nil {
		errs = append(errs, uploadErr)
	}
	for i, file := range files {
		if file == nil {
			continue
		}
		// A source modified while it was read may not match its digest.
		if err := sources[i].CheckUnchanged(); err != nil {
			errs = append(errs, fmt.Errorf("%s changed during upload: %w", sources[i].RelPath, err))
			if derr := a.service.DeleteItem(ctx, p, model.RefOf(file)); derr != nil {
				errs = append(errs, fmt.Errorf("removing %s: %w", sources[i].RelPath, derr))
			}
			continue
		}
		a.logger.Info("uploaded", "source", sources[i].RelPath, "id", file.ID, "digest", file.Digest)
		results = append(results, &UploadResult{Source: sources[i].RelPath, File: file})
	}
	return results, errors.Join(errs...)
}
