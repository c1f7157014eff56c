package webfile

import (
	"context"
	"fmt"

	"webfile-go/internal/model"
)

// FilesByDigest returns every file with the given digest, including file
// rows in both areas.
func (s *Service) FilesByDigest(ctx context.Context, digest string) ([]*model.File, error) {
	files, err := s.database.FilesByDigest(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("finding files by digest: %w", err)
	}
	return files, nil
}

// FindDuplicates returns the other files whose content is identical to
// fileID. The file itself is not part of the result.
func (s *Service) FindDuplicates(ctx context.Context, p *model.Principal, fileID string) ([]*model.File, error) {
	file, err := s.file(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := s.require(ctx, p, model.ActionRead, file); err != nil {
		return nil, err
	}
	if file.Digest == "" {
		return nil, nil
	}

	same, err := s.FilesByDigest(ctx, file.Digest)
	if err != nil {
		return nil, err
	}
	g, err := s.Resolve(ctx, p, model.ActionRead)
	if err != nil {
		return nil, err
	}

	var out []*model.File
	for _, f := range same {
		if f.ID != file.ID && visible(g, p, model.ActionRead, f) {
			out = append(out, f)
		}
	}
	return out, nil
}

// FindAllDuplicateGroups groups files by digest for every non-empty digest
// shared by two or more readable files.
func (s *Service) FindAllDuplicateGroups(ctx context.Context, p *model.Principal) (map[string][]*model.File, error) {
	files, err := s.database.DuplicateFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding duplicates: %w", err)
	}
	g, err := s.Resolve(ctx, p, model.ActionRead)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]*model.File)
	for _, f := range files {
		if visible(g, p, model.ActionRead, f) {
			groups[f.Digest] = append(groups[f.Digest], f)
		}
	}
	for digest, fs := range groups {
		if len(fs) < 2 {
			delete(groups, digest)
		}
	}
	return groups, nil
}
