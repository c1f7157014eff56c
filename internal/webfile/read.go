package webfile

import (
	"context"
	"fmt"
	"io"

	"webfile-go/internal/model"
)

// ReadFile writes the content of a file to w after a read check and returns
// the file's metadata.
func (s *Service) ReadFile(ctx context.Context, p *model.Principal, fileID string, w io.Writer) (*model.File, error) {
	file, err := s.file(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := s.require(ctx, p, model.ActionRead, file); err != nil {
		return nil, err
	}

	ref := blobRef(file)
	if err := s.store.Get(ctx, ref, w); err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", ref, err)
	}
	return file, nil
}
