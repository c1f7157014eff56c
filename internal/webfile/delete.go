package webfile

import (
	"context"
	"fmt"

	"webfile-go/internal/model"
)

// DeleteItem removes a file or a folder. Deleting a file drops its row and
// then its blob when no other row uses it. Deleting a folder cascades: every
// file in the subtree goes through the file path, then the folder rows are
// removed and the tree renumbered.
func (s *Service) DeleteItem(ctx context.Context, p *model.Principal, ref model.ItemRef) error {
	it, err := s.item(ctx, ref)
	if err != nil {
		return err
	}
	if err := s.require(ctx, p, model.ActionEdit, it); err != nil {
		return err
	}

	switch ref.Kind {
	case model.KindFile:
		return s.deleteFile(ctx, it.Base().ID)
	case model.KindFolder:
		return s.deleteFolder(ctx, it.(*model.Folder))
	default:
		return fmt.Errorf("%w: unknown item kind %q", ErrInvalidInput, ref.Kind)
	}
}

// deleteFile removes the file with the given ID. The row is read again under
// the file lock, so the blob released is the one the row points at now. A row
// that is already gone counts as deleted.
func (s *Service) deleteFile(ctx context.Context, id string) error {
	unlockFile := s.fileLocks.Lock(id)
	defer unlockFile()

	file, err := s.database.GetFile(ctx, id)
	if err != nil {
		return fmt.Errorf("loading file %s: %w", id, err)
	}
	if file == nil {
		s.logger.Debug("file already deleted", "id", id)
		return nil
	}

	ref := blobRef(file)
	unlock := s.blobLocks.Lock(ref.String())
	defer unlock()

	if err := s.database.DeleteFileRow(ctx, file.ID); err != nil {
		return fmt.Errorf("deleting file row: %w", err)
	}

	deleted, err := s.releaseBlob(ctx, ref, file.ID)
	if err != nil {
		// The row is gone; the blob is merely orphaned.
		s.recordReconciliation(ctx, file, ref.Area, fmt.Sprintf("orphaned blob after delete: %v", err))
		return fmt.Errorf("%w: file %s: %v", ErrStorageInconsistency, file.ID, err)
	}

	s.logger.Info("file deleted", "id", file.ID, "blob_deleted", deleted)
	return nil
}

func (s *Service) deleteFolder(ctx context.Context, folder *model.Folder) error {
	files, err := s.database.FilesInSubtree(ctx, folder.ID)
	if err != nil {
		return fmt.Errorf("collecting files: %w", err)
	}
	for _, f := range files {
		if err := s.deleteFile(ctx, f.ID); err != nil {
			return fmt.Errorf("deleting file %s: %w", f.ID, err)
		}
	}

	removed, stragglers, err := s.database.DeleteFolderTree(ctx, folder.ID)
	if err != nil {
		return fmt.Errorf("deleting folder tree: %w", err)
	}

	// Files uploaded into the subtree after it was collected were removed by
	// the cascade; only their blobs remain to be released.
	for _, f := range stragglers {
		ref := blobRef(f)
		unlock := s.blobLocks.Lock(ref.String())
		_, err := s.releaseBlob(ctx, ref, f.ID)
		unlock()
		if err != nil {
			s.recordReconciliation(ctx, f, ref.Area, fmt.Sprintf("orphaned blob after folder delete: %v", err))
		}
	}

	s.logger.Info("folder deleted", "id", folder.ID, "folders", len(removed), "files", len(files)+len(stragglers))
	return nil
}
