package webfile

import (
	"context"
	"fmt"

	"webfile-go/internal/model"
)

// transfer is how a visibility change relocated the blob.
type transfer int

const (
	transferNone transfer = iota // the target area already held the blob
	transferMove
	transferCopy // another row still uses the source blob
)

// SetVisibility flips a file between the public and the private area. The
// blob is relocated first and the row updated second; when the row update
// fails the relocation is undone. An undo that also fails is logged and
// recorded as a reconciliation, and ErrStorageInconsistency is returned.
func (s *Service) SetVisibility(ctx context.Context, p *model.Principal, fileID string, isPublic bool) error {
	unlockFile := s.fileLocks.Lock(fileID)
	defer unlockFile()

	file, err := s.file(ctx, fileID)
	if err != nil {
		return err
	}
	if err := s.require(ctx, p, model.ActionEdit, file); err != nil {
		return err
	}
	if file.IsPublic == isPublic {
		return nil
	}

	src := blobRef(file)
	dst := src.In(AreaFor(isPublic))
	unlockBlobs := s.blobLocks.Lock(src.String(), dst.String())
	defer unlockBlobs()

	others, err := s.database.CountFilesAt(ctx, src.Path, file.IsPublic, file.ID)
	if err != nil {
		return fmt.Errorf("counting blob references: %w", err)
	}
	dstExists, err := s.store.Exists(ctx, dst)
	if err != nil {
		return fmt.Errorf("checking blob %s: %w", dst, err)
	}

	var how transfer
	switch {
	case dstExists:
		how = transferNone
	case others > 0:
		how = transferCopy
		err = s.store.Copy(ctx, src, dst.Area)
	default:
		how = transferMove
		err = s.store.Move(ctx, src, dst.Area)
	}
	if err != nil {
		return fmt.Errorf("relocating blob %s to %s: %w", src, dst.Area, err)
	}

	file.Touch(s.clock.Now())
	if err := s.database.UpdateFileVisibility(ctx, file.ID, isPublic, file.ModifiedAt); err != nil {
		if uerr := s.undoTransfer(context.WithoutCancel(ctx), how, src, dst); uerr != nil {
			s.recordReconciliation(ctx, file, dst.Area, fmt.Sprintf("visibility change to %s failed (%v) and undo failed: %v", dst.Area, err, uerr))
			return fmt.Errorf("%w: file %s: %v; undo: %v", ErrStorageInconsistency, file.ID, err, uerr)
		}
		return fmt.Errorf("updating file visibility: %w", err)
	}

	if how == transferNone && others == 0 {
		if err := s.store.Delete(ctx, src); err != nil {
			s.recordReconciliation(ctx, file, src.Area, fmt.Sprintf("orphaned blob left in %s: %v", src.Area, err))
		} else {
			s.metrics.BlobDeleted()
		}
	}

	s.logger.Info("visibility changed", "id", file.ID, "public", isPublic, "area", string(dst.Area))
	return nil
}

// undoTransfer puts the blob back where it was before a failed row update.
func (s *Service) undoTransfer(ctx context.Context, how transfer, src, dst StorageRef) error {
	switch how {
	case transferMove:
		return s.store.Move(ctx, dst, src.Area)
	case transferCopy:
		return s.store.Delete(ctx, dst)
	default:
		return nil
	}
}
