package webfile

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"webfile-go/internal/model"
)

// UploadRequest describes one file to upload. A nil FolderID stores the file
// unfiled. An empty MimeType is detected from the content.
type UploadRequest struct {
	Name        string `validate:"required,max=255,itemname"`
	FolderID    *string
	MimeType    string `validate:"max=255"`
	Description string `validate:"max=4096"`
	IsPublic    *bool
	Content     io.Reader `validate:"required"`
}

// UploadFile hashes the content, stores the blob unless an identical one is
// already in the target area, and records the file row. Identical content
// uploaded twice yields two rows sharing one blob.
func (s *Service) UploadFile(ctx context.Context, p *model.Principal, req UploadRequest) (*model.File, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	if req.FolderID == nil {
		if err := s.requireAdmin(p, "uploading unfiled files"); err != nil {
			return nil, err
		}
	} else {
		folder, err := s.database.GetFolder(ctx, *req.FolderID)
		if err != nil {
			return nil, fmt.Errorf("loading folder: %w", err)
		}
		if folder == nil {
			return nil, fmt.Errorf("%w: folder %s does not exist", ErrInvalidParent, *req.FolderID)
		}
		if err := s.require(ctx, p, model.ActionAddChildren, folder); err != nil {
			return nil, err
		}
	}

	content, digest, size, err := s.prepare(ctx, req.Content)
	if err != nil {
		return nil, err
	}
	defer content.Close()

	mimeType := normalizeMimeType(req.MimeType)
	if mimeType == "" {
		if mimeType, err = DetectMimeType(content); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	if !ValidMimeType(mimeType) {
		return nil, fmt.Errorf("%w: unknown mime type %q", ErrInvalidInput, mimeType)
	}

	now := s.clock.Now()
	file := &model.File{
		ItemBase: model.ItemBase{
			ID:         s.idgen.New(),
			Name:       req.Name,
			CreatedAt:  now,
			UploadedAt: now,
			ModifiedAt: now,
			IsPublic:   s.visibility(req.IsPublic),
		},
		FolderID:         req.FolderID,
		Digest:           digest,
		Size:             size,
		MimeType:         mimeType,
		StoragePath:      StoragePathFor(digest),
		OriginalFilename: req.Name,
		Description:      req.Description,
	}
	if p.ID != "" {
		owner := p.ID
		file.OwnerID = &owner
	}

	ref := blobRef(file)
	unlock := s.blobLocks.Lock(ref.String())
	defer unlock()

	exists, err := s.store.Exists(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("checking blob %s: %w", ref, err)
	}
	if !exists {
		if err := s.store.Put(ctx, ref, NewContextReader(ctx, content), size); err != nil {
			return nil, fmt.Errorf("storing blob %s: %w", ref, err)
		}
	} else {
		s.logger.Debug("content deduplicated", "digest", digest, "area", string(ref.Area))
	}

	if err := s.database.InsertFile(ctx, file); err != nil {
		if !exists {
			if _, derr := s.releaseBlob(context.WithoutCancel(ctx), ref, file.ID); derr != nil {
				s.logger.Warn("removing blob after failed insert", "blob", ref.String(), "error", derr)
			}
		}
		return nil, fmt.Errorf("recording file: %w", err)
	}

	s.metrics.UploadCompleted(exists, size)
	s.logger.Info("file uploaded", "id", file.ID, "name", file.Name, "digest", digest, "size", size, "deduplicated", exists)
	return file, nil
}

// UploadFiles uploads a batch concurrently, bounded by
// Options.UploadConcurrency. The first failure cancels the remaining uploads;
// results keep request order with nil entries for uploads that did not
// complete.
func (s *Service) UploadFiles(ctx context.Context, p *model.Principal, reqs []UploadRequest) ([]*model.File, error) {
	results := make([]*model.File, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.UploadConcurrency)
	for i := range reqs {
		g.Go(func() error {
			f, err := s.UploadFile(gctx, p, reqs[i])
			if err != nil {
				return fmt.Errorf("uploading %s: %w", reqs[i].Name, err)
			}
			results[i] = f
			return nil
		})
	}

	err := g.Wait()
	return results, err
}

// prepare turns the upload stream into hashed, seekable content. Seekable
// readers are hashed in place; everything else goes through the spooler.
func (s *Service) prepare(ctx context.Context, r io.Reader) (Spooled, string, int64, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		digest, size, err := Ingest(ctx, rs)
		if err != nil {
			return nil, "", 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return &seekable{ReadSeeker: rs, digest: digest, size: size}, digest, size, nil
	}

	if s.spooler == nil {
		return nil, "", 0, fmt.Errorf("%w: content is not seekable and no spool is configured", ErrInvalidInput)
	}
	sp, err := s.spooler.Spool(ctx, r)
	if err != nil {
		return nil, "", 0, fmt.Errorf("spooling upload: %w", err)
	}
	return sp, sp.Digest(), sp.Size(), nil
}

// releaseBlob deletes the blob at ref unless a file other than excludeID
// still uses it. The caller holds the blob lock.
func (s *Service) releaseBlob(ctx context.Context, ref StorageRef, excludeID string) (bool, error) {
	deleted, err := DeleteIfUnreferenced(ctx, s.store, ref, func() (bool, error) {
		n, err := s.database.CountFilesAt(ctx, ref.Path, ref.Area == AreaPublic, excludeID)
		return n > 0, err
	})
	if deleted {
		s.metrics.BlobDeleted()
	}
	return deleted, err
}

// seekable adapts caller-owned seekable content to Spooled. Close is a no-op
// because the caller owns the reader.
type seekable struct {
	io.ReadSeeker
	digest string
	size   int64
}

func (s *seekable) Digest() string { return s.digest }
func (s *seekable) Size() int64    { return s.size }
func (s *seekable) Close() error   { return nil }
