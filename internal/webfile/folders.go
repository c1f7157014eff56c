package webfile

import (
	"context"
	"fmt"

	"webfile-go/internal/model"
)

// CreateFolderRequest describes a new folder. A nil ParentID creates a root.
type CreateFolderRequest struct {
	Name     string `validate:"required,max=255,itemname"`
	ParentID *string
	IsPublic *bool
}

// CreateFolder adds a folder as the last child of its parent. Creating under
// a parent needs can_add_children there; creating a root needs a superuser.
func (s *Service) CreateFolder(ctx context.Context, p *model.Principal, req CreateFolderRequest) (*model.Folder, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	if req.ParentID == nil {
		if err := s.requireAdmin(p, "creating a root folder"); err != nil {
			return nil, err
		}
	} else {
		parent, err := s.database.GetFolder(ctx, *req.ParentID)
		if err != nil {
			return nil, fmt.Errorf("loading parent: %w", err)
		}
		if parent == nil {
			return nil, fmt.Errorf("%w: folder %s does not exist", ErrInvalidParent, *req.ParentID)
		}
		if err := s.require(ctx, p, model.ActionAddChildren, parent); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	folder := &model.Folder{
		ItemBase: model.ItemBase{
			ID:         s.idgen.New(),
			Name:       req.Name,
			CreatedAt:  now,
			UploadedAt: now,
			ModifiedAt: now,
			IsPublic:   s.visibility(req.IsPublic),
		},
		ParentID: req.ParentID,
	}
	if p.ID != "" {
		owner := p.ID
		folder.OwnerID = &owner
	}

	if err := s.database.CreateFolder(ctx, folder); err != nil {
		return nil, fmt.Errorf("creating folder: %w", err)
	}

	s.logger.Info("folder created", "id", folder.ID, "name", folder.Name)
	return folder, nil
}

// MoveFolder re-attaches a folder under newParent, or makes it a root when
// newParent is nil. It needs can_edit on the folder and can_add_children on
// the new parent.
func (s *Service) MoveFolder(ctx context.Context, p *model.Principal, id string, newParent *string) error {
	folder, err := s.folder(ctx, id)
	if err != nil {
		return err
	}
	if err := s.require(ctx, p, model.ActionEdit, folder); err != nil {
		return err
	}

	if newParent == nil {
		if err := s.requireAdmin(p, "moving a folder to the top level"); err != nil {
			return err
		}
	} else {
		parent, err := s.database.GetFolder(ctx, *newParent)
		if err != nil {
			return fmt.Errorf("loading parent: %w", err)
		}
		if parent == nil {
			return fmt.Errorf("%w: folder %s does not exist", ErrInvalidParent, *newParent)
		}
		if err := s.require(ctx, p, model.ActionAddChildren, parent); err != nil {
			return err
		}
	}

	if err := s.database.MoveFolder(ctx, id, newParent, s.clock.Now()); err != nil {
		return fmt.Errorf("moving folder: %w", err)
	}

	s.logger.Info("folder moved", "id", id, "parent", derefOr(newParent, "<root>"))
	return nil
}

// RenameItem changes the display name of a folder or file. Folder names stay
// unique among siblings.
func (s *Service) RenameItem(ctx context.Context, p *model.Principal, ref model.ItemRef, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	it, err := s.item(ctx, ref)
	if err != nil {
		return err
	}
	if err := s.require(ctx, p, model.ActionEdit, it); err != nil {
		return err
	}

	base := it.Base()
	base.Touch(s.clock.Now())
	switch ref.Kind {
	case model.KindFolder:
		err = s.database.RenameFolder(ctx, ref.ID, name, base.ModifiedAt)
	case model.KindFile:
		err = s.database.RenameFile(ctx, ref.ID, name, base.ModifiedAt)
	}
	if err != nil {
		return fmt.Errorf("renaming %s: %w", ref.Kind, err)
	}

	s.logger.Info("item renamed", "kind", string(ref.Kind), "id", ref.ID, "name", name)
	return nil
}

// FolderEntry is a child folder in a listing with its content counts.
type FolderEntry struct {
	Folder  *model.Folder
	Folders int
	Files   int
}

// Items is the total number of direct children.
func (e *FolderEntry) Items() int { return e.Folders + e.Files }

// Listing is the readable content of one folder, or of the top level.
type Listing struct {
	Folder  *model.Folder // nil for the top level
	Path    model.LogicalPath
	Folders []*FolderEntry
	Files   []*model.File
}

// PrettyPath renders the listed folder's location as "/a/b/c".
func (l *Listing) PrettyPath() string {
	return l.Path.Pretty(l.Folder)
}

// ListFolder returns the child folders and files of folderID that p can
// read. A nil folderID lists root folders and unfiled files.
func (s *Service) ListFolder(ctx context.Context, p *model.Principal, folderID *string) (*Listing, error) {
	listing := &Listing{}
	if folderID != nil {
		folder, err := s.folder(ctx, *folderID)
		if err != nil {
			return nil, err
		}
		if err := s.require(ctx, p, model.ActionRead, folder); err != nil {
			return nil, err
		}
		ancestors, err := s.database.FolderAncestors(ctx, folder.ID)
		if err != nil {
			return nil, fmt.Errorf("loading ancestors: %w", err)
		}
		listing.Folder = folder
		listing.Path = ancestors
	}

	g, err := s.Resolve(ctx, p, model.ActionRead)
	if err != nil {
		return nil, err
	}

	folders, err := s.database.ListChildFolders(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	for _, f := range folders {
		if !visible(g, p, model.ActionRead, f) {
			continue
		}
		nf, nfiles, err := s.database.CountFolderContents(ctx, f.ID)
		if err != nil {
			return nil, fmt.Errorf("counting contents of %s: %w", f.ID, err)
		}
		listing.Folders = append(listing.Folders, &FolderEntry{Folder: f, Folders: nf, Files: nfiles})
	}

	files, err := s.database.ListFolderFiles(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	for _, f := range files {
		if visible(g, p, model.ActionRead, f) {
			listing.Files = append(listing.Files, f)
		}
	}

	return listing, nil
}

// ReadableFolders returns every folder p can read, in tree order.
func (s *Service) ReadableFolders(ctx context.Context, p *model.Principal) ([]*model.Folder, error) {
	g, err := s.Resolve(ctx, p, model.ActionRead)
	if err != nil {
		return nil, err
	}
	var out []*model.Folder
	roots, err := s.database.ListChildFolders(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("listing roots: %w", err)
	}
	for _, root := range roots {
		below, err := s.database.FolderDescendants(ctx, root.ID)
		if err != nil {
			return nil, fmt.Errorf("listing descendants of %s: %w", root.ID, err)
		}
		for _, f := range append([]*model.Folder{root}, below...) {
			if visible(g, p, model.ActionRead, f) {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func (s *Service) visibility(requested *bool) bool {
	if requested != nil {
		return *requested
	}
	return s.opts.PublicDefault
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
