package webfile

import (
	"context"
	"time"

	"webfile-go/internal/model"
	"webfile-go/internal/permission"
)

// Database provides metadata storage for folders, files, permission rules
// and the operation journal. Lookups return nil and no error when the row
// does not exist. Structural folder mutations run in a single serialized
// transaction and leave the tree untouched on error.
type Database interface {
	// Folder operations

	// CreateFolder inserts folder as the last child of folder.ParentID and
	// fills in its nested-set bounds. Fails with ErrInvalidParent or
	// ErrNameConflict.
	CreateFolder(ctx context.Context, folder *model.Folder) error

	// MoveFolder re-attaches a folder (and its subtree) under newParent, or
	// makes it a root when newParent is nil. Moving under itself or a
	// descendant fails with ErrTreeIntegrity.
	MoveFolder(ctx context.Context, id string, newParent *string, modifiedAt time.Time) error

	// RenameFolder changes a folder name, enforcing sibling uniqueness.
	RenameFolder(ctx context.Context, id, name string, modifiedAt time.Time) error

	// DeleteFolderTree removes a folder with all its descendants and returns
	// the removed folder IDs (pre-order) and any file rows that were still
	// attached to them.
	DeleteFolderTree(ctx context.Context, id string) ([]string, []*model.File, error)

	GetFolder(ctx context.Context, id string) (*model.Folder, error)

	// ListChildFolders returns the direct children of parentID in tree order.
	// A nil parentID lists the roots.
	ListChildFolders(ctx context.Context, parentID *string) ([]*model.Folder, error)

	// FolderAncestors returns the ancestor chain of a folder, root first.
	FolderAncestors(ctx context.Context, id string) ([]*model.Folder, error)

	// FolderDescendants returns every folder below id in tree order.
	FolderDescendants(ctx context.Context, id string) ([]*model.Folder, error)

	// CountFolderContents returns the number of direct child folders and files.
	CountFolderContents(ctx context.Context, id string) (folders int, files int, err error)

	// File operations

	InsertFile(ctx context.Context, file *model.File) error
	GetFile(ctx context.Context, id string) (*model.File, error)

	// ListFolderFiles returns the files directly in folderID. A nil folderID
	// lists unfiled files.
	ListFolderFiles(ctx context.Context, folderID *string) ([]*model.File, error)

	// FilesInSubtree returns the files in a folder and all its descendants.
	FilesInSubtree(ctx context.Context, folderID string) ([]*model.File, error)

	UpdateFileVisibility(ctx context.Context, id string, isPublic bool, modifiedAt time.Time) error
	RenameFile(ctx context.Context, id, name string, modifiedAt time.Time) error
	DeleteFileRow(ctx context.Context, id string) error

	// CountFilesAt counts the file rows that use the blob at (storagePath,
	// isPublic), ignoring excludeID.
	CountFilesAt(ctx context.Context, storagePath string, isPublic bool, excludeID string) (int, error)

	// FilesByDigest returns every file with the given content digest.
	FilesByDigest(ctx context.Context, digest string) ([]*model.File, error)

	// DuplicateFiles returns the files whose non-empty digest is shared by at
	// least one other file, ordered by digest.
	DuplicateFiles(ctx context.Context) ([]*model.File, error)

	// Permission operations

	InsertPermission(ctx context.Context, p *model.ItemPermission) error
	DeletePermission(ctx context.Context, id string) error
	GetPermission(ctx context.Context, id string) (*model.ItemPermission, error)

	// ListPermissions returns the rules attached to item, or the global rules
	// when item is nil.
	ListPermissions(ctx context.Context, item *model.ItemRef) ([]*model.ItemPermission, error)

	// PermissionSnapshot reads all rules and the folder tree in one read
	// transaction.
	PermissionSnapshot(ctx context.Context) (*permission.Snapshot, error)

	// ForgetUser clears ownership held by userID and deletes the rules whose
	// subject is that user. Items stay in place.
	ForgetUser(ctx context.Context, userID string) error

	// Journal operations

	CreateOperation(ctx context.Context, operation, parameters string, startedAt time.Time) (*model.Operation, error)
	FinishOperation(ctx context.Context, id int64, status string, finishedAt time.Time) error
	ListOperations(ctx context.Context, limit int) ([]*model.Operation, error)

	InsertReconciliation(ctx context.Context, r *model.Reconciliation) error
	ListReconciliations(ctx context.Context) ([]*model.Reconciliation, error)

	// CheckMigrations verifies the schema is at the latest version.
	CheckMigrations() error

	// Close closes the database connection.
	Close() error
}
