package webfile

import (
	"context"
	"fmt"

	"webfile-go/internal/model"
	"webfile-go/internal/permission"
)

// Options are the service-wide settings taken from configuration.
type Options struct {
	// PermissionsEnabled turns rule evaluation on. When false every
	// principal may do everything.
	PermissionsEnabled bool

	// PublicDefault is the visibility of new items when the request does not
	// choose one.
	PublicDefault bool

	// UploadConcurrency bounds UploadFiles. Values below 1 mean 4.
	UploadConcurrency int

	// Metrics receives upload and storage events. Optional.
	Metrics Metrics
}

// Service coordinates the folder tree, the content store and the permission
// engine. It keeps blob locations, content digests and file rows consistent
// across uploads, visibility changes and deletes.
type Service struct {
	database Database
	store    ContentStore
	spooler  Spooler
	logger   Logger
	clock    Clock
	idgen    IDGenerator
	opts     Options
	metrics  Metrics

	blobLocks *keyedMutex // per (area, path)
	fileLocks *keyedMutex // per file ID
}

// NewService creates a Service with the provided dependencies. spooler may be
// nil when every upload is already seekable.
func NewService(database Database, store ContentStore, spooler Spooler, logger Logger, clock Clock, idgen IDGenerator, opts Options) *Service {
	if opts.UploadConcurrency < 1 {
		opts.UploadConcurrency = 4
	}
	m := opts.Metrics
	if m == nil {
		m = nopMetrics{}
	}
	return &Service{
		database:  database,
		store:     store,
		spooler:   spooler,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		opts:      opts,
		metrics:   m,
		blobLocks: newKeyedMutex(),
		fileLocks: newKeyedMutex(),
	}
}

// Resolve returns the effective grant of p for action.
func (s *Service) Resolve(ctx context.Context, p *model.Principal, action model.Action) (permission.Grant, error) {
	if s.unrestricted(p) {
		return permission.AllGrant(), nil
	}
	snap, err := s.database.PermissionSnapshot(ctx)
	if err != nil {
		return permission.Grant{}, fmt.Errorf("loading permission snapshot: %w", err)
	}
	g := permission.Resolve(snap, p, action, permission.Options{
		Enabled: s.opts.PermissionsEnabled,
		Trace: func(rule *model.ItemPermission, v model.Verdict, affected int) {
			s.logger.Debug("permission rule applied", "principal", p.ID, "action", string(action), "rule", rule.String(), "deny", v == model.Deny, "affected", affected)
		},
	})
	return g, nil
}

// unrestricted reports whether p bypasses rule evaluation entirely.
func (s *Service) unrestricted(p *model.Principal) bool {
	return !s.opts.PermissionsEnabled || p.Superuser
}

// visible decides access to one item given an already resolved grant.
// Owners pass, and public items are readable by everyone, unless an explicit
// deny covers the item.
func visible(g permission.Grant, p *model.Principal, action model.Action, it model.Item) bool {
	if g.All() {
		return true
	}
	base := it.Base()
	if denied(g, it) {
		return false
	}
	if base.OwnedBy(p.ID) || (action == model.ActionRead && base.IsPublic) {
		return true
	}
	switch it.Kind() {
	case model.KindFolder:
		return g.Has(base.ID)
	case model.KindFile:
		return permission.FileAllowed(g, it.(*model.File))
	default:
		return false
	}
}

func denied(g permission.Grant, it model.Item) bool {
	if f, ok := it.(*model.File); ok {
		return permission.FileDenied(g, f)
	}
	return g.Denied(it.Base().ID)
}

// require fails with ErrPermissionDenied unless p may perform action on it.
func (s *Service) require(ctx context.Context, p *model.Principal, action model.Action, it model.Item) error {
	if s.unrestricted(p) {
		return nil
	}
	g, err := s.Resolve(ctx, p, action)
	if err != nil {
		return err
	}
	if !visible(g, p, action, it) {
		return fmt.Errorf("%w: %s on %s %s", ErrPermissionDenied, action, it.Kind(), it.Base().ID)
	}
	return nil
}

// requireAdmin guards operations that have no item to check rules against,
// such as creating root folders or global rules.
func (s *Service) requireAdmin(p *model.Principal, what string) error {
	if s.unrestricted(p) {
		return nil
	}
	return fmt.Errorf("%w: %s requires a superuser", ErrPermissionDenied, what)
}

// folder loads a folder or fails with ErrNotFound.
func (s *Service) folder(ctx context.Context, id string) (*model.Folder, error) {
	f, err := s.database.GetFolder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading folder: %w", err)
	}
	if f == nil {
		return nil, fmt.Errorf("%w: folder %s", ErrNotFound, id)
	}
	return f, nil
}

// file loads a file or fails with ErrNotFound.
func (s *Service) file(ctx context.Context, id string) (*model.File, error) {
	f, err := s.database.GetFile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading file: %w", err)
	}
	if f == nil {
		return nil, fmt.Errorf("%w: file %s", ErrNotFound, id)
	}
	return f, nil
}

// item loads the item behind ref.
func (s *Service) item(ctx context.Context, ref model.ItemRef) (model.Item, error) {
	switch ref.Kind {
	case model.KindFolder:
		return s.folder(ctx, ref.ID)
	case model.KindFile:
		return s.file(ctx, ref.ID)
	default:
		return nil, fmt.Errorf("%w: unknown item kind %q", ErrInvalidInput, ref.Kind)
	}
}

// blobRef is where a file's content lives.
func blobRef(f *model.File) StorageRef {
	return StorageRef{Area: AreaFor(f.IsPublic), Path: f.StoragePath}
}

// recordReconciliation logs a storage inconsistency at error level and
// stores it for manual repair.
func (s *Service) recordReconciliation(ctx context.Context, f *model.File, area Area, detail string) {
	s.logger.Error("storage inconsistency", "file", f.ID, "digest", f.Digest, "area", string(area), "detail", detail)
	s.metrics.ReconciliationRecorded()
	r := &model.Reconciliation{
		FileID:    f.ID,
		Digest:    f.Digest,
		Area:      string(area),
		Detail:    detail,
		CreatedAt: s.clock.Now(),
	}
	// The caller's ctx may be the reason the operation failed.
	if err := s.database.InsertReconciliation(context.WithoutCancel(ctx), r); err != nil {
		s.logger.Error("recording reconciliation failed", "file", f.ID, "error", err)
	}
}

// Reconciliations lists recorded storage inconsistencies.
func (s *Service) Reconciliations(ctx context.Context, p *model.Principal) ([]*model.Reconciliation, error) {
	if err := s.requireAdmin(p, "listing reconciliations"); err != nil {
		return nil, err
	}
	rs, err := s.database.ListReconciliations(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing reconciliations: %w", err)
	}
	return rs, nil
}
