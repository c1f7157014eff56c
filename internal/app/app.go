package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"webfile-go/internal/config"
	"webfile-go/internal/database"
	"webfile-go/internal/encryption"
	"webfile-go/internal/metrics"
	"webfile-go/internal/model"
	"webfile-go/internal/permission"
	"webfile-go/internal/staging"
	"webfile-go/internal/vault"
	"webfile-go/internal/webfile"
)

// Options tune how the app talks to the terminal.
type Options struct {
	// Prompt reads the passphrase when a private blob must be decrypted.
	// It is only called when encryption is enabled.
	Prompt func() (string, error)

	// LogWriter receives a copy of every log record. Defaults to os.Stderr.
	LogWriter io.Writer
}

// WebfileApp is the application layer between the CLI and webfile.Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the DB lifecycle on Close.
type WebfileApp struct {
	cfg       *config.Config
	db        webfile.Database
	store     webfile.ContentStore
	service   *webfile.Service
	collector *metrics.Collector
	logger    *slog.Logger
	op        *Operation
	logFile   *os.File
}

// NewWebfileApp creates a fully wired WebfileApp from the given config.
// op identifies the CLI command being run. The caller must call Close when
// done.
func NewWebfileApp(ctx context.Context, cfg *config.Config, op *Operation, opts Options) (*WebfileApp, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	console := opts.LogWriter
	if console == nil {
		console = os.Stderr
	}
	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID, level, console)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := &WebfileApp{cfg: cfg, logger: logger, op: op, logFile: logFile}
	if err := a.wire(ctx, opts); err != nil {
		a.closeResources()
		return nil, err
	}
	return a, nil
}

func (a *WebfileApp) wire(ctx context.Context, opts Options) error {
	store, err := vault.NewVaultFromConfig(ctx, a.cfg.Vault)
	if err != nil {
		return fmt.Errorf("creating vault: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if enc != nil {
		prompt := opts.Prompt
		if prompt == nil {
			prompt = func() (string, error) { return "", errors.New("no passphrase prompt available") }
		}
		store = vault.NewSealedVault(store, enc, encryption.NewUnlocker(enc, prompt).Unlock)
	}

	svcOpts := webfile.Options{
		PermissionsEnabled: a.cfg.Permissions.Enabled,
		PublicDefault:      a.cfg.Files.PublicDefault,
		UploadConcurrency:  a.cfg.Files.UploadConcurrency,
	}
	if a.cfg.Metrics.Enabled {
		metrics.InitRegistry()
		a.collector = metrics.DefaultCollector()
		store = vault.NewInstrumentedVault(store, a.collector)
		svcOpts.Metrics = a.collector
	}
	a.store = store

	spooler, err := staging.NewSpoolerFromConfig(a.cfg.Staging)
	if err != nil {
		return fmt.Errorf("creating staging area: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(a.cfg.Database)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	a.db = db
	if err := db.CheckMigrations(); err != nil {
		return fmt.Errorf("database schema out of date: %w", err)
	}

	a.service = webfile.NewService(db, store, spooler, &slogAdapter{l: a.logger}, webfile.RealClock{}, webfile.UUIDGenerator{}, svcOpts)
	return nil
}

// Service returns the wired service.
func (a *WebfileApp) Service() *webfile.Service { return a.service }

// persistOperation saves the operation to the journal, giving it an
// auto-increment ID. Only DB-mutating commands call it.
func (a *WebfileApp) persistOperation(ctx context.Context) error {
	if a.op.Persisted() {
		return nil
	}
	dbOp, err := a.db.CreateOperation(ctx, a.op.Operation, a.op.Parameters, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// run executes fn as the body of the current command.
func (a *WebfileApp) run(ctx context.Context, mutating bool, fn func() error) error {
	start := time.Now()
	err := func() error {
		if mutating {
			if err := a.persistOperation(ctx); err != nil {
				return err
			}
		}
		return fn()
	}()
	if err != nil {
		a.op.Fail()
	}
	if a.collector != nil {
		a.collector.ObserveCommand(a.op.Operation, time.Since(start), err)
	}
	return err
}

// MakeFolder creates the folder at the slash path dest. Its parent must exist.
func (a *WebfileApp) MakeFolder(ctx context.Context, p *model.Principal, dest string, public *bool) (*model.Folder, error) {
	var folder *model.Folder
	err := a.run(ctx, true, func() error {
		parent, name, err := splitPath(dest)
		if err != nil {
			return err
		}
		parentID, err := a.resolveFolder(ctx, p, parent)
		if err != nil {
			return err
		}
		folder, err = a.service.CreateFolder(ctx, p, webfile.CreateFolderRequest{Name: name, ParentID: parentID, IsPublic: public})
		return err
	})
	return folder, err
}

// Move moves the folder at src below the folder at destParent ("/" for the
// top level).
func (a *WebfileApp) Move(ctx context.Context, p *model.Principal, src, destParent string) error {
	return a.run(ctx, true, func() error {
		id, err := a.resolveFolder(ctx, p, src)
		if err != nil {
			return err
		}
		if id == nil {
			return fmt.Errorf("%w: cannot move the top level", webfile.ErrInvalidInput)
		}
		parent, err := a.resolveFolder(ctx, p, destParent)
		if err != nil {
			return err
		}
		return a.service.MoveFolder(ctx, p, *id, parent)
	})
}

// Rename renames the item named by arg.
func (a *WebfileApp) Rename(ctx context.Context, p *model.Principal, arg, name string) error {
	return a.run(ctx, true, func() error {
		ref, err := a.itemRef(ctx, p, arg)
		if err != nil {
			return err
		}
		return a.service.RenameItem(ctx, p, ref, name)
	})
}

// List returns the readable content of the folder at dest.
func (a *WebfileApp) List(ctx context.Context, p *model.Principal, dest string) (*webfile.Listing, error) {
	var listing *webfile.Listing
	err := a.run(ctx, false, func() error {
		id, err := a.resolveFolder(ctx, p, dest)
		if err != nil {
			return err
		}
		listing, err = a.service.ListFolder(ctx, p, id)
		return err
	})
	return listing, err
}

// Remove deletes the item named by arg. Folders are removed with everything
// below them.
func (a *WebfileApp) Remove(ctx context.Context, p *model.Principal, arg string) error {
	return a.run(ctx, true, func() error {
		ref, err := a.itemRef(ctx, p, arg)
		if err != nil {
			return err
		}
		return a.service.DeleteItem(ctx, p, ref)
	})
}

// Cat writes the content of a file to w.
func (a *WebfileApp) Cat(ctx context.Context, p *model.Principal, fileID string, w io.Writer) (*model.File, error) {
	var file *model.File
	err := a.run(ctx, false, func() error {
		var err error
		file, err = a.service.ReadFile(ctx, p, fileID, w)
		return err
	})
	return file, err
}

// SetVisibility publishes or unpublishes a file.
func (a *WebfileApp) SetVisibility(ctx context.Context, p *model.Principal, fileID string, public bool) error {
	return a.run(ctx, true, func() error {
		return a.service.SetVisibility(ctx, p, fileID, public)
	})
}

// Duplicates returns the readable files sharing fileID's content.
func (a *WebfileApp) Duplicates(ctx context.Context, p *model.Principal, fileID string) ([]*model.File, error) {
	var files []*model.File
	err := a.run(ctx, false, func() error {
		var err error
		files, err = a.service.FindDuplicates(ctx, p, fileID)
		return err
	})
	return files, err
}

// AllDuplicates returns every group of readable files sharing a digest.
func (a *WebfileApp) AllDuplicates(ctx context.Context, p *model.Principal) (map[string][]*model.File, error) {
	var groups map[string][]*model.File
	err := a.run(ctx, false, func() error {
		var err error
		groups, err = a.service.FindAllDuplicateGroups(ctx, p)
		return err
	})
	return groups, err
}

// RuleSpec is a permission rule as typed on the command line.
type RuleSpec struct {
	Item        string // folder path or file ID; empty for type "all"
	Type        string // all, this or children
	User        string
	Group       string
	Everybody   bool
	Read        string // allow, deny or empty
	Edit        string
	AddChildren string
}

func (a *WebfileApp) buildRule(ctx context.Context, p *model.Principal, spec RuleSpec) (*model.ItemPermission, error) {
	typ, err := model.ParsePermissionType(spec.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", webfile.ErrInvalidInput, err)
	}
	rule := &model.ItemPermission{Type: typ}

	switch {
	case spec.Everybody && spec.User == "" && spec.Group == "":
		rule.Subject = model.Everybody()
	case spec.User != "" && spec.Group == "" && !spec.Everybody:
		rule.Subject = model.UserSubject(spec.User)
	case spec.Group != "" && spec.User == "" && !spec.Everybody:
		rule.Subject = model.GroupSubject(spec.Group)
	default:
		return nil, fmt.Errorf("%w: %w", webfile.ErrInvalidInput, model.ErrPermissionSubject)
	}

	for _, col := range []struct {
		raw string
		dst *model.Verdict
	}{
		{spec.Read, &rule.CanRead},
		{spec.Edit, &rule.CanEdit},
		{spec.AddChildren, &rule.CanAddChildren},
	} {
		v, err := model.ParseVerdict(col.raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", webfile.ErrInvalidInput, err)
		}
		*col.dst = v
	}

	if spec.Item != "" {
		ref, err := a.itemRef(ctx, p, spec.Item)
		if err != nil {
			return nil, err
		}
		rule.Item = &ref
	}
	return rule, nil
}

// Grant adds a permission rule.
func (a *WebfileApp) Grant(ctx context.Context, p *model.Principal, spec RuleSpec) (*model.ItemPermission, error) {
	var rule *model.ItemPermission
	err := a.run(ctx, true, func() error {
		r, err := a.buildRule(ctx, p, spec)
		if err != nil {
			return err
		}
		rule, err = a.service.GrantPermission(ctx, p, r)
		return err
	})
	return rule, err
}

// Revoke removes a permission rule by ID.
func (a *WebfileApp) Revoke(ctx context.Context, p *model.Principal, id string) error {
	return a.run(ctx, true, func() error {
		return a.service.RevokePermission(ctx, p, id)
	})
}

// Permissions lists the rules on the item named by itemArg, or the global
// rules when itemArg is empty.
func (a *WebfileApp) Permissions(ctx context.Context, p *model.Principal, itemArg string) ([]*model.ItemPermission, error) {
	var rules []*model.ItemPermission
	err := a.run(ctx, false, func() error {
		var item *model.ItemRef
		if itemArg != "" {
			ref, err := a.itemRef(ctx, p, itemArg)
			if err != nil {
				return err
			}
			item = &ref
		}
		var err error
		rules, err = a.service.ListPermissions(ctx, p, item)
		return err
	})
	return rules, err
}

// ParseAction accepts "read", "edit" and "add_children" as well as the
// column names they map to.
func ParseAction(s string) (model.Action, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "read", string(model.ActionRead):
		return model.ActionRead, nil
	case "edit", string(model.ActionEdit):
		return model.ActionEdit, nil
	case "add_children", string(model.ActionAddChildren):
		return model.ActionAddChildren, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", webfile.ErrInvalidInput, s)
	}
}

// Resolve returns the set of item IDs p may perform action on.
func (a *WebfileApp) Resolve(ctx context.Context, p *model.Principal, action string) (permission.Grant, error) {
	var g permission.Grant
	err := a.run(ctx, false, func() error {
		act, err := ParseAction(action)
		if err != nil {
			return err
		}
		g, err = a.service.Resolve(ctx, p, act)
		return err
	})
	return g, err
}

// ForgetUser clears the ownership and rules of a removed user.
func (a *WebfileApp) ForgetUser(ctx context.Context, p *model.Principal, userID string) error {
	return a.run(ctx, true, func() error {
		return a.service.ForgetUser(ctx, p, userID)
	})
}

// Reconciliations lists the storage inconsistencies awaiting manual repair.
func (a *WebfileApp) Reconciliations(ctx context.Context, p *model.Principal) ([]*model.Reconciliation, error) {
	var out []*model.Reconciliation
	err := a.run(ctx, false, func() error {
		var err error
		out, err = a.service.Reconciliations(ctx, p)
		return err
	})
	return out, err
}

// History returns the most recent journaled operations.
func (a *WebfileApp) History(ctx context.Context, limit int) ([]*model.Operation, error) {
	var ops []*model.Operation
	err := a.run(ctx, false, func() error {
		var err error
		ops, err = a.db.ListOperations(ctx, limit)
		return err
	})
	return ops, err
}

// CheckSetup verifies the schema and that the vault is reachable and
// writable.
func (a *WebfileApp) CheckSetup(ctx context.Context) error {
	return a.run(ctx, false, func() error {
		if err := a.db.CheckMigrations(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if err := a.store.ValidateSetup(ctx); err != nil {
			return fmt.Errorf("vault: %w", err)
		}
		return nil
	})
}

// InitKeys generates the key pair used to seal private blobs.
func InitKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return err
	}
	if enc == nil {
		return fmt.Errorf("encryption is disabled (encryption.type = %q)", cfg.Encryption.Type)
	}
	return enc.Setup(passphrase)
}

// Close finalizes the operation and closes all resources. It returns the
// first error encountered.
func (a *WebfileApp) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.op.Persisted() {
		if err := a.db.FinishOperation(context.Background(), a.op.ID, a.op.Status, time.Now().UTC()); err != nil {
			keep(fmt.Errorf("finishing operation: %w", err))
		}
	}
	if a.cfg.Metrics.Enabled && metrics.IsEnabled() {
		keep(metrics.WriteTextfile(a.cfg.Metrics.TextfilePath, metrics.GetRegistry()))
	}
	keep(a.closeResources())
	return firstErr
}

func (a *WebfileApp) closeResources() error {
	var err error
	if a.db != nil {
		if cerr := a.db.Close(); cerr != nil {
			err = fmt.Errorf("closing database: %w", cerr)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return err
}
