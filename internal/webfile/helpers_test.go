package webfile_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"webfile-go/internal/model"
	"webfile-go/internal/testutil"
	"webfile-go/internal/vault"
	"webfile-go/internal/webfile"
)

var (
	admin = &model.Principal{ID: "admin", Superuser: true}
	alice = &model.Principal{ID: "alice", Groups: []string{"staff"}}
	bob   = &model.Principal{ID: "bob", Groups: []string{"guests"}}
)

func boolp(b bool) *bool                { return &b }
func strp(s string) *string             { return &s }
func folderRef(id string) model.ItemRef { return model.ItemRef{Kind: model.KindFolder, ID: id} }
func fileRef(id string) model.ItemRef   { return model.ItemRef{Kind: model.KindFile, ID: id} }

// env is a service wired to an in-memory database and vault.
type env struct {
	svc   *webfile.Service
	db    webfile.Database
	vault *vault.MemoryVault
	clock *testutil.StubClock
}

type envOption func(*envConfig)

type envConfig struct {
	wrapDB    func(webfile.Database) webfile.Database
	wrapStore func(webfile.ContentStore) webfile.ContentStore
	opts      webfile.Options
	noSpooler bool
}

func withDB(wrap func(webfile.Database) webfile.Database) envOption {
	return func(c *envConfig) { c.wrapDB = wrap }
}

func withStore(wrap func(webfile.ContentStore) webfile.ContentStore) envOption {
	return func(c *envConfig) { c.wrapStore = wrap }
}

func withPublicDefault() envOption {
	return func(c *envConfig) { c.opts.PublicDefault = true }
}

func withoutPermissions() envOption {
	return func(c *envConfig) { c.opts.PermissionsEnabled = false }
}

func withoutSpooler() envOption {
	return func(c *envConfig) { c.noSpooler = true }
}

func newEnv(t *testing.T, options ...envOption) *env {
	t.Helper()

	cfg := envConfig{opts: webfile.Options{PermissionsEnabled: true, UploadConcurrency: 4}}
	for _, o := range options {
		o(&cfg)
	}

	var db webfile.Database = testutil.NewTestDatabase(t)
	if cfg.wrapDB != nil {
		db = cfg.wrapDB(db)
	}
	mem := testutil.NewTestVault()
	var store webfile.ContentStore = mem
	if cfg.wrapStore != nil {
		store = cfg.wrapStore(mem)
	}
	var spooler webfile.Spooler = testutil.NewTestSpooler()
	if cfg.noSpooler {
		spooler = nil
	}
	clock := testutil.FixedClock()

	svc := webfile.NewService(db, store, spooler, webfile.NewNopLogger(), clock, testutil.NewStubIDGenerator(), cfg.opts)
	return &env{svc: svc, db: db, vault: mem, clock: clock}
}

func (e *env) mkdir(t *testing.T, p *model.Principal, name string, parent *string) *model.Folder {
	t.Helper()
	f, err := e.svc.CreateFolder(context.Background(), p, webfile.CreateFolderRequest{Name: name, ParentID: parent})
	if err != nil {
		t.Fatalf("CreateFolder(%s) error = %v", name, err)
	}
	return f
}

func (e *env) upload(t *testing.T, p *model.Principal, name string, folder *string, content string, public bool) *model.File {
	t.Helper()
	f, err := e.svc.UploadFile(context.Background(), p, webfile.UploadRequest{
		Name:     name,
		FolderID: folder,
		IsPublic: boolp(public),
		Content:  strings.NewReader(content),
	})
	if err != nil {
		t.Fatalf("UploadFile(%s) error = %v", name, err)
	}
	return f
}

func (e *env) grant(t *testing.T, rule *model.ItemPermission) *model.ItemPermission {
	t.Helper()
	stored, err := e.svc.GrantPermission(context.Background(), admin, rule)
	if err != nil {
		t.Fatalf("GrantPermission(%s) error = %v", rule, err)
	}
	return stored
}

func (e *env) read(t *testing.T, p *model.Principal, id string) string {
	t.Helper()
	var buf bytes.Buffer
	if _, err := e.svc.ReadFile(context.Background(), p, id, &buf); err != nil {
		t.Fatalf("ReadFile(%s) error = %v", id, err)
	}
	return buf.String()
}

func (e *env) hasBlob(t *testing.T, area webfile.Area, content string) bool {
	t.Helper()
	ok, err := e.vault.Exists(context.Background(), testutil.BlobRef(area, []byte(content)))
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	return ok
}

func (e *env) mustFile(t *testing.T, id string) *model.File {
	t.Helper()
	f, err := e.db.GetFile(context.Background(), id)
	if err != nil {
		t.Fatalf("GetFile(%s) error = %v", id, err)
	}
	if f == nil {
		t.Fatalf("file %s not found", id)
	}
	return f
}

// streamOnly hides the Seek method so content goes through the spooler.
type streamOnly struct{ r io.Reader }

func (s streamOnly) Read(p []byte) (int, error) { return s.r.Read(p) }

func ids[T model.Item](items []T) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Base().ID
	}
	return out
}
