package webfile_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"webfile-go/internal/model"
	"webfile-go/internal/testutil"
	"webfile-go/internal/webfile"
)

type recordingMetrics struct {
	mu           sync.Mutex
	uploads      int
	deduplicated int
	bytes        int64
	deleted      int
	reconciled   int
}

func (m *recordingMetrics) UploadCompleted(dedup bool, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads++
	if dedup {
		m.deduplicated++
	}
	m.bytes += size
}

func (m *recordingMetrics) BlobDeleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted++
}

func (m *recordingMetrics) ReconciliationRecorded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconciled++
}

func withMetrics(m webfile.Metrics) envOption {
	return func(c *envConfig) { c.opts.Metrics = m }
}

func TestService_UploadFile(t *testing.T) {
	ctx := context.Background()

	t.Run("records digest and stores blob", func(t *testing.T) {
		e := newEnv(t)
		root := e.mkdir(t, admin, "docs", nil)

		f, err := e.svc.UploadFile(ctx, admin, webfile.UploadRequest{
			Name:        "notes.txt",
			FolderID:    &root.ID,
			Description: "meeting notes",
			Content:     strings.NewReader("hello world"),
		})
		if err != nil {
			t.Fatalf("UploadFile() error = %v", err)
		}

		want := testutil.SHA1Hex([]byte("hello world"))
		if f.Digest != want {
			t.Errorf("Digest = %q, want %q", f.Digest, want)
		}
		if f.Size != int64(len("hello world")) {
			t.Errorf("Size = %d, want %d", f.Size, len("hello world"))
		}
		if f.StoragePath != webfile.StoragePathFor(want) {
			t.Errorf("StoragePath = %q, want %q", f.StoragePath, webfile.StoragePathFor(want))
		}
		if f.IsPublic {
			t.Error("IsPublic = true, want private by default")
		}
		if !strings.HasPrefix(f.MimeType, "text/plain") {
			t.Errorf("MimeType = %q, want text/plain", f.MimeType)
		}
		if !e.hasBlob(t, webfile.AreaPrivate, "hello world") {
			t.Error("private blob missing")
		}
		if got := e.mustFile(t, f.ID); got.Description != "meeting notes" || got.OriginalFilename != "notes.txt" {
			t.Errorf("stored row = %+v", got)
		}
		if got := e.read(t, admin, f.ID); got != "hello world" {
			t.Errorf("ReadFile() = %q, want %q", got, "hello world")
		}
	})

	t.Run("identical content shares one blob", func(t *testing.T) {
		m := &recordingMetrics{}
		e := newEnv(t, withMetrics(m))
		root := e.mkdir(t, admin, "docs", nil)

		a := e.upload(t, admin, "a.txt", &root.ID, "same", false)
		b := e.upload(t, admin, "b.txt", &root.ID, "same", false)

		if a.ID == b.ID {
			t.Fatal("uploads share a row")
		}
		if a.StoragePath != b.StoragePath {
			t.Errorf("storage paths differ: %q vs %q", a.StoragePath, b.StoragePath)
		}
		if n := e.vault.Len(webfile.AreaPrivate); n != 1 {
			t.Errorf("private blobs = %d, want 1", n)
		}
		if m.uploads != 2 || m.deduplicated != 1 {
			t.Errorf("metrics = %d uploads, %d deduplicated; want 2, 1", m.uploads, m.deduplicated)
		}
	})

	t.Run("different visibility stores two blobs", func(t *testing.T) {
		e := newEnv(t)
		root := e.mkdir(t, admin, "docs", nil)

		e.upload(t, admin, "a.txt", &root.ID, "same", false)
		e.upload(t, admin, "b.txt", &root.ID, "same", true)

		if !e.hasBlob(t, webfile.AreaPrivate, "same") || !e.hasBlob(t, webfile.AreaPublic, "same") {
			t.Error("expected blob in both areas")
		}
	})

	t.Run("non-seekable content is spooled", func(t *testing.T) {
		e := newEnv(t)
		root := e.mkdir(t, admin, "docs", nil)

		f, err := e.svc.UploadFile(ctx, admin, webfile.UploadRequest{
			Name:     "stream.bin",
			FolderID: &root.ID,
			MimeType: "application/octet-stream",
			Content:  streamOnly{strings.NewReader("streamed body")},
		})
		if err != nil {
			t.Fatalf("UploadFile() error = %v", err)
		}
		if f.Digest != testutil.SHA1Hex([]byte("streamed body")) {
			t.Errorf("Digest = %q", f.Digest)
		}
		if got := e.read(t, admin, f.ID); got != "streamed body" {
			t.Errorf("ReadFile() = %q", got)
		}
	})

	t.Run("non-seekable content without spooler", func(t *testing.T) {
		e := newEnv(t, withoutSpooler())
		root := e.mkdir(t, admin, "docs", nil)

		_, err := e.svc.UploadFile(ctx, admin, webfile.UploadRequest{
			Name:     "stream.bin",
			FolderID: &root.ID,
			Content:  streamOnly{strings.NewReader("x")},
		})
		if !errors.Is(err, webfile.ErrInvalidInput) {
			t.Errorf("UploadFile() error = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("rejects unknown mime type", func(t *testing.T) {
		e := newEnv(t)
		root := e.mkdir(t, admin, "docs", nil)

		_, err := e.svc.UploadFile(ctx, admin, webfile.UploadRequest{
			Name:     "x",
			FolderID: &root.ID,
			MimeType: "foo/bar",
			Content:  strings.NewReader("x"),
		})
		if !errors.Is(err, webfile.ErrInvalidInput) {
			t.Errorf("UploadFile() error = %v, want ErrInvalidInput", err)
		}
		if n := e.vault.Len(webfile.AreaPrivate); n != 0 {
			t.Errorf("private blobs = %d, want 0", n)
		}
	})

	t.Run("rejects missing folder", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.svc.UploadFile(ctx, admin, webfile.UploadRequest{
			Name:     "x",
			FolderID: strp("nope"),
			Content:  strings.NewReader("x"),
		})
		if !errors.Is(err, webfile.ErrInvalidParent) {
			t.Errorf("UploadFile() error = %v, want ErrInvalidParent", err)
		}
	})

	t.Run("unfiled upload needs a superuser", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.svc.UploadFile(ctx, alice, webfile.UploadRequest{Name: "x", Content: strings.NewReader("x")})
		if !errors.Is(err, webfile.ErrPermissionDenied) {
			t.Errorf("UploadFile() error = %v, want ErrPermissionDenied", err)
		}

		f := e.upload(t, admin, "x", nil, "x", false)
		if f.FolderID != nil {
			t.Errorf("FolderID = %v, want nil", *f.FolderID)
		}
	})

	t.Run("upload into folder needs can_add_children", func(t *testing.T) {
		e := newEnv(t)
		root := e.mkdir(t, admin, "drop", nil)

		req := webfile.UploadRequest{Name: "x", FolderID: &root.ID, Content: strings.NewReader("x")}
		if _, err := e.svc.UploadFile(ctx, bob, req); !errors.Is(err, webfile.ErrPermissionDenied) {
			t.Fatalf("UploadFile() error = %v, want ErrPermissionDenied", err)
		}

		e.grant(t, &model.ItemPermission{
			Item:           &model.ItemRef{Kind: model.KindFolder, ID: root.ID},
			Type:           model.TypeThis,
			Subject:        model.Everybody(),
			CanAddChildren: model.Allow,
		})
		req.Content = strings.NewReader("x")
		f, err := e.svc.UploadFile(ctx, bob, req)
		if err != nil {
			t.Fatalf("UploadFile() error = %v", err)
		}
		if !f.OwnedBy("bob") {
			t.Error("uploader does not own the file")
		}
	})

	t.Run("failed insert removes new blob", func(t *testing.T) {
		fdb := &testutil.FailingDatabase{}
		e := newEnv(t, withDB(func(db webfile.Database) webfile.Database {
			fdb.Database = db
			return fdb
		}))
		root := e.mkdir(t, admin, "docs", nil)
		fdb.InsertFileErr = errors.New("disk full")

		_, err := e.svc.UploadFile(ctx, admin, webfile.UploadRequest{
			Name:     "x",
			FolderID: &root.ID,
			Content:  strings.NewReader("lost"),
		})
		if err == nil {
			t.Fatal("UploadFile() expected error")
		}
		if e.hasBlob(t, webfile.AreaPrivate, "lost") {
			t.Error("blob left behind after failed insert")
		}
	})

	t.Run("failed insert keeps shared blob", func(t *testing.T) {
		fdb := &testutil.FailingDatabase{}
		e := newEnv(t, withDB(func(db webfile.Database) webfile.Database {
			fdb.Database = db
			return fdb
		}))
		root := e.mkdir(t, admin, "docs", nil)
		e.upload(t, admin, "a", &root.ID, "kept", false)
		fdb.InsertFileErr = errors.New("disk full")

		_, err := e.svc.UploadFile(ctx, admin, webfile.UploadRequest{
			Name:     "b",
			FolderID: &root.ID,
			Content:  strings.NewReader("kept"),
		})
		if err == nil {
			t.Fatal("UploadFile() expected error")
		}
		if !e.hasBlob(t, webfile.AreaPrivate, "kept") {
			t.Error("shared blob removed")
		}
	})

	t.Run("failed put records nothing", func(t *testing.T) {
		fv := &testutil.FailingVault{PutErr: errors.New("bucket gone")}
		e := newEnv(t, withStore(func(s webfile.ContentStore) webfile.ContentStore {
			fv.ContentStore = s
			return fv
		}))
		root := e.mkdir(t, admin, "docs", nil)

		if _, err := e.svc.UploadFile(ctx, admin, webfile.UploadRequest{
			Name:     "x",
			FolderID: &root.ID,
			Content:  strings.NewReader("x"),
		}); err == nil {
			t.Fatal("UploadFile() expected error")
		}
		listing, err := e.svc.ListFolder(ctx, admin, &root.ID)
		if err != nil {
			t.Fatalf("ListFolder() error = %v", err)
		}
		if len(listing.Files) != 0 {
			t.Errorf("listing has %d files, want 0", len(listing.Files))
		}
	})
}

func TestService_UploadFiles(t *testing.T) {
	ctx := context.Background()

	t.Run("keeps request order", func(t *testing.T) {
		e := newEnv(t)
		root := e.mkdir(t, admin, "docs", nil)

		var reqs []webfile.UploadRequest
		contents := []string{"one", "two", "three", "two", "five", "six"}
		for i, c := range contents {
			reqs = append(reqs, webfile.UploadRequest{
				Name:     c + ".txt",
				FolderID: &root.ID,
				IsPublic: boolp(i%2 == 0),
				Content:  strings.NewReader(c),
			})
		}

		files, err := e.svc.UploadFiles(ctx, admin, reqs)
		if err != nil {
			t.Fatalf("UploadFiles() error = %v", err)
		}
		for i, f := range files {
			if f == nil {
				t.Fatalf("result %d is nil", i)
			}
			if f.Digest != testutil.SHA1Hex([]byte(contents[i])) {
				t.Errorf("result %d digest does not match %q", i, contents[i])
			}
		}

		listing, err := e.svc.ListFolder(ctx, admin, &root.ID)
		if err != nil {
			t.Fatalf("ListFolder() error = %v", err)
		}
		if len(listing.Files) != len(contents) {
			t.Errorf("listing has %d files, want %d", len(listing.Files), len(contents))
		}
	})

	t.Run("reports first failure", func(t *testing.T) {
		e := newEnv(t)
		root := e.mkdir(t, admin, "docs", nil)

		_, err := e.svc.UploadFiles(ctx, admin, []webfile.UploadRequest{
			{Name: "ok.txt", FolderID: &root.ID, Content: strings.NewReader("ok")},
			{Name: "bad/name", FolderID: &root.ID, Content: strings.NewReader("bad")},
		})
		if !errors.Is(err, webfile.ErrInvalidInput) {
			t.Errorf("UploadFiles() error = %v, want ErrInvalidInput", err)
		}
	})
}
