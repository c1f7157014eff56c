package webfile_test

import (
	"context"
	"errors"
	"testing"

	"webfile-go/internal/model"
	"webfile-go/internal/testutil"
	"webfile-go/internal/webfile"
)

func TestService_DeleteItem(t *testing.T) {
	ctx := context.Background()

	t.Run("blob outlives all but the last row", func(t *testing.T) {
		m := &recordingMetrics{}
		e := newEnv(t, withMetrics(m))
		root := e.mkdir(t, admin, "docs", nil)
		a := e.upload(t, admin, "a.txt", &root.ID, "shared", false)
		b := e.upload(t, admin, "b.txt", &root.ID, "shared", false)

		if err := e.svc.DeleteItem(ctx, admin, fileRef(a.ID)); err != nil {
			t.Fatalf("DeleteItem(a) error = %v", err)
		}
		if !e.hasBlob(t, webfile.AreaPrivate, "shared") {
			t.Fatal("blob deleted while still referenced")
		}
		if got := e.read(t, admin, b.ID); got != "shared" {
			t.Errorf("ReadFile(b) = %q", got)
		}

		if err := e.svc.DeleteItem(ctx, admin, fileRef(b.ID)); err != nil {
			t.Fatalf("DeleteItem(b) error = %v", err)
		}
		if e.hasBlob(t, webfile.AreaPrivate, "shared") {
			t.Error("blob kept after last reference")
		}
		if m.deleted != 1 {
			t.Errorf("blobs deleted = %d, want 1", m.deleted)
		}
	})

	t.Run("public copy does not pin the private blob", func(t *testing.T) {
		e := newEnv(t)
		root := e.mkdir(t, admin, "docs", nil)
		priv := e.upload(t, admin, "a.txt", &root.ID, "both", false)
		e.upload(t, admin, "b.txt", &root.ID, "both", true)

		if err := e.svc.DeleteItem(ctx, admin, fileRef(priv.ID)); err != nil {
			t.Fatalf("DeleteItem() error = %v", err)
		}
		if e.hasBlob(t, webfile.AreaPrivate, "both") {
			t.Error("private blob kept")
		}
		if !e.hasBlob(t, webfile.AreaPublic, "both") {
			t.Error("public blob removed")
		}
	})

	t.Run("folder delete cascades", func(t *testing.T) {
		e := newEnv(t)
		root := e.mkdir(t, admin, "docs", nil)
		sub := e.mkdir(t, admin, "sub", &root.ID)
		deep := e.mkdir(t, admin, "deep", &sub.ID)
		other := e.mkdir(t, admin, "other", nil)
		e.upload(t, admin, "a.txt", &sub.ID, "only-here", false)
		e.upload(t, admin, "b.txt", &deep.ID, "kept", true)
		keeper := e.upload(t, admin, "c.txt", &other.ID, "kept", true)

		if err := e.svc.DeleteItem(ctx, admin, folderRef(sub.ID)); err != nil {
			t.Fatalf("DeleteItem() error = %v", err)
		}

		for _, id := range []string{sub.ID, deep.ID} {
			if f, _ := e.db.GetFolder(ctx, id); f != nil {
				t.Errorf("folder %s still exists", id)
			}
		}
		if e.hasBlob(t, webfile.AreaPrivate, "only-here") {
			t.Error("blob of deleted file kept")
		}
		if !e.hasBlob(t, webfile.AreaPublic, "kept") {
			t.Error("blob still used outside the subtree was deleted")
		}
		if got := e.read(t, admin, keeper.ID); got != "kept" {
			t.Errorf("ReadFile() = %q", got)
		}

		stored, err := e.db.GetFolder(ctx, root.ID)
		if err != nil {
			t.Fatalf("GetFolder() error = %v", err)
		}
		if stored.Left != 1 || stored.Right != 2 {
			t.Errorf("root bounds = (%d, %d), want (1, 2)", stored.Left, stored.Right)
		}
	})

	t.Run("failed row delete keeps the blob", func(t *testing.T) {
		fdb := &testutil.FailingDatabase{}
		e := newEnv(t, withDB(func(db webfile.Database) webfile.Database {
			fdb.Database = db
			return fdb
		}))
		root := e.mkdir(t, admin, "docs", nil)
		f := e.upload(t, admin, "a.txt", &root.ID, "content", false)
		fdb.DeleteFileRowErr = errors.New("database locked")

		if err := e.svc.DeleteItem(ctx, admin, fileRef(f.ID)); err == nil {
			t.Fatal("DeleteItem() expected error")
		}
		e.mustFile(t, f.ID)
		if !e.hasBlob(t, webfile.AreaPrivate, "content") {
			t.Error("blob deleted although the row remains")
		}
	})

	t.Run("failed blob delete records a reconciliation", func(t *testing.T) {
		m := &recordingMetrics{}
		fv := &testutil.FailingVault{}
		e := newEnv(t, withMetrics(m), withStore(func(s webfile.ContentStore) webfile.ContentStore {
			fv.ContentStore = s
			return fv
		}))
		root := e.mkdir(t, admin, "docs", nil)
		f := e.upload(t, admin, "a.txt", &root.ID, "content", false)
		fv.DeleteErr = errors.New("store unavailable")

		err := e.svc.DeleteItem(ctx, admin, fileRef(f.ID))
		if !errors.Is(err, webfile.ErrStorageInconsistency) {
			t.Fatalf("DeleteItem() error = %v, want ErrStorageInconsistency", err)
		}
		if row, _ := e.db.GetFile(ctx, f.ID); row != nil {
			t.Error("row still present")
		}

		recs, err := e.svc.Reconciliations(ctx, admin)
		if err != nil {
			t.Fatalf("Reconciliations() error = %v", err)
		}
		if len(recs) != 1 || recs[0].Area != string(webfile.AreaPrivate) {
			t.Errorf("reconciliations = %+v, want one in the private area", recs)
		}
		if m.reconciled != 1 {
			t.Errorf("reconciliations counted = %d, want 1", m.reconciled)
		}
	})

	t.Run("needs can_edit", func(t *testing.T) {
		e := newEnv(t)
		root := e.mkdir(t, admin, "docs", nil)

		err := e.svc.DeleteItem(ctx, bob, folderRef(root.ID))
		if !errors.Is(err, webfile.ErrPermissionDenied) {
			t.Errorf("DeleteItem() error = %v, want ErrPermissionDenied", err)
		}
	})

	t.Run("missing item", func(t *testing.T) {
		e := newEnv(t)
		err := e.svc.DeleteItem(ctx, admin, folderRef("nope"))
		if !errors.Is(err, webfile.ErrNotFound) {
			t.Errorf("DeleteItem() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("file changed visibility after it was loaded", func(t *testing.T) {
		db := &interleavedReads{}
		e := newEnv(t, withDB(func(inner webfile.Database) webfile.Database {
			db.Database = inner
			return db
		}))
		root := e.mkdir(t, admin, "docs", nil)
		f := e.upload(t, admin, "a.txt", &root.ID, "moving", false)
		db.after = func() {
			if err := e.svc.SetVisibility(ctx, admin, f.ID, true); err != nil {
				t.Fatalf("SetVisibility() error = %v", err)
			}
		}

		if err := e.svc.DeleteItem(ctx, admin, fileRef(f.ID)); err != nil {
			t.Fatalf("DeleteItem() error = %v", err)
		}
		if e.hasBlob(t, webfile.AreaPublic, "moving") || e.hasBlob(t, webfile.AreaPrivate, "moving") {
			t.Error("blob left behind after delete")
		}
		if got, _ := e.db.GetFile(ctx, f.ID); got != nil {
			t.Errorf("row kept after delete: %+v", got)
		}
	})

	t.Run("file removed after it was loaded", func(t *testing.T) {
		db := &interleavedReads{}
		e := newEnv(t, withDB(func(inner webfile.Database) webfile.Database {
			db.Database = inner
			return db
		}))
		root := e.mkdir(t, admin, "docs", nil)
		f := e.upload(t, admin, "a.txt", &root.ID, "gone", false)
		db.after = func() {
			if err := e.svc.DeleteItem(ctx, admin, fileRef(f.ID)); err != nil {
				t.Fatalf("inner DeleteItem() error = %v", err)
			}
		}

		if err := e.svc.DeleteItem(ctx, admin, fileRef(f.ID)); err != nil {
			t.Errorf("DeleteItem() error = %v, want nil", err)
		}
		if e.hasBlob(t, webfile.AreaPrivate, "gone") {
			t.Error("blob left behind after delete")
		}
	})
}

// interleavedReads runs after once, right after the next GetFile, so the
// caller continues with a row that no longer matches the database.
type interleavedReads struct {
	webfile.Database
	after func()
}

func (d *interleavedReads) GetFile(ctx context.Context, id string) (*model.File, error) {
	f, err := d.Database.GetFile(ctx, id)
	if fn := d.after; fn != nil {
		d.after = nil
		fn()
	}
	return f, err
}
