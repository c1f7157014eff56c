package webfile_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"webfile-go/internal/testutil"
	"webfile-go/internal/webfile"
)

// undoBreakingDatabase fails the visibility update after making the store
// refuse the move that would undo the relocation.
type undoBreakingDatabase struct {
	webfile.Database
	vault *testutil.FailingVault
}

func (d *undoBreakingDatabase) UpdateFileVisibility(context.Context, string, bool, time.Time) error {
	d.vault.SetMoveErr(errors.New("store unavailable"))
	return errors.New("database locked")
}

func TestService_SetVisibility(t *testing.T) {
	ctx := context.Background()

	t.Run("moves a sole blob", func(t *testing.T) {
		m := &recordingMetrics{}
		e := newEnv(t, withMetrics(m))
		root := e.mkdir(t, admin, "docs", nil)
		f := e.upload(t, admin, "a.txt", &root.ID, "content", false)

		if err := e.svc.SetVisibility(ctx, admin, f.ID, true); err != nil {
			t.Fatalf("SetVisibility() error = %v", err)
		}

		if e.hasBlob(t, webfile.AreaPrivate, "content") {
			t.Error("private blob still present")
		}
		if !e.hasBlob(t, webfile.AreaPublic, "content") {
			t.Error("public blob missing")
		}
		if !e.mustFile(t, f.ID).IsPublic {
			t.Error("row still private")
		}
		if got := e.read(t, bob, f.ID); got != "content" {
			t.Errorf("ReadFile() = %q", got)
		}
	})

	t.Run("copies a shared blob", func(t *testing.T) {
		e := newEnv(t)
		root := e.mkdir(t, admin, "docs", nil)
		a := e.upload(t, admin, "a.txt", &root.ID, "shared", false)
		b := e.upload(t, admin, "b.txt", &root.ID, "shared", false)

		if err := e.svc.SetVisibility(ctx, admin, a.ID, true); err != nil {
			t.Fatalf("SetVisibility() error = %v", err)
		}

		if !e.hasBlob(t, webfile.AreaPrivate, "shared") || !e.hasBlob(t, webfile.AreaPublic, "shared") {
			t.Error("expected blob in both areas")
		}
		if got := e.read(t, admin, b.ID); got != "shared" {
			t.Errorf("ReadFile(b) = %q", got)
		}
	})

	t.Run("reuses an existing target blob", func(t *testing.T) {
		m := &recordingMetrics{}
		e := newEnv(t, withMetrics(m))
		root := e.mkdir(t, admin, "docs", nil)
		e.upload(t, admin, "pub.txt", &root.ID, "dup", true)
		priv := e.upload(t, admin, "priv.txt", &root.ID, "dup", false)

		if err := e.svc.SetVisibility(ctx, admin, priv.ID, true); err != nil {
			t.Fatalf("SetVisibility() error = %v", err)
		}

		if e.hasBlob(t, webfile.AreaPrivate, "dup") {
			t.Error("unreferenced private blob not deleted")
		}
		if n := e.vault.Len(webfile.AreaPublic); n != 1 {
			t.Errorf("public blobs = %d, want 1", n)
		}
		if m.deleted != 1 {
			t.Errorf("blobs deleted = %d, want 1", m.deleted)
		}
	})

	t.Run("same visibility is a no-op", func(t *testing.T) {
		e := newEnv(t)
		root := e.mkdir(t, admin, "docs", nil)
		f := e.upload(t, admin, "a.txt", &root.ID, "content", false)

		if err := e.svc.SetVisibility(ctx, admin, f.ID, false); err != nil {
			t.Fatalf("SetVisibility() error = %v", err)
		}
		if !e.hasBlob(t, webfile.AreaPrivate, "content") {
			t.Error("private blob missing")
		}
	})

	t.Run("needs can_edit", func(t *testing.T) {
		e := newEnv(t)
		root := e.mkdir(t, admin, "docs", nil)
		f := e.upload(t, admin, "a.txt", &root.ID, "content", false)

		err := e.svc.SetVisibility(ctx, bob, f.ID, true)
		if !errors.Is(err, webfile.ErrPermissionDenied) {
			t.Errorf("SetVisibility() error = %v, want ErrPermissionDenied", err)
		}
	})

	t.Run("failed update undoes the move", func(t *testing.T) {
		fdb := &testutil.FailingDatabase{}
		e := newEnv(t, withDB(func(db webfile.Database) webfile.Database {
			fdb.Database = db
			return fdb
		}))
		root := e.mkdir(t, admin, "docs", nil)
		f := e.upload(t, admin, "a.txt", &root.ID, "content", false)
		fdb.UpdateVisibilityErr = errors.New("database locked")

		err := e.svc.SetVisibility(ctx, admin, f.ID, true)
		if err == nil || errors.Is(err, webfile.ErrStorageInconsistency) {
			t.Fatalf("SetVisibility() error = %v, want plain failure", err)
		}
		if !e.hasBlob(t, webfile.AreaPrivate, "content") || e.hasBlob(t, webfile.AreaPublic, "content") {
			t.Error("blob not restored to the private area")
		}
		if e.mustFile(t, f.ID).IsPublic {
			t.Error("row changed despite failure")
		}
	})

	t.Run("failed update removes the copy", func(t *testing.T) {
		fdb := &testutil.FailingDatabase{}
		e := newEnv(t, withDB(func(db webfile.Database) webfile.Database {
			fdb.Database = db
			return fdb
		}))
		root := e.mkdir(t, admin, "docs", nil)
		a := e.upload(t, admin, "a.txt", &root.ID, "shared", false)
		e.upload(t, admin, "b.txt", &root.ID, "shared", false)
		fdb.UpdateVisibilityErr = errors.New("database locked")

		if err := e.svc.SetVisibility(ctx, admin, a.ID, true); err == nil {
			t.Fatal("SetVisibility() expected error")
		}
		if e.hasBlob(t, webfile.AreaPublic, "shared") {
			t.Error("copied blob left in the public area")
		}
		if !e.hasBlob(t, webfile.AreaPrivate, "shared") {
			t.Error("private blob missing")
		}
	})

	t.Run("failed undo records a reconciliation", func(t *testing.T) {
		fv := &testutil.FailingVault{}
		e := newEnv(t,
			withStore(func(s webfile.ContentStore) webfile.ContentStore {
				fv.ContentStore = s
				return fv
			}),
			withDB(func(db webfile.Database) webfile.Database {
				return &undoBreakingDatabase{Database: db, vault: fv}
			}),
		)
		root := e.mkdir(t, admin, "docs", nil)
		f := e.upload(t, admin, "a.txt", &root.ID, "content", false)

		err := e.svc.SetVisibility(ctx, admin, f.ID, true)
		if !errors.Is(err, webfile.ErrStorageInconsistency) {
			t.Fatalf("SetVisibility() error = %v, want ErrStorageInconsistency", err)
		}

		recs, err := e.svc.Reconciliations(ctx, admin)
		if err != nil {
			t.Fatalf("Reconciliations() error = %v", err)
		}
		if len(recs) != 1 || recs[0].FileID != f.ID || recs[0].Digest != f.Digest {
			t.Errorf("reconciliations = %+v, want one for %s", recs, f.ID)
		}
	})

	t.Run("sealed private area", func(t *testing.T) {
		e := newEnv(t, withStore(func(s webfile.ContentStore) webfile.ContentStore {
			sealed, _ := testutil.NewSealedTestVault(s)
			return sealed
		}))
		root := e.mkdir(t, admin, "docs", nil)
		f := e.upload(t, admin, "a.txt", &root.ID, "secret", false)

		var raw bytes.Buffer
		if err := e.vault.Get(ctx, testutil.BlobRef(webfile.AreaPrivate, []byte("secret")), &raw); err != nil {
			t.Fatalf("raw Get() error = %v", err)
		}
		if raw.String() == "secret" {
			t.Error("private blob stored in plaintext")
		}

		if err := e.svc.SetVisibility(ctx, admin, f.ID, true); err != nil {
			t.Fatalf("SetVisibility() error = %v", err)
		}
		raw.Reset()
		if err := e.vault.Get(ctx, testutil.BlobRef(webfile.AreaPublic, []byte("secret")), &raw); err != nil {
			t.Fatalf("raw Get() error = %v", err)
		}
		if raw.String() != "secret" {
			t.Errorf("public blob = %q, want plaintext", raw.String())
		}
		if got := e.read(t, admin, f.ID); got != "secret" {
			t.Errorf("ReadFile() = %q", got)
		}
	})
}
