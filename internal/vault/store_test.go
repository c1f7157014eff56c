package vault

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"webfile-go/internal/webfile"
)

// testContentStore runs the behaviour every ContentStore shares against a
// fresh store from newStore.
func testContentStore(t *testing.T, newStore func(t *testing.T) webfile.ContentStore) {
	ctx := context.Background()
	pub := webfile.StorageRef{Area: webfile.AreaPublic, Path: webfile.StoragePathFor("2aae6c35c94fcfb415dbe95f408b9ce91ee846ed")}

	get := func(t *testing.T, s webfile.ContentStore, ref webfile.StorageRef) string {
		t.Helper()
		var buf bytes.Buffer
		if err := s.Get(ctx, ref, &buf); err != nil {
			t.Fatalf("Get(%s) error = %v", ref, err)
		}
		return buf.String()
	}
	exists := func(t *testing.T, s webfile.ContentStore, ref webfile.StorageRef) bool {
		t.Helper()
		ok, err := s.Exists(ctx, ref)
		if err != nil {
			t.Fatalf("Exists(%s) error = %v", ref, err)
		}
		return ok
	}

	t.Run("put and get", func(t *testing.T) {
		tests := []struct {
			name    string
			area    webfile.Area
			content string
			size    int64
		}{
			{name: "public", area: webfile.AreaPublic, content: "hello world", size: 11},
			{name: "private", area: webfile.AreaPrivate, content: "hello world", size: 11},
			{name: "empty", area: webfile.AreaPublic, content: "", size: 0},
			{name: "large", area: webfile.AreaPrivate, content: strings.Repeat("x", 100000), size: 100000},
			{name: "unknown size", area: webfile.AreaPrivate, content: "streamed", size: -1},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				s := newStore(t)
				ref := pub.In(tt.area)

				if err := s.Put(ctx, ref, strings.NewReader(tt.content), tt.size); err != nil {
					t.Fatalf("Put() error = %v", err)
				}
				if !exists(t, s, ref) {
					t.Fatal("Exists() = false after Put")
				}
				if exists(t, s, ref.In(tt.area.Other())) {
					t.Error("blob visible in the other area")
				}
				if got := get(t, s, ref); got != tt.content {
					t.Errorf("Get() returned %d bytes, want %d", len(got), len(tt.content))
				}
			})
		}
	})

	t.Run("put keeps existing blob", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, pub, strings.NewReader("first"), 5); err != nil {
			t.Fatalf("first Put() error = %v", err)
		}
		if err := s.Put(ctx, pub, strings.NewReader("other"), 5); err != nil {
			t.Fatalf("second Put() error = %v", err)
		}
		if got := get(t, s, pub); got != "first" {
			t.Errorf("Get() = %q, want %q", got, "first")
		}
	})

	t.Run("size mismatch", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, pub, strings.NewReader("short"), 100); err == nil {
			t.Fatal("Put() expected size mismatch error")
		}
		if exists(t, s, pub) {
			t.Error("blob stored despite size mismatch")
		}
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		err := s.Get(ctx, pub, &bytes.Buffer{})
		if !errors.Is(err, webfile.ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("move between areas", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, pub, strings.NewReader("content"), 7); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		priv := pub.In(webfile.AreaPrivate)
		if err := s.Move(ctx, pub, webfile.AreaPrivate); err != nil {
			t.Fatalf("Move() error = %v", err)
		}
		if exists(t, s, pub) {
			t.Error("source still present after Move")
		}
		if got := get(t, s, priv); got != "content" {
			t.Errorf("Get() after Move = %q, want %q", got, "content")
		}

		if err := s.Move(ctx, priv, webfile.AreaPublic); err != nil {
			t.Fatalf("Move() back error = %v", err)
		}
		if got := get(t, s, pub); got != "content" {
			t.Errorf("Get() after moving back = %q, want %q", got, "content")
		}
	})

	t.Run("move missing", func(t *testing.T) {
		s := newStore(t)
		err := s.Move(ctx, pub, webfile.AreaPrivate)
		if !errors.Is(err, webfile.ErrNotFound) {
			t.Errorf("Move() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("copy between areas", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, pub, strings.NewReader("content"), 7); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		if err := s.Copy(ctx, pub, webfile.AreaPrivate); err != nil {
			t.Fatalf("Copy() error = %v", err)
		}
		if got := get(t, s, pub); got != "content" {
			t.Errorf("source after Copy = %q, want %q", got, "content")
		}
		if got := get(t, s, pub.In(webfile.AreaPrivate)); got != "content" {
			t.Errorf("destination after Copy = %q, want %q", got, "content")
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, pub, strings.NewReader("content"), 7); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if err := s.Delete(ctx, pub); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if exists(t, s, pub) {
			t.Error("blob present after Delete")
		}
		if err := s.Delete(ctx, pub); err != nil {
			t.Errorf("Delete() of missing blob error = %v", err)
		}
	})

	t.Run("validate setup", func(t *testing.T) {
		if err := newStore(t).ValidateSetup(ctx); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}
