package model

import (
	"strings"
	"time"
)

// ItemKind tags the concrete variant behind an Item.
type ItemKind string

const (
	KindFolder ItemKind = "folder"
	KindFile   ItemKind = "file"
)

// Item is the tagged variant over folders and files. Dispatch on Kind(),
// never on the dynamic type.
type Item interface {
	Kind() ItemKind
	Base() *ItemBase
}

// ItemRef points at an item by kind and ID.
type ItemRef struct {
	Kind ItemKind
	ID   string
}

// RefOf returns the reference for an item.
func RefOf(it Item) ItemRef {
	return ItemRef{Kind: it.Kind(), ID: it.Base().ID}
}

// ItemBase holds the attributes shared by folders and files.
type ItemBase struct {
	ID         string  // UUID
	Name       string
	OwnerID    *string // nil once the owner is forgotten
	CreatedAt  time.Time
	UploadedAt time.Time
	ModifiedAt time.Time // never moves backward
	IsPublic   bool
}

// Touch advances ModifiedAt to now unless that would move it backward.
func (b *ItemBase) Touch(now time.Time) {
	if now.After(b.ModifiedAt) {
		b.ModifiedAt = now
	}
}

// OwnedBy reports whether userID owns the item.
func (b *ItemBase) OwnedBy(userID string) bool {
	return b.OwnerID != nil && userID != "" && *b.OwnerID == userID
}

// Folder is a node of the nested-set tree.
type Folder struct {
	ItemBase
	ParentID *string // nil for roots
	Left     int64
	Right    int64
	Depth    int64
}

func (f *Folder) Kind() ItemKind   { return KindFolder }
func (f *Folder) Base() *ItemBase { return &f.ItemBase }

// Contains reports whether other lies strictly inside f's range.
func (f *Folder) Contains(other *Folder) bool {
	return f.Left < other.Left && other.Right < f.Right
}

// File is an uploaded blob's metadata row.
type File struct {
	ItemBase
	FolderID         *string // nil for unfiled files
	Digest           string  // SHA-1 hex; immutable once set
	Size             int64
	MimeType         string
	StoragePath      string // opaque handle, scoped by IsPublic
	OriginalFilename string
	Description      string
}

func (f *File) Kind() ItemKind   { return KindFile }
func (f *File) Base() *ItemBase { return &f.ItemBase }

// LogicalPath is the ancestor chain of a folder, root first, parent last.
type LogicalPath []*Folder

// Pretty renders the path of leaf below the chain as "/a/b/leaf".
func (p LogicalPath) Pretty(leaf *Folder) string {
	names := make([]string, 0, len(p)+1)
	for _, f := range p {
		names = append(names, f.Name)
	}
	if leaf != nil {
		names = append(names, leaf.Name)
	}
	return "/" + strings.Join(names, "/")
}

// Principal is the caller as seen by the auth layer.
type Principal struct {
	ID        string
	Groups    []string
	Superuser bool
}

// InGroup reports whether the principal is a member of groupID.
func (p *Principal) InGroup(groupID string) bool {
	for _, g := range p.Groups {
		if g == groupID {
			return true
		}
	}
	return false
}

// Operation is a journal entry for a mutating CLI command.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
}

// Reconciliation records a storage inconsistency that could not be rolled
// back automatically and needs manual repair.
type Reconciliation struct {
	ID        int64
	FileID    string
	Digest    string
	Area      string
	Detail    string
	CreatedAt time.Time
}
