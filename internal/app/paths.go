package app

import (
	"context"
	"fmt"
	"path"
	"strings"

	"webfile-go/internal/model"
	"webfile-go/internal/webfile"
)

// cleanPath normalizes a slash path and returns its segments. "/" and ""
// have none.
func cleanPath(p string) []string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// splitPath returns the parent path and the last segment of p.
func splitPath(p string) (string, string, error) {
	segs := cleanPath(p)
	if len(segs) == 0 {
		return "", "", fmt.Errorf("%w: path %q names the top level", webfile.ErrInvalidInput, p)
	}
	return "/" + strings.Join(segs[:len(segs)-1], "/"), segs[len(segs)-1], nil
}

// resolveFolder walks the folder tree along a slash path. The top level
// resolves to nil.
func (a *WebfileApp) resolveFolder(ctx context.Context, p *model.Principal, dest string) (*string, error) {
	var cur *string
	for i, seg := range cleanPath(dest) {
		listing, err := a.service.ListFolder(ctx, p, cur)
		if err != nil {
			return nil, err
		}
		next := childFolder(listing, seg)
		if next == nil {
			return nil, fmt.Errorf("%w: folder %q", webfile.ErrNotFound, "/"+strings.Join(cleanPath(dest)[:i+1], "/"))
		}
		cur = &next.ID
	}
	return cur, nil
}

func childFolder(l *webfile.Listing, name string) *model.Folder {
	for _, e := range l.Folders {
		if e.Folder.Name == name {
			return e.Folder
		}
	}
	return nil
}

// ensureFolder resolves the chain of folder names below parent, creating the
// ones that do not exist yet.
func (a *WebfileApp) ensureFolder(ctx context.Context, p *model.Principal, parent *string, rel string, public *bool) (*string, error) {
	cur := parent
	for _, seg := range cleanPath(rel) {
		listing, err := a.service.ListFolder(ctx, p, cur)
		if err != nil {
			return nil, err
		}
		if next := childFolder(listing, seg); next != nil {
			cur = &next.ID
			continue
		}
		created, err := a.service.CreateFolder(ctx, p, webfile.CreateFolderRequest{Name: seg, ParentID: cur, IsPublic: public})
		if err != nil {
			return nil, err
		}
		cur = &created.ID
	}
	return cur, nil
}

// itemRef interprets a command-line item argument. Arguments starting with
// "/" are folder paths; anything else is a file ID.
func (a *WebfileApp) itemRef(ctx context.Context, p *model.Principal, arg string) (model.ItemRef, error) {
	if !strings.HasPrefix(arg, "/") {
		return model.ItemRef{Kind: model.KindFile, ID: arg}, nil
	}
	id, err := a.resolveFolder(ctx, p, arg)
	if err != nil {
		return model.ItemRef{}, err
	}
	if id == nil {
		return model.ItemRef{}, fmt.Errorf("%w: the top level is not an item", webfile.ErrInvalidInput)
	}
	return model.ItemRef{Kind: model.KindFolder, ID: *id}, nil
}
