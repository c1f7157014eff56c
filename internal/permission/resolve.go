// Package permission computes the effective access grant of a principal from
// allow/deny rules over the folder tree.
//
// Resolution is a pure function of a Snapshot (rules + forest read in one
// transaction). Allow and deny verdicts are accumulated into two independent
// sets and the result is their difference: a deny for an ID always wins over
// an allow for the same ID, whatever the rule scope or order.
package permission

import (
	"sort"

	"webfile-go/internal/model"
	"webfile-go/internal/tree"
)

// Snapshot is a consistent view of the rules and the folder tree.
type Snapshot struct {
	Rules  []*model.ItemPermission
	Forest *tree.Forest
}

// Options control a single resolution.
type Options struct {
	// Enabled is false when permission checking is globally disabled.
	Enabled bool

	// Trace, when set, is called for every rule that contributes a verdict,
	// in evaluation order.
	Trace func(rule *model.ItemPermission, verdict model.Verdict, affected int)
}

// Grant is the outcome of a resolution: either access to everything or an
// explicit set of item IDs.
type Grant struct {
	all     bool
	denyAll bool
	allowed map[string]struct{}
	denied  map[string]struct{}
}

// AllGrant returns the grant that allows everything.
func AllGrant() Grant { return Grant{all: true} }

// All reports whether the grant allows everything.
func (g Grant) All() bool { return g.all }

// Has reports whether id is allowed.
func (g Grant) Has(id string) bool {
	if g.all {
		return true
	}
	_, ok := g.allowed[id]
	return ok
}

// Denied reports whether a rule explicitly denied id. After a global deny
// every id is denied.
func (g Grant) Denied(id string) bool {
	if g.all {
		return false
	}
	if g.denyAll {
		return true
	}
	_, ok := g.denied[id]
	return ok
}

// IDs returns the allowed IDs sorted. It is nil for an all-grant.
func (g Grant) IDs() []string {
	if g.all {
		return nil
	}
	out := make([]string, 0, len(g.allowed))
	for id := range g.allowed {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of allowed IDs, or -1 for an all-grant.
func (g Grant) Len() int {
	if g.all {
		return -1
	}
	return len(g.allowed)
}

// Resolve computes the grant of p for action over snap.
//
// Superusers and disabled checking short-circuit to AllGrant before any rule
// is looked at. A principal with no matching rules gets an empty grant.
// A global deny also removes allows granted on individual items.
func Resolve(snap *Snapshot, p *model.Principal, action model.Action, opts Options) Grant {
	if !opts.Enabled || p.Superuser {
		return AllGrant()
	}

	allow := make(map[string]struct{})
	deny := make(map[string]struct{})
	descendants := make(map[string][]string)
	denyAll := false

	for _, rule := range orderRules(snap, p) {
		v := rule.Verdict(action)
		if v == model.Unset {
			continue
		}
		target := allow
		if v == model.Deny {
			target = deny
		}

		var ids []string
		switch {
		case rule.Type == model.TypeAll:
			ids = snap.Forest.IDs()
			if v == model.Deny {
				denyAll = true
			}
		case rule.Type == model.TypeChildren && rule.Item.Kind == model.KindFolder:
			d, ok := descendants[rule.Item.ID]
			if !ok {
				d = snap.Forest.Descendants(rule.Item.ID)
				descendants[rule.Item.ID] = d
			}
			ids = append([]string{rule.Item.ID}, d...)
		default:
			ids = []string{rule.Item.ID}
		}

		for _, id := range ids {
			target[id] = struct{}{}
		}
		if opts.Trace != nil {
			opts.Trace(rule, v, len(ids))
		}
	}

	if denyAll {
		clear(allow)
	}
	for id := range deny {
		delete(allow, id)
	}
	return Grant{denyAll: denyAll, allowed: allow, denied: deny}
}

// orderRules keeps the rules that match p, ordered broad to specific:
// global rules first, then folder rules by tree position, then file rules.
func orderRules(snap *Snapshot, p *model.Principal) []*model.ItemPermission {
	var matched []*model.ItemPermission
	for _, r := range snap.Rules {
		if r.Subject.Matches(p) {
			matched = append(matched, r)
		}
	}

	rank := func(r *model.ItemPermission) (int, int64, string) {
		switch {
		case r.Item == nil:
			return 0, 0, r.ID
		case r.Item.Kind == model.KindFolder:
			b, _ := snap.Forest.Bounds(r.Item.ID)
			return 1, b.Left, r.ID
		default:
			return 2, 0, r.Item.ID + "/" + r.ID
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		ci, li, si := rank(matched[i])
		cj, lj, sj := rank(matched[j])
		if ci != cj {
			return ci < cj
		}
		if li != lj {
			return li < lj
		}
		return si < sj
	})
	return matched
}

// FileAllowed decides access to a file given the grant for the same action.
// Rules on the file itself take part in the grant like any other item, so a
// file is allowed when it is granted directly, or when its folder is granted
// and no rule denied the file.
func FileAllowed(g Grant, file *model.File) bool {
	if g.All() || g.Has(file.ID) {
		return true
	}
	if g.Denied(file.ID) || file.FolderID == nil {
		return false
	}
	return g.Has(*file.FolderID)
}

// FileDenied reports whether an explicit deny covers file: the file itself is
// denied, or its folder is denied and no rule allows the file directly.
func FileDenied(g Grant, file *model.File) bool {
	if g.All() {
		return false
	}
	if g.Denied(file.ID) {
		return true
	}
	return file.FolderID != nil && g.Denied(*file.FolderID) && !g.Has(file.ID)
}
