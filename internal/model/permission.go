package model

import (
	"errors"
	"fmt"
	"strings"
)

// PermissionType scopes a rule.
type PermissionType int

const (
	TypeAll      PermissionType = 0 // every item; Item must be nil
	TypeThis     PermissionType = 1 // the item only
	TypeChildren PermissionType = 2 // the item and all of its descendants
)

func (t PermissionType) String() string {
	switch t {
	case TypeAll:
		return "all items"
	case TypeThis:
		return "this item only"
	case TypeChildren:
		return "this item and all children"
	default:
		return fmt.Sprintf("PermissionType(%d)", int(t))
	}
}

// ParsePermissionType accepts "all", "this" or "children".
func ParsePermissionType(s string) (PermissionType, error) {
	switch strings.ToLower(s) {
	case "all":
		return TypeAll, nil
	case "this":
		return TypeThis, nil
	case "children":
		return TypeChildren, nil
	default:
		return 0, fmt.Errorf("unknown permission type: %q", s)
	}
}

// Verdict is the value of one action column. Unset rules are skipped.
type Verdict int

const (
	Unset Verdict = iota
	Allow
	Deny
)

// ParseVerdict accepts "allow", "deny" or "" (unset).
func ParseVerdict(s string) (Verdict, error) {
	switch strings.ToLower(s) {
	case "":
		return Unset, nil
	case "allow":
		return Allow, nil
	case "deny":
		return Deny, nil
	default:
		return Unset, fmt.Errorf("unknown verdict: %q", s)
	}
}

// Action is what a principal wants to do with an item.
type Action string

const (
	ActionRead        Action = "can_read"
	ActionEdit        Action = "can_edit"
	ActionAddChildren Action = "can_add_children"
)

// SubjectKind tags the Subject union.
type SubjectKind string

const (
	SubjectUser      SubjectKind = "user"
	SubjectGroup     SubjectKind = "group"
	SubjectEverybody SubjectKind = "everybody"
)

// Subject is who a rule applies to: one user, one group, or everybody.
type Subject struct {
	Kind SubjectKind
	ID   string // user or group ID; empty for everybody
}

func UserSubject(id string) Subject  { return Subject{Kind: SubjectUser, ID: id} }
func GroupSubject(id string) Subject { return Subject{Kind: SubjectGroup, ID: id} }
func Everybody() Subject             { return Subject{Kind: SubjectEverybody} }

// Matches reports whether the subject covers the principal.
func (s Subject) Matches(p *Principal) bool {
	switch s.Kind {
	case SubjectEverybody:
		return true
	case SubjectUser:
		return s.ID == p.ID
	case SubjectGroup:
		return p.InGroup(s.ID)
	default:
		return false
	}
}

func (s Subject) String() string {
	switch s.Kind {
	case SubjectEverybody:
		return "Everybody"
	case SubjectGroup:
		return "Group: " + s.ID
	default:
		return "User: " + s.ID
	}
}

// ItemPermission is one allow/deny rule.
type ItemPermission struct {
	ID             string
	Item           *ItemRef
	Type           PermissionType
	Subject        Subject
	CanEdit        Verdict
	CanRead        Verdict
	CanAddChildren Verdict
}

// Verdict returns the rule's value for an action.
func (p *ItemPermission) Verdict(a Action) Verdict {
	switch a {
	case ActionRead:
		return p.CanRead
	case ActionEdit:
		return p.CanEdit
	case ActionAddChildren:
		return p.CanAddChildren
	default:
		return Unset
	}
}

var (
	ErrPermissionItemWithAll    = errors.New(`item cannot be selected with type "all items"`)
	ErrPermissionItemRequired   = errors.New(`item has to be selected when type is not "all items"`)
	ErrPermissionSubject        = errors.New(`exactly one of user, group, or "everybody" has to be selected`)
	ErrPermissionUnknownType    = errors.New("unknown permission type")
	ErrPermissionUnknownVerdict = errors.New("unknown verdict")
)

// Validate checks type/item consistency and the subject union.
func (p *ItemPermission) Validate() error {
	switch p.Type {
	case TypeAll:
		if p.Item != nil {
			return ErrPermissionItemWithAll
		}
	case TypeThis, TypeChildren:
		if p.Item == nil || p.Item.ID == "" {
			return ErrPermissionItemRequired
		}
	default:
		return ErrPermissionUnknownType
	}

	switch p.Subject.Kind {
	case SubjectEverybody:
		if p.Subject.ID != "" {
			return ErrPermissionSubject
		}
	case SubjectUser, SubjectGroup:
		if p.Subject.ID == "" {
			return ErrPermissionSubject
		}
	default:
		return ErrPermissionSubject
	}

	for _, v := range []Verdict{p.CanEdit, p.CanRead, p.CanAddChildren} {
		if v < Unset || v > Deny {
			return ErrPermissionUnknownVerdict
		}
	}
	return nil
}

func (p *ItemPermission) String() string {
	name := "All items"
	if p.Item != nil {
		name = fmt.Sprintf("%s %s", p.Item.Kind, p.Item.ID)
	}

	var perms []string
	for _, col := range []struct {
		name string
		v    Verdict
	}{
		{"can_edit", p.CanEdit},
		{"can_read", p.CanRead},
		{"can_add_children", p.CanAddChildren},
	} {
		switch col.v {
		case Allow:
			perms = append(perms, col.name)
		case Deny:
			perms = append(perms, "!"+col.name)
		}
	}

	return fmt.Sprintf("Item: '%s'->%s [%s] [%s]", name, p.Type, strings.Join(perms, ", "), p.Subject)
}
