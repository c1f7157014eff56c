package webfile

import (
	"context"
	"fmt"

	"webfile-go/internal/model"
)

// GrantPermission validates and stores a rule. Only superusers manage rules;
// a rule on an item also needs that item to exist.
func (s *Service) GrantPermission(ctx context.Context, p *model.Principal, rule *model.ItemPermission) (*model.ItemPermission, error) {
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.requireAdmin(p, "granting a permission"); err != nil {
		return nil, err
	}
	if rule.Item != nil {
		if _, err := s.item(ctx, *rule.Item); err != nil {
			return nil, err
		}
	}

	stored := *rule
	if stored.ID == "" {
		stored.ID = s.idgen.New()
	}
	if err := s.database.InsertPermission(ctx, &stored); err != nil {
		return nil, fmt.Errorf("storing permission: %w", err)
	}

	s.logger.Info("permission granted", "id", stored.ID, "rule", stored.String())
	return &stored, nil
}

// RevokePermission deletes a rule. Only superusers manage rules.
func (s *Service) RevokePermission(ctx context.Context, p *model.Principal, id string) error {
	if err := s.requireAdmin(p, "revoking a permission"); err != nil {
		return err
	}
	rule, err := s.database.GetPermission(ctx, id)
	if err != nil {
		return fmt.Errorf("loading permission: %w", err)
	}
	if rule == nil {
		return fmt.Errorf("%w: permission %s", ErrNotFound, id)
	}

	if err := s.database.DeletePermission(ctx, id); err != nil {
		return fmt.Errorf("deleting permission: %w", err)
	}

	s.logger.Info("permission revoked", "id", id, "rule", rule.String())
	return nil
}

// ListPermissions returns the rules attached to item, or the global rules
// when item is nil. Reading an item's rules needs can_read on it.
func (s *Service) ListPermissions(ctx context.Context, p *model.Principal, item *model.ItemRef) ([]*model.ItemPermission, error) {
	if item == nil {
		if err := s.requireAdmin(p, "listing global rules"); err != nil {
			return nil, err
		}
	} else {
		it, err := s.item(ctx, *item)
		if err != nil {
			return nil, err
		}
		if err := s.require(ctx, p, model.ActionRead, it); err != nil {
			return nil, err
		}
	}

	rules, err := s.database.ListPermissions(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("listing permissions: %w", err)
	}
	return rules, nil
}

// ForgetUser detaches a removed user: items they owned stay with no owner and
// rules naming them are deleted.
func (s *Service) ForgetUser(ctx context.Context, p *model.Principal, userID string) error {
	if err := s.requireAdmin(p, "forgetting a user"); err != nil {
		return err
	}
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	if err := s.database.ForgetUser(ctx, userID); err != nil {
		return fmt.Errorf("forgetting user: %w", err)
	}
	s.logger.Info("user forgotten", "user", userID)
	return nil
}
