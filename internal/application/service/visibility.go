package service

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/domain/entity"
	"github.com/garyjia/expense-portal/pkg/apperr"
)

// VisibilityResolver decides which owners' rows a caller may see
type VisibilityResolver interface {
	// ResolveScope returns self for employees, the team for managers
	// (their own rows excluded) and everything for admins
	ResolveScope(ctx context.Context, actor entity.Actor) (entity.Scope, error)

	// TeamIDs returns the ids of the users managed by managerID
	TeamIDs(ctx context.Context, managerID int64) ([]int64, error)

	// CanView reports whether actor may read a row owned by ownerID.
	// Managers may also read their own rows.
	CanView(ctx context.Context, actor entity.Actor, ownerID int64) (bool, error)
}

type visibilityResolver struct {
	users port.UserRepository
}

// NewVisibilityResolver creates a resolver over the user hierarchy
func NewVisibilityResolver(users port.UserRepository) VisibilityResolver {
	return &visibilityResolver{users: users}
}

func (r *visibilityResolver) ResolveScope(ctx context.Context, actor entity.Actor) (entity.Scope, error) {
	switch actor.Role {
	case entity.RoleAdmin:
		return entity.AllScope(), nil
	case entity.RoleManager:
		ids, err := r.TeamIDs(ctx, actor.ID)
		if err != nil {
			return entity.Scope{}, err
		}
		return entity.OwnersScope(ids...), nil
	case entity.RoleEmployee:
		return entity.OwnersScope(actor.ID), nil
	default:
		return entity.Scope{}, apperr.Forbidden("unknown role %q", actor.Role)
	}
}

func (r *visibilityResolver) TeamIDs(ctx context.Context, managerID int64) ([]int64, error) {
	team, err := r.users.ListByManager(ctx, managerID)
	if err != nil {
		return nil, apperr.Internal(err, "load team")
	}

	ids := make([]int64, 0, len(team))
	for _, u := range team {
		// a self-managed account never counts as its own team
		if u.ID != managerID {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (r *visibilityResolver) CanView(ctx context.Context, actor entity.Actor, ownerID int64) (bool, error) {
	if actor.IsManager() && ownerID == actor.ID {
		return true, nil
	}
	scope, err := r.ResolveScope(ctx, actor)
	if err != nil {
		return false, fmt.Errorf("resolve scope: %w", err)
	}
	return scope.Allows(ownerID), nil
}
