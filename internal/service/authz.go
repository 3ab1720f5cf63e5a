package service

import (
	"context"
	"errors"
	"slices"

	"storefront/internal/apperror"
	"storefront/internal/model"

	"github.com/google/uuid"
)

// Authorize is the single policy behind the role and ownership gates.
//
// A non-empty allowedRoles requires the subject's role to be listed. A non-nil
// ownerID restricts customers to resources they own; staff and admin pass.
func Authorize(subject *model.User, ownerID uuid.UUID, allowedRoles []string) error {
	if subject == nil {
		return apperror.New(apperror.ErrUnauthorized, "Authentication required")
	}
	if len(allowedRoles) > 0 && !slices.Contains(allowedRoles, subject.Role) {
		return apperror.New(apperror.ErrForbidden, "Insufficient role")
	}
	if ownerID != uuid.Nil && subject.Role == model.RoleCustomer && ownerID != subject.ID {
		return apperror.New(apperror.ErrForbidden, "Access denied")
	}
	return nil
}

// ResourceResolver loads a resource addressed by id and reports its owner.
type ResourceResolver interface {
	Resolve(ctx context.Context, id uuid.UUID) (resource any, ownerID uuid.UUID, err error)
}

type resolver[T any] struct {
	fetch func(ctx context.Context, id uuid.UUID) (T, error)
	owner func(T) uuid.UUID
}

// NewResolver pairs a fetch-by-id function with an owner extractor.
func NewResolver[T any](fetch func(ctx context.Context, id uuid.UUID) (T, error), owner func(T) uuid.UUID) ResourceResolver {
	return resolver[T]{fetch: fetch, owner: owner}
}

func (r resolver[T]) Resolve(ctx context.Context, id uuid.UUID) (any, uuid.UUID, error) {
	res, err := r.fetch(ctx, id)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return res, r.owner(res), nil
}

// AuthorizeResource resolves id and applies the ownership policy. Customers
// get the same denial whether or not the resource exists.
func AuthorizeResource(ctx context.Context, subject *model.User, resolver ResourceResolver, id uuid.UUID) (any, error) {
	res, ownerID, err := resolver.Resolve(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) && subject != nil && subject.Role == model.RoleCustomer {
			return nil, apperror.New(apperror.ErrForbidden, "Access denied")
		}
		return nil, err
	}
	if err := Authorize(subject, ownerID, nil); err != nil {
		return nil, err
	}
	return res, nil
}
