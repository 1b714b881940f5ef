package memberships

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/tablepay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepay-backend/pkg/errors"
)

type roleLookup interface {
	UserHasRole(ctx context.Context, userID, storeID uuid.UUID, roles ...enums.MemberRole) (bool, error)
}

// Checker answers store permission questions for services.
type Checker struct {
	repo roleLookup
}

// NewChecker wraps a membership repository.
func NewChecker(repo *Repository) *Checker {
	return &Checker{repo: repo}
}

// CheckStorePermission returns a forbidden error unless actorID holds one of
// roles in storeID.
func (c *Checker) CheckStorePermission(ctx context.Context, actorID, storeID uuid.UUID, roles ...enums.MemberRole) error {
	if actorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor is required")
	}
	ok, err := c.repo.UserHasRole(ctx, actorID, storeID, roles...)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check store membership")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "insufficient store role")
	}
	return nil
}
