package services

import (
	"slices"

	"github.com/kendall-kelly/service-spot-api/models"
)

// Actor is the authenticated caller of a service operation. Its role comes
// from the session and is never parsed from request input.
type Actor struct {
	ID   uint
	Role models.Role
}

// Capability is a conjunction: when Roles is set the actor's role must be in
// it, and when Owners is set the actor's id must be one of them.
type Capability struct {
	Roles  []models.Role
	Owners []uint
}

// AnyRole allows actors holding one of roles
func AnyRole(roles ...models.Role) Capability {
	return Capability{Roles: roles}
}

// OwnerOf allows actors whose id equals one of the entity's owner fields
func OwnerOf(ids ...uint) Capability {
	return Capability{Owners: ids}
}

// WithRole narrows c to actors that also hold one of roles
func (c Capability) WithRole(roles ...models.Role) Capability {
	c.Roles = append(slices.Clone(c.Roles), roles...)
	return c
}

func (c Capability) allows(actor *Actor) bool {
	if len(c.Roles) == 0 && len(c.Owners) == 0 {
		return false
	}
	if len(c.Roles) > 0 && !slices.Contains(c.Roles, actor.Role) {
		return false
	}
	if len(c.Owners) > 0 && !slices.Contains(c.Owners, actor.ID) {
		return false
	}
	return true
}

// Authorize allows actor when any of caps is satisfied. A nil actor fails
// Unauthenticated; a denial fails Forbidden.
func Authorize(actor *Actor, caps ...Capability) error {
	if actor == nil || actor.ID == 0 || !actor.Role.Valid() {
		return newError(KindUnauthenticated, "authentication required")
	}
	for _, c := range caps {
		if c.allows(actor) {
			return nil
		}
	}
	return newError(KindForbidden, "you do not have permission to perform this action")
}
