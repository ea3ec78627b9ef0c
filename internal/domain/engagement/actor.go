package engagement

import (
	"fmt"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/agreement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/tour"
)

// ActorRole identifies who is asking for a transition.
type ActorRole string

const (
	RoleBuyer    ActorRole = "buyer"
	RoleSupplier ActorRole = "supplier"
	RoleAdmin    ActorRole = "admin"
	RoleSystem   ActorRole = "system"
)

func ParseActorRole(raw string) (ActorRole, error) {
	switch r := ActorRole(raw); r {
	case RoleBuyer, RoleSupplier, RoleAdmin, RoleSystem:
		return r, nil
	default:
		return "", fmt.Errorf("unknown actor role %q", raw)
	}
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	Role ActorRole `json:"role"`
	ID   string    `json:"id"`
}

// System is the actor used by background jobs.
func System() Actor {
	return Actor{Role: RoleSystem, ID: "system"}
}

func (a Actor) String() string {
	return string(a.Role) + ":" + a.ID
}

// TourParty maps the actor onto a tour scheduling party.
func (a Actor) TourParty() (tour.Party, bool) {
	switch a.Role {
	case RoleBuyer:
		return tour.PartyBuyer, true
	case RoleSupplier:
		return tour.PartySupplier, true
	default:
		return "", false
	}
}

// SigningRole maps the actor onto an agreement signing role.
func (a Actor) SigningRole() (agreement.Role, bool) {
	switch a.Role {
	case RoleBuyer:
		return agreement.RoleBuyer, true
	case RoleSupplier:
		return agreement.RoleSupplier, true
	default:
		return "", false
	}
}
