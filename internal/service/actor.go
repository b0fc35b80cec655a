package service

import (
	"strings"

	"github.com/google/uuid"

	"lootbox-hub/internal/model"
)

type Capability uint8

const (
	CapSelf Capability = 1 << iota
	CapModerator
	CapAdmin
)

type CapabilitySet uint8

func (s CapabilitySet) Has(c Capability) bool {
	return uint8(s)&uint8(c) != 0
}

// Actor is the authenticated caller of a core operation. It is built once
// per request and passed explicitly; services never read request state.
type Actor struct {
	UserID       uuid.UUID
	Capabilities CapabilitySet
}

// NewActor maps an identity from the auth layer to a capability set. Every
// actor holds CapSelf; roles add operator capabilities.
func NewActor(userID string, role string) (Actor, error) {
	uid, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil || uid == uuid.Nil {
		return Actor{}, ErrInvalidUserID
	}

	caps := CapabilitySet(CapSelf)
	switch model.UserRole(strings.ToLower(strings.TrimSpace(role))) {
	case model.UserRoleAdmin:
		caps |= CapabilitySet(CapAdmin)
	case model.UserRoleModerator:
		caps |= CapabilitySet(CapModerator)
	}

	return Actor{UserID: uid, Capabilities: caps}, nil
}

func (a Actor) Can(c Capability) bool {
	return a.UserID != uuid.Nil && a.Capabilities.Has(c)
}

// Elevated reports whether the actor may act on other users' records.
func (a Actor) Elevated() bool {
	return a.Can(CapAdmin) || a.Can(CapModerator)
}

func (a Actor) CanAccess(ownerID uuid.UUID) bool {
	if a.UserID == uuid.Nil {
		return false
	}
	return a.UserID == ownerID || a.Elevated()
}

func (a Actor) requireOperator() error {
	if !a.Elevated() {
		return forbidden()
	}
	return nil
}

func (a Actor) requireAdmin() error {
	if !a.Can(CapAdmin) {
		return forbidden()
	}
	return nil
}

func (a Actor) requireSelf() error {
	if !a.Can(CapSelf) {
		return invalidInput(ErrInvalidUserID, "missing identity")
	}
	return nil
}
