// Package policy decides whether a role may perform an action on a resource.
package policy

import (
	"github.com/google/uuid"

	"crimesleuth/internal/model"
)

// Action is an operation gated by the policy.
type Action string

const (
	CaseCreate      Action = "case:create"
	CaseRead        Action = "case:read"
	CaseUpdate      Action = "case:update"
	CaseDelete      Action = "case:delete"
	EvidenceAdd     Action = "evidence:add"
	EvidenceRead    Action = "evidence:read"
	EvidenceUpdate  Action = "evidence:update"
	EvidenceDelete  Action = "evidence:delete"
	EvidenceAnalyze Action = "evidence:analyze"
	UserManage      Action = "user:manage"
)

// Ownership describes the acting user's relation to the resource.
type Ownership int

const (
	Other Ownership = iota
	Owner
)

// OwnershipOf returns Owner when actor created the resource.
func OwnershipOf(actorID, ownerID uuid.UUID) Ownership {
	if actorID != uuid.Nil && actorID == ownerID {
		return Owner
	}
	return Other
}

type rule struct {
	roles []model.Role
	// owner grants the action to the resource creator regardless of role.
	owner bool
}

var (
	everyone = []model.Role{model.RoleInvestigator, model.RoleAnalyst, model.RoleSupervisor, model.RoleAdmin}

	rules = map[Action]rule{
		CaseCreate:      {roles: []model.Role{model.RoleInvestigator, model.RoleSupervisor, model.RoleAdmin}},
		CaseRead:        {roles: everyone},
		CaseUpdate:      {roles: []model.Role{model.RoleSupervisor, model.RoleAdmin}, owner: true},
		CaseDelete:      {roles: []model.Role{model.RoleAdmin}, owner: true},
		EvidenceAdd:     {roles: everyone},
		EvidenceRead:    {roles: everyone},
		EvidenceUpdate:  {roles: everyone},
		EvidenceDelete:  {roles: []model.Role{model.RoleSupervisor, model.RoleAdmin}},
		EvidenceAnalyze: {roles: []model.Role{model.RoleAnalyst, model.RoleSupervisor, model.RoleAdmin}},
		UserManage:      {roles: []model.Role{model.RoleAdmin}},
	}
)

// Allow reports whether role may perform action given the ownership relation.
// Unknown roles and actions are always denied.
func Allow(role model.Role, action Action, own Ownership) bool {
	if !role.Valid() {
		return false
	}
	r, ok := rules[action]
	if !ok {
		return false
	}
	if r.owner && own == Owner {
		return true
	}
	for _, allowed := range r.roles {
		if allowed == role {
			return true
		}
	}
	return false
}
