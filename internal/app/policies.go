package app

import (
	"github.com/choreboard/choreboard/internal/chores"
	"github.com/choreboard/choreboard/internal/identity"
	"github.com/choreboard/choreboard/internal/kids"
	"github.com/choreboard/choreboard/internal/policy"
)

// PolicyMigrations is the ordered, monotonic history of authorization rule
// sets. A later migration for the same resource/action fully replaces the
// earlier set. Append only; never renumber or reuse a version.
func PolicyMigrations() []policy.Migration {
	return []policy.Migration{
		{Version: 1, Name: "principals_select_parent", Resource: kids.ResourcePrincipals, Action: policy.ActionSelect,
			Rules: []policy.Rule{policy.RoleGated("principals_parent_select", identity.RoleParent)}},
		{Version: 2, Name: "principals_insert_parent", Resource: kids.ResourcePrincipals, Action: policy.ActionInsert,
			Rules: []policy.Rule{policy.RoleGated("principals_parent_insert", identity.RoleParent)}},
		{Version: 3, Name: "principals_update_parent", Resource: kids.ResourcePrincipals, Action: policy.ActionUpdate,
			Rules: []policy.Rule{policy.RoleGated("principals_parent_update", identity.RoleParent)}},

		{Version: 4, Name: "chores_select_parent", Resource: chores.ResourceChores, Action: policy.ActionSelect,
			Rules: []policy.Rule{policy.RoleGated("chores_parent_select", identity.RoleParent)}},
		{Version: 5, Name: "chores_insert_parent", Resource: chores.ResourceChores, Action: policy.ActionInsert,
			Rules: []policy.Rule{policy.RoleGated("chores_parent_insert", identity.RoleParent)}},
		{Version: 6, Name: "chores_update_parent", Resource: chores.ResourceChores, Action: policy.ActionUpdate,
			Rules: []policy.Rule{policy.RoleGated("chores_parent_update", identity.RoleParent)}},
		{Version: 7, Name: "chores_delete_parent", Resource: chores.ResourceChores, Action: policy.ActionDelete,
			Rules: []policy.Rule{policy.RoleGated("chores_parent_delete", identity.RoleParent)}},

		{Version: 8, Name: "assignments_select_owner_or_parent", Resource: chores.ResourceAssignments, Action: policy.ActionSelect,
			Rules: []policy.Rule{
				policy.OwnerOnly("assignments_owner_select"),
				policy.RoleGated("assignments_parent_select", identity.RoleParent),
			}},
		{Version: 9, Name: "assignments_insert_parent", Resource: chores.ResourceAssignments, Action: policy.ActionInsert,
			Rules: []policy.Rule{policy.RoleGated("assignments_parent_insert", identity.RoleParent)}},
		{Version: 10, Name: "assignments_update_owner_or_parent", Resource: chores.ResourceAssignments, Action: policy.ActionUpdate,
			Rules: []policy.Rule{
				policy.OwnerOnly("assignments_owner_update"),
				policy.RoleGated("assignments_parent_update", identity.RoleParent),
			}},
		{Version: 11, Name: "assignments_delete_parent", Resource: chores.ResourceAssignments, Action: policy.ActionDelete,
			Rules: []policy.Rule{policy.RoleGated("assignments_parent_delete", identity.RoleParent)}},
	}
}

// NewPolicyEngine builds the engine with the full migration history applied.
// observe, when non-nil, receives every decision (wired to metrics in main).
func NewPolicyEngine(observe func(resource, action string, allowed bool)) (*policy.Engine, error) {
	engine := policy.NewEngine()
	if observe != nil {
		engine.Observer = func(resource string, action policy.Action, allowed bool) {
			observe(resource, string(action), allowed)
		}
	}
	if err := engine.Apply(PolicyMigrations()...); err != nil {
		return nil, err
	}
	return engine, nil
}
