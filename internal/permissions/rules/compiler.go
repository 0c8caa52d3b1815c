// Package rules turns a compiled DDLX rules record plus materialized
// assignment rows into the immutable lookup tables a domain.Permissions
// value exposes - the "rules compiler" of the core's component design.
package rules

import (
	"context"
	"fmt"

	"github.com/replicore/permcore/internal/permissions/domain"
	"github.com/replicore/permcore/internal/permissions/ports"
	"github.com/replicore/permcore/internal/permissions/trigger"
	"github.com/replicore/permcore/internal/platform/logger"
)

// New creates an empty Permissions for auth. Call Update to compile it.
func New(auth domain.Auth, transientLUT ports.TransientStore) domain.Permissions {
	return domain.New(auth, transientLUT)
}

// Update merges any overrides in partial over perms' retained Source,
// then performs the full compile, returning a new
// Permissions. The original perms is left untouched (replace, not
// mutate).
type Partial struct {
	Schema any // nil: keep perms.Schema
	Rules  *domain.Rules
	Roles  []domain.AssignedRoleInput // nil: keep perms.Source.Roles
}

func Update(ctx context.Context, perms domain.Permissions, partial Partial, checker ports.CheckCompiler, log logger.Logger) (domain.Permissions, error) {
	schema := perms.Schema
	if partial.Schema != nil {
		schema = partial.Schema
	}
	rulesIn := perms.Source.Rules
	if partial.Rules != nil {
		rulesIn = *partial.Rules
	}
	roles := perms.Source.Roles
	if partial.Roles != nil {
		roles = partial.Roles
	}

	next, err := build(ctx, perms.Auth, schema, rulesIn, roles, checker, log)
	if err != nil {
		return domain.Permissions{}, err
	}
	next.TransientLUT = perms.TransientLUT
	// The write buffer survives a rules rebuild mid-transaction: the
	// overlay still describes pending changes the caller hasn't received
	// back yet, and is independent of which rules are compiled.
	next.WriteBuffer = perms.WriteBuffer
	return next, nil
}

// build performs the full compile and returns a freshly compiled
// Permissions. It never mutates its inputs.
func build(ctx context.Context, auth domain.Auth, schema any, rulesIn domain.Rules, rolesIn []domain.AssignedRoleInput, checker ports.CheckCompiler, log logger.Logger) (domain.Permissions, error) {
	// Step 1: prune stale roles - drop any Role whose assign_id is not
	// among the current assigns.
	validAssigns := make(map[string]struct{}, len(rulesIn.Assigns))
	for _, a := range rulesIn.Assigns {
		validAssigns[a.ID] = struct{}{}
	}

	var roles []domain.Role
	for _, r := range rolesIn {
		if _, ok := validAssigns[r.AssignID]; !ok {
			if log != nil {
				log.Debug(ctx, "rules: pruning stale role", "assign_id", r.AssignID, "user_id", r.UserID)
			}
			continue
		}
		if r.Scope != nil {
			roles = append(roles, domain.NewScopedRole(r.AssignID, r.UserID, r.RoleName, *r.Scope))
		} else {
			roles = append(roles, domain.NewUnscopedRole(r.AssignID, r.UserID, r.RoleName))
		}
	}

	// Step 2: inject synthetic roles.
	roles = append(roles, domain.NewAnyoneRole())
	if auth.UserID != nil {
		roles = append(roles, domain.NewAuthenticatedRole(*auth.UserID))
	}

	// Step 3: compile grants.
	grants := make([]*domain.Grant, 0, len(rulesIn.Grants))
	for _, gs := range rulesIn.Grants {
		grant := &domain.Grant{
			Table:         gs.Table,
			Privilege:     gs.Privilege,
			RoleName:      gs.RoleName,
			ScopeRelation: gs.ScopeRelation,
		}
		if gs.Columns != nil {
			grant.Columns = domain.NewColumnSet(gs.Columns)
		}
		if gs.Check != "" {
			if checker == nil {
				return domain.Permissions{}, fmt.Errorf("rules: grant on %s carries a CHECK clause but no check compiler was configured", gs.Table)
			}
			pred, err := checker.Compile(gs.Table, gs.Check)
			if err != nil {
				return domain.Permissions{}, fmt.Errorf("rules: compiling grant on %s: %w", gs.Table, err)
			}
			grant.Check = pred
		}
		grants = append(grants, grant)
	}

	// Steps 4-6: match roles to grants, invert, classify.
	lookup := make(map[domain.TablePermission]domain.AssignedRoles)
	for _, role := range roles {
		for _, grant := range grants {
			if !grant.MatchesRole(role) {
				continue
			}
			key := domain.TablePermission{Relation: grant.Table, Privilege: grant.Privilege}
			bucket := lookup[key]
			bucket.Add(domain.RoleGrant{Role: role, Grant: grant})
			lookup[key] = bucket
		}
	}

	// Step 7: group scoped roles by scope relation.
	scopedRoles := make(map[domain.Relation][]domain.Role)
	for _, role := range roles {
		if role.HasScope() {
			scopedRoles[role.Scope.Relation] = append(scopedRoles[role.Scope.Relation], role)
		}
	}
	scopes := make([]domain.Relation, 0, len(scopedRoles))
	for rel := range scopedRoles {
		scopes = append(scopes, rel)
	}

	// Step 8: compile assign triggers.
	triggers, err := trigger.Compile(rulesIn.Assigns, checker)
	if err != nil {
		return domain.Permissions{}, fmt.Errorf("rules: compiling triggers: %w", err)
	}

	if log != nil {
		log.Info(ctx, "rules: compiled permissions",
			"grants", len(grants), "roles", len(roles), "scopes", len(scopes))
	}

	return domain.Permissions{
		Roles:       lookup,
		Grants:      grants,
		ScopedRoles: scopedRoles,
		Scopes:      scopes,
		Triggers:    triggers,
		Auth:        auth,
		Schema:      schema,
		Source: domain.Source{
			Auth:  auth,
			Rules: rulesIn,
			Roles: rolesIn,
		},
	}, nil
}

// AssignedRoleValues lists the distinct roles perms compiled in.
func AssignedRoleValues(perms domain.Permissions) []domain.Role {
	return perms.AssignedRoleValues()
}
