package domain

import "fmt"

// Source retains the raw compile inputs so a later partial update can
// rebuild from a merge of what changed and what didn't.
type Source struct {
	Auth  Auth
	Rules Rules
	Roles []AssignedRoleInput
}

// Permissions is the immutable-after-build value the rules compiler
// produces and the decision engine consumes. Every field except
// WriteBuffer is replaced wholesale on rebuild; WriteBuffer is the only
// field that rebinds within a single transaction's validation.
type Permissions struct {
	// Roles is the hot lookup: every TablePermission a grant exists for,
	// mapped to the RoleGrants that can satisfy it.
	Roles map[TablePermission]AssignedRoles

	// Grants is the full compiled grant list, in source order.
	Grants []*Grant

	// ScopedRoles groups scoped roles by their scope relation.
	ScopedRoles map[Relation][]Role

	// Scopes is the key set of ScopedRoles, retained separately because
	// callers frequently need "do any scoped roles exist for this
	// relation" without a map lookup through a zero-value slice.
	Scopes []Relation

	// Triggers holds the compiled per-relation ASSIGN side-effect
	// handlers.
	Triggers TriggerTable

	Auth   Auth
	Schema any // opaque handle from the schema loader; never interpreted here
	Source Source

	// WriteBuffer is the only mutable-by-rebinding field: replaced each
	// time a change is successfully applied during validation, and reset
	// when the loop-back transaction is observed via ReceiveTransaction.
	WriteBuffer WriteBuffer

	// TransientLUT is a handle to the process-wide transient-permissions
	// store; nil if the caller built Permissions without naming one.
	TransientLUT TransientStore
}

// New creates an empty Permissions for auth, not yet compiled. Call
// rules.Update to transition it to ready.
func New(auth Auth, transientLUT TransientStore) Permissions {
	return Permissions{
		Roles:        make(map[TablePermission]AssignedRoles),
		ScopedRoles:  make(map[Relation][]Role),
		Triggers:     make(TriggerTable),
		Auth:         auth,
		TransientLUT: transientLUT,
	}
}

// Bucket returns the AssignedRoles compiled for action, and whether one
// exists. A missing bucket implies deterministic denial regardless of
// graph state.
func (p *Permissions) Bucket(action TablePermission) (AssignedRoles, bool) {
	b, ok := p.Roles[action]
	return b, ok
}

// AssignedRoleValues flattens Roles into the distinct Role values it
// contains.
func (p *Permissions) AssignedRoleValues() []Role {
	seen := make(map[string]struct{})
	var out []Role
	add := func(rg RoleGrant) {
		key := roleIdentity(rg.Role)
		if rg.Role.HasScope() {
			key += fmt.Sprintf(":%v:%v", rg.Role.Scope.Relation, rg.Role.Scope.ID)
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, rg.Role)
	}
	for _, bucket := range p.Roles {
		for _, rg := range bucket.Scoped {
			add(rg)
		}
		for _, rg := range bucket.Unscoped {
			add(rg)
		}
	}
	return out
}

// RoleIdentity returns a stable key identifying a role independent of
// which grant it was matched against - used to dedupe AssignedRoleValues
// and to key pending transient roles in the write buffer. Scoped roles
// that differ only in their scope share one key; AssignedRoleValues
// adds the scope to it before deduplicating.
func RoleIdentity(r Role) string {
	return roleIdentity(r)
}

func roleIdentity(r Role) string {
	switch r.Kind {
	case RoleAnyone:
		return "anyone"
	case RoleAuthenticated:
		return "authenticated:" + r.UserID
	case RoleScoped:
		return "scoped:" + r.AssignID + ":" + r.UserID + ":" + r.Name
	default: // RoleUnscoped
		return "unscoped:" + r.AssignID + ":" + r.UserID + ":" + r.Name
	}
}
