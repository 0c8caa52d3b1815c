package domain

// Grant is compiled from a DDLX GRANT statement.
type Grant struct {
	Table         Relation
	Privilege     Privilege
	RoleName      string
	Columns       *ColumnSet     // nil: no column restriction
	Check         CheckPredicate // nil: no CHECK restriction
	ScopeRelation *Relation      // nil: grant carries no SCOPED TO clause
}

// MatchesRole reports whether this grant applies to role: names equal,
// and if both grant and role are scoped, their scope relations agree.
func (g *Grant) MatchesRole(role Role) bool {
	if g.RoleName != role.Name {
		return false
	}
	if g.ScopeRelation != nil && role.HasScope() {
		return *g.ScopeRelation == role.Scope.Relation
	}
	return true
}

// acceptsColumns applies the column rule: INSERT checks the record's
// keys, UPDATE the changed columns, DELETE nothing.
func (g *Grant) acceptsColumns(columns []string) bool {
	if g.Columns == nil {
		return true
	}
	return g.Columns.ContainsAll(columns)
}

// acceptsCheck applies the CHECK rule: no predicate means unconditional
// accept; a predicate must evaluate truthy.
func (g *Grant) acceptsCheck(change Change) (bool, error) {
	if g.Check == nil {
		return true, nil
	}
	return g.Check.Evaluate(change)
}

// Accepts applies both the column rule and the CHECK rule for a
// candidate change, with columns already narrowed to the relevant set
// for the change kind (record keys, changed columns, or none).
func (g *Grant) Accepts(change Change, columns []string) (bool, error) {
	if !g.acceptsColumns(columns) {
		return false, nil
	}
	return g.acceptsCheck(change)
}

// RoleGrant pairs a role the caller holds with a grant it satisfies -
// the primary matchable unit of the decision engine.
type RoleGrant struct {
	Role  Role
	Grant *Grant
}

// AssignedRoles splits the RoleGrants for one TablePermission into those
// that need a scope check and those that don't. Unscoped can be tested
// without graph traversal, so it is checked first.
type AssignedRoles struct {
	Scoped   []RoleGrant
	Unscoped []RoleGrant
}

// Add classifies grant into the scoped or unscoped bucket based on the
// role variant (not the grant's own ScopeRelation - Anyone/Authenticated
// and the Unscoped role variant all need no graph traversal).
func (a *AssignedRoles) Add(rg RoleGrant) {
	if rg.Role.Kind == RoleScoped {
		a.Scoped = append(a.Scoped, rg)
	} else {
		a.Unscoped = append(a.Unscoped, rg)
	}
}
