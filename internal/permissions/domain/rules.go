package domain

// Auth identifies the session a Permissions value is built for.
type Auth struct {
	UserID *string
	Claims map[string]any
}

// UserIDOrEmpty returns the authenticated user id, or "" if auth is
// anonymous.
func (a Auth) UserIDOrEmpty() string {
	if a.UserID == nil {
		return ""
	}
	return *a.UserID
}

// GrantSpec is the raw, uncompiled form of a DDLX GRANT statement, as it
// arrives in the rules input.
type GrantSpec struct {
	Table         Relation
	Privilege     Privilege
	RoleName      string
	Columns       []string // nil: unrestricted
	Check         string   // "": no CHECK clause
	ScopeRelation *Relation
}

// AssignSpec is the raw form of a DDLX ASSIGN statement: it computes,
// from database rows, which roles a user holds.
type AssignSpec struct {
	ID         string
	Table      Relation
	UserColumn string
	RoleName   string // literal role name; mutually exclusive with RoleColumn
	RoleColumn string // role name read from a column instead
	Scope      *Relation
	If         string // optional guard expression
}

// Rules is the compiled-from-DDLX rules record the rules compiler
// consumes.
type Rules struct {
	Grants  []GrantSpec
	Assigns []AssignSpec
}

// AssignedRoleInput is one materialized assignment row: the roles input
// to the rules compiler.
type AssignedRoleInput struct {
	AssignID string
	UserID   string
	RoleName string
	Scope    *Scope
}
