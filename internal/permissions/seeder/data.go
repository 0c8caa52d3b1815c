package seeder

// DefaultGrant represents a grant row to be seeded
type DefaultGrant struct {
	TableSchema string
	TableName   string
	Privilege   string
	RoleName    string
	Columns     []string
	Check       string
	ScopeSchema string
	ScopeTable  string
}

// DefaultAssign represents an assign row to be seeded
type DefaultAssign struct {
	ID          string
	TableSchema string
	TableName   string
	UserColumn  string
	RoleName    string
	RoleColumn  string
	ScopeSchema string
	ScopeTable  string
	If          string
}

// DefaultGrants defines the development rule set: a project/issue tree
// where admins manage projects, members work inside a project's scope,
// and anyone may read public project metadata.
var DefaultGrants = []DefaultGrant{
	{
		TableSchema: "public",
		TableName:   "projects",
		Privilege:   "INSERT",
		RoleName:    "admin",
	},
	{
		TableSchema: "public",
		TableName:   "projects",
		Privilege:   "UPDATE",
		RoleName:    "admin",
	},
	{
		TableSchema: "public",
		TableName:   "projects",
		Privilege:   "DELETE",
		RoleName:    "admin",
	},
	{
		TableSchema: "public",
		TableName:   "projects",
		Privilege:   "SELECT",
		RoleName:    "anyone",
		Columns:     []string{"id", "name", "visibility"},
		Check:       `visibility == "public"`,
	},
	{
		TableSchema: "public",
		TableName:   "issues",
		Privilege:   "INSERT",
		RoleName:    "member",
		ScopeSchema: "public",
		ScopeTable:  "projects",
	},
	{
		TableSchema: "public",
		TableName:   "issues",
		Privilege:   "UPDATE",
		RoleName:    "member",
		Columns:     []string{"title", "description", "status", "project_id"},
		ScopeSchema: "public",
		ScopeTable:  "projects",
	},
	{
		TableSchema: "public",
		TableName:   "issues",
		Privilege:   "SELECT",
		RoleName:    "member",
		ScopeSchema: "public",
		ScopeTable:  "projects",
	},
	{
		TableSchema: "public",
		TableName:   "project_members",
		Privilege:   "INSERT",
		RoleName:    "admin",
	},
	{
		TableSchema: "public",
		TableName:   "project_members",
		Privilege:   "SELECT",
		RoleName:    "authenticated",
	},
}

// DefaultAssigns defines how roles are computed from rows: project
// membership rows confer the member role scoped to their project;
// a site_admins row confers the unscoped admin role.
var DefaultAssigns = []DefaultAssign{
	{
		ID:          "assign-project-members",
		TableSchema: "public",
		TableName:   "project_members",
		UserColumn:  "user_id",
		RoleName:    "member",
		ScopeSchema: "public",
		ScopeTable:  "projects",
	},
	{
		ID:          "assign-site-admins",
		TableSchema: "public",
		TableName:   "site_admins",
		UserColumn:  "user_id",
		RoleName:    "admin",
	},
	{
		ID:          "assign-project-roles",
		TableSchema: "public",
		TableName:   "project_roles",
		UserColumn:  "user_id",
		RoleColumn:  "role",
		ScopeSchema: "public",
		ScopeTable:  "projects",
	},
}
