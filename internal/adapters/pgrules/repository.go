// Package pgrules loads the rules compiler's inputs from Postgres: the
// grants and assigns the DDLX pipeline stored after parsing, and the
// per-user materialized assignment rows. It acts as a pure data mapper
// without any decision logic.
package pgrules

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/replicore/permcore/internal/permissions/domain"
	"github.com/replicore/permcore/internal/permissions/ports"
	"github.com/replicore/permcore/internal/platform/postgres"
)

// Repository implements ports.RulesSource over the ddlx_grants,
// ddlx_assigns and user_roles tables.
type Repository struct {
	repo postgres.BaseRepository
	txm  postgres.TransactionManager
}

// New creates a new Postgres rules repository. txm may be nil, in which
// case loads run as independent statements instead of one snapshot.
func New(repo postgres.BaseRepository, txm postgres.TransactionManager) *Repository {
	return &Repository{repo: repo, txm: txm}
}

// LoadRules reads the stored rules record plus userID's materialized
// assignment rows. With a transaction manager available, the three
// queries run inside one transaction so grants, assigns and roles come
// from a single consistent snapshot - a role row must never be paired
// with a rules record that already dropped its assign.
func (r *Repository) LoadRules(ctx context.Context, userID string) (domain.Rules, []domain.AssignedRoleInput, error) {
	repo := r.repo
	if r.txm != nil {
		tx, err := r.txm.BeginTx(ctx)
		if err != nil {
			return domain.Rules{}, nil, fmt.Errorf("pgrules: beginning snapshot transaction: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()
		repo = repo.WithTx(tx.Tx())

		rules, roles, err := r.load(ctx, repo, userID)
		if err != nil {
			return domain.Rules{}, nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return domain.Rules{}, nil, fmt.Errorf("pgrules: committing snapshot transaction: %w", err)
		}
		return rules, roles, nil
	}
	return r.load(ctx, repo, userID)
}

func (r *Repository) load(ctx context.Context, repo postgres.BaseRepository, userID string) (domain.Rules, []domain.AssignedRoleInput, error) {
	grants, err := r.loadGrants(ctx, repo)
	if err != nil {
		return domain.Rules{}, nil, err
	}
	assigns, err := r.loadAssigns(ctx, repo)
	if err != nil {
		return domain.Rules{}, nil, err
	}
	roles, err := r.loadRoles(ctx, repo, userID)
	if err != nil {
		return domain.Rules{}, nil, err
	}
	return domain.Rules{Grants: grants, Assigns: assigns}, roles, nil
}

func (r *Repository) loadGrants(ctx context.Context, repo postgres.BaseRepository) ([]domain.GrantSpec, error) {
	query := `
		SELECT
			table_schema, table_name, privilege, role_name,
			columns, check_expr, scope_schema, scope_table
		FROM ddlx_grants
		ORDER BY id
	`

	rows, err := repo.DB.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgrules: loading grants: %w", err)
	}
	defer rows.Close()

	var grants []domain.GrantSpec
	for rows.Next() {
		var tableSchema, tableName, privilege, roleName string
		var columns []string
		var checkExpr, scopeSchema, scopeTable pgtype.Text

		if err := rows.Scan(&tableSchema, &tableName, &privilege, &roleName,
			&columns, &checkExpr, &scopeSchema, &scopeTable); err != nil {
			return nil, fmt.Errorf("pgrules: scanning grant: %w", err)
		}

		priv, err := ParsePrivilege(privilege)
		if err != nil {
			return nil, err
		}

		spec := domain.GrantSpec{
			Table:     domain.Relation{Schema: tableSchema, Name: tableName},
			Privilege: priv,
			RoleName:  roleName,
			Columns:   columns,
		}
		if checkExpr.Valid {
			spec.Check = checkExpr.String
		}
		if scopeSchema.Valid && scopeTable.Valid {
			spec.ScopeRelation = &domain.Relation{Schema: scopeSchema.String, Name: scopeTable.String}
		}
		grants = append(grants, spec)
	}
	return grants, rows.Err()
}

func (r *Repository) loadAssigns(ctx context.Context, repo postgres.BaseRepository) ([]domain.AssignSpec, error) {
	query := `
		SELECT
			id, table_schema, table_name, user_column,
			role_name, role_column, scope_schema, scope_table, if_expr
		FROM ddlx_assigns
		ORDER BY id
	`

	rows, err := repo.DB.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgrules: loading assigns: %w", err)
	}
	defer rows.Close()

	var assigns []domain.AssignSpec
	for rows.Next() {
		var id, tableSchema, tableName, userColumn string
		var roleName, roleColumn, scopeSchema, scopeTable, ifExpr pgtype.Text

		if err := rows.Scan(&id, &tableSchema, &tableName, &userColumn,
			&roleName, &roleColumn, &scopeSchema, &scopeTable, &ifExpr); err != nil {
			return nil, fmt.Errorf("pgrules: scanning assign: %w", err)
		}

		spec := domain.AssignSpec{
			ID:         id,
			Table:      domain.Relation{Schema: tableSchema, Name: tableName},
			UserColumn: userColumn,
			RoleName:   roleName.String,
			RoleColumn: roleColumn.String,
			If:         ifExpr.String,
		}
		if scopeSchema.Valid && scopeTable.Valid {
			spec.Scope = &domain.Relation{Schema: scopeSchema.String, Name: scopeTable.String}
		}
		assigns = append(assigns, spec)
	}
	return assigns, rows.Err()
}

// loadRoles reads userID's materialized assignment rows. Rows whose
// assign no longer exists are returned as-is; the rules compiler prunes
// them, the repository does not second-guess.
func (r *Repository) loadRoles(ctx context.Context, repo postgres.BaseRepository, userID string) ([]domain.AssignedRoleInput, error) {
	query := `
		SELECT assign_id, user_id, role_name, scope_schema, scope_table, scope_id
		FROM user_roles
		WHERE user_id = $1
	`

	rows, err := repo.DB.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("pgrules: loading user roles: %w", err)
	}
	defer rows.Close()

	var roles []domain.AssignedRoleInput
	for rows.Next() {
		var assignID, user, roleName string
		var scopeSchema, scopeTable, scopeID pgtype.Text

		if err := rows.Scan(&assignID, &user, &roleName, &scopeSchema, &scopeTable, &scopeID); err != nil {
			return nil, fmt.Errorf("pgrules: scanning user role: %w", err)
		}

		role := domain.AssignedRoleInput{AssignID: assignID, UserID: user, RoleName: roleName}
		if scopeSchema.Valid && scopeTable.Valid && scopeID.Valid {
			role.Scope = &domain.Scope{
				Relation: domain.Relation{Schema: scopeSchema.String, Name: scopeTable.String},
				ID:       scopeID.String,
			}
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ParsePrivilege maps the stored privilege keyword to its enum value.
func ParsePrivilege(s string) (domain.Privilege, error) {
	switch s {
	case "INSERT":
		return domain.PrivilegeInsert, nil
	case "UPDATE":
		return domain.PrivilegeUpdate, nil
	case "DELETE":
		return domain.PrivilegeDelete, nil
	case "SELECT":
		return domain.PrivilegeSelect, nil
	default:
		return 0, fmt.Errorf("pgrules: unknown privilege %q", s)
	}
}

var _ ports.RulesSource = (*Repository)(nil)
