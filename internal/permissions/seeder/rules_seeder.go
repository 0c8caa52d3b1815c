// Package seeder provides the development seeder for the rules storage:
// it creates the ddlx tables and installs a small default rule set so a
// fresh database can exercise the whole pipeline.
package seeder

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RulesSeeder handles seeding of permission rules data
type RulesSeeder struct{}

// NewRulesSeeder creates a new rules seeder
func NewRulesSeeder() *RulesSeeder {
	return &RulesSeeder{}
}

// Name returns the name of this seeder
func (s *RulesSeeder) Name() string {
	return "RulesSeeder"
}

// Seed runs the rules seeding logic. It is idempotent: tables are
// created if absent and rows conflict away on re-run.
func (s *RulesSeeder) Seed(ctx context.Context, db *pgxpool.Pool) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.createTables(ctx, tx); err != nil {
		return fmt.Errorf("failed to create rules tables: %w", err)
	}
	if err := s.seedGrants(ctx, tx); err != nil {
		return fmt.Errorf("failed to seed grants: %w", err)
	}
	if err := s.seedAssigns(ctx, tx); err != nil {
		return fmt.Errorf("failed to seed assigns: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *RulesSeeder) createTables(ctx context.Context, tx pgx.Tx) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ddlx_grants (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			table_schema TEXT NOT NULL,
			table_name TEXT NOT NULL,
			privilege TEXT NOT NULL,
			role_name TEXT NOT NULL,
			columns TEXT[],
			check_expr TEXT,
			scope_schema TEXT,
			scope_table TEXT,
			UNIQUE NULLS NOT DISTINCT (table_schema, table_name, privilege, role_name, scope_schema, scope_table)
		)`,
		`CREATE TABLE IF NOT EXISTS ddlx_assigns (
			id TEXT PRIMARY KEY,
			table_schema TEXT NOT NULL,
			table_name TEXT NOT NULL,
			user_column TEXT NOT NULL,
			role_name TEXT,
			role_column TEXT,
			scope_schema TEXT,
			scope_table TEXT,
			if_expr TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS user_roles (
			assign_id TEXT NOT NULL REFERENCES ddlx_assigns(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			role_name TEXT NOT NULL,
			scope_schema TEXT,
			scope_table TEXT,
			scope_id TEXT,
			UNIQUE NULLS NOT DISTINCT (assign_id, user_id, role_name, scope_schema, scope_table, scope_id)
		)`,
		`CREATE TABLE IF NOT EXISTS transient_permissions (
			assign_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role_name TEXT NOT NULL,
			target_schema TEXT NOT NULL,
			target_table TEXT NOT NULL,
			target_id TEXT NOT NULL,
			valid_to_lsn BIGINT NOT NULL,
			UNIQUE (assign_id, user_id, role_name, target_schema, target_table, target_id, valid_to_lsn)
		)`,
		`CREATE INDEX IF NOT EXISTS user_roles_user_idx ON user_roles (user_id)`,
		`CREATE INDEX IF NOT EXISTS transient_permissions_lsn_idx ON transient_permissions (valid_to_lsn)`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// seedGrants inserts all grants from the default rule set
func (s *RulesSeeder) seedGrants(ctx context.Context, tx pgx.Tx) error {
	batch := &pgx.Batch{}
	for _, g := range DefaultGrants {
		query := `
			INSERT INTO ddlx_grants (table_schema, table_name, privilege, role_name, columns, check_expr, scope_schema, scope_table)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT DO NOTHING
		`
		var columns []string
		if len(g.Columns) > 0 {
			columns = g.Columns
		}
		var checkExpr *string
		if g.Check != "" {
			checkExpr = &g.Check
		}
		batch.Queue(query, g.TableSchema, g.TableName, g.Privilege, g.RoleName,
			columns, checkExpr, nullable(g.ScopeSchema), nullable(g.ScopeTable))
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for range DefaultGrants {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return results.Close()
}

// seedAssigns inserts all assigns from the default rule set
func (s *RulesSeeder) seedAssigns(ctx context.Context, tx pgx.Tx) error {
	batch := &pgx.Batch{}
	for _, a := range DefaultAssigns {
		query := `
			INSERT INTO ddlx_assigns (id, table_schema, table_name, user_column, role_name, role_column, scope_schema, scope_table, if_expr)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				table_schema = EXCLUDED.table_schema,
				table_name = EXCLUDED.table_name,
				user_column = EXCLUDED.user_column,
				role_name = EXCLUDED.role_name,
				role_column = EXCLUDED.role_column,
				scope_schema = EXCLUDED.scope_schema,
				scope_table = EXCLUDED.scope_table,
				if_expr = EXCLUDED.if_expr
		`
		batch.Queue(query, a.ID, a.TableSchema, a.TableName, a.UserColumn,
			nullable(a.RoleName), nullable(a.RoleColumn),
			nullable(a.ScopeSchema), nullable(a.ScopeTable), nullable(a.If))
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for range DefaultAssigns {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return results.Close()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
