// Package pgtransient is the Postgres-backed transient-permissions
// store: the process-wide LUT shared by many reader processes
// when a deployment spans more than one. The database's MVCC supplies
// the many-readers/serializable-writer contract the in-process MemStore
// gets from its RWMutex.
package pgtransient

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/replicore/permcore/internal/permissions/domain"
	"github.com/replicore/permcore/internal/platform/postgres"
)

// Store reads transient permissions from the transient_permissions
// table. The adjacent subsystem that materializes transients owns the
// writes; Put exists for it (and for seeding), the core only calls
// ForRoles.
type Store struct {
	repo postgres.BaseRepository
}

// New returns a store over repo.
func New(repo postgres.BaseRepository) *Store {
	return &Store{repo: repo}
}

// ForRoles implements domain.TransientStore: for each candidate role
// grant, the transient permission still valid at lsn, if any. One query
// for the whole candidate set; rows are matched back to their RoleGrant
// by (assign_id, user_id, role_name).
func (s *Store) ForRoles(ctx context.Context, roleGrants []domain.RoleGrant, lsn int64) (map[domain.RoleGrant]domain.Transient, error) {
	candidates := make(map[string][]domain.RoleGrant)
	or := sq.Or{}
	for _, rg := range roleGrants {
		if !rg.Role.FromAssign() {
			continue
		}
		key := roleKey(rg.Role.AssignID, rg.Role.UserID, rg.Role.Name)
		if _, ok := candidates[key]; !ok {
			or = append(or, sq.Eq{
				"assign_id": rg.Role.AssignID,
				"user_id":   rg.Role.UserID,
				"role_name": rg.Role.Name,
			})
		}
		candidates[key] = append(candidates[key], rg)
	}
	if len(or) == 0 {
		return map[domain.RoleGrant]domain.Transient{}, nil
	}

	query, args, err := s.repo.SB.
		Select("assign_id", "user_id", "role_name", "target_schema", "target_table", "target_id", "valid_to_lsn").
		From("transient_permissions").
		Where(or).
		Where(sq.GtOrEq{"valid_to_lsn": lsn}).
		OrderBy("valid_to_lsn").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("pgtransient: building query: %w", err)
	}

	rows, err := s.repo.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgtransient: querying transient permissions: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.RoleGrant]domain.Transient)
	for rows.Next() {
		var assignID, userID, roleName, targetSchema, targetTable, targetID string
		var validTo int64
		if err := rows.Scan(&assignID, &userID, &roleName, &targetSchema, &targetTable, &targetID, &validTo); err != nil {
			return nil, fmt.Errorf("pgtransient: scanning row: %w", err)
		}
		tr := domain.Transient{
			TargetRelation: domain.Relation{Schema: targetSchema, Name: targetTable},
			TargetID:       targetID,
			ValidToLSN:     validTo,
		}
		for _, rg := range candidates[roleKey(assignID, userID, roleName)] {
			if _, taken := out[rg]; !taken {
				out[rg] = tr
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgtransient: reading rows: %w", err)
	}
	return out, nil
}

// Put inserts one transient permission. Used by the materializing
// subsystem and by seeding; idempotent on the full row.
func (s *Store) Put(ctx context.Context, role domain.Role, tr domain.Transient) error {
	query, args, err := s.repo.SB.
		Insert("transient_permissions").
		Columns("assign_id", "user_id", "role_name", "target_schema", "target_table", "target_id", "valid_to_lsn").
		Values(role.AssignID, role.UserID, role.Name,
			tr.TargetRelation.Schema, tr.TargetRelation.Name, fmt.Sprintf("%v", tr.TargetID), tr.ValidToLSN).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("pgtransient: building insert: %w", err)
	}
	if _, err := s.repo.DB.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("pgtransient: inserting transient permission: %w", err)
	}
	return nil
}

// Expire deletes rows whose validity ended strictly before lsn. Callers
// run it periodically; the LSN bound in ForRoles keeps correctness even
// if they never do.
func (s *Store) Expire(ctx context.Context, lsn int64) (int64, error) {
	query, args, err := s.repo.SB.
		Delete("transient_permissions").
		Where(sq.Lt{"valid_to_lsn": lsn}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("pgtransient: building expiry: %w", err)
	}
	tag, err := s.repo.DB.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("pgtransient: expiring transient permissions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func roleKey(assignID, userID, roleName string) string {
	return assignID + "|" + userID + "|" + roleName
}

var _ domain.TransientStore = (*Store)(nil)
