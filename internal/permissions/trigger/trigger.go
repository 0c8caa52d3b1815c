// Package trigger compiles ASSIGN statements into the per-relation
// handlers that watch writes for role-membership changes, and
// provides the default in-process transient-permissions store.
package trigger

import (
	"context"
	"sync"

	"github.com/replicore/permcore/internal/permissions/domain"
	"github.com/replicore/permcore/internal/permissions/ports"
)

// Compile builds the TriggerTable for a rules compile: one compiledTrigger
// per ASSIGN, keyed on the ASSIGN's user-role table.
func Compile(assigns []domain.AssignSpec, checker ports.CheckCompiler) (domain.TriggerTable, error) {
	table := make(domain.TriggerTable)
	for _, a := range assigns {
		t := &compiledTrigger{spec: a}
		if a.If != "" && checker != nil {
			pred, err := checker.Compile(a.Table, a.If)
			if err != nil {
				return nil, err
			}
			t.ifGuard = pred
		}
		table[a.Table] = append(table[a.Table], t)
	}
	return table, nil
}

// compiledTrigger implements domain.Trigger for one ASSIGN statement.
type compiledTrigger struct {
	spec    domain.AssignSpec
	ifGuard domain.CheckPredicate
}

// Emit maps a change against the user binding. The ASSIGN's user_column
// identifies which row value binds a row to a user; RoleName (or
// RoleColumn) and Scope describe the role that binding materializes.
func (t *compiledTrigger) Emit(change domain.Change, currentUserID string) []domain.RoleEvent {
	switch change.Kind {
	case domain.ChangeInsert:
		if !t.guardAllows(change, change.Record) {
			return nil
		}
		if stringField(change.Record, t.spec.UserColumn) != currentUserID {
			return nil
		}
		return []domain.RoleEvent{{Kind: domain.RoleEventInsert, Role: t.roleFromRow(change.Record, currentUserID)}}

	case domain.ChangeDelete:
		if !t.guardAllows(change, change.Record) {
			return nil
		}
		if stringField(change.Record, t.spec.UserColumn) != currentUserID {
			return nil
		}
		return []domain.RoleEvent{{Kind: domain.RoleEventDelete, Role: t.roleFromRow(change.Record, currentUserID)}}

	case domain.ChangeUpdate, domain.ChangeScopeMove:
		boundBefore := stringField(change.Before, t.spec.UserColumn) == currentUserID
		boundAfter := stringField(change.Record, t.spec.UserColumn) == currentUserID
		switch {
		case boundBefore && boundAfter:
			if !t.guardAllows(change, change.Record) {
				return nil
			}
			return []domain.RoleEvent{{Kind: domain.RoleEventUpdate, Role: t.roleFromRow(change.Record, currentUserID)}}
		case boundBefore && !boundAfter:
			return []domain.RoleEvent{{Kind: domain.RoleEventDelete, Role: t.roleFromRow(change.Before, currentUserID)}}
		case !boundBefore && boundAfter:
			if !t.guardAllows(change, change.Record) {
				return nil
			}
			return []domain.RoleEvent{{Kind: domain.RoleEventInsert, Role: t.roleFromRow(change.Record, currentUserID)}}
		default:
			return nil
		}

	default:
		return nil
	}
}

func (t *compiledTrigger) guardAllows(change domain.Change, row map[string]any) bool {
	if t.ifGuard == nil {
		return true
	}
	probe := change
	probe.Record = row
	ok, err := t.ifGuard.Evaluate(probe)
	if err != nil {
		return false
	}
	return ok
}

// roleFromRow materializes the Role a matching row binds, scoped to the
// ASSIGN's scope relation when it has one. The scope root id is read
// from the row's foreign key to that relation, named by convention
// "<relation>_id" (e.g. a project_member row's project_id column roots
// it under project).
func (t *compiledTrigger) roleFromRow(row map[string]any, userID string) domain.Role {
	roleName := t.spec.RoleName
	if roleName == "" && t.spec.RoleColumn != "" {
		roleName = stringField(row, t.spec.RoleColumn)
	}
	if t.spec.Scope != nil {
		scopeID := row[scopeForeignKeyColumn(*t.spec.Scope)]
		return domain.NewScopedRole(t.spec.ID, userID, roleName, domain.Scope{Relation: *t.spec.Scope, ID: scopeID})
	}
	return domain.NewUnscopedRole(t.spec.ID, userID, roleName)
}

func scopeForeignKeyColumn(rel domain.Relation) string {
	return rel.Name + "_id"
}

func stringField(row map[string]any, column string) string {
	if row == nil || column == "" {
		return ""
	}
	v, ok := row[column]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// MemStore is the default in-process TransientStore: a process-wide,
// many-reader, RWMutex-guarded table. It is written to only through Put,
// by whatever adjacent subsystem materializes transient permissions;
// nothing in this module calls Put (WriteBuffer.ReceiveTransaction
// discards pending transient roles rather than storing them here), and
// the core itself only ever calls ForRoles.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string][]entry
}

type entry struct {
	roleGrant domain.RoleGrant
	transient domain.Transient
}

// NewMemStore returns an empty in-process transient store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string][]entry)}
}

// Put registers a transient permission for a role grant. Concurrency-safe.
func (s *MemStore) Put(rg domain.RoleGrant, t domain.Transient) {
	key := transientKey(rg)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = append(s.entries[key], entry{roleGrant: rg, transient: t})
}

// ForRoles implements ports.TransientStore: for each candidate role
// grant, return the transient permission applicable at lsn (its
// ValidToLSN has not yet passed), if one exists.
func (s *MemStore) ForRoles(_ context.Context, roleGrants []domain.RoleGrant, lsn int64) (map[domain.RoleGrant]domain.Transient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[domain.RoleGrant]domain.Transient)
	for _, rg := range roleGrants {
		for _, e := range s.entries[transientKey(rg)] {
			if e.transient.ValidToLSN >= lsn {
				out[rg] = e.transient
				break
			}
		}
	}
	return out, nil
}

func transientKey(rg domain.RoleGrant) string {
	return rg.Role.AssignID + "|" + rg.Role.UserID + "|" + rg.Role.Name
}

var _ domain.TransientStore = (*MemStore)(nil)
