// Package writebuffer implements the write buffer: a graph
// decorator that overlays a transaction's pending writes on top of an
// upstream graph, so change k+1 is validated against a view that already
// includes changes 1..k.
package writebuffer

import (
	"context"
	"fmt"

	"github.com/replicore/permcore/internal/permissions/domain"
	"github.com/replicore/permcore/internal/platform/logger"
)

// rowKey identifies one row within the overlay.
type rowKey struct {
	relation domain.Relation
	id       string
}

// pendingRole is one role materialized by a trigger this transaction,
// not yet round-tripped through the transient-permissions store.
type pendingRole struct {
	role       domain.Role
	roleGrants []domain.RoleGrant
}

// WriteBuffer is composition over inheritance: a struct carrying the
// upstream graph plus an overlay, rather than a subclass of it.
type WriteBuffer struct {
	upstream domain.Graph
	log      logger.Logger

	// rows holds the latest known column values per row touched this
	// transaction; deleted holds ids removed this transaction. Both are
	// copied (not mutated) on every ApplyChange so each returned
	// WriteBuffer is an independent, immutable snapshot.
	rows    map[rowKey]map[string]any
	deleted map[rowKey]struct{}

	// scopeRoots tracks, per scope relation, which row ids are known (by
	// this transaction's own inserts/updates) to exist as scope roots -
	// the write-side knowledge an upstream graph cannot have yet.
	scopeRoots map[domain.Relation]map[string]struct{}

	pending map[string]pendingRole
}

// New returns a write buffer overlaying upstream with an empty overlay.
func New(upstream domain.Graph, log logger.Logger) *WriteBuffer {
	return &WriteBuffer{
		upstream:   upstream,
		log:        log,
		rows:       make(map[rowKey]map[string]any),
		deleted:    make(map[rowKey]struct{}),
		scopeRoots: make(map[domain.Relation]map[string]struct{}),
		pending:    make(map[string]pendingRole),
	}
}

func idString(id domain.RowID) string {
	return fmt.Sprintf("%v", id)
}

// clone copies the buffer's maps one level deep so the returned value is
// independent of the receiver - replace-on-update, not shared mutable
// state, matching the rest of this module's Permissions value.
func (b *WriteBuffer) clone() *WriteBuffer {
	n := &WriteBuffer{upstream: b.upstream, log: b.log}
	n.rows = make(map[rowKey]map[string]any, len(b.rows))
	for k, v := range b.rows {
		n.rows[k] = v
	}
	n.deleted = make(map[rowKey]struct{}, len(b.deleted))
	for k := range b.deleted {
		n.deleted[k] = struct{}{}
	}
	n.scopeRoots = make(map[domain.Relation]map[string]struct{}, len(b.scopeRoots))
	for rel, ids := range b.scopeRoots {
		cp := make(map[string]struct{}, len(ids))
		for id := range ids {
			cp[id] = struct{}{}
		}
		n.scopeRoots[rel] = cp
	}
	n.pending = make(map[string]pendingRole, len(b.pending))
	for k, v := range b.pending {
		n.pending[k] = v
	}
	return n
}

// WithUpstream rebinds the underlying graph.
func (b *WriteBuffer) WithUpstream(upstream domain.Graph) domain.WriteBuffer {
	n := b.clone()
	n.upstream = upstream
	return n
}

// scopeForeignKeyColumn is the write buffer's convention for locating a
// row's FK to a scope relation when no schema metadata is available to
// it directly: "<relation>_id", mirroring the convention the trigger
// compiler uses to read a row's scope root.
func scopeForeignKeyColumn(rel domain.Relation) string {
	return rel.Name + "_id"
}

// ScopeID implements domain.Graph. The buffer can answer two things the
// upstream graph cannot yet: (a) a change to the scope relation itself
// roots a scope at its own id, and (b) a change whose FK points at a row
// created or retained earlier in this same transaction resolves against
// that pending row instead of (absent) committed state. Both are unioned
// with whatever the upstream graph independently knows.
func (b *WriteBuffer) ScopeID(ctx context.Context, scopeRelation domain.Relation, change domain.Change) ([]domain.ScopeMatch, error) {
	seen := make(map[string]struct{})
	var matches []domain.ScopeMatch

	add := func(m domain.ScopeMatch) {
		key := idString(m.ID)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		matches = append(matches, m)
	}

	if change.Relation == scopeRelation {
		key := rowKey{relation: scopeRelation, id: idString(change.ID)}
		if _, gone := b.deleted[key]; !gone {
			add(domain.ScopeMatch{ID: change.ID})
		}
	} else if fkCol := scopeForeignKeyColumn(scopeRelation); change.Record != nil {
		if fkVal, ok := change.Record[fkCol]; ok {
			if ids, ok := b.scopeRoots[scopeRelation]; ok {
				if _, known := ids[idString(fkVal)]; known {
					add(domain.ScopeMatch{ID: fkVal})
				}
			}
		}
	}

	if b.upstream != nil {
		upstreamMatches, err := b.upstream.ScopeID(ctx, scopeRelation, change)
		if err != nil {
			return nil, err
		}
		for _, m := range upstreamMatches {
			add(m)
		}
	}

	return matches, nil
}

// ModifiedFKs implements domain.Graph, deferring to the upstream graph
// (which alone holds the FK/schema metadata needed to know which columns
// participate in a scope path) when available, and falling back to the
// buffer's own naming convention otherwise.
func (b *WriteBuffer) ModifiedFKs(ctx context.Context, scopeRelation domain.Relation, change domain.Change) ([]string, error) {
	if b.upstream != nil {
		return b.upstream.ModifiedFKs(ctx, scopeRelation, change)
	}
	fkCol := scopeForeignKeyColumn(scopeRelation)
	for _, c := range change.RelevantColumns() {
		if c == fkCol {
			return []string{fkCol}, nil
		}
	}
	return nil, nil
}

// ApplyChange records change in the overlay so subsequent ScopeID and
// ModifiedFKs lookups observe its effect. It returns the resulting
// WriteBuffer (itself satisfies domain.Graph) as required by the Graph
// interface's covariant-by-dynamic-type return.
func (b *WriteBuffer) ApplyChange(ctx context.Context, scopes []domain.Relation, change domain.Change) (domain.Graph, error) {
	n := b.clone()
	key := rowKey{relation: change.Relation, id: idString(change.ID)}

	switch change.Kind {
	case domain.ChangeDelete:
		n.deleted[key] = struct{}{}
		delete(n.rows, key)
		if ids, ok := n.scopeRoots[change.Relation]; ok {
			delete(ids, idString(change.ID))
		}
	default: // Insert, Update, ScopeMove
		delete(n.deleted, key)
		n.rows[key] = change.Record
		for _, scopeRel := range scopes {
			if scopeRel == change.Relation {
				ids, ok := n.scopeRoots[scopeRel]
				if !ok {
					ids = make(map[string]struct{})
					n.scopeRoots[scopeRel] = ids
				}
				ids[idString(change.ID)] = struct{}{}
			}
		}
	}

	if n.log != nil {
		n.log.Debug(ctx, "writebuffer: applied change", "relation", change.Relation, "kind", change.Kind, "id", change.ID)
	}
	return n, nil
}

// TransientRoles augments bucket with RoleGrants derived from roles this
// transaction's triggers have materialized but which have not yet
// round-tripped through the process-wide transient store.
func (b *WriteBuffer) TransientRoles(_ context.Context, bucket domain.AssignedRoles, action domain.TablePermission) (domain.AssignedRoles, error) {
	for _, pr := range b.pending {
		for _, rg := range pr.roleGrants {
			if rg.Grant.Table == action.Relation && rg.Grant.Privilege == action.Privilege {
				bucket.Add(rg)
			}
		}
	}
	return bucket, nil
}

// UpdateTransientRoles integrates role-edit events produced by the
// trigger engine: an insert or update (re-)matches the edited role
// against allGrants using the same role-grant matching rules the rules
// compiler uses; a delete removes it from the pending set.
func (b *WriteBuffer) UpdateTransientRoles(ctx context.Context, edits []domain.RoleEvent, allGrants []*domain.Grant) (domain.WriteBuffer, error) {
	if len(edits) == 0 {
		return b, nil
	}
	n := b.clone()
	for _, edit := range edits {
		identity := domain.RoleIdentity(edit.Role)
		switch edit.Kind {
		case domain.RoleEventDelete:
			delete(n.pending, identity)
		default: // insert, update
			var rgs []domain.RoleGrant
			for _, g := range allGrants {
				if g.MatchesRole(edit.Role) {
					rgs = append(rgs, domain.RoleGrant{Role: edit.Role, Grant: g})
				}
			}
			n.pending[identity] = pendingRole{role: edit.Role, roleGrants: rgs}
			if n.log != nil {
				n.log.Debug(ctx, "writebuffer: materialized transient role", "assign_id", edit.Role.AssignID, "role", edit.Role.Name)
			}
		}
	}
	return n, nil
}

// ReceiveTransaction drops the overlay once tx has round-tripped through
// the upstream graph - its pending writes are now redundant with
// committed state - and clears the transaction's pending transient
// roles, which by now either were persisted by the adjacent subsystem
// that owns the process-wide transient store, or never outlive the
// transaction that produced them.
func (b *WriteBuffer) ReceiveTransaction(_ context.Context, _ []domain.Relation, _ domain.Transaction) (domain.WriteBuffer, error) {
	return New(b.upstream, b.log), nil
}

var _ domain.WriteBuffer = (*WriteBuffer)(nil)
