package domain

import "context"

// Graph is the scope-resolver capability the engine consumes. It is a
// black box: correctness depends only on these three contracts, never on
// how a provider walks foreign keys to satisfy them.
type Graph interface {
	// ScopeID returns the scope roots reachable from change via foreign-
	// key parents for scopeRelation. A change may belong to several scope
	// instances at once if the schema allows it.
	ScopeID(ctx context.Context, scopeRelation Relation, change Change) ([]ScopeMatch, error)

	// ModifiedFKs returns the foreign-key columns modified by change that
	// participate in the scope path for scopeRelation.
	ModifiedFKs(ctx context.Context, scopeRelation Relation, change Change) ([]string, error)

	// ApplyChange layers change into the buffered view for the given
	// scopes and returns the resulting graph. A plain (non-overlaying)
	// graph may return itself unchanged; the write buffer is the
	// implementation that actually accumulates state here.
	ApplyChange(ctx context.Context, scopes []Relation, change Change) (Graph, error)
}

// RoleEventKind tags a role-edit event emitted by a trigger.
type RoleEventKind int

const (
	RoleEventInsert RoleEventKind = iota
	RoleEventUpdate
	RoleEventDelete
)

func (k RoleEventKind) String() string {
	switch k {
	case RoleEventInsert:
		return "insert"
	case RoleEventUpdate:
		return "update"
	case RoleEventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// RoleEvent is one role insert/update/delete produced by a trigger as a
// side effect of a change applied to the write buffer.
type RoleEvent struct {
	Kind RoleEventKind
	Role Role
}

// Trigger is compiled from one ASSIGN statement. It is keyed (by the
// caller) on the ASSIGN's user-role table and inspects a change against
// that table to decide whether the given user's role membership changed.
type Trigger interface {
	// Emit returns zero or more role events for change, given the id of
	// the user the write buffer is currently evaluating on behalf of.
	Emit(change Change, currentUserID string) []RoleEvent
}

// TriggerTable holds the compiled triggers grouped by the relation they
// watch (the ASSIGN's user-role table).
type TriggerTable map[Relation][]Trigger

// ForRelation returns the triggers registered against relation, or nil
// if none match - "no matching trigger" emits nothing, which callers get
// for free by ranging over a nil slice.
func (t TriggerTable) ForRelation(relation Relation) []Trigger {
	return t[relation]
}

// Transient is one transient-permission record: a permission valid for a
// bounded range of log positions, inserted as a side effect of a prior
// write.
type Transient struct {
	TargetRelation Relation
	TargetID       RowID
	ValidToLSN     int64
}

// TransientStore is the external, process-wide, many-reader store of
// transient permissions. The core only ever reads it.
type TransientStore interface {
	// ForRoles returns, for each candidate RoleGrant, the Transient
	// applicable at lsn, if any.
	ForRoles(ctx context.Context, roleGrants []RoleGrant, lsn int64) (map[RoleGrant]Transient, error)
}

// WriteBuffer overlays pending changes within one transaction on top of
// an upstream graph. It implements Graph itself (composition over
// inheritance: a struct carrying the upstream graph plus an overlay) and
// additionally tracks transient roles materialized by triggers that have
// not yet round-tripped through the upstream store.
type WriteBuffer interface {
	Graph

	// WithUpstream rebinds the underlying graph, returning a new buffer.
	WithUpstream(upstream Graph) WriteBuffer

	// TransientRoles augments bucket with RoleGrants derived from roles
	// materialized by pending triggers, for the given action.
	TransientRoles(ctx context.Context, bucket AssignedRoles, action TablePermission) (AssignedRoles, error)

	// UpdateTransientRoles integrates role edits produced by assign
	// triggers, matching the new roles against allGrants with the same
	// role-grant matching rules as the rules compiler.
	UpdateTransientRoles(ctx context.Context, edits []RoleEvent, allGrants []*Grant) (WriteBuffer, error)

	// ReceiveTransaction drops the overlay once tx reappears from the
	// upstream (now redundant) and stabilizes the transient roles it
	// produced.
	ReceiveTransaction(ctx context.Context, scopes []Relation, tx Transaction) (WriteBuffer, error)
}
