// Package engine implements the decision engine: ValidateWrite
// walks an inbound transaction's changes in order, expanding scope moves
// and applying each accepted change to the write buffer before the next
// change is considered; FilterRead (read.go) applies the same candidate
// matching to an outbound transaction and emits move-outs.
package engine

import (
	"context"
	"fmt"

	"github.com/replicore/permcore/internal/permissions/domain"
	"github.com/replicore/permcore/internal/permissions/writebuffer"
	"github.com/replicore/permcore/internal/platform/logger"
)

// ValidateWrite validates tx against perms and graph in order: change k+1
// sees the write buffer as it stood after change k was applied. On the
// first denial, validation halts and the pre-validation perms is returned
// unchanged alongside the formatted permissions error. On
// success, only perms.WriteBuffer differs in the returned value.
func ValidateWrite(ctx context.Context, perms domain.Permissions, graph domain.Graph, tx domain.Transaction, log logger.Logger) (domain.Permissions, error) {
	wb := perms.WriteBuffer
	if wb == nil {
		wb = writebuffer.New(graph, log)
	} else {
		wb = wb.WithUpstream(graph)
	}

	userID := perms.Auth.UserIDOrEmpty()

	for _, change := range tx.Changes {
		expanded, err := expandScopeMove(ctx, wb, perms.Scopes, change)
		if err != nil {
			return perms, fmt.Errorf("engine: expanding scope move for %s: %w", change.Relation, err)
		}

		for _, c := range expanded {
			action := domain.TablePermission{Relation: c.Relation, Privilege: c.RequiredPrivilege()}

			grant, _, err := decide(ctx, perms, wb, action, c, true, tx.LSN)
			if err != nil {
				return perms, err
			}
			if grant == nil {
				if log != nil {
					log.Warn(ctx, "permissions: write denied", "relation", c.Relation, "privilege", action.Privilege.String(), "kind", c.Kind)
				}
				return perms, newDenial(action.Privilege, action.Relation)
			}

			nextGraph, err := wb.ApplyChange(ctx, perms.Scopes, c)
			if err != nil {
				return perms, fmt.Errorf("engine: applying change to write buffer: %w", err)
			}
			nwb, ok := nextGraph.(domain.WriteBuffer)
			if !ok {
				return perms, fmt.Errorf("engine: write buffer ApplyChange did not return a WriteBuffer")
			}
			wb = nwb

			if events := fireTriggers(perms.Triggers, c, userID); len(events) > 0 {
				wb, err = wb.UpdateTransientRoles(ctx, events, perms.Grants)
				if err != nil {
					return perms, fmt.Errorf("engine: updating transient roles: %w", err)
				}
				if log != nil {
					log.Debug(ctx, "permissions: trigger emitted role events", "relation", c.Relation, "count", len(events))
				}
			}
		}
	}

	next := perms
	next.WriteBuffer = wb
	return next, nil
}

// expandScopeMove implements scope-move expansion: an update that
// touches a foreign key participating in any scope relation is expanded
// into the original update plus one synthetic ScopeMove carrying the
// post-update row. Expansion fires at most once per change regardless of how many scope
// relations the row participates in simultaneously, and is never
// recursive - only ChangeUpdate is ever a candidate for expansion, so a
// freshly-minted ScopeMove is never itself re-expanded.
func expandScopeMove(ctx context.Context, graph domain.Graph, scopes []domain.Relation, change domain.Change) ([]domain.Change, error) {
	if change.Kind != domain.ChangeUpdate {
		return []domain.Change{change}, nil
	}

	for _, scopeRel := range scopes {
		fks, err := graph.ModifiedFKs(ctx, scopeRel, change)
		if err != nil {
			return nil, err
		}
		if len(fks) > 0 {
			return []domain.Change{
				change,
				domain.NewScopeMove(change.Relation, change.ID, change.Before, change.Record),
			}, nil
		}
	}
	return []domain.Change{change}, nil
}

// fireTriggers runs every trigger registered for change.Relation and
// concatenates their emitted role events. A relation with no
// matching trigger emits nothing.
func fireTriggers(triggers domain.TriggerTable, change domain.Change, userID string) []domain.RoleEvent {
	var events []domain.RoleEvent
	for _, t := range triggers.ForRelation(change.Relation) {
		events = append(events, t.Emit(change, userID)...)
	}
	return events
}

// decide runs the candidate procedure for one change and
// returns the first accepting grant, or nil if none accepts. When a
// scoped or transient candidate accepts, pathInfo carries the matching
// ScopeMatch.PathInfo for callers that need it (FilterRead's MoveOut).
// write toggles the write-only augmentations: bucket extension from the
// write buffer's pending transient roles, and column-rule enforcement
// (reads check CHECK clauses but never columns).
func decide(ctx context.Context, perms domain.Permissions, graph domain.Graph, action domain.TablePermission, change domain.Change, write bool, lsn int64) (*domain.Grant, any, error) {
	// A bucket absent from the static table is not an immediate denial:
	// the write buffer may still augment it with a transient role a
	// trigger materialized earlier in this same transaction. The zero-value AssignedRoles{} is an empty starting
	// point either way; if nothing augments it, the candidate loops
	// below simply find nothing and the change is denied.
	bucket, _ := perms.Bucket(action)

	if write {
		if wb, ok := graph.(domain.WriteBuffer); ok {
			var err error
			bucket, err = wb.TransientRoles(ctx, bucket, action)
			if err != nil {
				return nil, nil, fmt.Errorf("engine: resolving pending transient roles: %w", err)
			}
		}
	}

	var columns []string
	if write {
		columns = change.RelevantColumns()
	}

	// Scope resolution for a plain update on the write path walks from
	// the pre-image: the update is authorized in the scope the row
	// currently lives in, while the synthetic ScopeMove (which keeps the
	// post-image) covers the scope it is moving to. Grants still
	// evaluate columns/CHECK against the change as given.
	scopeChange := change
	if write && change.Kind == domain.ChangeUpdate && change.Before != nil {
		scopeChange.Record = change.Before
	}

	for _, rg := range bucket.Unscoped {
		accept, err := acceptCandidate(rg, change, columns)
		if err != nil {
			return nil, nil, err
		}
		if accept {
			return rg.Grant, nil, nil
		}
	}

	for _, rg := range bucket.Scoped {
		matches, err := graph.ScopeID(ctx, rg.Role.Scope.Relation, scopeChange)
		if err != nil {
			return nil, nil, fmt.Errorf("engine: resolving scope %s: %w", rg.Role.Scope.Relation, err)
		}
		match, found := findScope(matches, rg.Role.Scope.ID)
		if !found {
			continue
		}
		accept, err := acceptCandidate(rg, change, columns)
		if err != nil {
			return nil, nil, err
		}
		if accept {
			return rg.Grant, match.PathInfo, nil
		}
	}

	if perms.TransientLUT == nil {
		return nil, nil, nil
	}

	all := make([]domain.RoleGrant, 0, len(bucket.Unscoped)+len(bucket.Scoped))
	all = append(all, bucket.Unscoped...)
	all = append(all, bucket.Scoped...)
	if len(all) == 0 {
		return nil, nil, nil
	}

	transients, err := perms.TransientLUT.ForRoles(ctx, all, lsn)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: querying transient permissions: %w", err)
	}
	for rg, tr := range transients {
		matches, err := graph.ScopeID(ctx, tr.TargetRelation, scopeChange)
		if err != nil {
			return nil, nil, fmt.Errorf("engine: resolving transient target %s: %w", tr.TargetRelation, err)
		}
		match, found := findScope(matches, tr.TargetID)
		if !found {
			continue
		}
		accept, err := acceptCandidate(rg, change, columns)
		if err != nil {
			return nil, nil, err
		}
		if accept {
			return rg.Grant, match.PathInfo, nil
		}
	}

	return nil, nil, nil
}

func acceptCandidate(rg domain.RoleGrant, change domain.Change, columns []string) (bool, error) {
	accept, err := rg.Grant.Accepts(change, columns)
	if err != nil {
		return false, newCheckEvaluationError(rg.Grant.Table, err)
	}
	return accept, nil
}

func findScope(matches []domain.ScopeMatch, id domain.RowID) (domain.ScopeMatch, bool) {
	target := fmt.Sprintf("%v", id)
	for _, m := range matches {
		if fmt.Sprintf("%v", m.ID) == target {
			return m, true
		}
	}
	return domain.ScopeMatch{}, false
}

// ReceiveTransaction implements the receive_transaction(perms, tx)
// operation: once a transaction the caller itself wrote reappears from
// upstream, its write-buffer overlay is redundant and is dropped.
func ReceiveTransaction(ctx context.Context, perms domain.Permissions, tx domain.Transaction) (domain.Permissions, error) {
	if perms.WriteBuffer == nil {
		return perms, nil
	}
	nwb, err := perms.WriteBuffer.ReceiveTransaction(ctx, perms.Scopes, tx)
	if err != nil {
		return perms, fmt.Errorf("engine: receiving transaction: %w", err)
	}
	next := perms
	next.WriteBuffer = nwb
	return next, nil
}
