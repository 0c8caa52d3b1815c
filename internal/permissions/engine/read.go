package engine

import (
	"context"
	"fmt"

	"github.com/replicore/permcore/internal/permissions/domain"
	"github.com/replicore/permcore/internal/platform/logger"
)

// FilterRead implements the read filter:
// every change in tx is checked against the compiled tables using graph
// (the read graph, authoritative - no write-buffer augmentation). A
// change with no accepting grant is dropped; an update that was visible
// before the mutation but not after is additionally reported as a
// MoveOut so the caller can instruct the shapes subsystem to delete the
// row from the client's local store. Column projection trims an accepted change's
// record to the accepting grant's column set when one is defined.
func FilterRead(ctx context.Context, perms domain.Permissions, graph domain.Graph, tx domain.Transaction, log logger.Logger) (domain.Transaction, []domain.MoveOut, error) {
	out := domain.Transaction{LSN: tx.LSN}
	var moveOuts []domain.MoveOut

	for _, change := range tx.Changes {
		action := domain.TablePermission{Relation: change.Relation, Privilege: domain.PrivilegeSelect}

		grant, _, err := decide(ctx, perms, graph, action, change, false, tx.LSN)
		if err != nil {
			return domain.Transaction{}, nil, err
		}

		if grant != nil {
			out.Changes = append(out.Changes, projectColumns(change, grant))
			continue
		}

		moveOut, isMoveOut, err := detectMoveOut(ctx, perms, graph, action, change, tx.LSN)
		if err != nil {
			return domain.Transaction{}, nil, err
		}
		if isMoveOut {
			if log != nil {
				log.Debug(ctx, "permissions: read move-out", "relation", change.Relation, "id", change.ID)
			}
			moveOuts = append(moveOuts, moveOut)
		}
	}

	return out, moveOuts, nil
}

// detectMoveOut implements move-out detection: an update is a
// move-out when it would have been allowed using its pre-image but is
// denied using its post-image, a fact computed by re-running decide
// against a probe change carrying the Before record in place of Record.
func detectMoveOut(ctx context.Context, perms domain.Permissions, graph domain.Graph, action domain.TablePermission, change domain.Change, lsn int64) (domain.MoveOut, bool, error) {
	if change.Kind != domain.ChangeUpdate || change.Before == nil {
		return domain.MoveOut{}, false, nil
	}

	probe := change
	probe.Record = change.Before

	grant, pathInfo, err := decide(ctx, perms, graph, action, probe, false, lsn)
	if err != nil {
		return domain.MoveOut{}, false, fmt.Errorf("engine: checking pre-image visibility for %s: %w", change.Relation, err)
	}
	if grant == nil {
		return domain.MoveOut{}, false, nil
	}

	return domain.MoveOut{
		Change:    change,
		ScopePath: pathInfo,
		Relation:  change.Relation,
		ID:        change.ID,
	}, true, nil
}

// projectColumns trims change's Record and Before (when present) to
// grant's column set. A grant with no column restriction returns change
// unmodified.
func projectColumns(change domain.Change, grant *domain.Grant) domain.Change {
	if grant.Columns == nil {
		return change
	}
	change.Record = projectMap(change.Record, grant.Columns)
	if change.Before != nil {
		change.Before = projectMap(change.Before, grant.Columns)
	}
	return change
}

func projectMap(m map[string]any, cs *domain.ColumnSet) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if cs.Contains(k) {
			out[k] = v
		}
	}
	return out
}
