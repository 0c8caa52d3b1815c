// Package pgraph is the Postgres-backed reference implementation of the
// Graph contract: scope roots are found by walking foreign-key parents
// through committed rows, one query per hop. It answers for "the
// database as the replica sees it" - the read graph, and the write
// path's upstream underneath the write buffer.
package pgraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/replicore/permcore/internal/permissions/domain"
	"github.com/replicore/permcore/internal/platform/logger"
	"github.com/replicore/permcore/internal/platform/postgres"
)

// Edge is one foreign-key hop on a scope path: relation's column points
// at the parent relation's primary key.
type Edge struct {
	Column string
	Parent domain.Relation
}

// Edges maps each child relation to its single FK hop toward the scope
// root. The schema loader (an external collaborator) produces this; see
// LoadEdges for the reference loader that derives it from
// information_schema.
type Edges map[domain.Relation]Edge

// Graph resolves scope roots against committed Postgres state.
type Graph struct {
	repo  postgres.BaseRepository
	edges Edges
	log   logger.Logger
}

// New returns a graph over db using the given FK edges.
func New(repo postgres.BaseRepository, edges Edges, log logger.Logger) *Graph {
	return &Graph{repo: repo, edges: edges, log: log}
}

// ScopeID implements domain.Graph: it walks edges from change.Relation
// toward scopeRelation. The first hop reads the FK off the change's own
// record when present (the change is the freshest image of that row),
// falling back to the committed row; every later hop reads committed
// rows. The walk ends with an existence check on the root row - a
// dangling FK resolves to no scope.
func (g *Graph) ScopeID(ctx context.Context, scopeRelation domain.Relation, change domain.Change) ([]domain.ScopeMatch, error) {
	rel := change.Relation
	id := change.ID
	values := change.Record
	var path []string

	for rel != scopeRelation {
		e, ok := g.edges[rel]
		if !ok {
			return nil, nil
		}
		if values == nil {
			row, err := g.fetchRow(ctx, rel, id, e.Column)
			if err != nil {
				return nil, err
			}
			values = row
		}
		if values == nil {
			return nil, nil
		}
		fkVal, ok := values[e.Column]
		if !ok || fkVal == nil {
			return nil, nil
		}
		path = append(path, fmt.Sprintf("%s.%s", rel.Name, e.Column))
		rel = e.Parent
		id = fkVal
		values = nil
	}

	if rel != change.Relation {
		exists, err := g.rowExists(ctx, rel, id)
		if err != nil {
			return nil, err
		}
		if !exists {
			if g.log != nil {
				g.log.Debug(ctx, "pgraph: dangling scope foreign key", "relation", rel, "id", id)
			}
			return nil, nil
		}
	}

	return []domain.ScopeMatch{{ID: id, PathInfo: path}}, nil
}

// ModifiedFKs implements domain.Graph: it reports the change's FK column
// for scopeRelation when the change sits on a path to it and the column
// value differs between the pre- and post-images. Purely structural - no
// query needed, the images carry everything.
func (g *Graph) ModifiedFKs(_ context.Context, scopeRelation domain.Relation, change domain.Change) ([]string, error) {
	if change.Before == nil {
		return nil, nil
	}
	e, ok := g.edges[change.Relation]
	if !ok || !g.onPathToScope(change.Relation, scopeRelation) {
		return nil, nil
	}
	before, beforeOK := change.Before[e.Column]
	after, afterOK := change.Record[e.Column]
	if beforeOK != afterOK || fmt.Sprintf("%v", before) != fmt.Sprintf("%v", after) {
		return []string{e.Column}, nil
	}
	return nil, nil
}

// ApplyChange implements domain.Graph. Committed state is the database's
// to maintain - the replication apply path writes it, not this adapter -
// so the read graph simply is what it is.
func (g *Graph) ApplyChange(_ context.Context, _ []domain.Relation, _ domain.Change) (domain.Graph, error) {
	return g, nil
}

func (g *Graph) onPathToScope(relation, scopeRelation domain.Relation) bool {
	rel := relation
	for rel != scopeRelation {
		e, ok := g.edges[rel]
		if !ok {
			return false
		}
		rel = e.Parent
	}
	return true
}

// fetchRow reads the single FK column of the row at (rel, id).
func (g *Graph) fetchRow(ctx context.Context, rel domain.Relation, id domain.RowID, fkColumn string) (map[string]any, error) {
	query, args, err := g.repo.SB.
		Select(fkColumn).
		From(qualify(rel)).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("pgraph: building row query for %s: %w", rel, err)
	}

	var fkVal any
	if err := g.repo.DB.QueryRow(ctx, query, args...).Scan(&fkVal); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("pgraph: reading %s row: %w", rel, err)
	}
	return map[string]any{fkColumn: fkVal}, nil
}

func (g *Graph) rowExists(ctx context.Context, rel domain.Relation, id domain.RowID) (bool, error) {
	query, args, err := g.repo.SB.
		Select("1").
		Prefix("SELECT EXISTS (").
		From(qualify(rel)).
		Where("id = ?", id).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("pgraph: building existence query for %s: %w", rel, err)
	}

	var exists bool
	if err := g.repo.DB.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("pgraph: checking %s row existence: %w", rel, err)
	}
	return exists, nil
}

func qualify(rel domain.Relation) string {
	return fmt.Sprintf("%q.%q", rel.Schema, rel.Name)
}

var _ domain.Graph = (*Graph)(nil)
