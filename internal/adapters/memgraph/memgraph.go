// Package memgraph is an in-memory domain.Graph used by the permissions
// core's own test suite (the engine's property and scenario tests all
// need a graph fixture, so this lives under adapters/ as test-support
// surface, not shipped decision logic). It also doubles as a tiny
// reference for what a Graph
// provider's three-method contract looks like end to end.
package memgraph

import (
	"context"
	"fmt"
	"sync"

	"github.com/replicore/permcore/internal/permissions/domain"
)

// edge describes the single foreign key a relation uses to walk toward
// its parent on a scope path. One edge per child relation is enough to
// express the tree-shaped schemas exercised by this module's tests; a
// relation that roots several independent scope trees would need a
// richer schema than this fixture models.
type edge struct {
	column string
	parent domain.Relation
}

// Graph is a mutable, committed-row store: ApplyChange writes straight
// through rather than layering an overlay (that is the write buffer's
// job), so Graph plays the role of "the database as the replica sees
// it" in tests - both as the read graph and as the write path's
// upstream.
type Graph struct {
	mu    sync.RWMutex
	rows  map[domain.Relation]map[string]map[string]any
	edges map[domain.Relation]edge
}

// New returns an empty graph with no rows and no foreign-key edges.
func New() *Graph {
	return &Graph{
		rows:  make(map[domain.Relation]map[string]map[string]any),
		edges: make(map[domain.Relation]edge),
	}
}

// WithEdge registers relation's foreign key to parent via column,
// returning the graph for chaining. Call once per relation that
// participates in a scope path.
func (g *Graph) WithEdge(relation domain.Relation, column string, parent domain.Relation) *Graph {
	g.edges[relation] = edge{column: column, parent: parent}
	return g
}

// Seed commits row under (relation, id) as if it pre-existed the
// transaction under test - the fixture's way of setting up "the
// database already contains this."
func (g *Graph) Seed(relation domain.Relation, id domain.RowID, row map[string]any) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rows[relation] == nil {
		g.rows[relation] = make(map[string]map[string]any)
	}
	g.rows[relation][idString(id)] = row
	return g
}

// Row returns the committed row at (relation, id), for test assertions.
func (g *Graph) Row(relation domain.Relation, id domain.RowID) (map[string]any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	row, ok := g.rows[relation][idString(id)]
	return row, ok
}

func idString(id domain.RowID) string {
	return fmt.Sprintf("%v", id)
}

// ScopeID implements domain.Graph by walking the registered edges from
// change.Relation toward scopeRelation, starting from the change's own
// record (falling back to the committed row when the change carries no
// record, e.g. a probe built around only an id).
func (g *Graph) ScopeID(_ context.Context, scopeRelation domain.Relation, change domain.Change) ([]domain.ScopeMatch, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rel := change.Relation
	id := change.ID
	values := change.Record

	for {
		if rel == scopeRelation {
			return []domain.ScopeMatch{{ID: id}}, nil
		}
		e, ok := g.edges[rel]
		if !ok {
			return nil, nil
		}
		if values == nil {
			values = g.rows[rel][idString(id)]
		}
		if values == nil {
			return nil, nil
		}
		fkVal, ok := values[e.column]
		if !ok || fkVal == nil {
			return nil, nil
		}
		rel = e.parent
		id = fkVal
		values = g.rows[e.parent][idString(fkVal)]
	}
}

// ModifiedFKs implements domain.Graph: it reports change's own foreign
// key column when that column sits on the path from change.Relation to
// scopeRelation and its value differs between Before and Record.
func (g *Graph) ModifiedFKs(_ context.Context, scopeRelation domain.Relation, change domain.Change) ([]string, error) {
	if change.Before == nil {
		return nil, nil
	}
	e, ok := g.edges[change.Relation]
	if !ok {
		return nil, nil
	}
	if !g.onPathToScope(change.Relation, scopeRelation) {
		return nil, nil
	}
	before, beforeOK := change.Before[e.column]
	after, afterOK := change.Record[e.column]
	if beforeOK != afterOK || fmt.Sprintf("%v", before) != fmt.Sprintf("%v", after) {
		return []string{e.column}, nil
	}
	return nil, nil
}

func (g *Graph) onPathToScope(relation, scopeRelation domain.Relation) bool {
	rel := relation
	for {
		if rel == scopeRelation {
			return true
		}
		e, ok := g.edges[rel]
		if !ok {
			return false
		}
		rel = e.parent
	}
}

// ApplyChange implements domain.Graph by committing change directly:
// plain Graph has no overlay concept, it simply is the committed state.
func (g *Graph) ApplyChange(_ context.Context, _ []domain.Relation, change domain.Change) (domain.Graph, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := idString(change.ID)
	if change.Kind == domain.ChangeDelete {
		delete(g.rows[change.Relation], key)
		return g, nil
	}
	if g.rows[change.Relation] == nil {
		g.rows[change.Relation] = make(map[string]map[string]any)
	}
	g.rows[change.Relation][key] = change.Record
	return g, nil
}

var _ domain.Graph = (*Graph)(nil)
