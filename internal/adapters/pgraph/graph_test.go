package pgraph

import (
	"context"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicore/permcore/internal/permissions/domain"
	"github.com/replicore/permcore/internal/platform/postgres"
)

var (
	relProjects = domain.Relation{Schema: "public", Name: "project"}
	relIssues   = domain.Relation{Schema: "public", Name: "issue"}
	relComments = domain.Relation{Schema: "public", Name: "comment"}
)

func testEdges() Edges {
	return Edges{
		relIssues:   {Column: "project_id", Parent: relProjects},
		relComments: {Column: "issue_id", Parent: relIssues},
	}
}

func newMockGraph(t *testing.T) (*Graph, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	repo := postgres.BaseRepository{
		DB: mock,
		SB: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
	return New(repo, testEdges(), nil), mock
}

func TestScopeID_DirectChildUsingRecordFK(t *testing.T) {
	g, mock := newMockGraph(t)

	// One hop off the record's own FK; only the root existence check
	// hits the database.
	mock.ExpectQuery(`SELECT EXISTS \( SELECT 1 FROM "public"\."project" WHERE id = \$1 \)`).
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	change := domain.NewInsert(relIssues, "i1", map[string]any{"id": "i1", "project_id": "p1"})
	matches, err := g.ScopeID(context.Background(), relProjects, change)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "p1", matches[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScopeID_TwoHopsReadsIntermediateRow(t *testing.T) {
	g, mock := newMockGraph(t)

	mock.ExpectQuery(`SELECT project_id FROM "public"\."issue" WHERE id = \$1`).
		WithArgs("i1").
		WillReturnRows(pgxmock.NewRows([]string{"project_id"}).AddRow("p1"))
	mock.ExpectQuery(`SELECT EXISTS \( SELECT 1 FROM "public"\."project" WHERE id = \$1 \)`).
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	change := domain.NewInsert(relComments, "c1", map[string]any{"id": "c1", "issue_id": "i1"})
	matches, err := g.ScopeID(context.Background(), relProjects, change)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "p1", matches[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScopeID_DanglingRootResolvesToNothing(t *testing.T) {
	g, mock := newMockGraph(t)

	mock.ExpectQuery(`SELECT EXISTS \( SELECT 1 FROM "public"\."project" WHERE id = \$1 \)`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	change := domain.NewInsert(relIssues, "i1", map[string]any{"id": "i1", "project_id": "ghost"})
	matches, err := g.ScopeID(context.Background(), relProjects, change)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScopeID_ChangeOnScopeRelationRootsItself(t *testing.T) {
	g, mock := newMockGraph(t)

	change := domain.NewUpdate(relProjects, "p1",
		map[string]any{"id": "p1", "name": "a"},
		map[string]any{"id": "p1", "name": "b"}, []string{"name"})
	matches, err := g.ScopeID(context.Background(), relProjects, change)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "p1", matches[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScopeID_RelationOffAnyScopePath(t *testing.T) {
	g, mock := newMockGraph(t)

	other := domain.Relation{Schema: "public", Name: "audit_log"}
	change := domain.NewInsert(other, "a1", map[string]any{"id": "a1"})
	matches, err := g.ScopeID(context.Background(), relProjects, change)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModifiedFKs_ReportsChangedColumnOnPath(t *testing.T) {
	g, _ := newMockGraph(t)

	moved := domain.NewUpdate(relIssues, "i1",
		map[string]any{"id": "i1", "project_id": "p1"},
		map[string]any{"id": "i1", "project_id": "p2"}, []string{"project_id"})
	fks, err := g.ModifiedFKs(context.Background(), relProjects, moved)
	require.NoError(t, err)
	assert.Equal(t, []string{"project_id"}, fks)

	unmoved := domain.NewUpdate(relIssues, "i1",
		map[string]any{"id": "i1", "project_id": "p1", "title": "a"},
		map[string]any{"id": "i1", "project_id": "p1", "title": "b"}, []string{"title"})
	fks, err = g.ModifiedFKs(context.Background(), relProjects, unmoved)
	require.NoError(t, err)
	assert.Empty(t, fks)
}

func TestLoadEdges_BuildsEdgeMapAndDropsAmbiguous(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := postgres.BaseRepository{DB: mock, SB: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}

	mock.ExpectQuery(`SELECT\s+tc\.table_schema`).
		WillReturnRows(pgxmock.NewRows([]string{"table_schema", "table_name", "column_name", "ref_schema", "ref_table"}).
			AddRow("public", "issue", "project_id", "public", "project").
			AddRow("public", "task_link", "src_id", "public", "issue").
			AddRow("public", "task_link", "dst_id", "public", "issue"))

	edges, err := LoadEdges(context.Background(), repo)
	require.NoError(t, err)

	assert.Equal(t, Edge{Column: "project_id", Parent: relProjects}, edges[relIssues])
	_, ambiguous := edges[domain.Relation{Schema: "public", Name: "task_link"}]
	assert.False(t, ambiguous, "relation with two FKs has no unambiguous parent hop")
	assert.NoError(t, mock.ExpectationsWereMet())
}
