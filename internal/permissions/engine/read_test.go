package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicore/permcore/internal/adapters/memgraph"
	"github.com/replicore/permcore/internal/check"
	"github.com/replicore/permcore/internal/permissions/domain"
	"github.com/replicore/permcore/internal/permissions/engine"
	"github.com/replicore/permcore/internal/permissions/rules"
	"github.com/replicore/permcore/internal/permissions/trigger"
)

// Scenario 6: a SELECT scoped to project 7 only. An outbound update that
// moves issue 42 from project 7 to project 8 is dropped from the
// filtered transaction and reported as a MoveOut.
func TestFilterRead_MoveOut(t *testing.T) {
	rulesIn := domain.Rules{
		Grants: []domain.GrantSpec{
			{Table: relIssues, Privilege: domain.PrivilegeSelect, RoleName: "member", ScopeRelation: &relProjects},
		},
		Assigns: []domain.AssignSpec{{ID: "a1"}},
	}
	roles := []domain.AssignedRoleInput{
		{AssignID: "a1", UserID: "user_A", RoleName: "member", Scope: &domain.Scope{Relation: relProjects, ID: "7"}},
	}
	perms := rules.New(userAuth("user_A"), trigger.NewMemStore())
	perms, err := rules.Update(context.Background(), perms, rules.Partial{Rules: &rulesIn, Roles: roles}, check.NewCompiler(), nil)
	require.NoError(t, err)

	g := memgraph.New().WithEdge(relIssues, "project_id", relProjects)

	tx := domain.Transaction{LSN: 1, Changes: []domain.Change{
		domain.NewUpdate(relIssues, "42",
			map[string]any{"id": "42", "project_id": "7"},
			map[string]any{"id": "42", "project_id": "8"}, []string{"project_id"}),
	}}

	filtered, moveOuts, err := engine.FilterRead(context.Background(), perms, g, tx, nil)
	require.NoError(t, err)
	assert.Empty(t, filtered.Changes)
	require.Len(t, moveOuts, 1)
	assert.Equal(t, relIssues, moveOuts[0].Relation)
	assert.Equal(t, "42", moveOuts[0].ID)
}

// Re-filtering an already-filtered transaction is the identity: nothing
// left in it could possibly produce a further move-out or drop.
func TestFilterRead_StableUnderReapplication(t *testing.T) {
	rulesIn := domain.Rules{
		Grants: []domain.GrantSpec{
			{Table: relIssues, Privilege: domain.PrivilegeSelect, RoleName: "member", ScopeRelation: &relProjects},
		},
	}
	roles := []domain.AssignedRoleInput{
		{AssignID: "a1", UserID: "user_A", RoleName: "member", Scope: &domain.Scope{Relation: relProjects, ID: "7"}},
	}
	perms := rules.New(userAuth("user_A"), trigger.NewMemStore())
	perms, err := rules.Update(context.Background(), perms, rules.Partial{Rules: &rulesIn, Roles: roles}, check.NewCompiler(), nil)
	require.NoError(t, err)

	g := memgraph.New().WithEdge(relIssues, "project_id", relProjects)

	tx := domain.Transaction{LSN: 1, Changes: []domain.Change{
		domain.NewUpdate(relIssues, "42",
			map[string]any{"id": "42", "project_id": "7"},
			map[string]any{"id": "42", "project_id": "8"}, []string{"project_id"}),
		domain.NewInsert(relIssues, "43", map[string]any{"id": "43", "project_id": "7"}),
	}}

	once, _, err := engine.FilterRead(context.Background(), perms, g, tx, nil)
	require.NoError(t, err)

	twice, moveOutsTwice, err := engine.FilterRead(context.Background(), perms, g, once, nil)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.Empty(t, moveOutsTwice)
}

// Column projection: the read path applies a grant's column restriction
// to the emitted record even though the column rule itself does not gate
// the allow/deny decision on reads.
func TestFilterRead_ColumnProjection(t *testing.T) {
	rulesIn := domain.Rules{
		Grants: []domain.GrantSpec{
			{Table: relIssues, Privilege: domain.PrivilegeSelect, RoleName: domain.AnyoneRoleName, Columns: []string{"title"}},
		},
	}
	perms := rules.New(domain.Auth{}, trigger.NewMemStore())
	perms, err := rules.Update(context.Background(), perms, rules.Partial{Rules: &rulesIn}, check.NewCompiler(), nil)
	require.NoError(t, err)

	g := memgraph.New()
	tx := domain.Transaction{LSN: 1, Changes: []domain.Change{
		domain.NewInsert(relIssues, "1", map[string]any{"id": "1", "title": "hello", "secret": "shh"}),
	}}

	filtered, moveOuts, err := engine.FilterRead(context.Background(), perms, g, tx, nil)
	require.NoError(t, err)
	assert.Empty(t, moveOuts)
	require.Len(t, filtered.Changes, 1)
	_, hasSecret := filtered.Changes[0].Record["secret"]
	assert.False(t, hasSecret)
	assert.Equal(t, "hello", filtered.Changes[0].Record["title"])
}

// A read-path change that fails the column rule is still allowed: the
// column rule gates writes only, never read visibility.
func TestFilterRead_ColumnRuleNotEnforcedOnReads(t *testing.T) {
	rulesIn := domain.Rules{
		Grants: []domain.GrantSpec{
			{Table: relIssues, Privilege: domain.PrivilegeSelect, RoleName: domain.AnyoneRoleName, Columns: []string{"title"}},
		},
	}
	perms := rules.New(domain.Auth{}, trigger.NewMemStore())
	perms, err := rules.Update(context.Background(), perms, rules.Partial{Rules: &rulesIn}, check.NewCompiler(), nil)
	require.NoError(t, err)

	g := memgraph.New()
	tx := domain.Transaction{LSN: 1, Changes: []domain.Change{
		domain.NewUpdate(relIssues, "1", map[string]any{"priority": 1}, map[string]any{"priority": 2}, []string{"priority"}),
	}}
	filtered, _, err := engine.FilterRead(context.Background(), perms, g, tx, nil)
	require.NoError(t, err)
	require.Len(t, filtered.Changes, 1)
}

// Boundary: empty outbound transaction filters to empty, no move-outs.
func TestFilterRead_EmptyTransaction(t *testing.T) {
	perms := rules.New(domain.Auth{}, trigger.NewMemStore())
	perms, err := rules.Update(context.Background(), perms, rules.Partial{Rules: &domain.Rules{}}, check.NewCompiler(), nil)
	require.NoError(t, err)
	g := memgraph.New()
	filtered, moveOuts, err := engine.FilterRead(context.Background(), perms, g, domain.Transaction{LSN: 1}, nil)
	require.NoError(t, err)
	assert.Empty(t, filtered.Changes)
	assert.Empty(t, moveOuts)
}
