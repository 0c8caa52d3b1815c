package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicore/permcore/internal/adapters/memgraph"
	"github.com/replicore/permcore/internal/check"
	"github.com/replicore/permcore/internal/permissions/application"
	"github.com/replicore/permcore/internal/permissions/domain"
	"github.com/replicore/permcore/internal/permissions/trigger"
	"github.com/replicore/permcore/internal/platform/eventbus"
	"github.com/replicore/permcore/internal/platform/events"
	"github.com/replicore/permcore/internal/platform/logger"
	"github.com/replicore/permcore/internal/platform/sessions"
)

var (
	relProjects = domain.Relation{Schema: "public", Name: "project"}
	relIssues   = domain.Relation{Schema: "public", Name: "issue"}
)

// staticRules serves a fixed rule set, counting loads so tests can
// observe caching.
type staticRules struct {
	mu    sync.Mutex
	rules domain.Rules
	roles []domain.AssignedRoleInput
	loads int
}

func (s *staticRules) LoadRules(_ context.Context, _ string) (domain.Rules, []domain.AssignedRoleInput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return s.rules, s.roles, nil
}

func (s *staticRules) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func newService(t *testing.T, src *staticRules, graph domain.Graph, bus *eventbus.Bus) *application.Service {
	t.Helper()
	return application.NewService(
		src,
		check.NewCompiler(),
		trigger.NewMemStore(),
		sessions.NewRegistry(),
		graph,
		graph,
		bus,
		nil,
	)
}

func adminRules() *staticRules {
	return &staticRules{
		rules: domain.Rules{
			Grants: []domain.GrantSpec{
				{Table: relProjects, Privilege: domain.PrivilegeInsert, RoleName: "admin"},
				{Table: relProjects, Privilege: domain.PrivilegeSelect, RoleName: "admin"},
			},
			Assigns: []domain.AssignSpec{
				{ID: "a1", Table: relProjects, UserColumn: "owner", RoleName: "admin"},
			},
		},
		roles: []domain.AssignedRoleInput{
			{AssignID: "a1", UserID: "u1", RoleName: "admin"},
		},
	}
}

func userAuth(id string) domain.Auth {
	return domain.Auth{UserID: &id}
}

func TestPermissionsFor_CompilesOnceAndCaches(t *testing.T) {
	src := adminRules()
	svc := newService(t, src, memgraph.New(), nil)
	ctx := context.Background()

	_, err := svc.PermissionsFor(ctx, userAuth("u1"))
	require.NoError(t, err)
	_, err = svc.PermissionsFor(ctx, userAuth("u1"))
	require.NoError(t, err)

	assert.Equal(t, 1, src.loadCount())
}

func TestRefresh_RecompilesFromSource(t *testing.T) {
	src := adminRules()
	svc := newService(t, src, memgraph.New(), nil)
	ctx := context.Background()

	_, err := svc.PermissionsFor(ctx, userAuth("u1"))
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, userAuth("u1"))
	require.NoError(t, err)

	assert.Equal(t, 2, src.loadCount())
}

func TestValidateWrite_AdvancesSessionBuffer(t *testing.T) {
	src := adminRules()
	svc := newService(t, src, memgraph.New(), nil)
	ctx := context.Background()

	tx := domain.Transaction{LSN: 1, Changes: []domain.Change{
		domain.NewInsert(relProjects, "p1", map[string]any{"id": "p1", "owner": "u1"}),
	}}
	require.NoError(t, svc.ValidateWrite(ctx, userAuth("u1"), tx))

	perms, err := svc.PermissionsFor(ctx, userAuth("u1"))
	require.NoError(t, err)
	assert.NotNil(t, perms.WriteBuffer, "session keeps the advanced write buffer")

	require.NoError(t, svc.ReceiveTransaction(ctx, userAuth("u1"), tx))
}

func TestValidateWrite_DenialLeavesSessionUntouched(t *testing.T) {
	src := adminRules()
	svc := newService(t, src, memgraph.New(), nil)
	ctx := context.Background()

	before, err := svc.PermissionsFor(ctx, userAuth("u1"))
	require.NoError(t, err)

	tx := domain.Transaction{LSN: 1, Changes: []domain.Change{
		domain.NewInsert(relIssues, "i1", map[string]any{"id": "i1"}),
	}}
	err = svc.ValidateWrite(ctx, userAuth("u1"), tx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permissions: user does not have permission to INSERT INTO")

	after, err := svc.PermissionsFor(ctx, userAuth("u1"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, src.loadCount())
}

func TestFilterRead_PublishesMoveOutEvents(t *testing.T) {
	scope := relProjects
	src := &staticRules{
		rules: domain.Rules{
			Grants: []domain.GrantSpec{
				{Table: relIssues, Privilege: domain.PrivilegeSelect, RoleName: "member", ScopeRelation: &scope},
			},
			Assigns: []domain.AssignSpec{
				{ID: "a1", Table: relProjects, UserColumn: "user_id", RoleName: "member", Scope: &scope},
			},
		},
		roles: []domain.AssignedRoleInput{
			{AssignID: "a1", UserID: "u1", RoleName: "member", Scope: &domain.Scope{Relation: relProjects, ID: "7"}},
		},
	}

	graph := memgraph.New().WithEdge(relIssues, "project_id", relProjects)
	bus := eventbus.NewBus(logger.NewBootstrapLogger())

	received := make(chan eventbus.Event, 1)
	bus.Subscribe(events.MoveOutTopic, func(_ context.Context, e eventbus.Event) error {
		received <- e
		return nil
	})

	svc := newService(t, src, graph, bus)

	// Issue 42 moves from visible project 7 to invisible project 8.
	tx := domain.Transaction{LSN: 5, Changes: []domain.Change{
		domain.NewUpdate(relIssues, "42",
			map[string]any{"id": "42", "project_id": "7"},
			map[string]any{"id": "42", "project_id": "8"}, []string{"project_id"}),
	}}

	filtered, moveOuts, err := svc.FilterRead(context.Background(), userAuth("u1"), tx)
	require.NoError(t, err)
	assert.Empty(t, filtered.Changes)
	require.Len(t, moveOuts, 1)

	select {
	case e := <-received:
		payload, ok := e.Payload.(events.MoveOutEvent)
		require.True(t, ok)
		assert.Equal(t, "u1", payload.UserID)
		assert.Equal(t, int64(5), payload.LSN)
		assert.Equal(t, relIssues, payload.MoveOut.Relation)
	case <-time.After(time.Second):
		t.Fatal("move-out event never published")
	}
}

func TestAssignedRoles_ListsCompiledRoles(t *testing.T) {
	src := adminRules()
	svc := newService(t, src, memgraph.New(), nil)

	roles, err := svc.AssignedRoles(context.Background(), userAuth("u1"))
	require.NoError(t, err)

	var names []string
	for _, r := range roles {
		names = append(names, r.Name)
	}
	assert.Contains(t, names, "admin")
}
