package check_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicore/permcore/internal/check"
	"github.com/replicore/permcore/internal/permissions/domain"
)

func TestCompiler_Compile_EmptyExprIsNil(t *testing.T) {
	c := check.NewCompiler()
	pred, err := c.Compile(domain.Relation{Schema: "public", Name: "issues"}, "  ")
	require.NoError(t, err)
	assert.Nil(t, pred)
}

func TestCompiler_Evaluate_Truthy(t *testing.T) {
	c := check.NewCompiler()
	pred, err := c.Compile(domain.Relation{Schema: "public", Name: "issues"}, `status == "draft"`)
	require.NoError(t, err)
	require.NotNil(t, pred)

	ok, err := pred.Evaluate(domain.Change{Record: map[string]any{"status": "draft"}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = pred.Evaluate(domain.Change{Record: map[string]any{"status": "published"}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompiler_Compile_InvalidExpression(t *testing.T) {
	c := check.NewCompiler()
	_, err := c.Compile(domain.Relation{Schema: "public", Name: "issues"}, `status ===`)
	require.Error(t, err)
}

func TestCompiler_Evaluate_MissingColumnFails(t *testing.T) {
	c := check.NewCompiler()
	pred, err := c.Compile(domain.Relation{Schema: "public", Name: "issues"}, `amount > 100`)
	require.NoError(t, err)

	_, err = pred.Evaluate(domain.Change{Record: map[string]any{"status": "draft"}})
	assert.Error(t, err)
}
