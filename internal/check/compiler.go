// Package check compiles DDLX GRANT CHECK clauses into invocable
// domain.CheckPredicate values. The engine never imports this package
// directly, it only ever holds the domain.CheckPredicate interface this
// package produces, so alternative compilers can be swapped in at
// wiring time.
package check

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-bexpr"

	"github.com/replicore/permcore/internal/permissions/domain"
)

// Compiler compiles boolean CHECK expressions with go-bexpr. Expressions
// are evaluated against a change's column map directly - go-bexpr's
// selectors resolve into map keys by reflection, so a clause like
// `status == "draft"` or `amount > 100` reads straight off
// change.Record without any intermediate struct.
type Compiler struct{}

// NewCompiler returns the reference CHECK compiler.
func NewCompiler() *Compiler { return &Compiler{} }

// Compile turns expr into a predicate scoped to relation (used only for
// error messages - go-bexpr expressions are not relation-specific).
func (c *Compiler) Compile(relation domain.Relation, expr string) (domain.CheckPredicate, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	evaluator, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		return nil, fmt.Errorf("check: compiling expression for %s: %w", relation, err)
	}
	return &predicate{relation: relation, raw: expr, evaluator: evaluator}, nil
}

type predicate struct {
	relation  domain.Relation
	raw       string
	evaluator *bexpr.Evaluator
}

// Evaluate runs the compiled expression against the change's post-image
// (or, for a delete, its only image). A missing or mistyped column is an
// evaluation failure, not a silent false - callers decide how to treat
// it.
func (p *predicate) Evaluate(change domain.Change) (bool, error) {
	datum := change.Record
	if datum == nil {
		datum = map[string]any{}
	}
	ok, err := p.evaluator.Evaluate(datum)
	if err != nil {
		return false, fmt.Errorf("check: evaluating %q for %s: %w", p.raw, p.relation, err)
	}
	return ok, nil
}

var _ domain.CheckPredicate = (*predicate)(nil)
