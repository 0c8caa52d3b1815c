// Package ports names the capability interfaces the permissions core
// consumes from external collaborators. The interfaces themselves are
// declared in domain (their method signatures are expressed purely in
// domain types, so domain stays dependency-free); this package re-exports
// them under the hexagonal "ports" name the rest of the module's
// packages (rules, engine, writebuffer, adapters) are organized around,
// and adds the one port that needs a signature domain has no reason to
// know about: compiling a raw CHECK string into a predicate.
package ports

import (
	"context"

	"github.com/replicore/permcore/internal/permissions/domain"
)

type (
	Graph          = domain.Graph
	WriteBuffer    = domain.WriteBuffer
	TransientStore = domain.TransientStore
)

// RulesSource loads the compile inputs the rules compiler consumes: the
// compiled-from-DDLX rules record and, per user, the materialized
// assignment rows. DDLX parsing and assignment materialization are out
// of scope; this port only reads their output wherever it is stored.
type RulesSource interface {
	LoadRules(ctx context.Context, userID string) (domain.Rules, []domain.AssignedRoleInput, error)
}

// CheckCompiler compiles a GRANT's CHECK clause, a raw boolean-expression
// string, into an invocable domain.CheckPredicate. The schema loader
// (external collaborator, out of scope) supplies column metadata for the
// relation the expression is checked against; the compiler is free to
// ignore it if it compiles expressions structurally instead.
type CheckCompiler interface {
	Compile(relation domain.Relation, expr string) (domain.CheckPredicate, error)
}
