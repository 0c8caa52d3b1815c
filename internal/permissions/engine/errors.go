package engine

import (
	"fmt"

	"github.com/replicore/permcore/internal/permissions/domain"
	"github.com/replicore/permcore/internal/platform/apperror"
)

// DenialError is an authorization failure: a change lacked any accepting
// RoleGrant. Its Error() is exactly the external error string format:
// `permissions: user does not have permission to <VERB> <relation>`.
type DenialError struct {
	Privilege domain.Privilege
	Relation  domain.Relation
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("permissions: user does not have permission to %s%s", e.Privilege.Verb(), e.Relation)
}

func newDenial(privilege domain.Privilege, relation domain.Relation) error {
	denial := &DenialError{Privilege: privilege, Relation: relation}
	return apperror.Wrap(denial, apperror.CodeDenied, apperror.BusinessCodePermissionDenied, denial.Error(), 403)
}

// CheckEvaluationError is an evaluation failure: a CHECK
// predicate raised rather than returning a boolean, e.g. because the
// change is missing a column the expression references. This module
// resolves the source's "implementer's discretion" by treating it as a
// distinct error kind rather than silently downgrading it to a denial.
type CheckEvaluationError struct {
	Relation domain.Relation
	Inner    error
}

func (e *CheckEvaluationError) Error() string {
	return fmt.Sprintf("permissions: check evaluation failed for %s: %v", e.Relation, e.Inner)
}

func (e *CheckEvaluationError) Unwrap() error { return e.Inner }

func newCheckEvaluationError(relation domain.Relation, inner error) error {
	evalErr := &CheckEvaluationError{Relation: relation, Inner: inner}
	return apperror.Wrap(evalErr, apperror.CodeEvaluationFailed, apperror.BusinessCodeCheckEvaluationFailed, evalErr.Error(), 422)
}
