package sessions

import (
	"github.com/replicore/permcore/internal/permissions/domain"
)

// Registry holds the live compiled Permissions value per authenticated
// session. Compiling rules is the expensive step of the pipeline, so the
// application service keeps one Permissions per user and replaces it
// (never mutates it) as validations advance the write buffer or a rules
// change forces a rebuild.
type Registry interface {
	// Get retrieves the current Permissions for a user.
	Get(userID string) (domain.Permissions, bool)

	// Put stores (or replaces) the Permissions for a user.
	Put(userID string, perms domain.Permissions)

	// Drop removes a user's Permissions, e.g. when the session ends.
	Drop(userID string)
}
