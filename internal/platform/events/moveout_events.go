package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/replicore/permcore/internal/permissions/domain"
	"github.com/replicore/permcore/internal/platform/eventbus"
)

// Event topics for the read filter's outbound notifications
const (
	MoveOutTopic eventbus.Topic = "permissions.moveout"
)

// MoveOutEvent is published when the read filter drops an update whose
// own mutation made the row unreadable to the user. Subscribers forward
// it to the shapes subsystem, which issues a delete to the client's
// local store.
type MoveOutEvent struct {
	EventID    uuid.UUID // dedupe key for at-least-once forwarding to shapes
	UserID     string
	MoveOut    domain.MoveOut
	LSN        int64
	OccurredAt time.Time
}
