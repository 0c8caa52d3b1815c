package pgrules

import (
	"github.com/google/wire"

	"github.com/replicore/permcore/internal/permissions/ports"
)

// ProviderSet is the wire provider set for the rules repository
var ProviderSet = wire.NewSet(
	New,
	wire.Bind(new(ports.RulesSource), new(*Repository)),
)
