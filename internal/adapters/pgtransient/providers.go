package pgtransient

import "github.com/google/wire"

// ProviderSet is the wire provider set for the Postgres transient store
var ProviderSet = wire.NewSet(New)
