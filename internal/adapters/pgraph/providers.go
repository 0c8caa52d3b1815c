package pgraph

import "github.com/google/wire"

// ProviderSet is the wire provider set for the Postgres graph
var ProviderSet = wire.NewSet(New)
