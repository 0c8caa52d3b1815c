package httpapi

import "github.com/google/wire"

// ProviderSet is the wire provider set for HTTP handlers
var ProviderSet = wire.NewSet(
	NewBaseHandler,
	NewPermissionsHandler,
	NewHealthHandler,
	NewRouter,
)
