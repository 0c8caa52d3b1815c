package application

import (
	"github.com/google/wire"
)

// ProviderSet is the wire provider set for the permissions application
// service
var ProviderSet = wire.NewSet(
	NewService,
)
