package auth

import "github.com/google/wire"

// ProviderSet is the wire provider set for the token verifier
var ProviderSet = wire.NewSet(NewVerifier)
