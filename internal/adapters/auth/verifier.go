// Package auth turns a bearer token into the domain.Auth the rules
// compiler consumes. Token issuance is out of scope; verification
// against the issuer's JWKS is this process's own concern.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/replicore/permcore/internal/permissions/domain"
)

var (
	ErrInvalidToken   = errors.New("invalid authentication token")
	ErrTokenExpired   = errors.New("token has expired")
	ErrMissingSubject = errors.New("missing subject in token")
)

// Verifier validates bearer tokens against a cached JWKS.
type Verifier struct {
	jwksEndpoint string
	issuer       string
	cache        *jwk.Cache
}

// NewVerifier creates a verifier with an auto-refreshing JWKS cache and
// performs an initial fetch to validate the endpoint.
func NewVerifier(ctx context.Context, jwksEndpoint string, issuer string) (*Verifier, error) {
	cache, err := jwk.NewCache(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	if err := cache.Register(ctx, jwksEndpoint); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}

	if _, err = cache.Lookup(ctx, jwksEndpoint); err != nil {
		return nil, fmt.Errorf("failed to fetch initial JWKS: %w", err)
	}

	return &Verifier{
		jwksEndpoint: jwksEndpoint,
		issuer:       issuer,
		cache:        cache,
	}, nil
}

// VerifyBearer validates tokenString and maps its claims into a
// domain.Auth: the subject becomes the user id, every other claim rides
// along for CHECK expressions that want it.
func (v *Verifier) VerifyBearer(ctx context.Context, tokenString string) (domain.Auth, error) {
	keySet, err := v.cache.Lookup(ctx, v.jwksEndpoint)
	if err != nil {
		return domain.Auth{}, fmt.Errorf("failed to get JWKS: %w", err)
	}

	token, err := jwt.ParseString(
		tokenString,
		jwt.WithKeySet(keySet),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
	)
	if err != nil {
		if strings.Contains(err.Error(), "exp not satisfied") || strings.Contains(err.Error(), "expired") {
			return domain.Auth{}, ErrTokenExpired
		}
		return domain.Auth{}, ErrInvalidToken
	}

	var subject string
	if err := token.Get("sub", &subject); err != nil || subject == "" {
		return domain.Auth{}, ErrMissingSubject
	}

	claims := make(map[string]any)
	for _, key := range token.Keys() {
		var value any
		if err := token.Get(key, &value); err == nil {
			claims[key] = value
		}
	}

	return domain.Auth{UserID: &subject, Claims: claims}, nil
}
