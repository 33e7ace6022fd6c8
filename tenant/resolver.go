package tenant

import (
	"context"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"

	"opsboard/auth"
)

type ProfileStore interface {
	BusinessIDForUser(ctx context.Context, userID string) (string, error)
}

// Resolver maps a bearer token to the business the caller belongs to.
// Any failure along the way means "no tenant": the caller gets an empty
// dashboard rather than an error page.
type Resolver struct {
	verifier *auth.TokenVerifier
	profiles ProfileStore
}

func NewResolver(verifier *auth.TokenVerifier, profiles ProfileStore) *Resolver {
	if verifier == nil {
		panic("missing token verifier")
	}
	if profiles == nil {
		panic("missing profile store")
	}
	return &Resolver{verifier: verifier, profiles: profiles}
}

// BusinessIDFromToken returns the tenant for the token, or "" when the token
// is invalid, expired, or its subject has no profile row.
func (r *Resolver) BusinessIDFromToken(ctx context.Context, token string) string {
	if token == "" {
		return ""
	}

	claims, err := r.verifier.ParseValidate(token)
	if err != nil {
		log.FromContext(ctx).WithError(err).Debug("Could not validate access token")
		return ""
	}

	businessID, err := r.profiles.BusinessIDForUser(ctx, claims.Sub)
	if err != nil {
		log.FromContext(ctx).
			WithError(err).
			WithField("user_id", claims.Sub).
			Debug("No business profile for token subject")
		return ""
	}

	return businessID
}
