package actors

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/helpdesk/internal/identity"
)

// Finder loads an actor by id.
type Finder interface {
	FindByID(ctx context.Context, id string) (Actor, error)
}

// ClaimsLoader rebuilds claims from storage on every call. Nothing is cached, so a changed
// role or revoked capability applies to the very next request. Concurrent loads of the same
// actor share one in-flight lookup.
type ClaimsLoader struct {
	finder Finder
	group  singleflight.Group
}

// NewClaimsLoader constructs a loader.
func NewClaimsLoader(finder Finder) *ClaimsLoader {
	return &ClaimsLoader{finder: finder}
}

// Load resolves and validates the claims of actorID. Unknown actors and malformed records
// are reported as ErrInvalidIdentity.
func (l *ClaimsLoader) Load(ctx context.Context, actorID string) (identity.Claims, error) {
	resultChan := l.group.DoChan(actorID, func() (interface{}, error) {
		return l.finder.FindByID(context.WithoutCancel(ctx), actorID)
	})
	var actor Actor
	select {
	case <-ctx.Done():
		return identity.Claims{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			if errors.Is(res.Err, ErrNotFound) {
				return identity.Claims{}, fmt.Errorf("%w: unknown actor", identity.ErrInvalidIdentity)
			}
			return identity.Claims{}, res.Err
		}
		actor = res.Val.(Actor)
	}
	claims := actor.Claims()
	if err := claims.Validate(); err != nil {
		return identity.Claims{}, err
	}
	return claims, nil
}
