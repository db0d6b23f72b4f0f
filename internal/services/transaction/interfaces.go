package transaction

import "context"

// Authorizer decides whether an actor speaks for the marketplace operator.
type Authorizer interface {
	IsReleaseAuthority(ctx context.Context, actorID string) (bool, error)
}
