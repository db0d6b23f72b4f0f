package escrow

import (
	"context"

	"campusmarket/internal/repositories"
)

// Authorizer is the single "authorized operator" predicate consulted by
// release, refund, approval and dispute resolution.
type Authorizer interface {
	IsReleaseAuthority(ctx context.Context, actorID string) (bool, error)
}

// OperatorAuthorizer accepts active admin operators and the system identity.
type OperatorAuthorizer struct {
	operators     repositories.OperatorRepository
	systemActorID string
}

func NewOperatorAuthorizer(operators repositories.OperatorRepository, systemActorID string) *OperatorAuthorizer {
	return &OperatorAuthorizer{operators: operators, systemActorID: systemActorID}
}

func (a *OperatorAuthorizer) IsReleaseAuthority(ctx context.Context, actorID string) (bool, error) {
	if actorID == "" {
		return false, nil
	}
	if a.systemActorID != "" && actorID == a.systemActorID {
		return true, nil
	}
	return a.operators.IsActiveAdmin(ctx, actorID)
}
