package audit

import (
	"context"

	"campusmarket/internal/models"
	"campusmarket/internal/repositories"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Queries is the read side used by admin tooling.
type Queries struct {
	repo          repositories.AuditRepository
	systemActorID string
}

func NewQueries(repo repositories.AuditRepository, systemActorID string) *Queries {
	return &Queries{repo: repo, systemActorID: systemActorID}
}

// UserHistory returns the most recent entries performed by userID.
func (q *Queries) UserHistory(ctx context.Context, userID string, limit int) ([]models.AuditEntry, error) {
	return q.repo.ListByPerformer(ctx, userID, clampLimit(limit))
}

// RecentAdminActions returns entries performed by operators or by the system identity.
func (q *Queries) RecentAdminActions(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	var extra []string
	if q.systemActorID != "" {
		extra = []string{q.systemActorID}
	}
	return q.repo.ListByOperators(ctx, extra, clampLimit(limit))
}

// EntityHistory returns every entry about one entity, oldest first. A
// transaction's history includes its escrow and dispute entries.
func (q *Queries) EntityHistory(ctx context.Context, entityType, entityID string) ([]models.AuditEntry, error) {
	if entityType == models.EntityTransaction {
		return q.repo.ListByTransaction(ctx, entityID)
	}
	return q.repo.ListByEntity(ctx, entityType, entityID)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	}
	return limit
}
