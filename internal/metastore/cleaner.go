package metastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/egibi/tierd/internal/tiering"
)

// staleAuthorizationAge is how old an authorization may grow before it is
// considered stale when it is not in a valid state.
const staleAuthorizationAge = 30 * 24 * time.Hour

// Cleaner prunes expired OIDC tokens and stale authorizations from the
// relational store and compacts it afterwards.
type Cleaner struct {
	db *sql.DB
}

// NewCleaner creates a cleaner over an open database handle.
func NewCleaner(db *sql.DB) *Cleaner {
	return &Cleaner{db: db}
}

// CleanupTokens runs the three pruning statements sequentially. A failure in
// a later step still returns the counts gathered so far, with the error text
// in Message and VacuumCompleted false.
func (c *Cleaner) CleanupTokens(ctx context.Context) tiering.CleanupResult {
	var result tiering.CleanupResult
	now := time.Now().UTC()

	tokens, err := c.db.ExecContext(ctx,
		`DELETE FROM oidc_tokens WHERE expires_at < $1`, now)
	if err != nil {
		result.Message = fmt.Sprintf("prune expired tokens: %v", err)
		return result
	}
	result.ExpiredTokensPruned, _ = tokens.RowsAffected()

	auths, err := c.db.ExecContext(ctx,
		`DELETE FROM oidc_authorizations
		 WHERE revoked = TRUE OR (created_at < $1 AND status <> 'valid')`,
		now.Add(-staleAuthorizationAge))
	if err != nil {
		result.Message = fmt.Sprintf("prune stale authorizations: %v", err)
		return result
	}
	result.StaleAuthorizationsPruned, _ = auths.RowsAffected()

	if _, err := c.db.ExecContext(ctx, "VACUUM"); err != nil {
		result.Message = fmt.Sprintf("vacuum failed: %v", err)
		return result
	}
	result.VacuumCompleted = true

	result.Message = fmt.Sprintf("pruned %d expired tokens and %d stale authorizations",
		result.ExpiredTokensPruned, result.StaleAuthorizationsPruned)
	log.Info("credential cleanup completed",
		"tokens", result.ExpiredTokensPruned,
		"authorizations", result.StaleAuthorizationsPruned)

	return result
}
