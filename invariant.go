package membership

import (
	"context"
	"fmt"

	"go-membership/database"
)

// assertNoActiveMembership fails with Conflict if the user holds a pending or approved
// record in any community other than excludingCommunityID. The public community never counts.
// Callers must hold the user lock (q.LockUser) in the same transaction.
func assertNoActiveMembership(ctx context.Context, q *database.Queries, userID, excludingCommunityID string) error {
	var rows, err = q.ListActiveMemberships(ctx, userID)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if row.CommunityID == excludingCommunityID {
			continue
		}
		var active = recordFromRow(row)
		return conflictError(userID, &active)
	}

	return nil
}

// resolveActiveRace explains a unique-index violation raised by a concurrent writer.
// It re-reads the user's active records after the losing transaction rolled back and
// returns the record when it belongs to communityID (a duplicate), or a Conflict otherwise.
func (e *Engine) resolveActiveRace(ctx context.Context, userID, communityID string, cause error) (*Record, error) {
	var rows, err = e.store.queries().ListActiveMemberships(ctx, userID)
	if err != nil {
		return nil, storeError("reload active memberships", err)
	}

	if len(rows) > 0 {
		var active = recordFromRow(rows[0])
		if active.CommunityID == communityID {
			return &active, nil
		}
		return nil, conflictError(userID, &active)
	}

	// The winner is gone again; let the caller retry.
	return nil, &Error{
		Code:    CodeTransient,
		Message: fmt.Sprintf("concurrent update to memberships of user %s, retry", userID),
		Cause:   cause,
	}
}
