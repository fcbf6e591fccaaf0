package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var (
	insertLeaderSQL = `
INSERT INTO %[1]s_leaders (` + leaderColumns + `)
VALUES (:id, :community_id, :user_id, :leader_type, :is_active, :assigned_by, :assigned_at);`

	getActiveLeaderSQL = `
SELECT ` + leaderColumns + `
FROM %[1]s_leaders
WHERE community_id = ? AND leader_type = ? AND is_active = TRUE`

	listLeadersSQL = `
SELECT ` + leaderColumns + `
FROM %[1]s_leaders
WHERE community_id = ?
ORDER BY assigned_at DESC, id ASC;`

	listActiveLeadersSQL = `
SELECT ` + leaderColumns + `
FROM %[1]s_leaders
WHERE community_id = ? AND is_active = TRUE
ORDER BY leader_type ASC;`

	deactivateLeaderSQL = `
UPDATE %[1]s_leaders
SET is_active = FALSE
WHERE id = ?;`
)

// InsertLeader inserts a leader assignment.
func (q *Queries) InsertLeader(ctx context.Context, leader *LeaderRecord) error {
	var query = q.format(insertLeaderSQL)
	if _, err := sqlx.NamedExecContext(ctx, q.db, query, leader); err != nil {
		return fmt.Errorf("failed to insert leader: %w", err)
	}
	return nil
}

// GetActiveLeader returns the active assignment for (communityID, leaderType), locking it
// inside a Postgres transaction. Returns nil if there is none.
func (q *Queries) GetActiveLeader(ctx context.Context, communityID, leaderType string) (*LeaderRecord, error) {
	var (
		query  = q.rebind(getActiveLeaderSQL + q.dialect.forUpdate() + ";")
		leader LeaderRecord
		err    = sqlx.GetContext(ctx, q.db, &leader, query, communityID, leaderType)
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active leader: %w", err)
	}

	return &leader, nil
}

// ListLeaders returns the community's leader assignments.
func (q *Queries) ListLeaders(ctx context.Context, communityID string, activeOnly bool) ([]*LeaderRecord, error) {
	var query = q.rebind(listLeadersSQL)
	if activeOnly {
		query = q.rebind(listActiveLeadersSQL)
	}

	var leaders []*LeaderRecord
	if err := sqlx.SelectContext(ctx, q.db, &leaders, query, communityID); err != nil {
		return nil, fmt.Errorf("failed to list leaders: %w", err)
	}
	return leaders, nil
}

// DeactivateLeader marks an assignment inactive.
func (q *Queries) DeactivateLeader(ctx context.Context, id string) error {
	if _, err := q.exec(ctx, "deactivate leader", deactivateLeaderSQL, id); err != nil {
		return err
	}
	return nil
}
