package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// DBTX is an interface that both sqlx.DB and sqlx.Tx implement.
type DBTX interface {
	sqlx.ExtContext
}

// Queries provides namespace-aware database operations.
// Statements are written with '?' bind variables and rebound for the driver in use.
type Queries struct {
	db        DBTX
	namespace string
	dialect   Dialect
}

// NewQueries creates a new Queries instance for the given table namespace.
func NewQueries(db DBTX, namespace string) *Queries {
	return &Queries{
		db:        db,
		namespace: namespace,
		dialect:   DialectOf(db),
	}
}

const (
	communityColumns  = "id, name, is_active, admin_id, created_at"
	membershipColumns = "id, user_id, community_id, status, role, block_ref, address, exempt, requested_at, updated_at"
	leaderColumns     = "id, community_id, user_id, leader_type, is_active, assigned_by, assigned_at"
	userColumns       = "id, email, phone, display_name, is_superuser"
)

var (
	insertCommunitySQL = `
INSERT INTO %[1]s_communities (id, name, is_active, admin_id, created_at)
VALUES (:id, :name, :is_active, :admin_id, :created_at);`

	getCommunitySQL = `
SELECT ` + communityColumns + `
FROM %[1]s_communities
WHERE id = ?`

	listCommunitiesSQL = `
SELECT ` + communityColumns + `
FROM %[1]s_communities
ORDER BY name ASC;`

	listActiveCommunitiesSQL = `
SELECT ` + communityColumns + `
FROM %[1]s_communities
WHERE is_active = TRUE
ORDER BY name ASC;`

	deleteCommunitySQL = `
DELETE FROM %[1]s_communities
WHERE id = ?;`

	setCommunityAdminSQL = `
UPDATE %[1]s_communities
SET admin_id = ?
WHERE id = ?;`

	setCommunityActiveSQL = `
UPDATE %[1]s_communities
SET is_active = ?
WHERE id = ?;`

	insertMembershipSQL = `
INSERT INTO %[1]s_memberships (` + membershipColumns + `)
VALUES (:id, :user_id, :community_id, :status, :role, :block_ref, :address, :exempt, :requested_at, :updated_at);`

	getMembershipSQL = `
SELECT ` + membershipColumns + `
FROM %[1]s_memberships
WHERE id = ?`

	listActiveMembershipsSQL = `
SELECT ` + membershipColumns + `
FROM %[1]s_memberships
WHERE user_id = ? AND status IN ('pending', 'approved') AND exempt = FALSE
ORDER BY requested_at ASC, id ASC;`

	findMembershipSQL = `
SELECT ` + membershipColumns + `
FROM %[1]s_memberships
WHERE user_id = ? AND community_id = ? AND status IN (?)
ORDER BY requested_at DESC, id DESC
LIMIT 1`

	listMembershipsByUserSQL = `
SELECT ` + membershipColumns + `
FROM %[1]s_memberships
WHERE user_id = ?
ORDER BY requested_at ASC, id ASC;`

	listMembershipsByCommunitySQL = `
SELECT ` + membershipColumns + `
FROM %[1]s_memberships
WHERE community_id = ?
ORDER BY requested_at ASC, id ASC;`

	listMembershipsByCommunityStatusSQL = `
SELECT ` + membershipColumns + `
FROM %[1]s_memberships
WHERE community_id = ? AND status = ?
ORDER BY requested_at ASC, id ASC;`

	// Earliest joiner first; id breaks ties between identical timestamps.
	earliestApprovedSQL = `
SELECT ` + membershipColumns + `
FROM %[1]s_memberships
WHERE community_id = ? AND status = 'approved'
ORDER BY requested_at ASC, id ASC
LIMIT 1;`

	updateMembershipSQL = `
UPDATE %[1]s_memberships
SET status = ?, role = ?, updated_at = ?
WHERE id = ?;`

	// At most one non-exempt active row exists per user, so each user gains at most one
	// exempt row; users who already hold one keep their old row as it is.
	markExemptSQL = `
UPDATE %[1]s_memberships
SET exempt = TRUE, status = 'approved'
WHERE community_id = ? AND exempt = FALSE AND status IN ('pending', 'approved')
AND NOT EXISTS (
    SELECT 1 FROM %[1]s_memberships AS existing
    WHERE existing.user_id = %[1]s_memberships.user_id
    AND existing.community_id = %[1]s_memberships.community_id
    AND existing.exempt = TRUE
);`

	deleteMembershipSQL = `
DELETE FROM %[1]s_memberships
WHERE id = ?;`
)

// LockUser serialises concurrent writers acting on the same user until the transaction ends.
// Only meaningful inside a transaction; SQLite transactions are already exclusive.
func (q *Queries) LockUser(ctx context.Context, userID string) error {
	if q.dialect != Postgres {
		return nil
	}

	if _, err := q.db.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1);", userLockKey(q.namespace, userID)); err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}
	return nil
}

// InsertCommunity inserts a new community.
func (q *Queries) InsertCommunity(ctx context.Context, community *CommunityRecord) error {
	var query = q.format(insertCommunitySQL)
	if _, err := sqlx.NamedExecContext(ctx, q.db, query, community); err != nil {
		return fmt.Errorf("failed to insert community: %w", err)
	}
	return nil
}

// GetCommunity retrieves a community by id. Returns nil if it does not exist.
func (q *Queries) GetCommunity(ctx context.Context, id string) (*CommunityRecord, error) {
	return q.getCommunity(ctx, id, "")
}

// GetCommunityForUpdate retrieves a community by id and locks the row for the rest of the transaction.
func (q *Queries) GetCommunityForUpdate(ctx context.Context, id string) (*CommunityRecord, error) {
	return q.getCommunity(ctx, id, q.dialect.forUpdate())
}

func (q *Queries) getCommunity(ctx context.Context, id, suffix string) (*CommunityRecord, error) {
	var (
		query     = q.rebind(getCommunitySQL + suffix + ";")
		community CommunityRecord
		err       = sqlx.GetContext(ctx, q.db, &community, query, id)
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get community: %w", err)
	}

	return &community, nil
}

// ListCommunities returns communities ordered by name.
func (q *Queries) ListCommunities(ctx context.Context, includeInactive bool) ([]*CommunityRecord, error) {
	var query = q.rebind(listActiveCommunitiesSQL)
	if includeInactive {
		query = q.rebind(listCommunitiesSQL)
	}

	var communities []*CommunityRecord
	if err := sqlx.SelectContext(ctx, q.db, &communities, query); err != nil {
		return nil, fmt.Errorf("failed to list communities: %w", err)
	}
	return communities, nil
}

// DeleteCommunity removes a community row and returns the number of rows deleted.
func (q *Queries) DeleteCommunity(ctx context.Context, id string) (int64, error) {
	return q.exec(ctx, "delete community", deleteCommunitySQL, id)
}

// SetCommunityAdmin sets or clears (nil) the community administrator.
func (q *Queries) SetCommunityAdmin(ctx context.Context, id string, adminID *string) error {
	if _, err := q.exec(ctx, "set community admin", setCommunityAdminSQL, adminID, id); err != nil {
		return err
	}
	return nil
}

// SetCommunityActive sets the community activity flag.
func (q *Queries) SetCommunityActive(ctx context.Context, id string, active bool) error {
	if _, err := q.exec(ctx, "set community active", setCommunityActiveSQL, active, id); err != nil {
		return err
	}
	return nil
}

// InsertMembership inserts a new membership row.
func (q *Queries) InsertMembership(ctx context.Context, membership *MembershipRecord) error {
	var query = q.format(insertMembershipSQL)
	if _, err := sqlx.NamedExecContext(ctx, q.db, query, membership); err != nil {
		return fmt.Errorf("failed to insert membership: %w", err)
	}
	return nil
}

// GetMembership retrieves a membership by id. Returns nil if it does not exist.
func (q *Queries) GetMembership(ctx context.Context, id string) (*MembershipRecord, error) {
	return q.getMembership(ctx, id, "")
}

// GetMembershipForUpdate retrieves a membership by id and locks the row for the rest of the transaction.
func (q *Queries) GetMembershipForUpdate(ctx context.Context, id string) (*MembershipRecord, error) {
	return q.getMembership(ctx, id, q.dialect.forUpdate())
}

func (q *Queries) getMembership(ctx context.Context, id, suffix string) (*MembershipRecord, error) {
	var (
		query      = q.rebind(getMembershipSQL + suffix + ";")
		membership MembershipRecord
		err        = sqlx.GetContext(ctx, q.db, &membership, query, id)
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	return &membership, nil
}

// ListActiveMemberships returns the user's pending and approved rows outside the public community.
func (q *Queries) ListActiveMemberships(ctx context.Context, userID string) ([]*MembershipRecord, error) {
	return q.selectMemberships(ctx, "list active memberships", listActiveMembershipsSQL, userID)
}

// FindMembership returns the most recent row for (userID, communityID) whose status is one of statuses.
// Returns nil if none exists. Inside a Postgres transaction the returned row stays locked.
func (q *Queries) FindMembership(ctx context.Context, userID, communityID string, statuses ...string) (*MembershipRecord, error) {
	if len(statuses) == 0 {
		statuses = []string{"pending", "approved", "rejected"}
	}

	var query, args, err = sqlx.In(q.format(findMembershipSQL)+q.dialect.forUpdate()+";", userID, communityID, statuses)
	if err != nil {
		return nil, fmt.Errorf("failed to build membership query: %w", err)
	}

	var membership MembershipRecord
	err = sqlx.GetContext(ctx, q.db, &membership, q.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}

	return &membership, nil
}

// ListMembershipsByUser returns every row owned by the user, oldest first.
func (q *Queries) ListMembershipsByUser(ctx context.Context, userID string) ([]*MembershipRecord, error) {
	return q.selectMemberships(ctx, "list user memberships", listMembershipsByUserSQL, userID)
}

// ListMembershipsByCommunity returns the community's rows, optionally filtered by status.
func (q *Queries) ListMembershipsByCommunity(ctx context.Context, communityID, status string) ([]*MembershipRecord, error) {
	if status == "" {
		return q.selectMemberships(ctx, "list community memberships", listMembershipsByCommunitySQL, communityID)
	}
	return q.selectMemberships(ctx, "list community memberships", listMembershipsByCommunityStatusSQL, communityID, status)
}

// EarliestApproved returns the approved row with the oldest request time, or nil if there is none.
func (q *Queries) EarliestApproved(ctx context.Context, communityID string) (*MembershipRecord, error) {
	var (
		query      = q.rebind(earliestApprovedSQL)
		membership MembershipRecord
		err        = sqlx.GetContext(ctx, q.db, &membership, query, communityID)
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find earliest approved membership: %w", err)
	}

	return &membership, nil
}

// UpdateMembership sets the status, role and update time of a membership row.
func (q *Queries) UpdateMembership(ctx context.Context, id, status, role string, updatedAt int64) error {
	if _, err := q.exec(ctx, "update membership", updateMembershipSQL, status, role, updatedAt, id); err != nil {
		return err
	}
	return nil
}

// MarkExempt turns active rows in communityID into approved, exempt rows and returns
// the number of rows changed.
func (q *Queries) MarkExempt(ctx context.Context, communityID string) (int64, error) {
	return q.exec(ctx, "mark exempt memberships", markExemptSQL, communityID)
}

// DeleteMembership removes a membership row and returns the number of rows deleted.
func (q *Queries) DeleteMembership(ctx context.Context, id string) (int64, error) {
	return q.exec(ctx, "delete membership", deleteMembershipSQL, id)
}

func (q *Queries) selectMemberships(ctx context.Context, op, statement string, args ...any) ([]*MembershipRecord, error) {
	var memberships []*MembershipRecord
	if err := sqlx.SelectContext(ctx, q.db, &memberships, q.rebind(statement), args...); err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return memberships, nil
}

// exec runs a statement and returns the number of affected rows.
func (q *Queries) exec(ctx context.Context, op, statement string, args ...any) (int64, error) {
	var result, err = q.db.ExecContext(ctx, q.rebind(statement), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", op, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", op, err)
	}
	return affected, nil
}

// format applies the namespace prefix.
func (q *Queries) format(statement string) string {
	return fmt.Sprintf(statement, q.namespace)
}

// rebind applies the namespace prefix and converts bind variables for the driver.
func (q *Queries) rebind(statement string) string {
	return q.db.Rebind(q.format(statement))
}
