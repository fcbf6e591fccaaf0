package database

import "context"

// Sweep statements are single set-based DELETE/UPDATEs: they never read a row into Go
// and decide on it, so concurrent sweeps and user operations cannot interleave inside them.
var (
	deleteOrphanMembershipsSQL = `
DELETE FROM %[1]s_memberships
WHERE NOT EXISTS (
    SELECT 1 FROM %[1]s_communities c
    WHERE c.id = %[1]s_memberships.community_id
)`

	deleteStalePendingSQL = `
DELETE FROM %[1]s_memberships
WHERE status = 'pending'
  AND community_id <> ?
  AND EXISTS (
    SELECT 1 FROM %[1]s_communities c
    WHERE c.id = %[1]s_memberships.community_id AND c.is_active = FALSE
)`

	deleteStaleRejectionsSQL = `
DELETE FROM %[1]s_memberships
WHERE status = 'rejected'
  AND updated_at < ?`

	reactivateCommunitiesSQL = `
UPDATE %[1]s_communities
SET is_active = TRUE
WHERE is_active = FALSE
  AND EXISTS (
    SELECT 1 FROM %[1]s_memberships m
    WHERE m.community_id = %[1]s_communities.id AND m.status = 'approved'
);`

	deactivateCommunitiesSQL = `
UPDATE %[1]s_communities
SET is_active = FALSE
WHERE is_active = TRUE
  AND id <> ?
  AND NOT EXISTS (
    SELECT 1 FROM %[1]s_memberships m
    WHERE m.community_id = %[1]s_communities.id AND m.status = 'approved'
);`

	deleteOrphanLeadersSQL = `
DELETE FROM %[1]s_leaders
WHERE NOT EXISTS (
    SELECT 1 FROM %[1]s_communities c
    WHERE c.id = %[1]s_leaders.community_id
);`
)

// DeleteOrphanMemberships removes rows whose community no longer exists.
// An empty userID applies the delete to every user.
func (q *Queries) DeleteOrphanMemberships(ctx context.Context, userID string) (int64, error) {
	var statement, args = scopeToUser(deleteOrphanMembershipsSQL, userID)
	return q.exec(ctx, "delete orphan memberships", statement, args...)
}

// DeleteStalePending removes pending rows in inactive communities, never touching publicCommunityID.
func (q *Queries) DeleteStalePending(ctx context.Context, userID, publicCommunityID string) (int64, error) {
	var statement, args = scopeToUser(deleteStalePendingSQL, userID, publicCommunityID)
	return q.exec(ctx, "delete stale pending memberships", statement, args...)
}

// DeleteStaleRejections removes rejected rows last updated before cutoff (unix millis).
func (q *Queries) DeleteStaleRejections(ctx context.Context, userID string, cutoff int64) (int64, error) {
	var statement, args = scopeToUser(deleteStaleRejectionsSQL, userID, cutoff)
	return q.exec(ctx, "delete stale rejections", statement, args...)
}

// ReactivateCommunities activates every inactive community holding at least one approved row.
func (q *Queries) ReactivateCommunities(ctx context.Context) (int64, error) {
	return q.exec(ctx, "reactivate communities", reactivateCommunitiesSQL)
}

// DeactivateCommunities deactivates every active community without approved rows, except publicCommunityID.
func (q *Queries) DeactivateCommunities(ctx context.Context, publicCommunityID string) (int64, error) {
	return q.exec(ctx, "deactivate communities", deactivateCommunitiesSQL, publicCommunityID)
}

// DeleteOrphanLeaders removes leader assignments whose community no longer exists.
func (q *Queries) DeleteOrphanLeaders(ctx context.Context) (int64, error) {
	return q.exec(ctx, "delete orphan leaders", deleteOrphanLeadersSQL)
}

func scopeToUser(statement, userID string, args ...any) (string, []any) {
	if userID == "" {
		return statement + ";", args
	}
	return statement + "\n  AND user_id = ?;", append(args, userID)
}
