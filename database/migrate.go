package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// All DDL below is valid on both Postgres and SQLite. %[1]s is the namespace prefix.
var (
	createCommunitiesTableSQL = `
CREATE TABLE IF NOT EXISTS %[1]s_communities (
    id            VARCHAR       NOT NULL,
    name          VARCHAR       NOT NULL,
    is_active     BOOLEAN       NOT NULL DEFAULT TRUE,
    admin_id      VARCHAR       NULL,
    created_at    BIGINT        NOT NULL,

    PRIMARY KEY (id),
    UNIQUE (name)
);`

	createMembershipsTableSQL = `
CREATE TABLE IF NOT EXISTS %[1]s_memberships (
    id              VARCHAR       NOT NULL,
    user_id         VARCHAR       NOT NULL,
    community_id    VARCHAR       NOT NULL,
    status          VARCHAR       NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
    role            VARCHAR       NOT NULL,
    block_ref       VARCHAR       NOT NULL DEFAULT '',
    address         VARCHAR       NOT NULL DEFAULT '',
    exempt          BOOLEAN       NOT NULL DEFAULT FALSE,
    requested_at    BIGINT        NOT NULL,
    updated_at      BIGINT        NOT NULL,

    PRIMARY KEY (id)
);`

	// At most one active membership per user outside the always-public community.
	createOneActiveIndexSQL = `
CREATE UNIQUE INDEX IF NOT EXISTS %[1]s_memberships_one_active_idx
ON %[1]s_memberships (user_id)
WHERE status IN ('pending', 'approved') AND exempt = FALSE;`

	createPublicMemberIndexSQL = `
CREATE UNIQUE INDEX IF NOT EXISTS %[1]s_memberships_public_idx
ON %[1]s_memberships (user_id, community_id)
WHERE exempt = TRUE;`

	createMembershipsCommunityIndexSQL = `
CREATE INDEX IF NOT EXISTS %[1]s_memberships_community_idx
ON %[1]s_memberships (community_id, status, requested_at);`

	createMembershipsUserIndexSQL = `
CREATE INDEX IF NOT EXISTS %[1]s_memberships_user_idx
ON %[1]s_memberships (user_id);`

	createLeadersTableSQL = `
CREATE TABLE IF NOT EXISTS %[1]s_leaders (
    id              VARCHAR       NOT NULL,
    community_id    VARCHAR       NOT NULL,
    user_id         VARCHAR       NOT NULL,
    leader_type     VARCHAR       NOT NULL CHECK (leader_type IN ('mp', 'mla', 'councillor')),
    is_active       BOOLEAN       NOT NULL DEFAULT TRUE,
    assigned_by     VARCHAR       NOT NULL,
    assigned_at     BIGINT        NOT NULL,

    PRIMARY KEY (id)
);`

	createOneActiveLeaderIndexSQL = `
CREATE UNIQUE INDEX IF NOT EXISTS %[1]s_leaders_one_active_idx
ON %[1]s_leaders (community_id, leader_type)
WHERE is_active = TRUE;`

	createUsersTableSQL = `
CREATE TABLE IF NOT EXISTS %[1]s_users (
    id              VARCHAR       NOT NULL,
    email           VARCHAR       NOT NULL DEFAULT '',
    phone           VARCHAR       NOT NULL DEFAULT '',
    display_name    VARCHAR       NOT NULL DEFAULT '',
    is_superuser    BOOLEAN       NOT NULL DEFAULT FALSE,

    PRIMARY KEY (id)
);`

	createUsersEmailIndexSQL = `
CREATE INDEX IF NOT EXISTS %[1]s_users_email_idx
ON %[1]s_users (email);`
)

// Migrate creates the communities, memberships, leaders and users tables with their indexes.
// Memberships and leaders carry no foreign key to communities; deleting a community
// leaves orphan rows behind for the sweeper.
func Migrate(ctx context.Context, db *sqlx.DB, namespace string) error {
	var steps = []struct {
		name string
		sql  string
	}{
		{"communities table", createCommunitiesTableSQL},
		{"memberships table", createMembershipsTableSQL},
		{"one-active membership index", createOneActiveIndexSQL},
		{"public membership index", createPublicMemberIndexSQL},
		{"memberships community index", createMembershipsCommunityIndexSQL},
		{"memberships user index", createMembershipsUserIndexSQL},
		{"leaders table", createLeadersTableSQL},
		{"one-active leader index", createOneActiveLeaderIndexSQL},
		{"users table", createUsersTableSQL},
		{"users email index", createUsersEmailIndexSQL},
	}

	for _, step := range steps {
		var query = fmt.Sprintf(step.sql, namespace)
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create %s: %w", step.name, err)
		}
	}

	return nil
}
