package database

// Timestamps are stored as unix milliseconds so the same schema works on Postgres and SQLite.

// CommunityRecord represents a community row in the database.
type CommunityRecord struct {
	ID        string  `db:"id"`
	Name      string  `db:"name"`
	IsActive  bool    `db:"is_active"`
	AdminID   *string `db:"admin_id"`
	CreatedAt int64   `db:"created_at"`
}

// MembershipRecord represents a membership row in the database.
type MembershipRecord struct {
	ID          string `db:"id"`
	UserID      string `db:"user_id"`
	CommunityID string `db:"community_id"`
	Status      string `db:"status"`
	Role        string `db:"role"`
	BlockRef    string `db:"block_ref"`
	Address     string `db:"address"`
	Exempt      bool   `db:"exempt"` // true for rows in the always-public community
	RequestedAt int64  `db:"requested_at"`
	UpdatedAt   int64  `db:"updated_at"`
}

// LeaderRecord represents a leader assignment row in the database.
type LeaderRecord struct {
	ID          string `db:"id"`
	CommunityID string `db:"community_id"`
	UserID      string `db:"user_id"`
	LeaderType  string `db:"leader_type"`
	IsActive    bool   `db:"is_active"`
	AssignedBy  string `db:"assigned_by"`
	AssignedAt  int64  `db:"assigned_at"`
}

// UserRecord represents a directory entry used to resolve contact identifiers.
type UserRecord struct {
	ID          string `db:"id"`
	Email       string `db:"email"`
	Phone       string `db:"phone"`
	DisplayName string `db:"display_name"`
	IsSuperuser bool   `db:"is_superuser"`
}
