package membership

import (
	"context"
	"time"
)

// Community is a group users request to join.
type Community struct {
	ID        string
	Name      string
	IsActive  bool
	AdminID   string // empty while the community has no administrator
	CreatedAt time.Time
}

// HasAdmin reports whether the community currently has an administrator.
func (c Community) HasAdmin() bool {
	return c.AdminID != ""
}

// NewCommunity describes a community to create.
type NewCommunity struct {
	ID      string // generated when empty
	Name    string
	AdminID string
}

// Status is the lifecycle state of a membership record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Active reports whether s counts towards the one-active-membership rule.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusApproved
}

// CanTransition reports whether a record may move from s to next.
// Only pending records can be decided; approved and rejected are final for the record.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && (next == StatusApproved || next == StatusRejected)
}

// Role is a member's role inside a community.
type Role string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
	RoleTenant    Role = "tenant"
	RoleOwner     Role = "owner"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleModerator, RoleAdmin, RoleTenant, RoleOwner:
		return true
	}
	return false
}

// Record is one user's membership request or membership in one community.
type Record struct {
	ID          string
	UserID      string
	CommunityID string
	Status      Status
	Role        Role
	BlockRef    string
	Address     string
	RequestedAt time.Time
	UpdatedAt   time.Time
}

// JoinDetails are the requester-supplied attributes of a join request.
type JoinDetails struct {
	Role     Role // defaults to RoleMember
	BlockRef string
	Address  string
}

// Decision is an administrator's verdict on a pending record.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) status() (Status, bool) {
	switch d {
	case DecisionApprove:
		return StatusApproved, true
	case DecisionReject:
		return StatusRejected, true
	}
	return "", false
}

// LeaveOutcome describes what happened to the community when a member left.
type LeaveOutcome string

const (
	// OutcomeLeft means a non-admin member left.
	OutcomeLeft LeaveOutcome = "left"
	// OutcomeLeftAndSucceeded means the admin left and the earliest approved member took over.
	OutcomeLeftAndSucceeded LeaveOutcome = "left_and_succeeded"
	// OutcomeLeftAndCommunityDeactivated means the admin left with no one to succeed them.
	OutcomeLeftAndCommunityDeactivated LeaveOutcome = "left_and_community_deactivated"
)

// LeaveResult is returned by Leave.
type LeaveResult struct {
	Outcome    LeaveOutcome
	NewAdminID string // set for OutcomeLeftAndSucceeded
}

// LeaderType is an elected-representative role attached to a community.
type LeaderType string

const (
	LeaderMP         LeaderType = "mp"
	LeaderMLA        LeaderType = "mla"
	LeaderCouncillor LeaderType = "councillor"
)

// Valid reports whether t is a known leader type.
func (t LeaderType) Valid() bool {
	switch t {
	case LeaderMP, LeaderMLA, LeaderCouncillor:
		return true
	}
	return false
}

// LeaderAssignment links a user to a community as one of its representatives.
type LeaderAssignment struct {
	ID          string
	CommunityID string
	UserID      string
	LeaderType  LeaderType
	IsActive    bool
	AssignedBy  string
	AssignedAt  time.Time
}

// IdentityProvider resolves users and their privileges. Authentication happens elsewhere.
type IdentityProvider interface {
	// ResolveUser maps an id, email or phone number to a user id. It returns "" if no user matches.
	ResolveUser(ctx context.Context, identifier string) (string, error)
	// IsSuperuser reports whether the user may act on any community.
	IsSuperuser(ctx context.Context, userID string) (bool, error)
}
