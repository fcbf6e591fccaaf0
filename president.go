package membership

import (
	"context"

	"go-membership/database"
)

// AssignPresident makes the user identified by targetIdentifier (id, email or phone)
// the administrator of communityID. Only superusers may do this.
//
// By default only the community's administrator changes. With WithPresidentMembership
// the new president also receives an approved admin membership, the previous
// president's membership drops back to member, and the community is marked active.
func (e *Engine) AssignPresident(ctx context.Context, communityID, targetIdentifier, actingAdminID string) (Community, error) {
	if communityID == "" || targetIdentifier == "" {
		return Community{}, newError(CodeValidation, "community and target are required")
	}

	if err := e.requireSuperuser(ctx, actingAdminID); err != nil {
		return Community{}, err
	}

	targetID, err := e.resolveUser(ctx, targetIdentifier)
	if err != nil {
		return Community{}, err
	}

	var (
		result  Community
		changed bool
	)
	err = e.store.inTx(ctx, "assign president", func(q *database.Queries) error {
		if err := q.LockUser(ctx, targetID); err != nil {
			return err
		}

		row, err := q.GetCommunityForUpdate(ctx, communityID)
		if err != nil {
			return err
		}
		if row == nil {
			return newError(CodeNotFound, "community %s does not exist", communityID)
		}

		result = communityFromRow(row)
		if result.AdminID == targetID {
			return nil
		}

		if e.options.presidentMembership {
			if err := e.grantPresidentMembership(ctx, q, communityID, targetID, result.AdminID); err != nil {
				return err
			}
			if !result.IsActive {
				if err := q.SetCommunityActive(ctx, communityID, true); err != nil {
					return err
				}
				result.IsActive = true
			}
		}

		if err := q.SetCommunityAdmin(ctx, communityID, &targetID); err != nil {
			return err
		}

		result.AdminID = targetID
		changed = true
		return nil
	})
	if database.IsUniqueViolation(err) {
		_, err = e.resolveActiveRace(ctx, targetID, communityID, err)
		if err == nil {
			err = newError(CodeTransient, "concurrent update to community %s, retry", communityID)
		}
	}
	if err != nil {
		return Community{}, err
	}

	if changed {
		e.logger.Info("president assigned", "community_id", communityID, "admin_id", targetID, "assigned_by", actingAdminID)
	}
	return result, nil
}

// grantPresidentMembership gives targetID an approved admin record in communityID and
// demotes the previous president's record.
func (e *Engine) grantPresidentMembership(ctx context.Context, q *database.Queries, communityID, targetID, previousAdminID string) error {
	var (
		now    = e.nowMillis()
		public = e.isPublic(communityID)
	)

	if !public {
		if err := assertNoActiveMembership(ctx, q, targetID, communityID); err != nil {
			return err
		}
	}

	existing, err := q.FindMembership(ctx, targetID, communityID, string(StatusPending), string(StatusApproved))
	if err != nil {
		return err
	}

	if existing != nil {
		if err := q.UpdateMembership(ctx, existing.ID, string(StatusApproved), string(RoleAdmin), now); err != nil {
			return err
		}
	} else {
		var row = &database.MembershipRecord{
			ID:          newID(),
			UserID:      targetID,
			CommunityID: communityID,
			Status:      string(StatusApproved),
			Role:        string(RoleAdmin),
			Exempt:      public,
			RequestedAt: now,
			UpdatedAt:   now,
		}
		if err := q.InsertMembership(ctx, row); err != nil {
			return err
		}
	}

	if previousAdminID == "" {
		return nil
	}

	previous, err := q.FindMembership(ctx, previousAdminID, communityID, string(StatusApproved))
	if err != nil {
		return err
	}
	if previous != nil && previous.Role == string(RoleAdmin) {
		return q.UpdateMembership(ctx, previous.ID, previous.Status, string(RoleMember), now)
	}

	return nil
}

// AssignLeader makes the identified user the community's active leader of the given type,
// replacing any current one. Only superusers may do this.
func (e *Engine) AssignLeader(ctx context.Context, communityID, targetIdentifier string, leaderType LeaderType, actingAdminID string) (LeaderAssignment, error) {
	if !leaderType.Valid() {
		return LeaderAssignment{}, newError(CodeValidation, "unknown leader type %q", leaderType)
	}
	if communityID == "" || targetIdentifier == "" {
		return LeaderAssignment{}, newError(CodeValidation, "community and target are required")
	}

	if err := e.requireSuperuser(ctx, actingAdminID); err != nil {
		return LeaderAssignment{}, err
	}

	targetID, err := e.resolveUser(ctx, targetIdentifier)
	if err != nil {
		return LeaderAssignment{}, err
	}

	var result LeaderAssignment
	err = e.store.inTx(ctx, "assign leader", func(q *database.Queries) error {
		community, err := q.GetCommunityForUpdate(ctx, communityID)
		if err != nil {
			return err
		}
		if community == nil {
			return newError(CodeNotFound, "community %s does not exist", communityID)
		}

		current, err := q.GetActiveLeader(ctx, communityID, string(leaderType))
		if err != nil {
			return err
		}
		if current != nil && current.UserID == targetID {
			result = leaderFromRow(current)
			return nil
		}
		if current != nil {
			if err := q.DeactivateLeader(ctx, current.ID); err != nil {
				return err
			}
		}

		var row = &database.LeaderRecord{
			ID:          newID(),
			CommunityID: communityID,
			UserID:      targetID,
			LeaderType:  string(leaderType),
			IsActive:    true,
			AssignedBy:  actingAdminID,
			AssignedAt:  e.nowMillis(),
		}
		if err := q.InsertLeader(ctx, row); err != nil {
			return err
		}

		result = leaderFromRow(row)
		return nil
	})
	if err != nil {
		return LeaderAssignment{}, err
	}

	e.logger.Info("leader assigned", "community_id", communityID, "leader_type", leaderType, "user_id", targetID)
	return result, nil
}

// RevokeLeader deactivates the community's active leader of the given type.
func (e *Engine) RevokeLeader(ctx context.Context, communityID string, leaderType LeaderType, actingAdminID string) error {
	if !leaderType.Valid() {
		return newError(CodeValidation, "unknown leader type %q", leaderType)
	}

	if err := e.requireSuperuser(ctx, actingAdminID); err != nil {
		return err
	}

	err := e.store.inTx(ctx, "revoke leader", func(q *database.Queries) error {
		current, err := q.GetActiveLeader(ctx, communityID, string(leaderType))
		if err != nil {
			return err
		}
		if current == nil {
			return newError(CodeNotFound, "community %s has no active %s", communityID, leaderType)
		}
		return q.DeactivateLeader(ctx, current.ID)
	})
	if err != nil {
		return err
	}

	e.logger.Info("leader revoked", "community_id", communityID, "leader_type", leaderType)
	return nil
}

// ListLeaders returns the community's active leader assignments.
func (e *Engine) ListLeaders(ctx context.Context, communityID string) ([]LeaderAssignment, error) {
	rows, err := e.store.queries().ListLeaders(ctx, communityID, true)
	if err != nil {
		return nil, storeError("list leaders", err)
	}

	var leaders = make([]LeaderAssignment, len(rows))
	for i, row := range rows {
		leaders[i] = leaderFromRow(row)
	}
	return leaders, nil
}
