package membership

import (
	"context"
	"time"

	"go-membership/database"
)

// RequestJoin asks for userID to join communityID.
//
// A pending or approved record the user already has in the community is returned
// unchanged. Joining the public community records an approved membership directly.
func (e *Engine) RequestJoin(ctx context.Context, userID, communityID string, details JoinDetails) (Record, error) {
	if err := requireIDs(userID, communityID); err != nil {
		return Record{}, err
	}

	if details.Role == "" {
		details.Role = RoleMember
	}
	if !details.Role.Valid() {
		return Record{}, newError(CodeValidation, "unknown role %q", details.Role)
	}

	if e.isPublic(communityID) {
		return e.joinPublic(ctx, userID, communityID, details)
	}

	var (
		result    Record
		duplicate bool
	)
	err := e.store.inTx(ctx, "request join", func(q *database.Queries) error {
		if err := q.LockUser(ctx, userID); err != nil {
			return err
		}

		community, err := q.GetCommunity(ctx, communityID)
		if err != nil {
			return err
		}
		if community == nil || !community.IsActive {
			return newError(CodeNotFound, "community %s does not exist or is inactive", communityID)
		}

		existing, err := q.FindMembership(ctx, userID, communityID, string(StatusPending), string(StatusApproved))
		if err != nil {
			return err
		}
		if existing != nil {
			result, duplicate = recordFromRow(existing), true
			return nil
		}

		if err := assertNoActiveMembership(ctx, q, userID, communityID); err != nil {
			return err
		}

		if err := e.checkRejoinCooldown(ctx, q, userID, communityID); err != nil {
			return err
		}

		var (
			now = e.nowMillis()
			row = &database.MembershipRecord{
				ID:          newID(),
				UserID:      userID,
				CommunityID: communityID,
				Status:      string(StatusPending),
				Role:        string(details.Role),
				BlockRef:    details.BlockRef,
				Address:     details.Address,
				RequestedAt: now,
				UpdatedAt:   now,
			}
		)
		if err := q.InsertMembership(ctx, row); err != nil {
			return err
		}

		result = recordFromRow(row)
		return nil
	})
	if database.IsUniqueViolation(err) {
		active, raceErr := e.resolveActiveRace(ctx, userID, communityID, err)
		if raceErr != nil {
			return Record{}, raceErr
		}
		result, duplicate, err = *active, true, nil
	}
	if err != nil {
		return Record{}, err
	}

	if duplicate {
		e.logger.Debug("duplicate join request", "user_id", userID, "community_id", communityID, "status", result.Status)
		return result, nil
	}

	e.logger.Info("join requested", "user_id", userID, "community_id", communityID, "record_id", result.ID)
	return result, nil
}

// joinPublic records an approved membership in the public community. It never conflicts.
func (e *Engine) joinPublic(ctx context.Context, userID, communityID string, details JoinDetails) (Record, error) {
	var result Record
	err := e.store.inTx(ctx, "join public community", func(q *database.Queries) error {
		community, err := q.GetCommunity(ctx, communityID)
		if err != nil {
			return err
		}
		if community == nil {
			return newError(CodeNotFound, "community %s does not exist", communityID)
		}

		existing, err := q.FindMembership(ctx, userID, communityID, string(StatusApproved))
		if err != nil {
			return err
		}
		if existing != nil {
			result = recordFromRow(existing)
			return nil
		}

		var (
			now = e.nowMillis()
			row = &database.MembershipRecord{
				ID:          newID(),
				UserID:      userID,
				CommunityID: communityID,
				Status:      string(StatusApproved),
				Role:        string(details.Role),
				BlockRef:    details.BlockRef,
				Address:     details.Address,
				Exempt:      true,
				RequestedAt: now,
				UpdatedAt:   now,
			}
		)
		if err := q.InsertMembership(ctx, row); err != nil {
			return err
		}

		result = recordFromRow(row)
		return nil
	})
	if database.IsUniqueViolation(err) {
		// A concurrent join already created the row.
		existing, findErr := e.store.queries().FindMembership(ctx, userID, communityID, string(StatusApproved))
		if findErr != nil || existing == nil {
			return Record{}, err
		}
		return recordFromRow(existing), nil
	}
	if err != nil {
		return Record{}, err
	}

	return result, nil
}

func (e *Engine) checkRejoinCooldown(ctx context.Context, q *database.Queries, userID, communityID string) error {
	if e.options.rejoinCooldown <= 0 {
		return nil
	}

	rejected, err := q.FindMembership(ctx, userID, communityID, string(StatusRejected))
	if err != nil {
		return err
	}
	if rejected == nil {
		return nil
	}

	var (
		rejectedAt = fromMillis(rejected.UpdatedAt)
		retryAt    = rejectedAt.Add(e.options.rejoinCooldown)
	)
	if e.options.now().Before(retryAt) {
		return newError(CodeValidation, "request to community %s was rejected; retry after %s", communityID, retryAt.Format(time.RFC3339))
	}

	return nil
}

// Decide approves or rejects a pending record. The actor must administer the
// record's community or be a superuser.
func (e *Engine) Decide(ctx context.Context, recordID string, decision Decision, actingAdminID string) (Record, error) {
	var next, ok = decision.status()
	if !ok {
		return Record{}, newError(CodeValidation, "unknown decision %q", decision)
	}
	if recordID == "" {
		return Record{}, newError(CodeValidation, "record id is required")
	}
	if actingAdminID == "" {
		return Record{}, newError(CodeUnauthorized, "an acting administrator is required")
	}

	isSuperuser, err := e.isSuperuser(ctx, actingAdminID)
	if err != nil {
		return Record{}, err
	}

	var result Record
	err = e.store.inTx(ctx, "decide", func(q *database.Queries) error {
		// Lock order matches Leave and AssignPresident: user, community, membership.
		// The community row lock serializes approvals with a concurrent Leave.
		peek, err := q.GetMembership(ctx, recordID)
		if err != nil {
			return err
		}
		if peek == nil {
			return newError(CodeNotFound, "membership %s does not exist", recordID)
		}
		if err := q.LockUser(ctx, peek.UserID); err != nil {
			return err
		}

		community, err := q.GetCommunityForUpdate(ctx, peek.CommunityID)
		if err != nil {
			return err
		}
		if community == nil {
			return newError(CodeNotFound, "community %s does not exist", peek.CommunityID)
		}

		row, err := q.GetMembershipForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		if row == nil {
			return newError(CodeNotFound, "membership %s does not exist", recordID)
		}

		if !isSuperuser && (community.AdminID == nil || *community.AdminID != actingAdminID) {
			return newError(CodeUnauthorized, "user %q does not administer community %s", actingAdminID, community.ID)
		}

		var current = Status(row.Status)
		if !current.CanTransition(next) {
			return stateError(row.ID, current)
		}

		if next == StatusApproved && !row.Exempt {
			if err := assertNoActiveMembership(ctx, q, row.UserID, row.CommunityID); err != nil {
				return err
			}
		}

		var now = e.nowMillis()
		if err := q.UpdateMembership(ctx, row.ID, string(next), row.Role, now); err != nil {
			return err
		}

		row.Status = string(next)
		row.UpdatedAt = now
		result = recordFromRow(row)
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	e.logger.Info("membership decided",
		"record_id", result.ID,
		"user_id", result.UserID,
		"community_id", result.CommunityID,
		"status", result.Status,
		"decided_by", actingAdminID,
	)
	return result, nil
}

// CancelRequest withdraws the user's pending request to communityID.
func (e *Engine) CancelRequest(ctx context.Context, userID, communityID string) error {
	if err := requireIDs(userID, communityID); err != nil {
		return err
	}

	err := e.store.inTx(ctx, "cancel request", func(q *database.Queries) error {
		if err := q.LockUser(ctx, userID); err != nil {
			return err
		}

		row, err := q.FindMembership(ctx, userID, communityID, string(StatusPending))
		if err != nil {
			return err
		}
		if row == nil {
			return newError(CodeNotFound, "no pending request from %s to community %s", userID, communityID)
		}

		_, err = q.DeleteMembership(ctx, row.ID)
		return err
	})
	if err != nil {
		return err
	}

	e.logger.Info("join request cancelled", "user_id", userID, "community_id", communityID)
	return nil
}
