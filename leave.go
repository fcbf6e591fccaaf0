package membership

import (
	"context"

	"go-membership/database"
)

// Leave removes the user's approved membership in communityID.
//
// If the user administers the community, the approved member who joined earliest
// becomes administrator. With no one left to succeed, the community loses its
// administrator and is deactivated. The whole operation commits or rolls back as one.
func (e *Engine) Leave(ctx context.Context, userID, communityID string) (LeaveResult, error) {
	if err := requireIDs(userID, communityID); err != nil {
		return LeaveResult{}, err
	}
	if e.isPublic(communityID) {
		return LeaveResult{}, newError(CodeValidation, "the public community %s cannot be left", communityID)
	}

	var result LeaveResult
	err := e.store.inTx(ctx, "leave community", func(q *database.Queries) error {
		if err := q.LockUser(ctx, userID); err != nil {
			return err
		}

		// Racing leaves on the same community queue here.
		community, err := q.GetCommunityForUpdate(ctx, communityID)
		if err != nil {
			return err
		}
		if community == nil {
			return newError(CodeNotFound, "community %s does not exist", communityID)
		}

		row, err := q.FindMembership(ctx, userID, communityID, string(StatusApproved))
		if err != nil {
			return err
		}
		if row == nil {
			return newError(CodeNotFound, "user %s is not an approved member of community %s", userID, communityID)
		}

		if _, err := q.DeleteMembership(ctx, row.ID); err != nil {
			return err
		}

		if community.AdminID == nil || *community.AdminID != userID {
			result = LeaveResult{Outcome: OutcomeLeft}
			return nil
		}

		successor, err := q.EarliestApproved(ctx, communityID)
		if err != nil {
			return err
		}

		if successor == nil {
			if err := q.SetCommunityAdmin(ctx, communityID, nil); err != nil {
				return err
			}
			if err := q.SetCommunityActive(ctx, communityID, false); err != nil {
				return err
			}
			result = LeaveResult{Outcome: OutcomeLeftAndCommunityDeactivated}
			return nil
		}

		if err := q.UpdateMembership(ctx, successor.ID, successor.Status, string(RoleAdmin), e.nowMillis()); err != nil {
			return err
		}
		if err := q.SetCommunityAdmin(ctx, communityID, &successor.UserID); err != nil {
			return err
		}

		result = LeaveResult{
			Outcome:    OutcomeLeftAndSucceeded,
			NewAdminID: successor.UserID,
		}
		return nil
	})
	if err != nil {
		return LeaveResult{}, err
	}

	e.logger.Info("member left",
		"user_id", userID,
		"community_id", communityID,
		"outcome", result.Outcome,
		"new_admin_id", result.NewAdminID,
	)
	return result, nil
}
