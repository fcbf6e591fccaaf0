package membership

import (
	"context"
	"strings"

	"go-membership/database"
)

// CreateCommunity creates an active community. When an administrator is given, they
// also receive an approved admin membership, which fails with Conflict if they are
// already active elsewhere.
func (e *Engine) CreateCommunity(ctx context.Context, spec NewCommunity) (Community, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	if spec.Name == "" {
		return Community{}, newError(CodeValidation, "community name is required")
	}
	if spec.ID == "" {
		spec.ID = newID()
	}

	var (
		now = e.nowMillis()
		row = &database.CommunityRecord{
			ID:        spec.ID,
			Name:      spec.Name,
			IsActive:  true,
			AdminID:   adminRef(spec.AdminID),
			CreatedAt: now,
		}
		public = e.isPublic(spec.ID)
	)

	err := e.store.inTx(ctx, "create community", func(q *database.Queries) error {
		if spec.AdminID != "" {
			if err := q.LockUser(ctx, spec.AdminID); err != nil {
				return err
			}
			if !public {
				if err := assertNoActiveMembership(ctx, q, spec.AdminID, ""); err != nil {
					return err
				}
			}
		}

		if err := q.InsertCommunity(ctx, row); err != nil {
			return err
		}

		if spec.AdminID == "" {
			return nil
		}

		return q.InsertMembership(ctx, &database.MembershipRecord{
			ID:          newID(),
			UserID:      spec.AdminID,
			CommunityID: spec.ID,
			Status:      string(StatusApproved),
			Role:        string(RoleAdmin),
			Exempt:      public,
			RequestedAt: now,
			UpdatedAt:   now,
		})
	})
	if database.IsUniqueViolation(err) {
		return Community{}, e.explainCreateConflict(ctx, spec, err)
	}
	if err != nil {
		return Community{}, err
	}

	e.logger.Info("community created", "community_id", spec.ID, "name", spec.Name, "admin_id", spec.AdminID)
	return communityFromRow(row), nil
}

func (e *Engine) explainCreateConflict(ctx context.Context, spec NewCommunity, cause error) error {
	if spec.AdminID != "" && !e.isPublic(spec.ID) {
		if _, err := e.resolveActiveRace(ctx, spec.AdminID, spec.ID, cause); IsConflict(err) {
			return err
		}
	}

	return &Error{
		Code:    CodeConflict,
		Message: "community " + spec.Name + " already exists",
		Cause:   cause,
	}
}

// DeleteCommunity removes the community. Its memberships and leader assignments are
// left for the next sweep. Only superusers may delete communities.
func (e *Engine) DeleteCommunity(ctx context.Context, communityID, actingAdminID string) error {
	if err := e.requireSuperuser(ctx, actingAdminID); err != nil {
		return err
	}

	err := e.store.inTx(ctx, "delete community", func(q *database.Queries) error {
		deleted, err := q.DeleteCommunity(ctx, communityID)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return newError(CodeNotFound, "community %s does not exist", communityID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("community deleted", "community_id", communityID, "deleted_by", actingAdminID)
	return nil
}

// GetCommunity returns the community, active or not.
func (e *Engine) GetCommunity(ctx context.Context, communityID string) (Community, error) {
	row, err := e.store.queries().GetCommunity(ctx, communityID)
	if err != nil {
		return Community{}, storeError("get community", err)
	}
	if row == nil {
		return Community{}, newError(CodeNotFound, "community %s does not exist", communityID)
	}
	return communityFromRow(row), nil
}

// ListCommunities returns communities ordered by name. Inactive communities are only
// included on request, so join offers never show them.
func (e *Engine) ListCommunities(ctx context.Context, includeInactive bool) ([]Community, error) {
	rows, err := e.store.queries().ListCommunities(ctx, includeInactive)
	if err != nil {
		return nil, storeError("list communities", err)
	}

	var communities = make([]Community, len(rows))
	for i, row := range rows {
		communities[i] = communityFromRow(row)
	}
	return communities, nil
}

// SyncPublicCommunity marks memberships in the configured public community as exempt
// from the one-active rule. Rows written before the community was configured as public
// are otherwise still counted. It returns the number of rows changed.
func (e *Engine) SyncPublicCommunity(ctx context.Context) (int64, error) {
	if e.options.publicCommunityID == "" {
		return 0, nil
	}

	var changed int64
	err := e.store.inTx(ctx, "sync public community", func(q *database.Queries) error {
		var err error
		changed, err = q.MarkExempt(ctx, e.options.publicCommunityID)
		return err
	})
	if err != nil {
		return 0, err
	}

	if changed > 0 {
		e.logger.Info("public memberships marked exempt", "community_id", e.options.publicCommunityID, "count", changed)
	}
	return changed, nil
}

// ListUserRecords returns every record the user owns, oldest first.
func (e *Engine) ListUserRecords(ctx context.Context, userID string) ([]Record, error) {
	rows, err := e.store.queries().ListMembershipsByUser(ctx, userID)
	if err != nil {
		return nil, storeError("list user records", err)
	}
	return recordsFromRows(rows), nil
}

// MyRequests returns the user's records reduced to one per community.
func (e *Engine) MyRequests(ctx context.Context, userID string) (map[string]Record, error) {
	records, err := e.ListUserRecords(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Dedupe(records), nil
}

// ActiveMembership returns the user's pending or approved record outside the public
// community, or nil if there is none.
func (e *Engine) ActiveMembership(ctx context.Context, userID string) (*Record, error) {
	rows, err := e.store.queries().ListActiveMemberships(ctx, userID)
	if err != nil {
		return nil, storeError("get active membership", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var record = recordFromRow(rows[0])
	return &record, nil
}

// ListCommunityRecords returns the community's records, optionally filtered by status.
// Records carry addresses, so only the community's admin or a superuser may list them.
func (e *Engine) ListCommunityRecords(ctx context.Context, communityID string, status Status, actingAdminID string) ([]Record, error) {
	if status != "" && !status.Valid() {
		return nil, newError(CodeValidation, "unknown status %q", status)
	}
	if err := e.requireAdminOf(ctx, communityID, actingAdminID); err != nil {
		return nil, err
	}

	rows, err := e.store.queries().ListMembershipsByCommunity(ctx, communityID, string(status))
	if err != nil {
		return nil, storeError("list community records", err)
	}
	return recordsFromRows(rows), nil
}
