package membership

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-membership/database"
)

func TestRequestJoin(t *testing.T) {
	var newCtx = func() context.Context {
		return context.Background()
	}

	t.Run("should create a pending record", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)

		// Act
		var record, err = f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{BlockRef: "B-12", Address: "Flat 4"})

		// Assert
		require.NoError(t, err)
		assert.NotEmpty(t, record.ID)
		assert.Equal(t, StatusPending, record.Status)
		assert.Equal(t, RoleMember, record.Role)
		assert.Equal(t, "B-12", record.BlockRef)
		assert.Equal(t, "Flat 4", record.Address)
		assert.Equal(t, community.ID, record.CommunityID)
	})

	t.Run("should return the existing record for a duplicate request", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)
		first, err := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{})
		require.NoError(t, err)

		// Act
		second, err := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		var records, listErr = f.engine.ListUserRecords(ctx, "user-1")
		require.NoError(t, listErr)
		assert.Len(t, records, 1, "duplicate request should not add a row")
	})

	t.Run("should fail with not found for missing or inactive communities", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)
		_, err := f.engine.Leave(ctx, "admin-1", community.ID)
		require.NoError(t, err)

		// Act
		_, missingErr := f.engine.RequestJoin(ctx, "user-1", "missing", JoinDetails{})
		_, inactiveErr := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{})

		// Assert
		assert.True(t, IsNotFound(missingErr))
		assert.True(t, IsNotFound(inactiveErr))
	})

	t.Run("should conflict with an active record elsewhere", func(t *testing.T) {
		// Arrange
		var (
			f     = newFixture(t)
			ctx   = newCtx()
			first = f.createCommunity(t, "Green Park", "admin-1")
			other = f.createCommunity(t, "Lake View", "admin-2")
		)
		_, err := f.engine.RequestJoin(ctx, "user-1", first.ID, JoinDetails{})
		require.NoError(t, err)

		// Act
		_, err = f.engine.RequestJoin(ctx, "user-1", other.ID, JoinDetails{})

		// Assert
		require.Error(t, err)
		assert.True(t, IsConflict(err))
		assert.ErrorIs(t, err, ErrConflict)

		var conflict, ok = ConflictOf(err)
		require.True(t, ok)
		assert.Equal(t, first.ID, conflict.CommunityID)
		assert.Equal(t, StatusPending, conflict.Status)
	})

	t.Run("should block joins while approved elsewhere", func(t *testing.T) {
		// Arrange
		var (
			f     = newFixture(t)
			ctx   = newCtx()
			first = f.createCommunity(t, "Green Park", "admin-1")
			other = f.createCommunity(t, "Lake View", "admin-2")
		)
		f.approvedMember(t, "user-1", first)

		// Act
		_, err := f.engine.RequestJoin(ctx, "user-1", other.ID, JoinDetails{})

		// Assert
		var conflict, ok = ConflictOf(err)
		require.True(t, ok)
		assert.Equal(t, first.ID, conflict.CommunityID)
		assert.Equal(t, StatusApproved, conflict.Status)
	})

	t.Run("should allow a new request after rejection", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)
		record, err := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{})
		require.NoError(t, err)
		_, err = f.engine.Decide(ctx, record.ID, DecisionReject, "admin-1")
		require.NoError(t, err)

		// Act
		again, err := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{})

		// Assert
		require.NoError(t, err)
		assert.NotEqual(t, record.ID, again.ID)
		assert.Equal(t, StatusPending, again.Status)
	})

	t.Run("should refuse a new request during the rejoin cooldown", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t, WithRejoinCooldown(time.Hour))
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)
		record, err := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{})
		require.NoError(t, err)
		_, err = f.engine.Decide(ctx, record.ID, DecisionReject, "admin-1")
		require.NoError(t, err)

		// Act
		_, earlyErr := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{})
		f.clock.Advance(2 * time.Hour)
		_, laterErr := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{})

		// Assert
		assert.True(t, IsValidation(earlyErr))
		assert.NoError(t, laterErr)
	})

	t.Run("should reject unknown roles and empty ids", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)

		// Act
		_, roleErr := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{Role: "mayor"})
		_, idErr := f.engine.RequestJoin(ctx, "", community.ID, JoinDetails{})

		// Assert
		assert.True(t, IsValidation(roleErr))
		assert.True(t, IsValidation(idErr))
	})

	t.Run("should let members join the public community without conflict", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			public    = f.createPublic(t)
			community = f.createCommunity(t, "Green Park", "admin-1")
		)
		f.approvedMember(t, "user-1", community)

		// Act
		first, err1 := f.engine.RequestJoin(ctx, "user-1", public.ID, JoinDetails{})
		second, err2 := f.engine.RequestJoin(ctx, "user-1", public.ID, JoinDetails{})
		active, err3 := f.engine.ActiveMembership(ctx, "user-1")

		// Assert
		require.NoError(t, err1)
		require.NoError(t, err2)
		require.NoError(t, err3)
		assert.Equal(t, StatusApproved, first.Status)
		assert.Equal(t, first.ID, second.ID)
		require.NotNil(t, active)
		assert.Equal(t, community.ID, active.CommunityID, "public row does not count as active")
	})

	t.Run("should leave exactly one pending record under concurrent joins", func(t *testing.T) {
		// Arrange
		const n = 8
		var (
			f           = newFixture(t)
			ctx         = newCtx()
			communities = make([]Community, n)
			errs        = make([]error, n)
			wg          sync.WaitGroup
		)
		for i := range communities {
			communities[i] = f.createCommunity(t, "Community "+string(rune('A'+i)), "")
		}

		// Act
		for i := range communities {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.engine.RequestJoin(ctx, "user-1", communities[i].ID, JoinDetails{})
			}(i)
		}
		wg.Wait()

		// Assert
		var succeeded, conflicts int
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, n-1, conflicts)

		var records, err = f.engine.ListUserRecords(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, StatusPending, records[0].Status)
	})
}

func TestDecide(t *testing.T) {
	var newCtx = func() context.Context {
		return context.Background()
	}

	t.Run("should approve when the community admin decides", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)
		record, err := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{})
		require.NoError(t, err)

		// Act
		decided, err := f.engine.Decide(ctx, record.ID, DecisionApprove, "admin-1")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, decided.Status)
		assert.True(t, decided.UpdatedAt.After(record.UpdatedAt))
	})

	t.Run("should let a superuser decide", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)
		record, err := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{})
		require.NoError(t, err)

		// Act
		decided, err := f.engine.Decide(ctx, record.ID, DecisionReject, testSuperuser)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, decided.Status)
	})

	t.Run("should refuse actors who do not administer the community", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
			other     = f.createCommunity(t, "Lake View", "admin-2")
		)
		record, err := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{})
		require.NoError(t, err)

		// Act
		_, err = f.engine.Decide(ctx, record.ID, DecisionApprove, other.AdminID)

		// Assert
		assert.True(t, IsUnauthorized(err))
	})

	t.Run("should report the current status when the record is not pending", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
			record    = f.approvedMember(t, "user-1", community)
		)

		// Act
		_, err := f.engine.Decide(ctx, record.ID, DecisionReject, "admin-1")

		// Assert
		require.Error(t, err)
		assert.True(t, IsState(err))

		var engineErr *Error
		require.ErrorAs(t, err, &engineErr)
		assert.Equal(t, StatusApproved, engineErr.Status)
	})

	t.Run("should fail with not found for unknown records", func(t *testing.T) {
		// Arrange
		var (
			f   = newFixture(t)
			ctx = newCtx()
		)

		// Act
		_, err := f.engine.Decide(ctx, "missing", DecisionApprove, testSuperuser)

		// Assert
		assert.True(t, IsNotFound(err))
	})

	t.Run("should reject unknown decisions", func(t *testing.T) {
		// Arrange
		var (
			f   = newFixture(t)
			ctx = newCtx()
		)

		// Act
		_, err := f.engine.Decide(ctx, "any", Decision("maybe"), testSuperuser)

		// Assert
		assert.True(t, IsValidation(err))
	})
}

func TestCancelRequest(t *testing.T) {
	t.Run("should delete the pending record", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = context.Background()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)
		_, err := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{})
		require.NoError(t, err)

		// Act
		err = f.engine.CancelRequest(ctx, "user-1", community.ID)
		again := f.engine.CancelRequest(ctx, "user-1", community.ID)

		// Assert
		require.NoError(t, err)
		assert.True(t, IsNotFound(again))

		var active, activeErr = f.engine.ActiveMembership(ctx, "user-1")
		require.NoError(t, activeErr)
		assert.Nil(t, active)
	})
}

func TestLeave(t *testing.T) {
	var newCtx = func() context.Context {
		return context.Background()
	}

	t.Run("should remove a plain member", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)
		f.approvedMember(t, "user-1", community)

		// Act
		result, err := f.engine.Leave(ctx, "user-1", community.ID)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, OutcomeLeft, result.Outcome)
		assert.Empty(t, result.NewAdminID)

		var after, getErr = f.engine.GetCommunity(ctx, community.ID)
		require.NoError(t, getErr)
		assert.Equal(t, "admin-1", after.AdminID)
		assert.True(t, after.IsActive)
	})

	t.Run("should promote the earliest approved joiner when the admin leaves", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)
		f.approvedMember(t, "user-1", community)
		f.approvedMember(t, "user-2", community)

		// Act
		result, err := f.engine.Leave(ctx, "admin-1", community.ID)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, OutcomeLeftAndSucceeded, result.Outcome)
		assert.Equal(t, "user-1", result.NewAdminID)

		var after, getErr = f.engine.GetCommunity(ctx, community.ID)
		require.NoError(t, getErr)
		assert.Equal(t, "user-1", after.AdminID)
		assert.True(t, after.IsActive)

		var active, activeErr = f.engine.ActiveMembership(ctx, "user-1")
		require.NoError(t, activeErr)
		require.NotNil(t, active)
		assert.Equal(t, RoleAdmin, active.Role)
	})

	t.Run("should deactivate the community when the last admin leaves", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)
		_, err := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{})
		require.NoError(t, err)

		// Act
		result, err := f.engine.Leave(ctx, "admin-1", community.ID)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, OutcomeLeftAndCommunityDeactivated, result.Outcome)

		var after, getErr = f.engine.GetCommunity(ctx, community.ID)
		require.NoError(t, getErr)
		assert.False(t, after.HasAdmin())
		assert.False(t, after.IsActive)
	})

	t.Run("should fail with not found for non-members", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)
		_, err := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{})
		require.NoError(t, err)

		// Act
		_, pendingErr := f.engine.Leave(ctx, "user-1", community.ID)
		_, strangerErr := f.engine.Leave(ctx, "user-9", community.ID)
		_, missingErr := f.engine.Leave(ctx, "user-1", "missing")

		// Assert
		assert.True(t, IsNotFound(pendingErr))
		assert.True(t, IsNotFound(strangerErr))
		assert.True(t, IsNotFound(missingErr))
	})

	t.Run("should refuse to leave the public community", func(t *testing.T) {
		// Arrange
		var (
			f      = newFixture(t)
			ctx    = newCtx()
			public = f.createPublic(t)
		)
		_, err := f.engine.RequestJoin(ctx, "user-1", public.ID, JoinDetails{})
		require.NoError(t, err)

		// Act
		_, err = f.engine.Leave(ctx, "user-1", public.ID)

		// Assert
		assert.True(t, IsValidation(err))
	})

	t.Run("should keep an approved admin under concurrent leaves", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
			leavers   = []string{"admin-1", "user-1", "user-2"}
			wg        sync.WaitGroup
		)
		f.approvedMember(t, "user-1", community)
		f.approvedMember(t, "user-2", community)
		f.approvedMember(t, "user-3", community)

		// Act
		for _, userID := range leavers {
			wg.Add(1)
			go func(userID string) {
				defer wg.Done()
				_, err := f.engine.Leave(ctx, userID, community.ID)
				assert.NoError(t, err)
			}(userID)
		}
		wg.Wait()

		// Assert
		var after, err = f.engine.GetCommunity(ctx, community.ID)
		require.NoError(t, err)
		require.True(t, after.HasAdmin(), "user-3 remains and must end up as admin")
		assert.Equal(t, "user-3", after.AdminID)

		var approved, listErr = f.engine.ListCommunityRecords(ctx, community.ID, StatusApproved, testSuperuser)
		require.NoError(t, listErr)
		require.Len(t, approved, 1)
		assert.Equal(t, "user-3", approved[0].UserID)
		assert.Equal(t, RoleAdmin, approved[0].Role)
	})

	t.Run("should serialize an admin's approval with their own leave", func(t *testing.T) {
		// Arrange
		const rounds = 10
		var (
			f           = newFixture(t)
			ctx         = newCtx()
			communities = make([]Community, rounds)
			pending     = make([]Record, rounds)
			results     = make([]LeaveResult, rounds)
			leaveErrs   = make([]error, rounds)
			decideErrs  = make([]error, rounds)
			wg          sync.WaitGroup
		)
		for i := range communities {
			communities[i] = f.createCommunity(t, fmt.Sprintf("Community %d", i), fmt.Sprintf("admin-%d", i))

			var err error
			pending[i], err = f.engine.RequestJoin(ctx, fmt.Sprintf("user-%d", i), communities[i].ID, JoinDetails{})
			require.NoError(t, err)
		}

		// Act
		for i := range communities {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				results[i], leaveErrs[i] = f.engine.Leave(ctx, communities[i].AdminID, communities[i].ID)
			}(i)
			go func(i int) {
				defer wg.Done()
				_, decideErrs[i] = f.engine.Decide(ctx, pending[i].ID, DecisionApprove, communities[i].AdminID)
			}(i)
		}
		wg.Wait()

		// Assert
		for i, community := range communities {
			require.NoError(t, leaveErrs[i])

			var after, err = f.engine.GetCommunity(ctx, community.ID)
			require.NoError(t, err)

			if decideErrs[i] == nil {
				// The approval landed first, so the requester took over.
				assert.Equal(t, OutcomeLeftAndSucceeded, results[i].Outcome)
				assert.Equal(t, pending[i].UserID, after.AdminID)
				assert.True(t, after.IsActive)
				continue
			}

			// The leave landed first, so the former admin could no longer approve.
			assert.True(t, IsUnauthorized(decideErrs[i]), "unexpected error: %v", decideErrs[i])
			assert.Equal(t, OutcomeLeftAndCommunityDeactivated, results[i].Outcome)
			assert.False(t, after.HasAdmin())

			var record, getErr = f.store.queries().GetMembership(ctx, pending[i].ID)
			require.NoError(t, getErr)
			require.NotNil(t, record)
			assert.Equal(t, string(StatusPending), record.Status)
		}
	})
}

func TestAssignPresident(t *testing.T) {
	var newCtx = func() context.Context {
		return context.Background()
	}

	t.Run("should set the admin without touching memberships by default", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "")
		)
		f.addUser(t, "user-1", "asha@example.com")

		// Act
		updated, err := f.engine.AssignPresident(ctx, community.ID, "asha@example.com", testSuperuser)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "user-1", updated.AdminID)

		var records, listErr = f.engine.ListUserRecords(ctx, "user-1")
		require.NoError(t, listErr)
		assert.Empty(t, records)
	})

	t.Run("should be a no-op when reassigning the current admin", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)
		f.addUser(t, "admin-1", "admin@example.com")

		// Act
		updated, err := f.engine.AssignPresident(ctx, community.ID, "admin-1", testSuperuser)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "admin-1", updated.AdminID)
	})

	t.Run("should require a superuser and a known target", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)
		f.addUser(t, "user-1", "asha@example.com")

		// Act
		_, authErr := f.engine.AssignPresident(ctx, community.ID, "user-1", "admin-1")
		_, targetErr := f.engine.AssignPresident(ctx, community.ID, "nobody@example.com", testSuperuser)
		_, communityErr := f.engine.AssignPresident(ctx, "missing", "user-1", testSuperuser)

		// Assert
		assert.True(t, IsUnauthorized(authErr))
		assert.True(t, IsNotFound(targetErr))
		assert.True(t, IsNotFound(communityErr))
	})

	t.Run("should grant an admin membership when coupling is enabled", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t, WithPresidentMembership())
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)
		f.addUser(t, "user-1", "asha@example.com")

		// Act
		updated, err := f.engine.AssignPresident(ctx, community.ID, "user-1", testSuperuser)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "user-1", updated.AdminID)
		assert.True(t, updated.IsActive)

		var active, activeErr = f.engine.ActiveMembership(ctx, "user-1")
		require.NoError(t, activeErr)
		require.NotNil(t, active)
		assert.Equal(t, StatusApproved, active.Status)
		assert.Equal(t, RoleAdmin, active.Role)

		var previous, prevErr = f.engine.ActiveMembership(ctx, "admin-1")
		require.NoError(t, prevErr)
		require.NotNil(t, previous)
		assert.Equal(t, RoleMember, previous.Role)
	})

	t.Run("should conflict when the target is active elsewhere and coupling is enabled", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t, WithPresidentMembership())
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
			other     = f.createCommunity(t, "Lake View", "admin-2")
		)
		f.addUser(t, "user-1", "asha@example.com")
		f.approvedMember(t, "user-1", other)

		// Act
		_, err := f.engine.AssignPresident(ctx, community.ID, "user-1", testSuperuser)

		// Assert
		assert.True(t, IsConflict(err))

		var after, getErr = f.engine.GetCommunity(ctx, community.ID)
		require.NoError(t, getErr)
		assert.Equal(t, "admin-1", after.AdminID, "failed assignment must roll back")
	})

	t.Run("should promote a pending requester when coupling is enabled", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t, WithPresidentMembership())
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "")
		)
		f.addUser(t, "user-1", "asha@example.com")
		pending, err := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{})
		require.NoError(t, err)

		// Act
		_, err = f.engine.AssignPresident(ctx, community.ID, "user-1", testSuperuser)

		// Assert
		require.NoError(t, err)

		var records, listErr = f.engine.ListUserRecords(ctx, "user-1")
		require.NoError(t, listErr)
		require.Len(t, records, 1)
		assert.Equal(t, pending.ID, records[0].ID)
		assert.Equal(t, StatusApproved, records[0].Status)
		assert.Equal(t, RoleAdmin, records[0].Role)
	})
}

func TestCommunities(t *testing.T) {
	var newCtx = func() context.Context {
		return context.Background()
	}

	t.Run("should create a community with an approved admin", func(t *testing.T) {
		// Arrange
		var (
			f   = newFixture(t)
			ctx = newCtx()
		)

		// Act
		community, err := f.engine.CreateCommunity(ctx, NewCommunity{Name: "  Green Park  ", AdminID: "admin-1"})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "Green Park", community.Name)
		assert.True(t, community.IsActive)
		assert.Equal(t, "admin-1", community.AdminID)

		var active, activeErr = f.engine.ActiveMembership(ctx, "admin-1")
		require.NoError(t, activeErr)
		require.NotNil(t, active)
		assert.Equal(t, community.ID, active.CommunityID)
		assert.Equal(t, RoleAdmin, active.Role)
	})

	t.Run("should conflict on duplicate names and busy admins", func(t *testing.T) {
		// Arrange
		var (
			f   = newFixture(t)
			ctx = newCtx()
		)
		f.createCommunity(t, "Green Park", "admin-1")

		// Act
		_, nameErr := f.engine.CreateCommunity(ctx, NewCommunity{Name: "Green Park"})
		_, adminErr := f.engine.CreateCommunity(ctx, NewCommunity{Name: "Lake View", AdminID: "admin-1"})
		_, emptyErr := f.engine.CreateCommunity(ctx, NewCommunity{Name: " "})

		// Assert
		assert.True(t, IsConflict(nameErr))
		assert.True(t, IsConflict(adminErr))
		assert.True(t, IsValidation(emptyErr))
	})

	t.Run("should hide inactive communities from join offers", func(t *testing.T) {
		// Arrange
		var (
			f      = newFixture(t)
			ctx    = newCtx()
			closed = f.createCommunity(t, "Closed", "admin-1")
		)
		f.createCommunity(t, "Open", "admin-2")
		_, err := f.engine.Leave(ctx, "admin-1", closed.ID)
		require.NoError(t, err)

		// Act
		offers, err1 := f.engine.ListCommunities(ctx, false)
		all, err2 := f.engine.ListCommunities(ctx, true)

		// Assert
		require.NoError(t, err1)
		require.NoError(t, err2)
		require.Len(t, offers, 1)
		assert.Equal(t, "Open", offers[0].Name)
		assert.Len(t, all, 2)
	})

	t.Run("should only let superusers delete communities", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)

		// Act
		authErr := f.engine.DeleteCommunity(ctx, community.ID, "admin-1")
		err := f.engine.DeleteCommunity(ctx, community.ID, testSuperuser)
		missingErr := f.engine.DeleteCommunity(ctx, community.ID, testSuperuser)

		// Assert
		assert.True(t, IsUnauthorized(authErr))
		require.NoError(t, err)
		assert.True(t, IsNotFound(missingErr))

		_, getErr := f.engine.GetCommunity(ctx, community.ID)
		assert.True(t, IsNotFound(getErr))
	})

	t.Run("should dedupe the user's requests per community", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)
		rejected, err := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{})
		require.NoError(t, err)
		_, err = f.engine.Decide(ctx, rejected.ID, DecisionReject, "admin-1")
		require.NoError(t, err)
		pending, err := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{})
		require.NoError(t, err)

		// Act
		requests, err := f.engine.MyRequests(ctx, "user-1")

		// Assert
		require.NoError(t, err)
		require.Len(t, requests, 1)
		assert.Equal(t, pending.ID, requests[community.ID].ID)
	})

	t.Run("should only list records for the admin or a superuser", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)
		f.approvedMember(t, "user-1", community)

		// Act
		memberRecords, memberErr := f.engine.ListCommunityRecords(ctx, community.ID, "", "user-1")
		anonRecords, anonErr := f.engine.ListCommunityRecords(ctx, community.ID, "", "")
		adminRecords, adminErr := f.engine.ListCommunityRecords(ctx, community.ID, "", "admin-1")
		rootRecords, rootErr := f.engine.ListCommunityRecords(ctx, community.ID, StatusApproved, testSuperuser)

		// Assert
		assert.True(t, IsUnauthorized(memberErr))
		assert.Nil(t, memberRecords)
		assert.True(t, IsUnauthorized(anonErr))
		assert.Nil(t, anonRecords)
		require.NoError(t, adminErr)
		assert.Len(t, adminRecords, 2)
		require.NoError(t, rootErr)
		assert.Len(t, rootRecords, 2)
	})

	t.Run("should exempt public rows written before the community was configured", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = newCtx()
			public    = f.createPublic(t)
			community = f.createCommunity(t, "Green Park", "")
			now       = f.engine.nowMillis()
		)
		require.NoError(t, f.store.queries().InsertMembership(ctx, &database.MembershipRecord{
			ID:          newID(),
			UserID:      "user-1",
			CommunityID: public.ID,
			Status:      string(StatusApproved),
			Role:        string(RoleMember),
			RequestedAt: now,
			UpdatedAt:   now,
		}))
		_, blockedErr := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{})
		require.True(t, IsConflict(blockedErr), "unexpected error: %v", blockedErr)

		// Act
		changed, err := f.engine.SyncPublicCommunity(ctx)
		again, againErr := f.engine.SyncPublicCommunity(ctx)

		// Assert
		require.NoError(t, err)
		require.NoError(t, againErr)
		assert.Equal(t, testPublicID, f.engine.PublicCommunityID())
		assert.Equal(t, int64(1), changed)
		assert.Equal(t, int64(0), again)

		record, joinErr := f.engine.RequestJoin(ctx, "user-1", community.ID, JoinDetails{})
		require.NoError(t, joinErr)
		assert.Equal(t, StatusPending, record.Status)
	})
}

func TestLeaders(t *testing.T) {
	t.Run("should replace and revoke leaders", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = context.Background()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)
		f.addUser(t, "mla-1", "first@example.com")
		f.addUser(t, "mla-2", "second@example.com")

		// Act
		first, err1 := f.engine.AssignLeader(ctx, community.ID, "first@example.com", LeaderMLA, testSuperuser)
		repeat, err2 := f.engine.AssignLeader(ctx, community.ID, "mla-1", LeaderMLA, testSuperuser)
		second, err3 := f.engine.AssignLeader(ctx, community.ID, "second@example.com", LeaderMLA, testSuperuser)
		leaders, err4 := f.engine.ListLeaders(ctx, community.ID)

		// Assert
		for _, err := range []error{err1, err2, err3, err4} {
			require.NoError(t, err)
		}
		assert.Equal(t, first.ID, repeat.ID)
		assert.Equal(t, "mla-2", second.UserID)
		require.Len(t, leaders, 1)
		assert.Equal(t, "mla-2", leaders[0].UserID)

		require.NoError(t, f.engine.RevokeLeader(ctx, community.ID, LeaderMLA, testSuperuser))
		assert.True(t, IsNotFound(f.engine.RevokeLeader(ctx, community.ID, LeaderMLA, testSuperuser)))

		leaders, err := f.engine.ListLeaders(ctx, community.ID)
		require.NoError(t, err)
		assert.Empty(t, leaders)
	})

	t.Run("should validate leader type and actor", func(t *testing.T) {
		// Arrange
		var (
			f         = newFixture(t)
			ctx       = context.Background()
			community = f.createCommunity(t, "Green Park", "admin-1")
		)
		f.addUser(t, "mla-1", "first@example.com")

		// Act
		_, typeErr := f.engine.AssignLeader(ctx, community.ID, "mla-1", LeaderType("mayor"), testSuperuser)
		_, authErr := f.engine.AssignLeader(ctx, community.ID, "mla-1", LeaderMP, "admin-1")

		// Assert
		assert.True(t, IsValidation(typeErr))
		assert.True(t, IsUnauthorized(authErr))
	})
}

func TestValidateNamespace(t *testing.T) {
	t.Run("should accept sql-safe identifiers", func(t *testing.T) {
		assert.NoError(t, ValidateNamespace("membership"))
		assert.NoError(t, ValidateNamespace("tenant_42"))
	})

	t.Run("should reject unsafe identifiers", func(t *testing.T) {
		assert.Error(t, ValidateNamespace(""))
		assert.ErrorIs(t, ValidateNamespace("42tenant"), ErrInvalidNamespace)
		assert.ErrorIs(t, ValidateNamespace("drop table;"), ErrInvalidNamespace)
		assert.Error(t, ValidateNamespace("a_namespace_that_is_far_too_long_for_indexes"))
	})
}
