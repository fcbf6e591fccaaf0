package membership

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-membership/database"
)

func requirePostgres(t *testing.T) {
	t.Helper()
	if os.Getenv(database.TestPostgresURLEnv) == "" {
		t.Skipf("set %s to run concurrency tests against PostgreSQL", database.TestPostgresURLEnv)
	}
}

func TestPostgresConcurrency(t *testing.T) {
	t.Run("should keep one active record under concurrent joins", func(t *testing.T) {
		requirePostgres(t)

		// Arrange
		const (
			communityCount = 8
			perCommunity   = 4
		)
		var (
			f           = newFixture(t)
			ctx         = context.Background()
			communities = make([]Community, communityCount)
			records     = make([]Record, communityCount*perCommunity)
			errs        = make([]error, communityCount*perCommunity)
			wg          sync.WaitGroup
		)
		for i := range communities {
			communities[i] = f.createCommunity(t, fmt.Sprintf("Community %d", i), "")
		}

		// Act
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				records[i], errs[i] = f.engine.RequestJoin(ctx, "user-1", communities[i%communityCount].ID, JoinDetails{})
			}(i)
		}
		wg.Wait()

		// Assert
		active, err := f.engine.ActiveMembership(ctx, "user-1")
		require.NoError(t, err)
		require.NotNil(t, active)

		var succeeded, conflicts int
		for i, err := range errs {
			switch {
			case err == nil:
				succeeded++
				assert.Equal(t, active.ID, records[i].ID)
			case IsConflict(err):
				conflicts++
				var conflict, ok = ConflictOf(err)
				require.True(t, ok)
				assert.Equal(t, active.CommunityID, conflict.CommunityID)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, perCommunity, succeeded)
		assert.Equal(t, (communityCount-1)*perCommunity, conflicts)

		all, err := f.engine.ListUserRecords(ctx, "user-1")
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("should resolve unique index races between unlocked writers", func(t *testing.T) {
		requirePostgres(t)

		// Arrange
		const writers = 8
		var (
			f           = newFixture(t)
			ctx         = context.Background()
			communities = make([]Community, writers)
			errs        = make([]error, writers)
			start       = make(chan struct{})
			wg          sync.WaitGroup
		)
		for i := range communities {
			communities[i] = f.createCommunity(t, fmt.Sprintf("Community %d", i), "")
		}

		// Act
		for i := range communities {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				errs[i] = f.store.inTx(ctx, "insert membership", func(q *database.Queries) error {
					return q.InsertMembership(ctx, &database.MembershipRecord{
						ID:          newID(),
						UserID:      "user-1",
						CommunityID: communities[i].ID,
						Status:      string(StatusPending),
						Role:        string(RoleMember),
					})
				})
			}(i)
		}
		close(start)
		wg.Wait()

		// Assert
		var (
			winner    string
			conflicts int
		)
		for i, err := range errs {
			if err == nil {
				require.Empty(t, winner, "more than one writer committed")
				winner = communities[i].ID
				continue
			}
			require.True(t, IsTransient(err), "unexpected error: %v", err)

			_, resolved := f.engine.resolveActiveRace(ctx, "user-1", communities[i].ID, err)
			require.True(t, IsConflict(resolved), "unexpected error: %v", resolved)
			conflicts++
		}
		require.NotEmpty(t, winner)
		assert.Equal(t, writers-1, conflicts)

		record, err := f.engine.resolveActiveRace(ctx, "user-1", winner, nil)
		require.NoError(t, err)
		assert.Equal(t, winner, record.CommunityID)
	})
}
