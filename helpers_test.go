package membership

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-membership/database"
)

const (
	testNamespace  = "test_membership"
	testPublicID   = "public"
	testSuperuser  = "root"
	testClockStart = "2025-03-01T09:00:00Z"
)

// testClock ticks one second per reading so records created back to back have distinct times.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	var start, _ = time.Parse(time.RFC3339, testClockStart)
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	engine    *Engine
	store     *Store
	directory *database.Directory
	clock     *testClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	var (
		ctx = context.Background()
		db  = database.SetupTestDatabase(t)
	)

	store, err := NewStore(db, testNamespace)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))

	var (
		directory = database.NewDirectory(db, testNamespace)
		clock     = newTestClock()
	)
	require.NoError(t, directory.UpsertUser(ctx, &database.UserRecord{
		ID:          testSuperuser,
		Email:       "root@example.com",
		IsSuperuser: true,
	}))

	var engineOpts = append([]Option{
		WithClock(clock.Now),
		WithPublicCommunity(testPublicID),
	}, opts...)

	return &fixture{
		engine:    New(store, directory, engineOpts...),
		store:     store,
		directory: directory,
		clock:     clock,
	}
}

func (f *fixture) addUser(t *testing.T, id, email string) {
	t.Helper()
	require.NoError(t, f.directory.UpsertUser(context.Background(), &database.UserRecord{
		ID:    id,
		Email: email,
	}))
}

func (f *fixture) createCommunity(t *testing.T, name, adminID string) Community {
	t.Helper()
	community, err := f.engine.CreateCommunity(context.Background(), NewCommunity{Name: name, AdminID: adminID})
	require.NoError(t, err)
	return community
}

func (f *fixture) createPublic(t *testing.T) Community {
	t.Helper()
	community, err := f.engine.CreateCommunity(context.Background(), NewCommunity{ID: testPublicID, Name: "Everyone"})
	require.NoError(t, err)
	return community
}

// approvedMember creates an approved record for userID, decided by the community's admin or root.
func (f *fixture) approvedMember(t *testing.T, userID string, community Community) Record {
	t.Helper()
	var (
		ctx   = context.Background()
		actor = community.AdminID
	)
	if actor == "" {
		actor = testSuperuser
	}

	record, err := f.engine.RequestJoin(ctx, userID, community.ID, JoinDetails{})
	require.NoError(t, err)

	record, err = f.engine.Decide(ctx, record.ID, DecisionApprove, actor)
	require.NoError(t, err)
	return record
}
