package sessions_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ggrighi15/fusione-dev-sub001/audit"
	"github.com/ggrighi15/fusione-dev-sub001/internal/config"
	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/internal/geo"
	"github.com/ggrighi15/fusione-dev-sub001/sessions"
	"github.com/ggrighi15/fusione-dev-sub001/storage/memory"
)

const (
	testUserID    = "user-1"
	testIP        = "10.1.2.3"
	testUserAgent = "test-agent/1.0"
)

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// blockingRepo never answers before the caller's deadline.
type blockingRepo struct {
	*memory.SessionRepo
}

func (blockingRepo) GetByToken(ctx context.Context, _ string) (*sessions.Session, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// gatedRepo parks the first GetByToken after it has read the row, until release closes.
type gatedRepo struct {
	*memory.SessionRepo
	armed   atomic.Bool
	reached chan struct{}
	release chan struct{}
}

func newGatedRepo(inner *memory.SessionRepo) *gatedRepo {
	g := &gatedRepo{SessionRepo: inner, reached: make(chan struct{}), release: make(chan struct{})}
	g.armed.Store(true)
	return g
}

func (g *gatedRepo) GetByToken(ctx context.Context, token string) (*sessions.Session, error) {
	s, err := g.SessionRepo.GetByToken(ctx, token)
	if g.armed.CompareAndSwap(true, false) {
		close(g.reached)
		<-g.release
	}
	return s, err
}

type testFixture struct {
	now       time.Time
	repo      *memory.SessionRepo
	auditRepo *memory.AuditRepo
	manager   *sessions.Manager
}

func setupTestFixture(t *testing.T, options ...sessions.ManagerOption) *testFixture {
	t.Helper()

	resolver, err := geo.NewStaticResolver([]string{"10.0.0.0/8=BR"})
	require.NoError(t, err)

	f := &testFixture{now: testNow, repo: memory.NewSessionRepo(), auditRepo: memory.NewAuditRepo()}
	clock := func() time.Time { return f.now }
	opts := append([]sessions.ManagerOption{
		sessions.WithConfig(config.Default().Session),
		sessions.WithResolver(resolver),
		sessions.WithAuditLogger(audit.NewAuditor(f.auditRepo, audit.WithNowFunc(clock))),
		sessions.WithNowFunc(clock),
	}, options...)
	f.manager = sessions.NewManager(f.repo, opts...)
	return f
}

func TestCreate(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, testUserID, testIP, testUserAgent)
	require.NoError(t, err)
	require.Len(t, created.SessionToken, 128)
	require.NotEmpty(t, created.SessionID)
	require.Equal(t, testNow.Add(2*time.Hour), created.ExpiresAt)

	stored, err := f.repo.GetByToken(ctx, created.SessionToken)
	require.NoError(t, err)
	require.True(t, stored.Active)
	require.Equal(t, testUserAgent, stored.UserAgent)
	require.NotNil(t, stored.Location)
	require.Equal(t, "BR", stored.Location.Country)

	entries, err := f.auditRepo.Query(ctx, audit.Filter{EventType: audit.EventSessionCreated})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, created.SessionID, entries[0].SessionID)
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("expiry is strict and never extended", func(t *testing.T) {
		f := setupTestFixture(t)
		created, err := f.manager.Create(ctx, testUserID, testIP, testUserAgent)
		require.NoError(t, err)

		f.now = testNow.Add(time.Hour)
		s, err := f.manager.Validate(ctx, created.SessionToken)
		require.NoError(t, err)
		require.NotNil(t, s)
		require.Equal(t, testNow.Add(time.Hour), s.LastActivity)
		require.Equal(t, created.ExpiresAt, s.ExpiresAt)

		stored, err := f.repo.GetByToken(ctx, created.SessionToken)
		require.NoError(t, err)
		require.Equal(t, testNow.Add(time.Hour), stored.LastActivity)
		require.Equal(t, created.ExpiresAt, stored.ExpiresAt)

		f.now = created.ExpiresAt.Add(-time.Nanosecond)
		s, err = f.manager.Validate(ctx, created.SessionToken)
		require.NoError(t, err)
		require.NotNil(t, s)

		f.now = created.ExpiresAt
		s, err = f.manager.Validate(ctx, created.SessionToken)
		require.NoError(t, err)
		require.Nil(t, s)
	})

	t.Run("loads from store when not cached", func(t *testing.T) {
		f := setupTestFixture(t)
		created, err := f.manager.Create(ctx, testUserID, testIP, testUserAgent)
		require.NoError(t, err)

		other := sessions.NewManager(f.repo, sessions.WithNowFunc(func() time.Time { return f.now }))
		s, err := other.Validate(ctx, created.SessionToken)
		require.NoError(t, err)
		require.NotNil(t, s)
		require.Equal(t, testUserID, s.UserID)
	})

	t.Run("unknown token", func(t *testing.T) {
		f := setupTestFixture(t)
		s, err := f.manager.Validate(ctx, "unknown")
		require.NoError(t, err)
		require.Nil(t, s)

		s, err = f.manager.Validate(ctx, "")
		require.NoError(t, err)
		require.Nil(t, s)
	})

	t.Run("store timeout is transient", func(t *testing.T) {
		f := setupTestFixture(t)
		slow := sessions.NewManager(blockingRepo{f.repo}, sessions.WithStoreTimeout(10*time.Millisecond))

		s, err := slow.Validate(ctx, "some-token")
		require.Nil(t, s)
		require.True(t, autherrors.IsTransient(err))
	})
}

func TestRevoke(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	first, err := f.manager.Create(ctx, testUserID, testIP, testUserAgent)
	require.NoError(t, err)
	second, err := f.manager.Create(ctx, testUserID, testIP, testUserAgent)
	require.NoError(t, err)
	third, err := f.manager.Create(ctx, testUserID, testIP, testUserAgent)
	require.NoError(t, err)
	others, err := f.manager.Create(ctx, "user-2", testIP, testUserAgent)
	require.NoError(t, err)

	ok, err := f.manager.Revoke(ctx, first.SessionToken)
	require.NoError(t, err)
	require.True(t, ok)
	s, err := f.manager.Validate(ctx, first.SessionToken)
	require.NoError(t, err)
	require.Nil(t, s)

	ok, err = f.manager.Revoke(ctx, first.SessionToken)
	require.NoError(t, err)
	require.False(t, ok)

	n, err := f.manager.RevokeAllForUser(ctx, testUserID)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	for _, tok := range []string{second.SessionToken, third.SessionToken} {
		s, err := f.manager.Validate(ctx, tok)
		require.NoError(t, err)
		require.Nil(t, s)
	}

	s, err = f.manager.Validate(ctx, others.SessionToken)
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestSweep(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	expiring, err := f.manager.Create(ctx, testUserID, testIP, testUserAgent)
	require.NoError(t, err)
	f.now = testNow.Add(time.Hour)
	live, err := f.manager.Create(ctx, testUserID, testIP, testUserAgent)
	require.NoError(t, err)

	f.now = testNow.Add(2 * time.Hour)
	n, err := f.manager.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	stored, err := f.repo.GetByToken(ctx, expiring.SessionToken)
	require.NoError(t, err)
	require.False(t, stored.Active)

	s, err := f.manager.Validate(ctx, live.SessionToken)
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestRevokeDuringValidate(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, testUserID, testIP, testUserAgent)
	require.NoError(t, err)

	gated := newGatedRepo(f.repo)
	cold := sessions.NewManager(gated, sessions.WithNowFunc(func() time.Time { return f.now }))

	done := make(chan error, 1)
	go func() {
		_, err := cold.Validate(ctx, created.SessionToken)
		done <- err
	}()
	<-gated.reached

	ok, err := cold.Revoke(ctx, created.SessionToken)
	require.NoError(t, err)
	require.True(t, ok)

	close(gated.release)
	require.NoError(t, <-done)

	s, err := cold.Validate(ctx, created.SessionToken)
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestRevokeUncachedIsAttributed(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, testUserID, testIP, testUserAgent)
	require.NoError(t, err)

	cold := sessions.NewManager(f.repo,
		sessions.WithAuditLogger(audit.NewAuditor(f.auditRepo)),
		sessions.WithNowFunc(func() time.Time { return f.now }))
	ok, err := cold.Revoke(ctx, created.SessionToken)
	require.NoError(t, err)
	require.True(t, ok)

	entries, err := f.auditRepo.Query(ctx, audit.Filter{EventType: audit.EventSessionRevoked})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, testUserID, entries[0].UserID)
	require.Equal(t, created.SessionID, entries[0].SessionID)
	require.Equal(t, testIP, entries[0].IP)
}
