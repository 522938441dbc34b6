package access_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ggrighi15/fusione-dev-sub001/access"
	"github.com/ggrighi15/fusione-dev-sub001/audit"
	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/storage/memory"
)

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type failingRepo struct {
	*memory.AccessRepo
}

func (failingRepo) LevelsForUser(context.Context, string, time.Time) ([]*access.Level, error) {
	return nil, autherrors.ErrTransient
}

type testFixture struct {
	now       time.Time
	auditRepo *memory.AuditRepo
	engine    *access.Engine
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{now: testNow, auditRepo: memory.NewAuditRepo()}
	f.engine = access.NewEngine(memory.NewAccessRepo(),
		access.WithAuditLogger(audit.NewAuditor(f.auditRepo)),
		access.WithNowFunc(func() time.Time { return f.now }),
	)

	ctx := context.Background()
	require.NoError(t, f.engine.DefineLevel(ctx, access.Level{ID: "admin", Name: "Admin", Permissions: []string{access.Wildcard}, Priority: 100}))
	require.NoError(t, f.engine.DefineLevel(ctx, access.Level{ID: "auditor", Name: "Auditor", Permissions: []string{"audit:*"}, Priority: 50}))
	require.NoError(t, f.engine.DefineLevel(ctx, access.Level{ID: "reader", Name: "Reader", Permissions: []string{"clients:read"}, Priority: 10}))
	return f
}

func TestMatches(t *testing.T) {
	tests := []struct {
		pattern    string
		permission string
		want       bool
	}{
		{"*", "anything:at:all", true},
		{"clients:read", "clients:read", true},
		{"clients:read", "clients:write", false},
		{"audit:*", "audit:read", true},
		{"audit:*", "audit:export:csv", true},
		{"audit:*", "auditing:read", false},
		{"audit:*", "audit", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.permission, func(t *testing.T) {
			require.Equal(t, tt.want, access.Matches(tt.pattern, tt.permission))
		})
	}
}

func TestCheck(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.Grant(ctx, access.Binding{UserID: "alice", LevelID: "reader"}))
	require.NoError(t, f.engine.Grant(ctx, access.Binding{UserID: "root", LevelID: "admin"}))
	expires := testNow.Add(time.Hour)
	require.NoError(t, f.engine.Grant(ctx, access.Binding{UserID: "bob", LevelID: "auditor", ExpiresAt: &expires}))

	check := func(userID, permission string) bool {
		t.Helper()
		ok, err := f.engine.Check(ctx, userID, permission)
		require.NoError(t, err)
		return ok
	}

	require.True(t, check("alice", "clients:read"))
	require.False(t, check("alice", "clients:write"))
	require.True(t, check("root", "clients:write"))
	require.True(t, check("bob", "audit:read"))
	require.False(t, check("nobody", "clients:read"))
	require.False(t, check("", "clients:read"))

	t.Run("expired binding", func(t *testing.T) {
		f.now = expires
		require.False(t, check("bob", "audit:read"))
		f.now = testNow
	})

	t.Run("revoked binding", func(t *testing.T) {
		ok, err := f.engine.Revoke(ctx, "alice", "reader")
		require.NoError(t, err)
		require.True(t, ok)
		require.False(t, check("alice", "clients:read"))

		ok, err = f.engine.Revoke(ctx, "alice", "reader")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("redefined level applies", func(t *testing.T) {
		require.NoError(t, f.engine.DefineLevel(ctx, access.Level{ID: "auditor", Name: "Auditor", Permissions: []string{"audit:read"}, Priority: 50}))
		require.True(t, check("bob", "audit:read"))
		require.False(t, check("bob", "audit:export"))
	})
}

func TestRequire(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Grant(ctx, access.Binding{UserID: "alice", LevelID: "reader"}))

	require.NoError(t, f.engine.Require(ctx, "alice", "clients:read"))

	err := f.engine.Require(ctx, "alice", "audit:read")
	require.ErrorIs(t, err, autherrors.ErrPermissionDenied)

	denied, err := f.auditRepo.Query(ctx, audit.Filter{EventType: audit.EventPermissionDenied})
	require.NoError(t, err)
	require.Len(t, denied, 1)
	require.Equal(t, "alice", denied[0].UserID)
}

func TestGrantUnknownLevel(t *testing.T) {
	f := setupTestFixture(t)
	err := f.engine.Grant(context.Background(), access.Binding{UserID: "alice", LevelID: "missing"})
	require.ErrorIs(t, err, autherrors.ErrNotFound)
}

func TestFailClosed(t *testing.T) {
	engine := access.NewEngine(failingRepo{memory.NewAccessRepo()})

	ok, err := engine.Check(context.Background(), "alice", "clients:read")
	require.Error(t, err)
	require.False(t, ok)

	err = engine.Require(context.Background(), "alice", "clients:read")
	require.True(t, autherrors.IsTransient(err))
}
