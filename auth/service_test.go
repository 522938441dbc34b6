package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/ggrighi15/fusione-dev-sub001/audit"
	"github.com/ggrighi15/fusione-dev-sub001/auth"
	"github.com/ggrighi15/fusione-dev-sub001/internal/config"
	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/internal/geo"
	"github.com/ggrighi15/fusione-dev-sub001/sessions"
	"github.com/ggrighi15/fusione-dev-sub001/storage/memory"
	"github.com/ggrighi15/fusione-dev-sub001/token/refresh"
	"github.com/ggrighi15/fusione-dev-sub001/twofactor"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "Corr3ctHorse"
	testIP       = "10.0.0.7"
)

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type testFixture struct {
	now       time.Time
	store     *memory.Store
	sessions  *sessions.Manager
	twoFactor *twofactor.Engine
	refresh   *refresh.Manager
	service   *auth.Service
	userID    string
}

func setupTestFixture(t *testing.T, options ...auth.ServiceOption) *testFixture {
	t.Helper()

	f := &testFixture{now: testNow, store: memory.New()}
	clock := func() time.Time { return f.now }
	resolver, err := geo.NewStaticResolver([]string{"10.0.0.0/8=BR"})
	require.NoError(t, err)
	auditor := audit.NewAuditor(f.store.Audit, audit.WithResolver(resolver), audit.WithNowFunc(clock))

	f.sessions = sessions.NewManager(f.store.Sessions,
		sessions.WithConfig(config.Default().Session),
		sessions.WithAuditLogger(auditor),
		sessions.WithNowFunc(clock),
	)
	f.twoFactor = twofactor.NewEngine(f.store.TwoFactor,
		twofactor.WithAuditLogger(auditor),
		twofactor.WithNowFunc(clock),
	)
	f.refresh = refresh.NewManager(f.store.Refresh, refresh.WithNowFunc(clock))
	f.service = auth.NewService(f.store.Users, f.sessions, f.twoFactor, f.refresh,
		append([]auth.ServiceOption{
			auth.WithAuditLogger(auditor),
			auth.WithNowFunc(clock),
		}, options...)...,
	)

	user, err := f.service.Register(context.Background(), auth.RegisterRequest{
		Email:       "  Alice@Example.com ",
		Password:    testPassword,
		DisplayName: "Alice",
	})
	require.NoError(t, err)
	require.Equal(t, testEmail, user.Email)
	f.userID = user.ID
	return f
}

func (f *testFixture) entries(t *testing.T, eventType string) []*audit.Entry {
	t.Helper()
	entries, err := f.store.Audit.Query(context.Background(), audit.Filter{EventType: eventType})
	require.NoError(t, err)
	return entries
}

func (f *testFixture) enableTwoFactor(t *testing.T) *twofactor.SetupResult {
	t.Helper()
	ctx := context.Background()
	setup, err := f.twoFactor.Setup(ctx, f.userID, testEmail)
	require.NoError(t, err)
	ok, err := f.twoFactor.Verify(ctx, f.userID, codeAt(t, setup.Secret, f.now))
	require.NoError(t, err)
	require.True(t, ok)
	return setup
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestRegister(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	t.Run("duplicate email", func(t *testing.T) {
		_, err := f.service.Register(ctx, auth.RegisterRequest{Email: testEmail, Password: testPassword})
		require.ErrorIs(t, err, autherrors.ErrConflict)
	})

	invalid := map[string]auth.RegisterRequest{
		"missing email":  {Password: testPassword},
		"malformed":      {Email: "alice", Password: testPassword},
		"weak password":  {Email: "bob@example.com", Password: "password"},
		"short password": {Email: "bob@example.com", Password: "Ab1"},
	}
	for name, req := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := f.service.Register(ctx, req)
			require.ErrorIs(t, err, autherrors.ErrInvalidRequest)
		})
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f := setupTestFixture(t)
		res, err := f.service.Login(ctx, auth.LoginRequest{Email: "ALICE@example.com", Password: testPassword, IP: testIP, UserAgent: "test"})
		require.NoError(t, err)
		require.Equal(t, f.userID, res.UserID)

		session, err := f.sessions.Validate(ctx, res.Session.SessionToken)
		require.NoError(t, err)
		require.NotNil(t, session)
		require.Equal(t, f.userID, session.UserID)

		user, err := f.store.Users.GetByID(ctx, f.userID)
		require.NoError(t, err)
		require.True(t, user.LastLogin.Equal(testNow))

		success := f.entries(t, audit.EventLoginSuccess)
		require.Len(t, success, 1)
		require.Equal(t, "BR", success[0].Country())
		require.Equal(t, res.Session.SessionID, success[0].SessionID)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.service.Login(ctx, auth.LoginRequest{Email: testEmail, Password: "Wr0ngHorse", IP: testIP})
		require.ErrorIs(t, err, autherrors.ErrInvalidCredentials)

		failed := f.entries(t, audit.EventLoginFailed)
		require.Len(t, failed, 1)
		require.Equal(t, f.userID, failed[0].UserID)
		require.Equal(t, audit.SeverityMedium, failed[0].Severity)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.service.Login(ctx, auth.LoginRequest{Email: "mallory@example.com", Password: testPassword, IP: testIP})
		require.ErrorIs(t, err, autherrors.ErrInvalidCredentials)

		failed := f.entries(t, audit.EventLoginFailed)
		require.Len(t, failed, 1)
		require.Empty(t, failed[0].UserID)
		require.Equal(t, "mallory@example.com", failed[0].Metadata["email"])
	})

	t.Run("unknown user still compares a hash", func(t *testing.T) {
		var compared []string
		f := setupTestFixture(t, auth.WithPasswordCheck(func(password, hash string) bool {
			compared = append(compared, hash)
			return false
		}))
		_, err := f.service.Login(ctx, auth.LoginRequest{Email: "mallory@example.com", Password: testPassword})
		require.ErrorIs(t, err, autherrors.ErrInvalidCredentials)
		require.Equal(t, []string{auth.DummyPasswordHash()}, compared)
		require.NotEmpty(t, compared[0])
	})

	t.Run("malformed request", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.service.Login(ctx, auth.LoginRequest{Email: testEmail})
		require.ErrorIs(t, err, autherrors.ErrInvalidRequest)
		require.Empty(t, f.entries(t, audit.EventLoginFailed))
	})
}

func TestLoginTwoFactor(t *testing.T) {
	ctx := context.Background()

	t.Run("code required", func(t *testing.T) {
		f := setupTestFixture(t)
		f.enableTwoFactor(t)

		_, err := f.service.Login(ctx, auth.LoginRequest{Email: testEmail, Password: testPassword})
		require.ErrorIs(t, err, autherrors.ErrTwoFactorRequired)
	})

	t.Run("wrong code", func(t *testing.T) {
		f := setupTestFixture(t)
		setup := f.enableTwoFactor(t)

		// The enabling code was already accepted for this step.
		_, err := f.service.Login(ctx, auth.LoginRequest{Email: testEmail, Password: testPassword, TOTP: codeAt(t, setup.Secret, f.now)})
		require.ErrorIs(t, err, autherrors.ErrTwoFactorInvalid)
		require.Len(t, f.entries(t, audit.EventLoginFailed), 1)
	})

	t.Run("next step accepted", func(t *testing.T) {
		f := setupTestFixture(t)
		setup := f.enableTwoFactor(t)
		f.now = f.now.Add(30 * time.Second)

		res, err := f.service.Login(ctx, auth.LoginRequest{Email: testEmail, Password: testPassword, TOTP: codeAt(t, setup.Secret, f.now)})
		require.NoError(t, err)
		require.NotEmpty(t, res.Session.SessionToken)
	})

	t.Run("backup code once", func(t *testing.T) {
		f := setupTestFixture(t)
		setup := f.enableTwoFactor(t)
		req := auth.LoginRequest{Email: testEmail, Password: testPassword, TOTP: setup.BackupCodes[0]}

		_, err := f.service.Login(ctx, req)
		require.NoError(t, err)
		_, err = f.service.Login(ctx, req)
		require.ErrorIs(t, err, autherrors.ErrTwoFactorInvalid)
	})
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	res, err := f.service.Login(ctx, auth.LoginRequest{Email: testEmail, Password: testPassword, IP: testIP})
	require.NoError(t, err)
	refreshToken, err := f.refresh.Issue(ctx, f.userID, "client-1", "read", nil)
	require.NoError(t, err)
	otherToken, err := f.refresh.Issue(ctx, "someone-else", "client-1", "read", nil)
	require.NoError(t, err)

	t.Run("revokes session and own refresh token", func(t *testing.T) {
		require.NoError(t, f.service.Logout(ctx, res.Session.SessionToken, refreshToken))

		session, err := f.sessions.Validate(ctx, res.Session.SessionToken)
		require.NoError(t, err)
		require.Nil(t, session)

		record, err := f.refresh.Verify(ctx, refreshToken)
		require.NoError(t, err)
		require.Nil(t, record)
		require.Len(t, f.entries(t, audit.EventLogout), 1)
	})

	t.Run("unknown session", func(t *testing.T) {
		err := f.service.Logout(ctx, res.Session.SessionToken, "")
		require.ErrorIs(t, err, autherrors.ErrInvalidToken)
	})

	t.Run("refresh token of another user is left alone", func(t *testing.T) {
		again, err := f.service.Login(ctx, auth.LoginRequest{Email: testEmail, Password: testPassword})
		require.NoError(t, err)
		require.NoError(t, f.service.Logout(ctx, again.Session.SessionToken, otherToken))

		record, err := f.refresh.Verify(ctx, otherToken)
		require.NoError(t, err)
		require.NotNil(t, record)
	})
}
