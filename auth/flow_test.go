package auth_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/jrsteele09/go-session-gate/auth"
	"github.com/jrsteele09/go-session-gate/authz"
	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/jrsteele09/go-session-gate/sessions"
	"github.com/jrsteele09/go-session-gate/users"
	"github.com/jrsteele09/go-session-gate/users/memrepo"
	"github.com/jrsteele09/go-session-gate/users/mock_users"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/abtime"
	"go.uber.org/mock/gomock"
)

var testFlowConfig = auth.FlowConfig{
	LoginPath:            "/login",
	LogoutPath:           "/logout",
	LoginSuccessRedirect: "/hello",
	LogoutRedirect:       "/",
	SessionCookieName:    "JSESSIONID",
}

// testFixture holds all flow dependencies
type testFixture struct {
	registry *sessions.Registry
	flow     *auth.Flow
}

func setupTestFixture(t *testing.T, repo users.Repo, registryOptions ...sessions.RegistryOption) *testFixture {
	t.Helper()

	if repo == nil {
		var err error
		repo, err = memrepo.New(users.New(testUsername, "hash:"+testPassword, users.RoleUser))
		require.NoError(t, err)
	}
	validator, err := auth.NewValidator(repo, &clockedHasher{clock: abtime.NewManual()})
	require.NoError(t, err)

	registryOptions = append([]sessions.RegistryOption{sessions.WithClock(abtime.NewManual())}, registryOptions...)
	registry, err := sessions.NewRegistry(registryOptions...)
	require.NoError(t, err)

	matcher, err := authz.NewMatcher(auth.Rules(testFlowConfig, []string{"/admin/**"}, []string{"/", "/home", "/**"})...)
	require.NoError(t, err)

	flow, err := auth.NewFlow(validator, registry, matcher, testFlowConfig)
	require.NoError(t, err)

	return &testFixture{registry: registry, flow: flow}
}

func (f *testFixture) login(t *testing.T) sessions.Session {
	t.Helper()
	outcome, resp := f.flow.Login(context.Background(), testUsername, testPassword, "")
	require.True(t, outcome.Succeeded())
	require.NotNil(t, resp.Cookie)
	return outcome.Session
}

func TestAuthorize_PublicPassesUntouched(t *testing.T) {
	f := setupTestFixture(t, nil)

	d := f.flow.Authorize("/home", "")
	require.True(t, d.Allowed)
	require.Equal(t, authz.Public, d.Access)
	require.Empty(t, d.Session.ID)

	d = f.flow.Authorize("/login", "garbage")
	require.True(t, d.Allowed)
	require.Nil(t, d.Response.Cookie)
}

func TestAuthorize_ProtectedWithoutSessionIsChallenged(t *testing.T) {
	f := setupTestFixture(t, nil)

	d := f.flow.Authorize("/admin/console", "")
	require.False(t, d.Allowed)
	require.Equal(t, authz.RequiresAuth, d.Access)
	require.Equal(t, http.StatusSeeOther, d.Response.Status)
	require.Equal(t, "/login", d.Response.Location)
	require.Nil(t, d.Response.Cookie)
}

func TestAuthorize_StaleCookieIsCleared(t *testing.T) {
	f := setupTestFixture(t, nil)

	d := f.flow.Authorize("/admin/console", "no-such-session")
	require.False(t, d.Allowed)
	require.Equal(t, &auth.Cookie{Name: "JSESSIONID", Clear: true}, d.Response.Cookie)
}

func TestLogin_SuccessRegistersSessionAndRedirects(t *testing.T) {
	f := setupTestFixture(t, nil)

	outcome, resp := f.flow.Login(context.Background(), testUsername, testPassword, "")
	require.True(t, outcome.Succeeded())
	require.Equal(t, testUsername, outcome.Session.Principal)
	require.Equal(t, http.StatusSeeOther, resp.Status)
	require.Equal(t, "/hello", resp.Location)
	require.Equal(t, &auth.Cookie{Name: "JSESSIONID", Value: outcome.Session.ID}, resp.Cookie)

	d := f.flow.Authorize("/admin/console", outcome.Session.ID)
	require.True(t, d.Allowed)
	require.Equal(t, testUsername, d.Session.Principal)
}

func TestLogin_FailureDisclosesNothing(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()

	ghost, ghostResp := f.flow.Login(ctx, "ghost", "anything", "")
	wrong, wrongResp := f.flow.Login(ctx, testUsername, "wrong-password", "")

	require.ErrorIs(t, ghost.Err, apperrors.ErrInvalidCredentials)
	require.ErrorIs(t, wrong.Err, apperrors.ErrInvalidCredentials)
	require.Equal(t, ghostResp, wrongResp)
	require.Equal(t, "/login?error=Authentication+failed", ghostResp.Location)
	require.Nil(t, ghostResp.Cookie)
	require.Equal(t, 0, f.registry.Len())
}

func TestLogin_StoreUnavailableAsksToRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mock_users.NewMockRepo(ctrl)
	repo.EXPECT().GetByUsername(gomock.Any(), gomock.Any()).Return(nil, apperrors.ErrStoreUnavailable)
	f := setupTestFixture(t, repo)

	outcome, resp := f.flow.Login(context.Background(), testUsername, testPassword, "")
	require.ErrorIs(t, outcome.Err, apperrors.ErrStoreUnavailable)
	require.Equal(t, "/login?error=Service+temporarily+unavailable%2C+please+try+again", resp.Location)
	require.Equal(t, 0, f.registry.Len())
}

func TestLogin_SecondLoginEvictsFirstSession(t *testing.T) {
	f := setupTestFixture(t, nil)

	first := f.login(t)
	second := f.login(t)

	require.False(t, f.flow.Authorize("/admin/x", first.ID).Allowed)
	require.True(t, f.flow.Authorize("/admin/x", second.ID).Allowed)
}

func TestLogin_RejectNewPolicy(t *testing.T) {
	f := setupTestFixture(t, nil, sessions.WithLimitPolicy(sessions.RejectNew))

	first := f.login(t)
	outcome, resp := f.flow.Login(context.Background(), testUsername, testPassword, "")

	require.ErrorIs(t, outcome.Err, apperrors.ErrSessionLimitReached)
	require.Equal(t, "/login?error=Maximum+sessions+exceeded", resp.Location)
	require.True(t, f.flow.Authorize("/admin/x", first.ID).Allowed)

	// Logging in again from the browser that holds the session replaces it.
	outcome, _ = f.flow.Login(context.Background(), testUsername, testPassword, first.ID)
	require.True(t, outcome.Succeeded())
	require.False(t, f.flow.Authorize("/admin/x", first.ID).Allowed)
}

func TestLogin_ReplacesPresentedSession(t *testing.T) {
	repo, err := memrepo.New(
		users.New(testUsername, "hash:"+testPassword),
		users.New("other", "hash:other-pw"),
	)
	require.NoError(t, err)
	f := setupTestFixture(t, repo)

	old := f.login(t)
	outcome, _ := f.flow.Login(context.Background(), "other", "other-pw", old.ID)
	require.True(t, outcome.Succeeded())

	_, ok := f.registry.Validate(old.ID)
	require.False(t, ok, "presented session must not survive a new login")
	require.Empty(t, f.registry.Sessions(testUsername))
}

func TestLogout_IsIdempotent(t *testing.T) {
	f := setupTestFixture(t, nil)
	sess := f.login(t)

	for i := 0; i < 2; i++ {
		resp := f.flow.Logout(sess.ID)
		require.Equal(t, http.StatusSeeOther, resp.Status)
		require.Equal(t, "/", resp.Location)
		require.Equal(t, &auth.Cookie{Name: "JSESSIONID", Clear: true}, resp.Cookie)
	}

	require.False(t, f.flow.Authorize("/admin/x", sess.ID).Allowed)
	require.Equal(t, 0, f.registry.Len())

	resp := f.flow.Logout("")
	require.Equal(t, "/", resp.Location)
}

func TestWithFailureHandler(t *testing.T) {
	repo, err := memrepo.New()
	require.NoError(t, err)
	validator, err := auth.NewValidator(repo, &clockedHasher{clock: abtime.NewManual()})
	require.NoError(t, err)
	registry, err := sessions.NewRegistry()
	require.NoError(t, err)
	matcher, err := authz.NewMatcher()
	require.NoError(t, err)

	var seen error
	flow, err := auth.NewFlow(validator, registry, matcher, testFlowConfig,
		auth.WithFailureHandler(func(err error) auth.Response {
			seen = err
			return auth.Response{Status: http.StatusUnauthorized}
		}))
	require.NoError(t, err)

	_, resp := flow.Login(context.Background(), "ghost", "pw", "")
	require.Equal(t, http.StatusUnauthorized, resp.Status)
	require.ErrorIs(t, seen, apperrors.ErrInvalidCredentials)
}

func TestRules_LoginAndLogoutAlwaysPublic(t *testing.T) {
	matcher, err := authz.NewMatcher(auth.Rules(testFlowConfig, []string{"/**"}, nil)...)
	require.NoError(t, err)

	require.Equal(t, authz.Public, matcher.Classify("/login"))
	require.Equal(t, authz.Public, matcher.Classify("/logout"))
	require.Equal(t, authz.RequiresAuth, matcher.Classify("/"))
}

func TestNewFlow_RequiresDependencies(t *testing.T) {
	registry, err := sessions.NewRegistry()
	require.NoError(t, err)
	matcher, err := authz.NewMatcher()
	require.NoError(t, err)
	repo, err := memrepo.New()
	require.NoError(t, err)
	validator, err := auth.NewValidator(repo, &clockedHasher{clock: abtime.NewManual()})
	require.NoError(t, err)

	_, err = auth.NewFlow(nil, registry, matcher, testFlowConfig)
	require.ErrorIs(t, err, auth.ValidatorRequiredErr)
	_, err = auth.NewFlow(validator, nil, matcher, testFlowConfig)
	require.ErrorIs(t, err, auth.RegistryRequiredErr)
	_, err = auth.NewFlow(validator, registry, nil, testFlowConfig)
	require.ErrorIs(t, err, auth.MatcherRequiredErr)
}
