package server_test

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jrsteele09/go-session-gate/auth"
	"github.com/jrsteele09/go-session-gate/internal/config"
	"github.com/jrsteele09/go-session-gate/server"
	"github.com/jrsteele09/go-session-gate/users/memrepo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	cfg    config.Config
	system *server.System
	server *server.Server
	url    string
}

func setupTestFixture(t *testing.T, env map[string]string) *testFixture {
	t.Helper()
	t.Setenv("PASSWORD_HASH_WORK_FACTOR", "4")
	t.Setenv("ENV", "TEST")
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := config.Parse()
	require.NoError(t, err)

	system, err := server.InitialiseSystem(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(system.Close)

	s, err := server.New(cfg, system.Flow)
	require.NoError(t, err)

	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	return &testFixture{cfg: cfg, system: system, server: s, url: ts.URL}
}

// newClient keeps cookies and does not follow redirects
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (f *testFixture) get(t *testing.T, c *http.Client, path string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Get(f.url + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (f *testFixture) login(t *testing.T, c *http.Client, username, password string) *http.Response {
	t.Helper()
	resp, err := c.PostForm(f.url+"/login", url.Values{
		server.FormUsername: {username},
		server.FormPassword: {password},
	})
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func sessionCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestServer_LoginLogoutScenario(t *testing.T) {
	f := setupTestFixture(t, nil)
	c := newClient(t)

	resp, _ := f.get(t, c, "/profile")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login", resp.Header.Get("Location"))

	resp = f.login(t, c, "user", "user")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/hello", resp.Header.Get("Location"))
	cookie := sessionCookie(resp, "JSESSIONID")
	require.NotNil(t, cookie)
	require.NotEmpty(t, cookie.Value)
	require.True(t, cookie.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	resp, body := f.get(t, c, "/profile")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Profile user!")

	resp, _ = f.get(t, c, "/logout")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
	cleared := sessionCookie(resp, "JSESSIONID")
	require.NotNil(t, cleared)
	require.Negative(t, cleared.MaxAge)

	_, ok := f.system.Registry.Validate(cookie.Value)
	require.False(t, ok, "session must be gone after logout")

	resp, _ = f.get(t, c, "/profile")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestServer_PublicPaths(t *testing.T) {
	f := setupTestFixture(t, nil)
	c := newClient(t)

	for _, p := range []string{"/", "/home", "/login"} {
		resp, _ := f.get(t, c, p)
		assert.Equal(t, http.StatusOK, resp.StatusCode, p)
	}

	resp, body := f.get(t, c, "/login?error=Authentication+failed")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Authentication failed")
}

func TestServer_UnroutedPathIsProtected(t *testing.T) {
	f := setupTestFixture(t, nil)
	c := newClient(t)

	resp, _ := f.get(t, c, "/admin/settings")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login", resp.Header.Get("Location"))

	f.login(t, c, "user", "user")
	resp, _ = f.get(t, c, "/admin/settings")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_BadCredentials(t *testing.T) {
	f := setupTestFixture(t, nil)

	for _, creds := range [][2]string{{"user", "wrong"}, {"ghost", "user"}} {
		c := newClient(t)
		resp := f.login(t, c, creds[0], creds[1])
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		require.Equal(t, "/login?error=Authentication+failed", resp.Header.Get("Location"))
		require.Nil(t, sessionCookie(resp, "JSESSIONID"))
	}
	require.Zero(t, f.system.Registry.Len())
}

func TestServer_SecondLoginEvictsFirst(t *testing.T) {
	f := setupTestFixture(t, nil)
	first, second := newClient(t), newClient(t)

	f.login(t, first, "user", "user")
	resp, _ := f.get(t, first, "/hello")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	f.login(t, second, "user", "user")

	resp, _ = f.get(t, first, "/hello")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode, "evicted session must be challenged")
	require.NotNil(t, sessionCookie(resp, "JSESSIONID"), "stale cookie is cleared")

	resp, _ = f.get(t, second, "/hello")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, f.system.Registry.Sessions("user"), 1)
}

func TestServer_RejectNewPolicy(t *testing.T) {
	f := setupTestFixture(t, map[string]string{"SESSION_LIMIT_POLICY": "reject-new"})

	f.login(t, newClient(t), "user", "user")
	resp := f.login(t, newClient(t), "user", "user")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login?error="+url.QueryEscape(auth.MsgSessionLimit), resp.Header.Get("Location"))
	require.Len(t, f.system.Registry.Sessions("user"), 1)
}

func TestServer_ConfiguredPaths(t *testing.T) {
	f := setupTestFixture(t, map[string]string{
		"PUBLIC_PATHS":    "/,/home,/docs/**",
		"PROTECTED_PATHS": "/docs/private/**",
	})
	c := newClient(t)

	resp, _ := f.get(t, c, "/docs/readme")
	require.Equal(t, http.StatusNotFound, resp.StatusCode, "public but unrouted")

	resp, _ = f.get(t, c, "/docs/private/plan")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestServer_HTMXLogin(t *testing.T) {
	f := setupTestFixture(t, nil)
	c := newClient(t)

	req, err := http.NewRequest(http.MethodPost, f.url+"/login", strings.NewReader("username=user&password=user"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")

	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "/hello", resp.Header.Get("HX-Redirect"))
	require.NotNil(t, sessionCookie(resp, "JSESSIONID"))
}

func TestServer_LogoutWithoutSession(t *testing.T) {
	f := setupTestFixture(t, nil)
	c := newClient(t)

	resp, err := c.Post(f.url+"/logout", "application/x-www-form-urlencoded", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
}

func TestServer_LoginReplacesPresentedSession(t *testing.T) {
	f := setupTestFixture(t, map[string]string{"MAX_SESSIONS_PER_PRINCIPAL": "2"})
	c := newClient(t)

	first := sessionCookie(f.login(t, c, "user", "user"), "JSESSIONID")
	require.NotNil(t, first)
	second := sessionCookie(f.login(t, c, "user", "user"), "JSESSIONID")
	require.NotNil(t, second)

	require.NotEqual(t, first.Value, second.Value)
	_, ok := f.system.Registry.Validate(first.Value)
	require.False(t, ok)
	require.Len(t, f.system.Registry.Sessions("user"), 1)
}

func TestServer_Headers(t *testing.T) {
	f := setupTestFixture(t, nil)
	resp, _ := f.get(t, newClient(t), "/")

	require.NotEmpty(t, resp.Header.Get(server.HeaderRequestID))
	require.Equal(t, "SAMEORIGIN", resp.Header.Get("X-Frame-Options"))
}

func TestServer_RoutesFollowConfiguredAuthPaths(t *testing.T) {
	f := setupTestFixture(t, map[string]string{
		"LOGIN_PATH":  "/signin",
		"LOGOUT_PATH": "/signout",
	})

	routes := f.server.Routes()
	require.Contains(t, routes, "GET /signin")
	require.Contains(t, routes, "POST /signin")
	require.Contains(t, routes, "GET /signout")
	require.Contains(t, routes, "POST /signout")
	require.NotContains(t, routes, "GET /login")

	c := newClient(t)
	resp, _ := f.get(t, c, "/profile")
	require.Equal(t, "/signin", resp.Header.Get("Location"))

	resp, err := c.PostForm(f.url+"/signin", url.Values{
		server.FormUsername: {"user"},
		server.FormPassword: {"user"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "/hello", resp.Header.Get("Location"))
}

func TestNew_RequiresFlow(t *testing.T) {
	_, err := server.New(config.Config{}, nil)
	require.ErrorIs(t, err, auth.FlowRequiredErr)
}

func TestSeedIdentity_Idempotent(t *testing.T) {
	t.Setenv("PASSWORD_HASH_WORK_FACTOR", "4")
	cfg, err := config.Parse()
	require.NoError(t, err)

	f := setupTestFixture(t, nil)
	repo, err := memrepo.New()
	require.NoError(t, err)

	for range 2 {
		require.NoError(t, server.SeedIdentity(context.Background(), repo, f.system.Hasher, cfg.Identity))
	}
	require.Equal(t, 1, repo.Len())

	u, err := repo.GetByUsername(context.Background(), "user")
	require.NoError(t, err)
	require.True(t, f.system.Hasher.Verify("user", u.PasswordHash))
}
