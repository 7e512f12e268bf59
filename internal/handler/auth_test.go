package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/ritual-archive/internal/auth"
	"github.com/sakif/ritual-archive/internal/model"
	"github.com/sakif/ritual-archive/internal/repository/sqlite"
	"github.com/sakif/ritual-archive/internal/service"
)

type fakeGitHub struct {
	user *auth.GitHubUser
	err  error
	code string // last code passed to Exchange
}

func (f *fakeGitHub) AuthURL(state string) string {
	return "https://github.example/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeGitHub) Exchange(_ context.Context, code string) (*auth.GitHubUser, error) {
	f.code = code
	return f.user, f.err
}

type authEnv struct {
	router http.Handler
	tokens *auth.TokenService
	github *fakeGitHub
}

func newAuthEnv(t *testing.T, withGitHub bool) *authEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	svc := service.NewAuthService(db, tokens, auth.NewPasswordService(bcrypt.MinCost), discardLogger())

	env := &authEnv{tokens: tokens}
	var gh GitHubAuthenticator
	if withGitHub {
		env.github = &fakeGitHub{user: &auth.GitHubUser{ID: 4242, Login: "octo", Email: "octo@example.com"}}
		gh = env.github
	}
	h := NewAuthHandler(svc, gh, time.Hour, false, discardLogger())

	r := chi.NewRouter()
	r.Post("/auth/register", h.HandleRegister)
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/logout", h.HandleLogout)
	r.Get("/auth/github/login", h.HandleGitHubLogin)
	r.Get("/auth/github/callback", h.HandleGitHubCallback)
	r.With(auth.RequireAuth(tokens)).Get("/api/users/me", h.HandleMe)
	env.router = r
	return env
}

func (e *authEnv) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func tokenCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}

func TestAuthHandler_RegisterLoginMe(t *testing.T) {
	env := newAuthEnv(t, false)

	rec := env.post(t, "/auth/register", `{"login":"reader","email":"r@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "correct-horse")
	assert.NotContains(t, strings.ToLower(rec.Body.String()), "password")

	c := tokenCookie(rec)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, 3600, c.MaxAge)

	rec = env.post(t, "/auth/login", `{"login":"reader","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	c = tokenCookie(rec)
	require.NotNil(t, c)

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.AddCookie(c)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[model.User](t, rec)
	assert.Equal(t, "reader", me.Login)
}

func TestAuthHandler_RegisterErrors(t *testing.T) {
	env := newAuthEnv(t, false)

	rec := env.post(t, "/auth/register", `{"login":"ab","password":"correct-horse"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.post(t, "/auth/register", `{"login":"reader","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusCreated, env.post(t, "/auth/register", `{"login":"reader","password":"correct-horse"}`).Code)
	rec = env.post(t, "/auth/register", `{"login":"reader","password":"another-one"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuthHandler_LoginFailuresLookAlike(t *testing.T) {
	env := newAuthEnv(t, false)
	require.Equal(t, http.StatusCreated, env.post(t, "/auth/register", `{"login":"reader","password":"correct-horse"}`).Code)

	wrongPassword := env.post(t, "/auth/login", `{"login":"reader","password":"wrong-horse"}`)
	unknownUser := env.post(t, "/auth/login", `{"login":"nobody","password":"correct-horse"}`)

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownUser.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownUser.Body.String())
	assert.Nil(t, tokenCookie(wrongPassword))
}

func TestAuthHandler_Logout(t *testing.T) {
	env := newAuthEnv(t, false)

	rec := env.post(t, "/auth/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	c := tokenCookie(rec)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
	assert.Less(t, c.MaxAge, 0)
}

func TestAuthHandler_GitHubDisabled(t *testing.T) {
	env := newAuthEnv(t, false)

	for _, path := range []string{"/auth/github/login", "/auth/github/callback?code=x&state=y"} {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestAuthHandler_GitHubFlow(t *testing.T) {
	env := newAuthEnv(t, true)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)

	var state *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookie {
			state = c
		}
	}
	require.NotNil(t, state)
	assert.Contains(t, rec.Header().Get("Location"), "state="+state.Value)

	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?code=abc&state="+state.Value, nil)
	req.AddCookie(state)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "abc", env.github.code)
	c := tokenCookie(rec)
	require.NotNil(t, c)
	_, err := env.tokens.Validate(c.Value)
	assert.NoError(t, err)
}

func TestAuthHandler_GitHubCallbackRejects(t *testing.T) {
	cases := []struct {
		name   string
		query  string
		cookie string
		err    error
		status int
	}{
		{"no state cookie", "code=abc&state=s1", "", nil, http.StatusBadRequest},
		{"state mismatch", "code=abc&state=s1", "s2", nil, http.StatusBadRequest},
		{"missing code", "state=s1", "s1", nil, http.StatusBadRequest},
		{"user denied", "error=access_denied&state=s1", "s1", nil, http.StatusSeeOther},
		{"exchange fails", "code=abc&state=s1", "s1", errors.New("github down"), http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newAuthEnv(t, true)
			env.github.err = tc.err

			req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?"+tc.query, nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: stateCookie, Value: tc.cookie})
			}
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			assert.Nil(t, tokenCookie(rec))
		})
	}
}
