package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discuss/internal/auth"
	"discuss/internal/db"
	"discuss/internal/forms"
	"discuss/internal/media"
	"discuss/internal/models"
	"discuss/internal/store"
)

const testPassword = "correct-horse-42"

type testApp struct {
	srv   *httptest.Server
	store *store.Store
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gdb, sqlDB, err := db.Open(db.DriverSQLite, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(context.Background(), gdb))

	files := media.New(t.TempDir())
	require.NoError(t, files.EnsureDefaults())

	st := store.New(gdb)
	h, err := New(Config{
		Store:    st,
		Sessions: auth.NewManager(auth.NewSQLStore(sqlDB, db.DriverSQLite), time.Hour, false),
		Flashes:  NewFlashStore([]byte("0123456789abcdef0123456789abcdef"), false),
		Media:    files,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &testApp{srv: srv, store: st}
}

// client returns a browser-like client that keeps cookies and does not
// follow redirects.
func (a *testApp) client(t *testing.T) *http.Client {
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

type result struct {
	status   int
	location string
	body     string
	header   http.Header
}

func (a *testApp) do(t *testing.T, c *http.Client, req *http.Request) result {
	t.Helper()
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return result{
		status:   resp.StatusCode,
		location: resp.Header.Get("Location"),
		body:     string(body),
		header:   resp.Header,
	}
}

func (a *testApp) get(t *testing.T, c *http.Client, path string) result {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, a.srv.URL+path, nil)
	require.NoError(t, err)
	return a.do(t, c, req)
}

func (a *testApp) post(t *testing.T, c *http.Client, path string, form url.Values) result {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(t, c, req)
}

func (a *testApp) postXHR(t *testing.T, c *http.Client, path string) result {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.srv.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	return a.do(t, c, req)
}

func registration(nickname string) url.Values {
	return url.Values{
		"nickname":      {nickname},
		"email":         {nickname + "@example.com"},
		"first_name":    {"Test"},
		"last_name":     {"User"},
		"date_of_birth": {"1990-05-01"},
		"password1":     {testPassword},
		"password2":     {testPassword},
	}
}

// signUp registers nickname and returns a client holding its session.
func (a *testApp) signUp(t *testing.T, nickname string) (*http.Client, *models.User) {
	t.Helper()
	c := a.client(t)
	res := a.post(t, c, "/register/", registration(nickname))
	require.Equal(t, http.StatusSeeOther, res.status, res.body)
	u, err := a.store.UserByNickname(context.Background(), nickname)
	require.NoError(t, err)
	return c, u
}

func TestRegisterLoginLogout(t *testing.T) {
	app := newTestApp(t)
	c, _ := app.signUp(t, "alice")

	home := app.get(t, c, "/")
	assert.Equal(t, http.StatusOK, home.status)
	assert.Contains(t, home.body, "Registration successful")
	assert.Contains(t, home.body, "/profile/alice/")

	// the flash is shown once
	assert.NotContains(t, app.get(t, c, "/").body, "Registration successful")

	out := app.get(t, c, "/logout/")
	assert.Equal(t, http.StatusSeeOther, out.status)
	assert.Equal(t, "/", out.location)
	home = app.get(t, c, "/")
	assert.Contains(t, home.body, "You have been logged out.")
	assert.NotContains(t, home.body, "/profile/alice/")

	bad := app.post(t, c, "/login/", url.Values{"nickname": {"alice"}, "password": {"wrong-password"}})
	assert.Equal(t, http.StatusOK, bad.status)
	assert.Contains(t, bad.body, forms.MsgBadLogin)

	// an unknown nickname is reported exactly like a wrong password
	unknown := app.post(t, c, "/login/", url.Values{"nickname": {"nobody"}, "password": {testPassword}})
	assert.Equal(t, http.StatusOK, unknown.status)
	assert.Contains(t, unknown.body, forms.MsgBadLogin)
	assert.NotContains(t, unknown.body, "/profile/nobody/")

	ok := app.post(t, c, "/login/", url.Values{
		"nickname": {"alice"},
		"password": {testPassword},
		"next":     {"/category/create/"},
	})
	assert.Equal(t, http.StatusSeeOther, ok.status)
	assert.Equal(t, "/category/create/", ok.location)
	assert.Equal(t, http.StatusOK, app.get(t, c, "/category/create/").status)
}

func TestLoginIgnoresForeignNext(t *testing.T) {
	app := newTestApp(t)
	app.signUp(t, "alice")

	c := app.client(t)
	res := app.post(t, c, "/login/", url.Values{
		"nickname": {"alice"},
		"password": {testPassword},
		"next":     {"//evil.example.com/"},
	})
	assert.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/", res.location)
}

func TestLoginDropsOtherSessions(t *testing.T) {
	app := newTestApp(t)
	first, _ := app.signUp(t, "alice")

	second := app.client(t)
	res := app.post(t, second, "/login/", url.Values{"nickname": {"alice"}, "password": {testPassword}})
	require.Equal(t, http.StatusSeeOther, res.status)

	assert.Contains(t, app.get(t, second, "/").body, "/profile/alice/")
	assert.NotContains(t, app.get(t, first, "/").body, "/profile/alice/")
}

func TestRegisterRejectsTakenNickname(t *testing.T) {
	app := newTestApp(t)
	app.signUp(t, "alice")

	before, err := app.store.Counts(context.Background())
	require.NoError(t, err)

	res := app.post(t, app.client(t), "/register/", registration("alice"))
	assert.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, forms.MsgNicknameTaken)

	after, err := app.store.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before.Users, after.Users)
}

func TestRegisterRejectsOverlongPassword(t *testing.T) {
	app := newTestApp(t)
	long := strings.Repeat("p4ss", 20)
	form := registration("alice")
	form.Set("password1", long)
	form.Set("password2", long)

	res := app.post(t, app.client(t), "/register/", form)
	assert.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, forms.MsgPasswordLong)

	_, err := app.store.UserByNickname(context.Background(), "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLoginRequired(t *testing.T) {
	app := newTestApp(t)
	c := app.client(t)

	for _, path := range []string{"/category/create/", "/profile/edit/", "/profile/alice/"} {
		res := app.get(t, c, path)
		assert.Equal(t, http.StatusSeeOther, res.status, path)
		assert.Equal(t, "/login/?next="+url.QueryEscape(path), res.location, path)
	}

	xhr := app.postXHR(t, c, "/post/1/like/")
	assert.Equal(t, http.StatusUnauthorized, xhr.status)
	assert.Contains(t, xhr.header.Get("Content-Type"), "application/json")
}

func TestCategoryPostCommentFlow(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	c, alice := app.signUp(t, "alice")

	res := app.post(t, c, "/category/create/", url.Values{"name": {"Go"}, "description": {"Gophers"}})
	require.Equal(t, http.StatusSeeOther, res.status, res.body)
	assert.Equal(t, "/", res.location)

	cats, err := app.store.CategoriesBy(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	catPath := fmt.Sprintf("/category/%d/", cats[0].ID)

	res = app.post(t, c, catPath, url.Values{"text": {""}})
	assert.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, forms.MsgRequired)

	res = app.post(t, c, catPath, url.Values{"text": {"hello gophers"}})
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, catPath, res.location)
	assert.Contains(t, app.get(t, c, catPath).body, "hello gophers")

	posts, err := app.store.PostsInCategory(ctx, cats[0].ID, 0)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	postPath := fmt.Sprintf("/post/%d/", posts[0].ID)

	res = app.post(t, c, postPath, url.Values{"text": {"first!"}})
	require.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, postPath, res.location)

	page := app.get(t, app.client(t), postPath)
	assert.Equal(t, http.StatusOK, page.status)
	assert.Contains(t, page.body, "hello gophers")
	assert.Contains(t, page.body, "first!")
}

func TestAnonymousCannotPost(t *testing.T) {
	app := newTestApp(t)
	_, alice := app.signUp(t, "alice")
	cat := &models.Category{Name: "Go", Description: "Gophers", CreatedByID: alice.ID}
	require.NoError(t, app.store.CreateCategory(context.Background(), cat))

	path := fmt.Sprintf("/category/%d/", cat.ID)
	res := app.post(t, app.client(t), path, url.Values{"text": {"drive-by"}})
	assert.Equal(t, http.StatusSeeOther, res.status)
	assert.True(t, strings.HasPrefix(res.location, "/login/?next="))
}

type likeJSON struct {
	Liked      bool  `json:"liked"`
	TotalLikes int64 `json:"total_likes"`
}

func TestTogglePostLike(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	c, alice := app.signUp(t, "alice")

	cat := &models.Category{Name: "Go", Description: "Gophers", CreatedByID: alice.ID}
	require.NoError(t, app.store.CreateCategory(ctx, cat))
	post := &models.Post{CategoryID: cat.ID, AuthorID: alice.ID, Text: "likeable"}
	require.NoError(t, app.store.CreatePost(ctx, post))
	path := fmt.Sprintf("/post/%d/like/", post.ID)

	res := app.postXHR(t, c, path)
	require.Equal(t, http.StatusOK, res.status)
	var got likeJSON
	require.NoError(t, json.Unmarshal([]byte(res.body), &got))
	assert.Equal(t, likeJSON{Liked: true, TotalLikes: 1}, got)

	res = app.postXHR(t, c, path)
	require.NoError(t, json.Unmarshal([]byte(res.body), &got))
	assert.Equal(t, likeJSON{Liked: false, TotalLikes: 0}, got)

	// a plain form submit lands back on the post
	res = app.post(t, c, path, url.Values{})
	assert.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, fmt.Sprintf("/post/%d/", post.ID), res.location)

	assert.Equal(t, http.StatusNotFound, app.postXHR(t, c, "/post/9999/like/").status)
}

func TestToggleCommentLike(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	c, alice := app.signUp(t, "alice")

	cat := &models.Category{Name: "Go", Description: "Gophers", CreatedByID: alice.ID}
	require.NoError(t, app.store.CreateCategory(ctx, cat))
	post := &models.Post{CategoryID: cat.ID, AuthorID: alice.ID, Text: "post"}
	require.NoError(t, app.store.CreatePost(ctx, post))
	cm := &models.Comment{PostID: post.ID, AuthorID: alice.ID, Text: "comment"}
	require.NoError(t, app.store.CreateComment(ctx, cm))

	res := app.postXHR(t, c, fmt.Sprintf("/comment/%d/like/", cm.ID))
	require.Equal(t, http.StatusOK, res.status)
	var got likeJSON
	require.NoError(t, json.Unmarshal([]byte(res.body), &got))
	assert.Equal(t, likeJSON{Liked: true, TotalLikes: 1}, got)
}

func TestDeleteIsOwnerOnly(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	aliceC, alice := app.signUp(t, "alice")
	bobC, _ := app.signUp(t, "bob")

	cat := &models.Category{Name: "Go", Description: "Gophers", CreatedByID: alice.ID}
	require.NoError(t, app.store.CreateCategory(ctx, cat))
	post := &models.Post{CategoryID: cat.ID, AuthorID: alice.ID, Text: "mine"}
	require.NoError(t, app.store.CreatePost(ctx, post))
	cm := &models.Comment{PostID: post.ID, AuthorID: alice.ID, Text: "also mine"}
	require.NoError(t, app.store.CreateComment(ctx, cm))

	res := app.post(t, bobC, fmt.Sprintf("/comment/%d/delete/", cm.ID), nil)
	assert.Equal(t, fmt.Sprintf("/post/%d/", post.ID), res.location)
	res = app.post(t, bobC, fmt.Sprintf("/post/%d/delete/", post.ID), nil)
	assert.Equal(t, fmt.Sprintf("/category/%d/", cat.ID), res.location)
	res = app.post(t, bobC, fmt.Sprintf("/category/%d/delete/", cat.ID), nil)
	assert.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/", res.location)

	home := app.get(t, bobC, "/")
	assert.Contains(t, home.body, "You can only delete your own comments.")
	assert.Contains(t, home.body, "You can only delete your own posts.")
	assert.Contains(t, home.body, "You can only delete your own categories.")

	_, err := app.store.CommentByID(ctx, cm.ID)
	assert.NoError(t, err)
	_, err = app.store.CategoryByID(ctx, cat.ID)
	assert.NoError(t, err)

	res = app.post(t, aliceC, fmt.Sprintf("/category/%d/delete/", cat.ID), nil)
	assert.Equal(t, "/", res.location)
	_, err = app.store.CategoryByID(ctx, cat.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = app.store.CommentByID(ctx, cm.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.Equal(t, http.StatusNotFound, app.post(t, aliceC, fmt.Sprintf("/post/%d/delete/", post.ID), nil).status)
}

func TestNotFound(t *testing.T) {
	app := newTestApp(t)
	c := app.client(t)

	for _, path := range []string{"/post/abc/", "/post/9999/", "/category/9999/", "/no/such/page/"} {
		res := app.get(t, c, path)
		assert.Equal(t, http.StatusNotFound, res.status, path)
		assert.Contains(t, res.body, "Page not found", path)
	}
}

func TestAdminIsStaffOnly(t *testing.T) {
	app := newTestApp(t)
	c, _ := app.signUp(t, "alice")

	assert.Equal(t, http.StatusNotFound, app.get(t, app.client(t), "/admin/").status)
	assert.Equal(t, http.StatusNotFound, app.get(t, c, "/admin/").status)

	require.NoError(t, app.store.SetStaff(context.Background(), "alice", true))
	for _, path := range []string{"/admin/", "/admin/users/", "/admin/categories/", "/admin/posts/", "/admin/comments/"} {
		res := app.get(t, c, path)
		assert.Equal(t, http.StatusOK, res.status, path)
	}

	users := app.get(t, c, "/admin/users/?q=ali")
	assert.Contains(t, users.body, "alice")
}

func TestEditProfile(t *testing.T) {
	app := newTestApp(t)
	c, _ := app.signUp(t, "alice")

	res := app.post(t, c, "/profile/edit/", url.Values{
		"nickname":      {"alicia"},
		"first_name":    {"Alicia"},
		"last_name":     {"Liddell"},
		"date_of_birth": {"1991-02-03"},
	})
	require.Equal(t, http.StatusSeeOther, res.status, res.body)
	assert.Equal(t, "/profile/alicia/", res.location)

	u, err := app.store.UserByNickname(context.Background(), "alicia")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", u.FirstName)

	app.signUp(t, "bob")
	res = app.post(t, c, "/profile/edit/", url.Values{"nickname": {"bob"}})
	assert.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, forms.MsgNicknameTaken)
}

func TestMediaHidesDirectories(t *testing.T) {
	app := newTestApp(t)
	c := app.client(t)

	assert.Equal(t, http.StatusOK, app.get(t, c, "/media/avatars/default.png").status)
	for _, path := range []string{"/media/", "/media/avatars/", "/media/category_icons/"} {
		res := app.get(t, c, path)
		assert.Equal(t, http.StatusNotFound, res.status, path)
		assert.NotContains(t, res.body, "default.png", path)
	}
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t)
	res := app.get(t, app.client(t), "/healthz")
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "ok", res.body)
}

func TestToggleTheme(t *testing.T) {
	app := newTestApp(t)
	c := app.client(t)

	req, err := http.NewRequest(http.MethodGet, app.srv.URL+"/toggle-theme", nil)
	require.NoError(t, err)
	req.Header.Set("Referer", app.srv.URL+"/post/1/")
	res := app.do(t, c, req)
	assert.Equal(t, http.StatusSeeOther, res.status)
	assert.Equal(t, "/post/1/", res.location)

	assert.Contains(t, app.get(t, c, "/").body, `data-theme="dark"`)
	app.get(t, c, "/toggle-theme")
	assert.Contains(t, app.get(t, c, "/").body, `data-theme="light"`)
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t)
	c := app.client(t)
	app.get(t, c, "/")

	res := app.get(t, c, "/metrics")
	assert.Equal(t, http.StatusOK, res.status)
	assert.Contains(t, res.body, "forum_http_requests_total")
}

func TestSafeNext(t *testing.T) {
	cases := map[string]string{
		"":                  "/",
		"/post/1/":          "/post/1/",
		"https://evil.com/": "/",
		"//evil.com":        "/",
		`/\evil.com`:        "/",
	}
	for in, want := range cases {
		assert.Equal(t, want, safeNext(in), in)
	}
}
