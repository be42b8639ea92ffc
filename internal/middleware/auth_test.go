package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emandor/pandauth_service/internal/model"
)

type stubSessions struct {
	sid    string
	userID string
}

func (s *stubSessions) Verify(cookie string) (string, bool) {
	if cookie == "signed:"+s.sid {
		return s.sid, true
	}
	return "", false
}

func (s *stubSessions) UserID(_ context.Context, sid string) (string, error) {
	if sid == s.sid {
		return s.userID, nil
	}
	return "", errors.New("no session")
}

type stubUsers struct {
	user *model.User
}

func (s *stubUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	if s.user != nil && s.user.ID == id {
		return s.user, nil
	}
	return nil, errors.New("not found")
}

func newGatedApp(sessions SessionResolver, users UserFinder) *fiber.App {
	app := fiber.New()
	app.Get("/secret", AuthSession("sid", sessions, users), func(c *fiber.Ctx) error {
		u := c.Locals(UserKey).(*model.User)
		return c.SendString("hello " + u.Name)
	})
	return app
}

func TestAuthSessionNoCookie(t *testing.T) {
	app := newGatedApp(&stubSessions{}, &stubUsers{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/secret", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestAuthSessionBadSignature(t *testing.T) {
	app := newGatedApp(&stubSessions{sid: "s1", userID: "u1"}, &stubUsers{})

	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "signed:other"})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestAuthSessionUserGone(t *testing.T) {
	app := newGatedApp(&stubSessions{sid: "s1", userID: "u1"}, &stubUsers{})

	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "signed:s1"})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestAuthSessionResolvesUser(t *testing.T) {
	users := &stubUsers{user: &model.User{ID: "u1", Name: "Ann"}}
	app := newGatedApp(&stubSessions{sid: "s1", userID: "u1"}, users)

	req := httptest.NewRequest(http.MethodGet, "/secret", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "signed:s1"})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
