package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/emandor/pandauth_service/internal/model"
)

const (
	UserKey   = "user"
	UserIDKey = "userID"
)

type SessionResolver interface {
	Verify(cookie string) (string, bool)
	UserID(ctx context.Context, sid string) (string, error)
}

type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// AuthSession gates a route on a valid signed session cookie. It resolves
// the session to a user row and stashes both in the request locals; anything
// short of that sends the browser to the login entry point.
func AuthSession(cookieName string, sessions SessionResolver, users UserFinder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cookie := c.Cookies(cookieName)
		if cookie == "" {
			return c.Redirect("/login", fiber.StatusFound)
		}
		sid, ok := sessions.Verify(cookie)
		if !ok {
			return c.Redirect("/login", fiber.StatusFound)
		}
		uid, err := sessions.UserID(c.Context(), sid)
		if err != nil {
			return c.Redirect("/login", fiber.StatusFound)
		}
		u, err := users.FindByID(c.Context(), uid)
		if err != nil {
			return c.Redirect("/login", fiber.StatusFound)
		}
		c.Locals(UserIDKey, u.ID)
		c.Locals(UserKey, u)
		return c.Next()
	}
}
