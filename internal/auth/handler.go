package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/emandor/pandauth_service/internal/config"
	"github.com/emandor/pandauth_service/internal/middleware"
	"github.com/emandor/pandauth_service/internal/model"
	"github.com/emandor/pandauth_service/internal/oidc"
	"github.com/emandor/pandauth_service/internal/telemetry"
	"github.com/emandor/pandauth_service/internal/user"
)

const stateCookie = "oauth_state"

type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
}

type SessionStore interface {
	Create(ctx context.Context, userID, ip, userAgent string) (string, error)
	UserID(ctx context.Context, sid string) (string, error)
	Destroy(ctx context.Context, sid string) error
	Sign(sid string) string
	Verify(cookie string) (string, bool)
	TTL() time.Duration
}

type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Userinfo(ctx context.Context, accessToken string) (*oidc.Profile, error)
}

type AvatarCache interface {
	Thumb(ctx context.Context, pictureURL string) (string, error)
}

type Registry struct {
	cfg      *config.Config
	idp      IdentityProvider
	users    UserStore
	sessions SessionStore
	avatars  AvatarCache
}

func NewRegistry(cfg *config.Config, idp IdentityProvider, users UserStore, sessions SessionStore, avatars AvatarCache) *Registry {
	return &Registry{cfg: cfg, idp: idp, users: users, sessions: sessions, avatars: avatars}
}

// Login starts the authorization-code flow: remember a state nonce and send
// the browser to the provider's authorization endpoint.
func (r *Registry) Login(c *fiber.Ctx) error {
	log := telemetry.L()
	if rid, ok := c.Locals(middleware.ReqIDKey).(string); ok {
		log = log.With().Str("req_id", rid).Logger()
	}
	log.Info().Msg("login_redirect")

	state := randomHex(16)
	c.Cookie(&fiber.Cookie{Name: stateCookie, Value: state, HTTPOnly: true, SameSite: "Lax"})
	return c.Redirect(r.idp.AuthCodeURL(state), fiber.StatusFound)
}

// Callback completes the flow. Every failure mode lands the browser back on
// the home page logged out; only the logs tell the difference.
func (r *Registry) Callback(c *fiber.Ctx) error {
	log := telemetry.L()
	if rid, ok := c.Locals(middleware.ReqIDKey).(string); ok {
		log = log.With().Str("req_id", rid).Logger()
	}

	code := c.Query("code")
	if code == "" {
		// user denied consent or the provider errored; not a failure
		log.Info().Msg("callback_no_code")
		return c.Redirect("/", fiber.StatusFound)
	}

	state := c.Cookies(stateCookie)
	c.ClearCookie(stateCookie)
	if state == "" || state != c.Query("state") {
		log.Warn().Msg("oauth_state_mismatch")
		return c.Redirect("/", fiber.StatusFound)
	}

	ctx := c.Context()
	tok, err := r.idp.Exchange(ctx, code)
	if err != nil {
		log.Error().Err(err).Msg("oauth_exchange_failed")
		return c.Redirect("/", fiber.StatusFound)
	}

	prof, err := r.idp.Userinfo(ctx, tok.AccessToken)
	if err != nil {
		log.Error().Err(err).Msg("userinfo_failed")
		return c.Redirect("/", fiber.StatusFound)
	}

	u, err := r.resolveUser(ctx, prof, log)
	if err != nil {
		return c.Redirect("/", fiber.StatusFound)
	}

	sid, err := r.sessions.Create(ctx, u.ID, c.IP(), string(c.Request().Header.UserAgent()))
	if err != nil {
		log.Error().Err(err).Str("user_id", u.ID).Msg("session_create_failed")
		return c.Redirect("/", fiber.StatusFound)
	}
	c.Cookie(&fiber.Cookie{
		Name: r.cfg.SessionCookieName, Value: r.sessions.Sign(sid),
		HTTPOnly: true, SameSite: "Lax", MaxAge: int(r.sessions.TTL().Seconds()),
	})

	log.Info().Str("user_id", u.ID).Str("email", u.Email).Msg("login_ok")
	return c.Redirect("/", fiber.StatusFound)
}

// resolveUser finds the user for the subject, creating it on first login.
// Existing rows are left untouched: name and picture are never refreshed.
func (r *Registry) resolveUser(ctx context.Context, prof *oidc.Profile, log zerolog.Logger) (*model.User, error) {
	u, err := r.users.FindByID(ctx, prof.Sub)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, user.ErrNotFound) {
		log.Error().Err(err).Str("sub", prof.Sub).Msg("user_lookup_failed")
		return nil, err
	}

	nu := &model.User{
		ID:         prof.Sub,
		Email:      prof.Email,
		Name:       prof.DisplayName(),
		Picture:    prof.Picture,
		Registered: time.Now(),
	}
	switch cerr := r.users.Create(ctx, nu); {
	case cerr == nil:
		log.Info().Str("user_id", nu.ID).Msg("user_created")
		return nu, nil
	case errors.Is(cerr, user.ErrExists):
		// lost a concurrent first-login race; the other insert won
		u, err = r.users.FindByID(ctx, prof.Sub)
		if err != nil {
			log.Error().Err(err).Str("sub", prof.Sub).Msg("user_refetch_failed")
			return nil, err
		}
		return u, nil
	default:
		log.Error().Err(cerr).Str("sub", prof.Sub).Msg("user_create_failed")
		return nil, cerr
	}
}

// Logout tears down the local session only; nothing touches the users table.
func (r *Registry) Logout(c *fiber.Ctx) error {
	if sid, ok := r.sessions.Verify(c.Cookies(r.cfg.SessionCookieName)); ok {
		_ = r.sessions.Destroy(c.Context(), sid)
	}
	c.ClearCookie(r.cfg.SessionCookieName)
	return c.Redirect("/", fiber.StatusFound)
}

// Home reports authentication state without gating the route.
func (r *Registry) Home(c *fiber.Ctx) error {
	if sid, ok := r.sessions.Verify(c.Cookies(r.cfg.SessionCookieName)); ok {
		if uid, err := r.sessions.UserID(c.Context(), sid); err == nil {
			if u, err := r.users.FindByID(c.Context(), uid); err == nil {
				return c.JSON(fiber.Map{"authenticated": true, "user": u})
			}
		}
	}
	return c.JSON(fiber.Map{"authenticated": false})
}

// Me returns the session's user, resolved by the auth middleware.
func (r *Registry) Me(c *fiber.Ctx) error {
	u, ok := c.Locals(middleware.UserKey).(*model.User)
	if !ok {
		return c.Status(401).SendString("unauthorized")
	}
	return c.JSON(u)
}

// Avatar serves a cached thumbnail of the user's provider picture.
func (r *Registry) Avatar(c *fiber.Ctx) error {
	u, ok := c.Locals(middleware.UserKey).(*model.User)
	if !ok {
		return c.Status(401).SendString("unauthorized")
	}
	if u.Picture == "" {
		return c.Status(404).SendString("no avatar")
	}
	path, err := r.avatars.Thumb(c.Context(), u.Picture)
	if err != nil {
		log := telemetry.L()
		log.Error().Err(err).Str("user_id", u.ID).Msg("avatar_fetch_failed")
		return c.Status(502).SendString("avatar fetch failed")
	}
	return c.SendFile(path)
}

func randomHex(n int) string { b := make([]byte, n); rand.Read(b); return hex.EncodeToString(b) }
