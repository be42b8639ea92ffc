package main

import (
	"flag"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/emandor/pandauth_service/internal/auth"
	"github.com/emandor/pandauth_service/internal/avatar"
	"github.com/emandor/pandauth_service/internal/cache"
	"github.com/emandor/pandauth_service/internal/config"
	"github.com/emandor/pandauth_service/internal/db"
	"github.com/emandor/pandauth_service/internal/middleware"
	"github.com/emandor/pandauth_service/internal/oidc"
	"github.com/emandor/pandauth_service/internal/session"
	"github.com/emandor/pandauth_service/internal/telemetry"
	"github.com/emandor/pandauth_service/internal/user"
)

func main() {
	doMigrate := flag.Bool("migrate", false, "run migrations and exit")
	flag.Parse()

	cfg := config.Load()
	sqlxDB := db.MustConnect(cfg.DBDSN)
	rdb := cache.MustConnect(cfg.RedisAddr, cfg.RedisDB)

	tlog := telemetry.Init(telemetry.FromEnv(config.GetEnv))
	tlog.Info().Str("port", cfg.AppPort).Msg("booting pandauth_service")

	if *doMigrate {
		db.MustMigrate(sqlxDB)
		log.Println("migrations done")
		return
	}

	disc := oidc.LoadDiscovery(cfg.GoogleDiscoveryURL, cfg.IdPTimeout)
	idp := oidc.NewProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, disc, cfg.IdPTimeout)

	users := user.NewStore(sqlxDB)
	sessions := session.NewStore(rdb, sqlxDB, cfg.SessionCookieSecret, cfg.SessionTTL)
	avatars := avatar.NewService(cfg.AvatarDir, cfg.AvatarMaxW, cfg.AvatarRPS, cfg.AvatarBurst)

	app := fiber.New()

	app.Use(middleware.RateLimiter())
	app.Use(middleware.RequestID())
	app.Use(middleware.Recover())
	app.Use(middleware.SecureHeaders())
	app.Use(middleware.CORS(cfg))
	app.Use(middleware.RequestLog())

	authReg := auth.NewRegistry(cfg, idp, users, sessions, avatars)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/", authReg.Home)
	app.Get("/login", authReg.Login)
	app.Get("/login/callback", authReg.Callback)

	protected := app.Group("/", middleware.AuthSession(cfg.SessionCookieName, sessions, users))
	protected.Get("/logout", authReg.Logout)
	protected.Get("/me", authReg.Me)
	protected.Get("/me/avatar", authReg.Avatar)

	log.Fatal(app.Listen(":" + cfg.AppPort))
}
