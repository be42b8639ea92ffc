package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv, AppPort, BaseURL string
	DBDSN                    string
	RedisAddr                string
	RedisDB                  int

	SessionCookieName   string
	SessionCookieSecret string
	SessionTTL          time.Duration

	GoogleClientID, GoogleClientSecret, GoogleRedirectURL string
	GoogleDiscoveryURL                                    string
	IdPTimeout                                            time.Duration

	CORSOrigins []string

	AvatarDir   string
	AvatarMaxW  int
	AvatarRPS   int
	AvatarBurst int
}

func Load() *Config {
	_ = godotenv.Load()

	c := &Config{
		AppEnv:              get("APP_ENV", "dev"),
		AppPort:             get("APP_PORT", "8080"),
		BaseURL:             get("APP_BASE_URL", "http://localhost:8080"),
		DBDSN:               must("DB_DSN"),
		RedisAddr:           get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisDB:             atoi(get("REDIS_DB", "0")),
		SessionCookieName:   get("SESSION_COOKIE_NAME", "panda_sid"),
		SessionCookieSecret: must("SESSION_COOKIE_SECRET"),
		SessionTTL:          mustDuration(get("SESSION_TTL", "168h")),
		GoogleClientID:      must("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:  must("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:   ForceHTTPS(must("GOOGLE_REDIRECT_URL")),
		GoogleDiscoveryURL:  get("GOOGLE_DISCOVERY_URL", "https://accounts.google.com/.well-known/openid-configuration"),
		IdPTimeout:          mustDuration(get("IDP_TIMEOUT", "5s")),
		CORSOrigins:         split(get("CORS_ORIGINS", "http://localhost:5173")),
		AvatarDir:           get("AVATAR_DIR", "./storage/avatars"),
		AvatarMaxW:          atoi(get("AVATAR_MAX_W", "128")),
		AvatarRPS:           atoi(get("AVATAR_RPS", "2")),
		AvatarBurst:         atoi(get("AVATAR_BURST", "2")),
	}
	return c
}

// ForceHTTPS rewrites the scheme of the callback URL to https. Google only
// issues codes for https redirect URIs, so the registered URL must use it
// even when the service itself runs behind plain http in development.
func ForceHTTPS(u string) string {
	if strings.HasPrefix(u, "http://") {
		return "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func get(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing env %s", k)
	}
	return v
}

func atoi(s string) int { i, _ := strconv.Atoi(s); return i }

func mustDuration(s string) time.Duration { d, _ := time.ParseDuration(s); return d }

func split(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func GetEnv(k, d string) string {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	return v
}
