package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/emandor/pandauth_service/internal/telemetry"
)

var ErrNoSession = errors.New("session not found")

// Store keeps live sessions in redis under sess:<sid> with a TTL and writes
// a login audit row per session. Cookie values are signed with the
// process-wide cookie secret so a forged sid is rejected before the redis
// lookup.
type Store struct {
	rdb    *redis.Client
	db     *sqlx.DB
	secret []byte
	ttl    time.Duration
}

// NewStore creates a session store. db may be nil; the audit trail is then
// skipped (tests).
func NewStore(rdb *redis.Client, db *sqlx.DB, secret string, ttl time.Duration) *Store {
	return &Store{rdb: rdb, db: db, secret: []byte(secret), ttl: ttl}
}

func (s *Store) TTL() time.Duration { return s.ttl }

// Create establishes a session for userID and returns the session id.
func (s *Store) Create(ctx context.Context, userID, ip, userAgent string) (string, error) {
	sid := randomHex(16)
	if err := s.rdb.Set(ctx, "sess:"+sid, userID, s.ttl).Err(); err != nil {
		return "", err
	}
	if s.db != nil {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO user_sessions(id, user_id, ip, user_agent) VALUES(?, ?, ?, ?)`,
			sid, userID, ip, userAgent)
		if err != nil {
			log := telemetry.L().With().Str("user_id", userID).Str("session_id", sid).Logger()
			log.Error().Err(err).Msg("session_audit_failed")
		}
	}
	return sid, nil
}

// UserID resolves a session id to the user it belongs to.
func (s *Store) UserID(ctx context.Context, sid string) (string, error) {
	val, err := s.rdb.Get(ctx, "sess:"+sid).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *Store) Destroy(ctx context.Context, sid string) error {
	return s.rdb.Del(ctx, "sess:"+sid).Err()
}

// Sign returns the cookie value for sid: sid.hex(hmac-sha256(sid)).
func (s *Store) Sign(sid string) string {
	return sid + "." + s.mac(sid)
}

// Verify splits and checks a cookie value, returning the embedded sid.
func (s *Store) Verify(cookie string) (string, bool) {
	sid, sig, ok := strings.Cut(cookie, ".")
	if !ok || sid == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(s.mac(sid))) {
		return "", false
	}
	return sid, true
}

func (s *Store) mac(sid string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(sid))
	return hex.EncodeToString(h.Sum(nil))
}

func randomHex(n int) string { b := make([]byte, n); rand.Read(b); return hex.EncodeToString(b) }
