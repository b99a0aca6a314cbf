// Package session issues and resolves the uniform session artifact shared by
// the password and PIN login paths. A session is an opaque cookie token that
// resolves, through Redis, to a claims payload carrying the principal's
// identity and role. The role is written into the claims at issuance time so
// authorization predicates never have to query the principals table.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/choreboard/choreboard/internal/identity"
)

const keyPrefix = "session:"

// Claims is the identity payload a session resolves to.
type Claims struct {
	PrincipalID int64         `json:"principal_id"`
	Name        string        `json:"name"`
	Email       string        `json:"email"`
	Role        identity.Role `json:"role"`
	IssuedAt    time.Time     `json:"issued_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
}

// Session pairs the opaque token with its resolved claims.
type Session struct {
	ID     string
	Claims Claims
}

// Manager stores sessions in Redis and resolves cookies back to claims.
// Every resolution goes to Redis: a cookie is never trusted on its own, so
// revocation and expiry are observed on the next request.
type Manager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	notifier   *Notifier
	group      singleflight.Group
}

// NewManager constructs a Manager. The notifier may be nil when no consumer
// subscribes to session change events.
func NewManager(client *redis.Client, cookieName string, ttl time.Duration, secure bool, notifier *Notifier) *Manager {
	return &Manager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		notifier:   notifier,
	}
}

// Resolve extracts the session cookie from the request and revalidates it
// against Redis. A missing cookie or unknown/expired token yields (nil, nil);
// only infrastructure failures return an error. Concurrent resolutions of the
// same token are collapsed into one Redis round trip.
func (m *Manager) Resolve(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, nil
		}
		return nil, err
	}
	return m.ResolveToken(ctx, cookie.Value)
}

// ResolveToken revalidates a bare token against Redis.
func (m *Manager) ResolveToken(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, nil
	}
	v, err, _ := m.group.Do(token, func() (any, error) {
		payload, err := m.client.Get(ctx, keyPrefix+token).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return (*Session)(nil), nil
			}
			return nil, err
		}
		var claims Claims
		if err := json.Unmarshal(payload, &claims); err != nil {
			return nil, err
		}
		return &Session{ID: token, Claims: claims}, nil
	})
	if err != nil {
		return nil, err
	}
	sess, _ := v.(*Session)
	if sess == nil {
		return nil, nil
	}
	if !sess.Claims.ExpiresAt.IsZero() && time.Now().After(sess.Claims.ExpiresAt) {
		return nil, nil
	}
	return sess, nil
}

// issue persists new claims under a fresh opaque token.
func (m *Manager) issue(ctx context.Context, claims Claims) (*Session, error) {
	data, err := json.Marshal(claims)
	if err != nil {
		return nil, err
	}
	token := newToken()
	if err := m.client.Set(ctx, keyPrefix+token, data, m.ttl).Err(); err != nil {
		return nil, err
	}
	sess := &Session{ID: token, Claims: claims}
	m.notifier.publish(Change{Kind: SignedIn, SessionID: token, PrincipalID: claims.PrincipalID})
	return sess, nil
}

// Destroy revokes a session token.
func (m *Manager) Destroy(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}
	if err := m.client.Del(ctx, keyPrefix+sess.ID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	m.notifier.publish(Change{Kind: SignedOut, SessionID: sess.ID, PrincipalID: sess.Claims.PrincipalID})
	return nil
}

// ActiveCount scans Redis for live sessions. Used once at startup to prime
// the active-sessions gauge before change notifications become authoritative.
func (m *Manager) ActiveCount(ctx context.Context) (int64, error) {
	var cursor uint64
	var total int64
	for {
		keys, next, err := m.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return 0, err
		}
		total += int64(len(keys))
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

// WriteCookie attaches the session cookie to the response.
func (m *Manager) WriteCookie(w http.ResponseWriter, sess *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  sess.Claims.ExpiresAt,
	})
}

// ClearCookie expires the session cookie on the client.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// TTL exposes the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (m *Manager) CookieName() string {
	return m.cookieName
}

func newToken() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
