package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/choreboard/choreboard/internal/identity"
)

const proofKeyPrefix = "session:proof:"

var errProofSpent = errors.New("session: proof already redeemed or never minted")

// proofMinter implements the internal half of the PIN-to-session bridge.
// A proof is a short-lived HS256 token whose jti is parked in Redis; redeeming
// it consumes the jti atomically, so a proof converts into a session at most
// once. Neither mint nor redeem is reachable from outside this package.
type proofMinter struct {
	client *redis.Client
	secret []byte
	ttl    time.Duration
}

func newProofMinter(client *redis.Client, secret []byte, ttl time.Duration) *proofMinter {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &proofMinter{client: client, secret: secret, ttl: ttl}
}

func (p *proofMinter) mint(ctx context.Context, principal *identity.Principal) (string, error) {
	jti := uuid.NewString()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(principal.ID, 10),
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
	})
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("session: sign proof: %w", err)
	}
	ok, err := p.client.SetNX(ctx, proofKeyPrefix+jti, principal.ID, p.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("session: park proof: %w", err)
	}
	if !ok {
		return "", errors.New("session: proof id collision")
	}
	return signed, nil
}

func (p *proofMinter) redeem(ctx context.Context, signed string) (int64, error) {
	token, err := jwt.ParseWithClaims(signed, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("session: unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return 0, fmt.Errorf("session: parse proof: %w", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.ID == "" {
		return 0, errors.New("session: proof missing jti")
	}

	// GetDel consumes the jti: a second redeem of the same proof fails here.
	stored, err := p.client.GetDel(ctx, proofKeyPrefix+claims.ID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, errProofSpent
		}
		return 0, fmt.Errorf("session: consume proof: %w", err)
	}

	subject, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("session: proof subject: %w", err)
	}
	if stored != claims.Subject {
		return 0, errors.New("session: proof subject mismatch")
	}
	return subject, nil
}
