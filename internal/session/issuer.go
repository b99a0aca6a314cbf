package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/choreboard/choreboard/internal/identity"
	"github.com/choreboard/choreboard/internal/shared"
)

// AuditRecorder persists a durable record of session issuance and revocation,
// independent of the Redis-backed live store.
type AuditRecorder interface {
	RecordSession(ctx context.Context, id string, principalID int64, expiresAt time.Time, ip, ua string) error
	RemoveSession(ctx context.Context, id string) error
}

// Meta carries request attributes recorded alongside an issued session.
type Meta struct {
	IP        string
	UserAgent string
}

// Issuer converts a positively verified credential into a session. Both login
// paths converge here and produce the same artifact, so refresh, expiry and
// revocation behave identically regardless of how the principal signed in.
//
// Credential verification never happens in this component: callers only reach
// it after the identity service returned a principal.
type Issuer struct {
	manager *Manager
	proofs  *proofMinter
	audit   AuditRecorder
	logger  *slog.Logger
}

// NewIssuer constructs an Issuer. The proof secret signs the single-use
// bridging tokens for the PIN path. audit may be nil in tests.
func NewIssuer(manager *Manager, proofSecret string, proofTTL time.Duration, audit AuditRecorder, logger *slog.Logger) *Issuer {
	return &Issuer{
		manager: manager,
		proofs:  newProofMinter(manager.client, []byte(proofSecret), proofTTL),
		audit:   audit,
		logger:  logger,
	}
}

// IssueFromPassword creates a session for a password-verified principal.
func (i *Issuer) IssueFromPassword(ctx context.Context, principal *identity.Principal, meta Meta) (*Session, error) {
	return i.establish(ctx, principal, meta)
}

// IssueFromPIN creates a session for a PIN-verified principal through the
// two-phase bridge: mint a single-use proof, then immediately redeem it into
// a full session. The two phases are one logical operation to the caller; the
// proof never leaves the server and cannot be redeemed twice. Any bridging
// failure maps to ErrSessionEstablish, never to a credential error, because
// the credential already verified.
func (i *Issuer) IssueFromPIN(ctx context.Context, principal *identity.Principal, meta Meta) (*Session, error) {
	proof, err := i.proofs.mint(ctx, principal)
	if err != nil {
		i.logError("mint proof", err)
		return nil, shared.ErrSessionEstablish
	}
	redeemed, err := i.proofs.redeem(ctx, proof)
	if err != nil {
		i.logError("redeem proof", err)
		return nil, shared.ErrSessionEstablish
	}
	if redeemed != principal.ID {
		i.logError("redeem proof", fmt.Errorf("principal %d redeemed as %d", principal.ID, redeemed))
		return nil, shared.ErrSessionEstablish
	}
	return i.establish(ctx, principal, meta)
}

// Revoke destroys a live session and closes its audit record.
func (i *Issuer) Revoke(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}
	if err := i.manager.Destroy(ctx, sess); err != nil {
		return err
	}
	if i.audit != nil {
		if err := i.audit.RemoveSession(ctx, sess.ID); err != nil {
			i.logError("remove session record", err)
		}
	}
	return nil
}

func (i *Issuer) establish(ctx context.Context, principal *identity.Principal, meta Meta) (*Session, error) {
	now := time.Now()
	claims := Claims{
		PrincipalID: principal.ID,
		Name:        principal.Name,
		Email:       principal.Email,
		// Role is denormalized here so policy predicates resolve it from the
		// claims instead of querying the principals table they may be gating.
		Role:      principal.Role,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.manager.TTL()),
	}
	sess, err := i.manager.issue(ctx, claims)
	if err != nil {
		i.logError("issue session", err)
		return nil, shared.ErrSessionEstablish
	}
	if i.audit != nil {
		if err := i.audit.RecordSession(ctx, sess.ID, principal.ID, claims.ExpiresAt, meta.IP, meta.UserAgent); err != nil {
			i.logError("record session", err)
		}
	}
	return sess, nil
}

func (i *Issuer) logError(op string, err error) {
	if i.logger != nil && !errors.Is(err, context.Canceled) {
		i.logger.Error("session issuer", slog.String("op", op), slog.Any("error", err))
	}
}
