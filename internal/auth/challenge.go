package auth

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/microsplit/internal/models"
)

var (
	ErrUnknownChallenge  = errors.New("unknown or already used challenge")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrBadSignature      = errors.New("signature does not match identity")
	ErrTooManyChallenges = errors.New("too many outstanding challenges")
)

// DefaultMaxPending bounds the number of outstanding nonces.
const DefaultMaxPending = 10_000

// LoginMessagePrefix is prepended to the nonce before signing.
const LoginMessagePrefix = "microsplit login:"

// LoginMessage returns the bytes a wallet signs to answer nonce.
func LoginMessage(nonce string) []byte {
	return []byte(LoginMessagePrefix + nonce)
}

// SignLogin signs nonce with priv. Used by clients.
func SignLogin(priv ed25519.PrivateKey, nonce string) []byte {
	return ed25519.Sign(priv, LoginMessage(nonce))
}

type pendingChallenge struct {
	id        models.Identity
	expiresAt time.Time
}

var _ Authenticator = (*ChallengeAuthenticator)(nil)

// ChallengeAuthenticator verifies ed25519 signatures over in-memory nonces.
type ChallengeAuthenticator struct {
	mu         sync.Mutex
	pending    map[string]pendingChallenge
	maxPending int
	lastSweep  time.Time
	ttl        time.Duration
	now        func() time.Time
}

// NewChallengeAuthenticator creates an authenticator whose nonces live for ttl.
func NewChallengeAuthenticator(ttl time.Duration) *ChallengeAuthenticator {
	return &ChallengeAuthenticator{
		pending:    make(map[string]pendingChallenge),
		maxPending: DefaultMaxPending,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Challenge issues a nonce for id. Expired nonces are swept at most once per
// ttl, or sooner when the table is full.
func (a *ChallengeAuthenticator) Challenge(_ context.Context, id models.Identity) (*Challenge, error) {
	now := a.now()
	c := &Challenge{
		Nonce:     uuid.NewString(),
		ExpiresAt: now.Add(a.ttl),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.pending) >= a.maxPending || now.Sub(a.lastSweep) >= a.ttl {
		a.sweep(now)
	}
	if len(a.pending) >= a.maxPending {
		return nil, ErrTooManyChallenges
	}
	a.pending[c.Nonce] = pendingChallenge{id: id, expiresAt: c.ExpiresAt}
	return c, nil
}

// sweep drops expired nonces. Callers hold a.mu.
func (a *ChallengeAuthenticator) sweep(now time.Time) {
	for nonce, p := range a.pending {
		if now.After(p.expiresAt) {
			delete(a.pending, nonce)
		}
	}
	a.lastSweep = now
}

func (a *ChallengeAuthenticator) Verify(_ context.Context, id models.Identity, nonce string, signature []byte) error {
	a.mu.Lock()
	p, ok := a.pending[nonce]
	delete(a.pending, nonce)
	a.mu.Unlock()

	if !ok || p.id != id {
		return ErrUnknownChallenge
	}
	if a.now().After(p.expiresAt) {
		return ErrChallengeExpired
	}
	if !ed25519.Verify(id.PublicKey(), LoginMessage(nonce), signature) {
		return ErrBadSignature
	}
	return nil
}

func (a *ChallengeAuthenticator) pendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
