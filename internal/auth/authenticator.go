package auth

import (
	"context"
	"time"

	"github.com/mmynk/microsplit/internal/models"
)

// Challenge is a single-use login nonce issued to an identity.
type Challenge struct {
	Nonce     string
	ExpiresAt time.Time
}

// Authenticator proves that a caller controls an identity.
// This abstraction keeps the service layer independent of the proof scheme.
type Authenticator interface {
	// Challenge issues a fresh nonce for id.
	Challenge(ctx context.Context, id models.Identity) (*Challenge, error)

	// Verify consumes the nonce and checks signature over it. The nonce is
	// spent whether or not the signature is valid.
	Verify(ctx context.Context, id models.Identity, nonce string, signature []byte) error
}
