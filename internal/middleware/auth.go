package middleware

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/microsplit/internal/auth"
	"github.com/mmynk/microsplit/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// IdentityKey is the context key for the authenticated signer identity.
const IdentityKey contextKey = "identity"

// WithIdentity returns ctx carrying id as the signer.
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// GetIdentity extracts the signer identity from the context.
func GetIdentity(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(models.Identity)
	return id, ok
}

func bearerIdentity(jwtManager *auth.JWTManager, header string) (models.Identity, error) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return models.Identity{}, auth.ErrInvalidToken
	}
	claims, err := jwtManager.Validate(parts[1])
	if err != nil {
		return models.Identity{}, err
	}
	return claims.Identity()
}

// RequireAuth returns an interceptor that validates the bearer token and puts
// the signer identity into the request context.
func RequireAuth(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			authHeader := req.Header().Get("Authorization")
			if authHeader == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
			}

			id, err := bearerIdentity(jwtManager, authHeader)
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}

			return next(WithIdentity(ctx, id), req)
		}
	}
}

// OptionalAuth validates the bearer token if present but lets anonymous
// requests through. Read-only procedures use it so logs and rate limits can
// still attribute signed calls.
func OptionalAuth(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if authHeader := req.Header().Get("Authorization"); authHeader != "" {
				if id, err := bearerIdentity(jwtManager, authHeader); err == nil {
					ctx = WithIdentity(ctx, id)
				}
			}
			return next(ctx, req)
		}
	}
}
