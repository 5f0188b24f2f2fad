package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/btcsuite/btcutil/base58"

	"github.com/mmynk/microsplit/internal/auth"
	"github.com/mmynk/microsplit/internal/models"
	"github.com/mmynk/microsplit/pkg/api"
)

var errLoginFailed = errors.New("login failed")

// AuthService implements the AuthService RPC interface.
type AuthService struct {
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
	logger        *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(authenticator auth.Authenticator, jwtManager *auth.JWTManager, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		authenticator: authenticator,
		jwtManager:    jwtManager,
		logger:        logger,
	}
}

// Challenge issues a login nonce for an identity.
func (s *AuthService) Challenge(ctx context.Context, req *connect.Request[api.ChallengeRequest]) (*connect.Response[api.ChallengeResponse], error) {
	id, err := models.ParseIdentity(req.Msg.Identity)
	if err != nil {
		return nil, invalidArgument("identity", err)
	}

	c, err := s.authenticator.Challenge(ctx, id)
	if errors.Is(err, auth.ErrTooManyChallenges) {
		s.logger.Warn("Challenge table full", "identity", id)
		return nil, connect.NewError(connect.CodeResourceExhausted, err)
	}
	if err != nil {
		s.logger.Error("Failed to issue challenge", "identity", id, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(&api.ChallengeResponse{
		Nonce:     c.Nonce,
		ExpiresAt: c.ExpiresAt.Unix(),
	}), nil
}

// Login verifies the signed nonce and returns a session token.
func (s *AuthService) Login(ctx context.Context, req *connect.Request[api.LoginRequest]) (*connect.Response[api.LoginResponse], error) {
	id, err := models.ParseIdentity(req.Msg.Identity)
	if err != nil {
		return nil, invalidArgument("identity", err)
	}
	if req.Msg.Nonce == "" || req.Msg.Signature == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errLoginFailed)
	}

	sig := base58.Decode(req.Msg.Signature)
	if err := s.authenticator.Verify(ctx, id, req.Msg.Nonce, sig); err != nil {
		s.logger.Warn("Login failed", "identity", id, "error", err)
		return nil, connect.NewError(connect.CodeUnauthenticated, err)
	}

	token, err := s.jwtManager.Generate(id)
	if err != nil {
		s.logger.Error("Failed to generate token", "identity", id, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	s.logger.Info("Identity logged in", "identity", id)
	return connect.NewResponse(&api.LoginResponse{Token: token}), nil
}
