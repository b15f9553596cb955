package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/geo-regions/internal/model"
	"github.com/iliyamo/geo-regions/internal/repository"
	"github.com/iliyamo/geo-regions/internal/utils"
)

// TokenPair is what a successful register, login or refresh hands back.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// AuthService issues and rotates tokens.  Refresh tokens are opaque random
// strings stored as SHA-256 hashes; access tokens are HS256 JWTs.
type AuthService struct {
	users      *UserService
	store      UserStore
	tokens     TokenStore
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthService(users *UserService, store UserStore, tokens TokenStore, secret string, accessTTL, refreshTTL time.Duration) *AuthService {
	return &AuthService{
		users:      users,
		store:      store,
		tokens:     tokens,
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Register creates the user and signs them in.
func (s *AuthService) Register(ctx context.Context, in CreateUserInput) (*model.User, *TokenPair, error) {
	u, err := s.users.Create(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	pair, err := s.issue(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

// Login checks credentials.  Unknown email and wrong password are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, *TokenPair, error) {
	u, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			utils.BurnPasswordCheck(password, s.users.bcryptCost)
			return nil, nil, Unauthorized("invalid credentials")
		}
		return nil, nil, Internal("login failed", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, nil, Unauthorized("invalid credentials")
	}
	u.PasswordHash = ""
	pair, err := s.issue(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*TokenPair, error) {
	userID, hash, err := s.validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := s.revoke(ctx, hash); err != nil {
		return nil, err
	}
	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, Unauthorized("invalid refresh token")
		}
		return nil, Internal("refresh failed", err)
	}
	return s.issue(ctx, u)
}

// Logout revokes one refresh token.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	_, hash, err := s.validate(ctx, raw)
	if err != nil {
		return err
	}
	return s.revoke(ctx, hash)
}

// LogoutAll revokes every refresh token of the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return Internal("could not revoke tokens", err)
	}
	return nil
}

func (s *AuthService) validate(ctx context.Context, raw string) (userID, hash string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", InvalidInput("refresh_token is required", nil)
	}
	hash = utils.HashRefreshRaw(raw)
	userID, err = s.tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return "", "", Unauthorized("invalid refresh token")
		}
		return "", "", Internal("refresh failed", err)
	}
	return userID, hash, nil
}

// revoke consumes the token.  Losing a race against another refresh or
// logout of the same token is reported like any other dead token.
func (s *AuthService) revoke(ctx context.Context, hash string) error {
	if err := s.tokens.RevokeByHash(ctx, hash); err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return Unauthorized("invalid refresh token")
		}
		return Internal("could not revoke token", err)
	}
	return nil
}

func (s *AuthService) issue(ctx context.Context, u *model.User) (*TokenPair, error) {
	access, err := utils.NewAccessToken(s.secret, u.ID, u.Email, s.accessTTL)
	if err != nil {
		return nil, Internal("could not create access token", err)
	}
	refresh, err := utils.NewRefreshToken(s.refreshTTL)
	if err != nil {
		return nil, Internal("could not create refresh token", err)
	}
	if err := s.tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return nil, Internal("could not persist refresh token", err)
	}
	return &TokenPair{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.Exp,
		RefreshToken:     refresh.Raw,
		RefreshExpiresAt: refresh.Exp,
	}, nil
}
