package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/geo-regions/internal/model"
	"github.com/iliyamo/geo-regions/internal/repository"
	"github.com/iliyamo/geo-regions/internal/utils"
)

func TestAuthRegisterAndLogin(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()

	u, pair, err := f.auth.Register(ctx, CreateUserInput{
		Name: "Ada", Email: "ada@example.com", Password: "pw-123456", Coordinates: &model.LngLat{2, 3},
	})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := utils.ParseAccessToken("test-secret", pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)

	logged, _, err := f.auth.Login(ctx, "ADA@example.com", "pw-123456")
	require.NoError(t, err)
	assert.Equal(t, u.ID, logged.ID)
	assert.Empty(t, logged.PasswordHash)

	_, _, err = f.auth.Login(ctx, "ada@example.com", "wrong")
	requireKind(t, err, KindUnauthorized)
	_, _, err = f.auth.Login(ctx, "nobody@example.com", "pw-123456")
	requireKind(t, err, KindUnauthorized)
}

func TestAuthRefreshRotates(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	f.user(t, "a@example.com")
	_, first, err := f.auth.Login(ctx, "a@example.com", "s3cret-pass")
	require.NoError(t, err)

	second, err := f.auth.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = f.auth.Refresh(ctx, first.RefreshToken)
	requireKind(t, err, KindUnauthorized)

	_, err = f.auth.Refresh(ctx, "  ")
	requireKind(t, err, KindInvalidInput)
}

func TestAuthLogout(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	u := f.user(t, "a@example.com")
	_, pair, err := f.auth.Login(ctx, "a@example.com", "s3cret-pass")
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, pair.RefreshToken))
	requireKind(t, f.auth.Logout(ctx, pair.RefreshToken), KindUnauthorized)

	_, p1, err := f.auth.Login(ctx, "a@example.com", "s3cret-pass")
	require.NoError(t, err)
	_, p2, err := f.auth.Login(ctx, "a@example.com", "s3cret-pass")
	require.NoError(t, err)
	require.NoError(t, f.auth.LogoutAll(ctx, u.ID))

	_, err = f.auth.Refresh(ctx, p1.RefreshToken)
	requireKind(t, err, KindUnauthorized)
	_, err = f.auth.Refresh(ctx, p2.RefreshToken)
	requireKind(t, err, KindUnauthorized)
}

func TestAuthRefreshAfterUserDeleted(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	u := f.user(t, "a@example.com")
	_, pair, err := f.auth.Login(ctx, "a@example.com", "s3cret-pass")
	require.NoError(t, err)

	require.NoError(t, f.users.Delete(ctx, u.ID))
	_, err = f.auth.Refresh(ctx, pair.RefreshToken)
	requireKind(t, err, KindUnauthorized)
}

// gatedTokens holds every ValidateRefresh caller until n callers have
// validated, so they all race on the revoke.
type gatedTokens struct {
	TokenStore
	gate sync.WaitGroup
}

func (g *gatedTokens) ValidateRefresh(ctx context.Context, tokenHash string) (string, error) {
	uid, err := g.TokenStore.ValidateRefresh(ctx, tokenHash)
	g.gate.Done()
	g.gate.Wait()
	return uid, err
}

func TestAuthConcurrentRefreshSingleWinner(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	f.user(t, "a@example.com")
	_, pair, err := f.auth.Login(ctx, "a@example.com", "s3cret-pass")
	require.NoError(t, err)

	const callers = 2
	gated := &gatedTokens{TokenStore: f.store.Tokens()}
	gated.gate.Add(callers)
	auth := NewAuthService(f.users, f.store.Users(), gated, "test-secret", 15*time.Minute, 24*time.Hour)

	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = auth.Refresh(ctx, pair.RefreshToken)
		}()
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.Equal(t, KindUnauthorized, KindOf(err), "error: %v", err)
		lost++
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
}

func TestAuthConcurrentLogoutAndRefresh(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	f.user(t, "a@example.com")
	_, pair, err := f.auth.Login(ctx, "a@example.com", "s3cret-pass")
	require.NoError(t, err)

	gated := &gatedTokens{TokenStore: f.store.Tokens()}
	gated.gate.Add(2)
	auth := NewAuthService(f.users, f.store.Users(), gated, "test-secret", 15*time.Minute, 24*time.Hour)

	var (
		wg         sync.WaitGroup
		refreshErr error
		logoutErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, refreshErr = auth.Refresh(ctx, pair.RefreshToken)
	}()
	go func() {
		defer wg.Done()
		logoutErr = auth.Logout(ctx, pair.RefreshToken)
	}()
	wg.Wait()

	assert.True(t, (refreshErr == nil) != (logoutErr == nil), "refresh: %v, logout: %v", refreshErr, logoutErr)
}

func TestRevokeExpiredToken(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	tokens := f.store.Tokens()
	require.NoError(t, tokens.StoreRefresh(ctx, "u1", "stale", time.Now().Add(-time.Minute)))
	require.NoError(t, tokens.StoreRefresh(ctx, "u1", "live", time.Now().Add(time.Hour)))

	assert.ErrorIs(t, tokens.RevokeByHash(ctx, "stale"), repository.ErrTokenNotFound)
	assert.ErrorIs(t, tokens.RevokeByHash(ctx, "missing"), repository.ErrTokenNotFound)
	require.NoError(t, tokens.RevokeByHash(ctx, "live"))
	assert.ErrorIs(t, tokens.RevokeByHash(ctx, "live"), repository.ErrTokenNotFound)
}
