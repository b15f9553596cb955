package service

import (
	"context"
	"errors"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/geo-regions/internal/model"
	"github.com/iliyamo/geo-regions/internal/queue"
	"github.com/iliyamo/geo-regions/internal/testutil"
	"github.com/iliyamo/geo-regions/internal/utils"
)

func TestUserCreateDerivesLocation(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()

	byAddress, err := f.users.Create(ctx, CreateUserInput{
		Name: "Ada", Email: "ada@example.com", Password: "pw", Address: "1600 Amphitheatre Pkwy",
	})
	require.NoError(t, err)
	require.NotNil(t, byAddress.Coordinates)
	assert.Equal(t, model.LngLat{-122.0842, 37.4220}, *byAddress.Coordinates)

	byCoords, err := f.users.Create(ctx, CreateUserInput{
		Name: "Bob", Email: "bob@example.com", Password: "pw", Coordinates: &model.LngLat{1, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "2.00000, 1.00000", byCoords.Address)

	stored, err := f.users.FindByID(ctx, byCoords.ID)
	require.NoError(t, err)
	assert.Equal(t, "2.00000, 1.00000", stored.Address)
	assert.Equal(t, model.LngLat{1, 2}, *stored.Coordinates)
	assert.Empty(t, stored.PasswordHash)
	assert.Empty(t, stored.RegionIDs)
}

func TestUserCreateRejects(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	f.user(t, "taken@example.com")

	cases := []struct {
		name string
		in   CreateUserInput
		kind Kind
	}{
		{"neither location", CreateUserInput{Name: "n", Email: "x@example.com", Password: "pw"}, KindInvalidInput},
		{"both locations", CreateUserInput{Name: "n", Email: "x@example.com", Password: "pw", Address: "10 Downing St", Coordinates: &model.LngLat{1, 1}}, KindInvalidInput},
		{"missing password", CreateUserInput{Name: "n", Email: "x@example.com", Address: "10 Downing St"}, KindInvalidInput},
		{"unknown address", CreateUserInput{Name: "n", Email: "x@example.com", Password: "pw", Address: "nowhere"}, KindInvalidInput},
		{"out of bounds", CreateUserInput{Name: "n", Email: "x@example.com", Password: "pw", Coordinates: &model.LngLat{200, 0}}, KindInvalidInput},
		{"email taken", CreateUserInput{Name: "n", Email: "TAKEN@example.com", Password: "pw", Address: "10 Downing St"}, KindConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.users.Create(ctx, tc.in)
			requireKind(t, err, tc.kind)
		})
	}
	assert.Equal(t, 1, f.store.UserCount())
}

func TestUserCreateGeocoderOutage(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	f.geo.Err = errors.New("connection refused")

	_, err := f.users.Create(context.Background(), CreateUserInput{
		Name: "n", Email: "x@example.com", Password: "pw", Address: "10 Downing St",
	})
	requireKind(t, err, KindInternal)
	assert.Zero(t, f.store.UserCount())
}

func TestUserCreateHashesPassword(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	u := f.user(t, "Hash@Example.com")
	assert.Equal(t, "hash@example.com", u.Email)

	withHash, err := f.store.Users().FindByEmail(context.Background(), "hash@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", withHash.PasswordHash)
	assert.True(t, utils.VerifyPassword(withHash.PasswordHash, "s3cret-pass"))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.UsersCreated))
}

func TestUserFindAll(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()

	_, err := f.users.FindAll(ctx, 1, 10)
	requireKind(t, err, KindNotFound)

	f.user(t, "a@example.com")
	f.user(t, "b@example.com")
	page, err := f.users.FindAll(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, "a@example.com", page.Rows[0].Email)

	_, err = f.users.FindAll(ctx, 1, 0)
	requireKind(t, err, KindInvalidInput)
}

func TestUserUpdate(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	u := f.user(t, "a@example.com")
	f.user(t, "b@example.com")

	address := "10 Downing St"
	coords := model.LngLat{1, 1}
	_, err := f.users.Update(ctx, u.ID, UpdateUserInput{Address: &address, Coordinates: &coords})
	requireKind(t, err, KindInvalidInput)

	updated, err := f.users.Update(ctx, u.ID, UpdateUserInput{Address: &address})
	require.NoError(t, err)
	assert.Equal(t, address, updated.Address)
	assert.Equal(t, model.LngLat{-0.1276, 51.5034}, *updated.Coordinates)

	updated, err = f.users.Update(ctx, u.ID, UpdateUserInput{Coordinates: &coords})
	require.NoError(t, err)
	assert.Equal(t, "1.00000, 1.00000", updated.Address)

	taken := "B@example.com"
	_, err = f.users.Update(ctx, u.ID, UpdateUserInput{Email: &taken})
	requireKind(t, err, KindConflict)

	name, password := "Renamed", "new-pass"
	updated, err = f.users.Update(ctx, u.ID, UpdateUserInput{Name: &name, Password: &password})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Empty(t, updated.PasswordHash)

	_, _, err = f.auth.Login(ctx, "a@example.com", "new-pass")
	assert.NoError(t, err)

	_, err = f.users.Update(ctx, "missing", UpdateUserInput{Name: &name})
	requireKind(t, err, KindNotFound)
}

func TestUserDeleteWithoutRegions(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	u := f.user(t, "a@example.com")

	require.NoError(t, f.users.Delete(ctx, u.ID))
	assert.Zero(t, f.store.TxCalls)

	_, err := f.users.FindByID(ctx, u.ID)
	requireKind(t, err, KindNotFound)
	requireKind(t, f.users.Delete(ctx, u.ID), KindNotFound)
}

func TestUserDeleteCascades(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	u := f.user(t, "a@example.com")
	other := f.user(t, "b@example.com")
	r1 := f.region(t, "r1", testutil.Square(0, 0, 1), u)
	r2 := f.region(t, "r2", testutil.Square(5, 5, 1), u)
	kept := f.region(t, "kept", testutil.Square(10, 10, 1), other)

	require.NoError(t, f.users.Delete(ctx, u.ID))

	for _, id := range []string{r1.ID, r2.ID} {
		_, err := f.regions.FindByID(ctx, id)
		requireKind(t, err, KindNotFound)
	}
	_, err := f.users.FindByID(ctx, u.ID)
	requireKind(t, err, KindNotFound)
	_, err = f.regions.FindByID(ctx, kept.ID)
	assert.NoError(t, err)

	assert.Equal(t, 2.0, promtest.ToFloat64(f.metrics.RegionsDeleted))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.UsersDeleted))

	events := f.events.Events()
	last := events[len(events)-1]
	assert.Equal(t, queue.UserDeleted, last.Type)
	assert.Equal(t, []string{r1.ID, r2.ID}, last.RegionIDs)
}

func TestUserDeleteCascadeRollsBack(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	u := f.user(t, "a@example.com")
	r := f.region(t, "r", testutil.Square(0, 0, 1), u)
	f.store.FailNext("users.Delete", errors.New("transient transaction error"))

	err := f.users.Delete(ctx, u.ID)
	requireKind(t, err, KindInternal)
	assert.Contains(t, err.Error(), "failed to delete user")

	_, err = f.regions.FindByID(ctx, r.ID)
	assert.NoError(t, err)
	assert.Equal(t, []string{r.ID}, f.regionIDsOf(t, u.ID))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.TransactionFailures.WithLabelValues("user.delete")))
}
