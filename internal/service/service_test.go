package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/geo-regions/internal/metrics"
	"github.com/iliyamo/geo-regions/internal/model"
	"github.com/iliyamo/geo-regions/internal/testutil"
)

type fixture struct {
	store   *testutil.Store
	geo     *testutil.FakeGeocoder
	events  *testutil.RecordingPublisher
	metrics *metrics.Metrics
	regions *RegionService
	users   *UserService
	auth    *AuthService
}

func newFixture(t *testing.T, policy DuplicatePolicy) *fixture {
	t.Helper()
	f := &fixture{
		store:   testutil.NewStore(),
		geo:     testutil.NewFakeGeocoder(),
		events:  &testutil.RecordingPublisher{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.geo.Addresses["1600 Amphitheatre Pkwy"] = model.LngLat{-122.0842, 37.4220}
	f.geo.Addresses["10 Downing St"] = model.LngLat{-0.1276, 51.5034}

	opts := []Option{WithEvents(f.events), WithMetrics(f.metrics)}
	f.regions = NewRegionService(f.store.Regions(), f.store.Users(), f.store, policy, opts...)
	f.users = NewUserService(f.store.Users(), f.store.Regions(), f.store, f.geo, bcrypt.MinCost, opts...)
	f.auth = NewAuthService(f.users, f.store.Users(), f.store.Tokens(), "test-secret", 15*time.Minute, 24*time.Hour)
	return f
}

func (f *fixture) user(t *testing.T, email string) *model.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), CreateUserInput{
		Name:        "User " + email,
		Email:       email,
		Password:    "s3cret-pass",
		Coordinates: &model.LngLat{13.405, 52.52},
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) region(t *testing.T, name string, geometry model.Polygon, owner *model.User) *model.Region {
	t.Helper()
	r, err := f.regions.Create(context.Background(), name, geometry, owner.ID)
	require.NoError(t, err)
	return r
}

// regionIDsOf reloads the user and returns its region list.
func (f *fixture) regionIDsOf(t *testing.T, userID string) []string {
	t.Helper()
	u, err := f.store.Users().FindByID(context.Background(), userID)
	require.NoError(t, err)
	return u.RegionIDs
}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, KindOf(err), "error: %v", err)
}
