package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/geo-regions/internal/model"
	"github.com/iliyamo/geo-regions/internal/queue"
	"github.com/iliyamo/geo-regions/internal/repository"
	"github.com/iliyamo/geo-regions/internal/testutil"
)

func TestParseDuplicatePolicy(t *testing.T) {
	for in, want := range map[string]DuplicatePolicy{"": DuplicateOverlap, "overlap": DuplicateOverlap, " EXACT ": DuplicateExact} {
		got, err := ParseDuplicatePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDuplicatePolicy("fuzzy")
	assert.Error(t, err)
}

func TestRegionContainsPoint(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com")
	square := model.NewPolygon([]model.LngLat{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}})
	r := f.region(t, "unit", square, owner)

	found, err := f.regions.FindContainingPoint(ctx, "0.5,0.5")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, r.ID, found[0].ID)

	_, err = f.regions.FindContainingPoint(ctx, "5,5")
	requireKind(t, err, KindNotFound)

	_, err = f.regions.FindContainingPoint(ctx, "abc")
	requireKind(t, err, KindInvalidInput)
}

func TestRegionCreateLinksOwner(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	owner := f.user(t, "owner@example.com")

	r1 := f.region(t, "a", testutil.Square(0, 0, 1), owner)
	r2 := f.region(t, "b", testutil.Square(5, 5, 1), owner)

	assert.Equal(t, []string{r1.ID, r2.ID}, f.regionIDsOf(t, owner.ID))
	assert.Equal(t, owner.ID, r1.OwnerID)
	assert.Equal(t, 2.0, promtest.ToFloat64(f.metrics.RegionsCreated))
	assert.Equal(t, []string{queue.UserCreated, queue.RegionCreated, queue.RegionCreated}, f.events.Types())

	got, err := f.regions.FindByID(context.Background(), r1.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)
	assert.True(t, got.Geometry.Equal(r1.Geometry))
}

func TestRegionCreateValidation(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com")

	_, err := f.regions.Create(ctx, "x", testutil.Square(0, 0, 1), "missing")
	requireKind(t, err, KindNotFound)

	_, err = f.regions.Create(ctx, "  ", testutil.Square(0, 0, 1), owner.ID)
	requireKind(t, err, KindInvalidInput)

	open := model.NewPolygon([]model.LngLat{{0, 0}, {1, 0}, {1, 1}, {0, 1}})
	_, err = f.regions.Create(ctx, "open", open, owner.ID)
	requireKind(t, err, KindInvalidInput)

	assert.Zero(t, f.store.RegionCount())
	assert.Empty(t, f.regionIDsOf(t, owner.ID))
}

func TestRegionCreateRejectsSelfIntersecting(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com")

	bowtie := model.NewPolygon([]model.LngLat{{0, 0}, {1, 1}, {1, 0}, {0, 1}, {0, 0}})
	_, err := f.regions.Create(ctx, "bowtie", bowtie, owner.ID)
	requireKind(t, err, KindInvalidInput)
	assert.ErrorIs(t, err, model.ErrInvalidPolygon)

	r := f.region(t, "a", testutil.Square(0, 0, 1), owner)
	_, err = f.regions.Update(ctx, r.ID, model.RegionPatch{Geometry: &bowtie}, owner.ID)
	requireKind(t, err, KindInvalidInput)
	assert.Equal(t, 1, f.store.RegionCount())
}

func TestRegionGeoIndexRejectionIsCallerError(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com")
	rejected := fmt.Errorf("find regions: %w", repository.ErrInvalidGeometry)

	f.store.FailNext("regions.FindIntersecting", rejected)
	_, err := f.regions.Create(ctx, "a", testutil.Square(0, 0, 1), owner.ID)
	requireKind(t, err, KindInvalidInput)

	f.store.FailNext("regions.Create", fmt.Errorf("insert region: %w", repository.ErrInvalidGeometry))
	_, err = f.regions.Create(ctx, "a", testutil.Square(0, 0, 1), owner.ID)
	requireKind(t, err, KindInvalidInput)
	assert.Zero(t, f.store.RegionCount())

	r := f.region(t, "a", testutil.Square(0, 0, 1), owner)
	grown := testutil.Square(0, 0, 2)
	f.store.FailNext("regions.Update", fmt.Errorf("update region: %w", repository.ErrInvalidGeometry))
	_, err = f.regions.Update(ctx, r.ID, model.RegionPatch{Geometry: &grown}, owner.ID)
	requireKind(t, err, KindInvalidInput)

	f.store.FailNext("regions.FindContainingPoint", rejected)
	_, err = f.regions.FindContainingPoint(ctx, "0.5,95")
	requireKind(t, err, KindInvalidInput)

	f.store.FailNext("regions.FindNear", rejected)
	_, err = f.regions.FindNear(ctx, "200,0.5", 100, owner.ID, false)
	requireKind(t, err, KindInvalidInput)

	f.store.FailNext("regions.FindContainingPoint", errors.New("connection reset"))
	_, err = f.regions.FindContainingPoint(ctx, "0.5,0.5")
	requireKind(t, err, KindInternal)
}

func TestRegionDuplicatePolicies(t *testing.T) {
	t.Run("overlap", func(t *testing.T) {
		f := newFixture(t, DuplicateOverlap)
		owner := f.user(t, "owner@example.com")
		f.region(t, "a", testutil.Square(0, 0, 1), owner)

		_, err := f.regions.Create(context.Background(), "b", testutil.Square(0.5, 0.5, 1), owner.ID)
		requireKind(t, err, KindConflict)
		assert.Equal(t, 1, f.store.RegionCount())
	})

	t.Run("exact", func(t *testing.T) {
		f := newFixture(t, DuplicateExact)
		owner := f.user(t, "owner@example.com")
		f.region(t, "a", testutil.Square(0, 0, 1), owner)

		_, err := f.regions.Create(context.Background(), "same", testutil.Square(0, 0, 1), owner.ID)
		requireKind(t, err, KindConflict)

		f.region(t, "overlapping", testutil.Square(0.5, 0.5, 1), owner)
		assert.Equal(t, 2, f.store.RegionCount())
	})
}

func TestRegionCreateRollsBack(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	owner := f.user(t, "owner@example.com")
	f.store.FailNext("users.AppendRegionReference", errors.New("write conflict"))

	_, err := f.regions.Create(context.Background(), "a", testutil.Square(0, 0, 1), owner.ID)
	requireKind(t, err, KindInternal)

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "failed to create region", se.Message)
	assert.Zero(t, f.store.RegionCount())
	assert.Empty(t, f.regionIDsOf(t, owner.ID))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.TransactionFailures.WithLabelValues("region.create")))
}

func TestRegionDeleteByNonOwner(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	a := f.user(t, "a@example.com")
	b := f.user(t, "b@example.com")
	r := f.region(t, "mine", testutil.Square(0, 0, 1), a)

	err := f.regions.Delete(ctx, r.ID, b.ID)
	requireKind(t, err, KindUnauthorized)

	_, err = f.regions.FindByID(ctx, r.ID)
	assert.NoError(t, err)
	assert.Equal(t, []string{r.ID}, f.regionIDsOf(t, a.ID))
}

func TestRegionDelete(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com")
	r1 := f.region(t, "a", testutil.Square(0, 0, 1), owner)
	r2 := f.region(t, "b", testutil.Square(5, 5, 1), owner)

	require.NoError(t, f.regions.Delete(ctx, r1.ID, owner.ID))

	_, err := f.regions.FindByID(ctx, r1.ID)
	requireKind(t, err, KindNotFound)
	assert.Equal(t, []string{r2.ID}, f.regionIDsOf(t, owner.ID))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.RegionsDeleted))

	err = f.regions.Delete(ctx, r1.ID, owner.ID)
	requireKind(t, err, KindNotFound)
}

func TestRegionDeleteRollsBack(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com")
	r := f.region(t, "a", testutil.Square(0, 0, 1), owner)
	f.store.FailNext("regions.Delete", errors.New("node stepped down"))

	err := f.regions.Delete(ctx, r.ID, owner.ID)
	requireKind(t, err, KindInternal)
	assert.Contains(t, err.Error(), "failed to delete region")

	_, err = f.regions.FindByID(ctx, r.ID)
	assert.NoError(t, err)
	assert.Equal(t, []string{r.ID}, f.regionIDsOf(t, owner.ID))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.TransactionFailures.WithLabelValues("region.delete")))
}

func TestRegionFindAll(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()

	_, err := f.regions.FindAll(ctx, 1, 10)
	requireKind(t, err, KindNotFound)

	_, err = f.regions.FindAll(ctx, 0, 10)
	requireKind(t, err, KindInvalidInput)

	_, err = f.regions.FindAll(ctx, math.MaxInt, 10)
	requireKind(t, err, KindInvalidInput)

	owner := f.user(t, "owner@example.com")
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, f.region(t, "r", testutil.Square(float64(i*3), 0, 1), owner).ID)
	}

	page, err := f.regions.FindAll(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, ids[2], page.Rows[0].ID)
	assert.Equal(t, ids[3], page.Rows[1].ID)

	page, err = f.regions.FindAll(ctx, 4, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Rows)
}

func TestRegionFindNear(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	a := f.user(t, "a@example.com")
	b := f.user(t, "b@example.com")
	ra := f.region(t, "west", testutil.Square(0, 0, 1), a)
	rb := f.region(t, "east", testutil.Square(1.002, 0, 1), b)

	// ~56m from west, ~167m from east
	const point = "1.0005,0.5"

	found, err := f.regions.FindNear(ctx, point, 500, a.ID, false)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, ra.ID, found[0].ID)
	assert.Equal(t, rb.ID, found[1].ID)

	found, err = f.regions.FindNear(ctx, point, 500, a.ID, true)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, rb.ID, found[0].ID)

	found, err = f.regions.FindNear(ctx, point, 100, b.ID, false)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ra.ID, found[0].ID)

	_, err = f.regions.FindNear(ctx, point, 100, a.ID, true)
	requireKind(t, err, KindNotFound)

	_, err = f.regions.FindNear(ctx, point, 0, a.ID, false)
	requireKind(t, err, KindInvalidInput)

	_, err = f.regions.FindNear(ctx, "1.0005", 100, a.ID, false)
	requireKind(t, err, KindInvalidInput)
}

func TestRegionUpdate(t *testing.T) {
	f := newFixture(t, DuplicateOverlap)
	ctx := context.Background()
	a := f.user(t, "a@example.com")
	b := f.user(t, "b@example.com")
	ra := f.region(t, "a", testutil.Square(0, 0, 1), a)
	f.region(t, "b", testutil.Square(5, 5, 1), b)

	name := "renamed"
	_, err := f.regions.Update(ctx, ra.ID, model.RegionPatch{Name: &name}, b.ID)
	requireKind(t, err, KindUnauthorized)
	got, err := f.regions.FindByID(ctx, ra.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)

	updated, err := f.regions.Update(ctx, ra.ID, model.RegionPatch{Name: &name}, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)

	// reshaping over its own old footprint is not a duplicate
	grown := testutil.Square(0, 0, 2)
	updated, err = f.regions.Update(ctx, ra.ID, model.RegionPatch{Geometry: &grown}, a.ID)
	require.NoError(t, err)
	assert.True(t, updated.Geometry.Equal(grown))

	onto := testutil.Square(5.5, 5.5, 1)
	_, err = f.regions.Update(ctx, ra.ID, model.RegionPatch{Geometry: &onto}, a.ID)
	requireKind(t, err, KindConflict)

	_, err = f.regions.Update(ctx, "missing", model.RegionPatch{Name: &name}, a.ID)
	requireKind(t, err, KindNotFound)
}
