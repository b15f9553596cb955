// Package repository contains data access logic separated from HTTP handlers
// and lifecycle services.  Repositories are thin: they translate domain
// operations into Mongo filters and updates and never coordinate writes
// across collections.  Cross-entity consistency is the services' job.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/geo-regions/internal/database"
	"github.com/iliyamo/geo-regions/internal/model"
)

// RegionRepo encapsulates all queries related to regions.  It depends on a
// mongo.Database handle which should be configured elsewhere.
type RegionRepo struct {
	coll *mongo.Collection
}

// NewRegionRepo constructs a RegionRepo bound to the regions collection.
func NewRegionRepo(db *mongo.Database) *RegionRepo {
	return &RegionRepo{coll: db.Collection(database.RegionsCollection)}
}

// Create inserts a new region.  The ID is generated when empty and both
// timestamps are set, so the caller holds the persisted record on success.
func (r *RegionRepo) Create(ctx context.Context, region *model.Region) error {
	if region.ID == "" {
		region.ID = primitive.NewObjectID().Hex()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	region.CreatedAt = now
	region.UpdatedAt = now
	if _, err := r.coll.InsertOne(ctx, region); err != nil {
		return geoError("insert region", err)
	}
	return nil
}

// FindByGeometryIntersection returns any region whose geometry
// geo-intersects the given polygon, or ErrRegionNotFound.
func (r *RegionRepo) FindByGeometryIntersection(ctx context.Context, geometry model.Polygon) (*model.Region, error) {
	var region model.Region
	err := r.coll.FindOne(ctx, intersectsFilter(geometry.GeoJSON())).Decode(&region)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRegionNotFound
		}
		return nil, geoError("find intersecting region", err)
	}
	return &region, nil
}

// FindIntersecting returns every region intersecting the polygon.  A limit
// of zero means no limit.
func (r *RegionRepo) FindIntersecting(ctx context.Context, geometry model.Polygon, limit int64) ([]model.Region, error) {
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return r.find(ctx, intersectsFilter(geometry.GeoJSON()), opts)
}

// FindContainingPoint returns all regions whose geometry contains (geo-
// intersects) the point.  No match yields an empty slice, not an error.
func (r *RegionRepo) FindContainingPoint(ctx context.Context, point model.GeoPoint) ([]model.Region, error) {
	return r.find(ctx, intersectsFilter(point.GeoJSON()), options.Find())
}

// FindNear returns regions within maxDistance meters of point ordered by
// ascending distance, which is the natural order of $near.  When
// excludeOwnerID is set, regions owned by that user are left out.
func (r *RegionRepo) FindNear(ctx context.Context, point model.GeoPoint, maxDistance float64, excludeOwnerID string) ([]model.Region, error) {
	filter := bson.M{
		"geometry": bson.M{
			"$near": bson.M{
				"$geometry":    point.GeoJSON(),
				"$maxDistance": maxDistance,
			},
		},
	}
	if excludeOwnerID != "" {
		filter["owner_id"] = bson.M{"$ne": excludeOwnerID}
	}
	return r.find(ctx, filter, options.Find())
}

// FindAll returns one page of regions in insertion order together with the
// total count.  Both queries run concurrently.
func (r *RegionRepo) FindAll(ctx context.Context, offset, limit int64) ([]model.Region, int64, error) {
	var (
		regions []model.Region
		total   int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		opts := options.Find().
			SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
			SetSkip(offset).
			SetLimit(limit)
		var err error
		regions, err = r.find(gctx, bson.M{}, opts)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = r.coll.CountDocuments(gctx, bson.M{})
		if err != nil {
			return fmt.Errorf("count regions: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return regions, total, nil
}

// FindByID fetches a region by id or returns ErrRegionNotFound.
func (r *RegionRepo) FindByID(ctx context.Context, id string) (*model.Region, error) {
	var region model.Region
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&region); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRegionNotFound
		}
		return nil, fmt.Errorf("find region %s: %w", id, err)
	}
	return &region, nil
}

// Update applies a partial update of name and geometry and returns the
// record after the update.  Nil patch fields are left untouched.
func (r *RegionRepo) Update(ctx context.Context, id string, patch model.RegionPatch) (*model.Region, error) {
	set := bson.M{"updated_at": time.Now().UTC().Truncate(time.Millisecond)}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Geometry != nil {
		set["geometry"] = *patch.Geometry
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var region model.Region
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&region)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRegionNotFound
		}
		return nil, geoError("update region "+id, err)
	}
	return &region, nil
}

// Delete removes a region.  It does not touch the owner's reference list;
// callers pair it with UserRepo.RemoveRegionReference inside a transaction.
func (r *RegionRepo) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete region %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrRegionNotFound
	}
	return nil
}

// DeleteByOwner removes every region owned by the user and returns how
// many were deleted.
func (r *RegionRepo) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return 0, fmt.Errorf("delete regions of %s: %w", ownerID, err)
	}
	return res.DeletedCount, nil
}

func (r *RegionRepo) find(ctx context.Context, filter any, opts *options.FindOptions) ([]model.Region, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, geoError("find regions", err)
	}
	defer cur.Close(ctx)

	out := []model.Region{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, geoError("decode regions", err)
	}
	return out, nil
}

func intersectsFilter(geometry map[string]any) bson.M {
	return bson.M{
		"geometry": bson.M{
			"$geoIntersects": bson.M{"$geometry": geometry},
		},
	}
}

// Mongo reports unusable GeoJSON as BadValue on queries and as
// "can't extract geo keys" on writes to the 2dsphere index.
const (
	codeBadValue          = 2
	codeCannotExtractKeys = 16755
)

func geoError(op string, err error) error {
	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorCode(codeBadValue) || se.HasErrorCode(codeCannotExtractKeys)) {
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidGeometry, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
