package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/geo-regions/internal/database"
	"github.com/iliyamo/geo-regions/internal/model"
)

// withoutPassword keeps the hash inside the authentication boundary.
var withoutPassword = bson.M{"password_hash": 0}

type UserRepo struct{ coll *mongo.Collection }

func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{coll: db.Collection(database.UsersCollection)}
}

// Create inserts the user.  Email is normalized, the id is generated when
// empty and RegionIDs starts as an empty list.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = primitive.NewObjectID().Hex()
	}
	u.Email = normalizeEmail(u.Email)
	if u.RegionIDs == nil {
		u.RegionIDs = []string{}
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	u.CreatedAt = now
	u.UpdatedAt = now
	if _, err := r.coll.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByEmail fetches a user by normalized email, password hash included.
// Only the authentication flow should call it.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"email": normalizeEmail(email)}, options.FindOne())
}

// FindByID fetches a user by id without the password hash.
func (r *UserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(withoutPassword))
}

// FindAll returns one page of users in insertion order and the total count.
func (r *UserRepo) FindAll(ctx context.Context, offset, limit int64) ([]model.User, int64, error) {
	var (
		users []model.User
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		opts := options.Find().
			SetProjection(withoutPassword).
			SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
			SetSkip(offset).
			SetLimit(limit)
		cur, err := r.coll.Find(gctx, bson.M{}, opts)
		if err != nil {
			return fmt.Errorf("find users: %w", err)
		}
		defer cur.Close(gctx)
		users = []model.User{}
		if err := cur.All(gctx, &users); err != nil {
			return fmt.Errorf("decode users: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if total, err = r.coll.CountDocuments(gctx, bson.M{}); err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// Update applies the non-nil fields of patch and returns the updated user
// without the password hash.
func (r *UserRepo) Update(ctx context.Context, id string, patch model.UserPatch) (*model.User, error) {
	set := bson.M{"updated_at": time.Now().UTC().Truncate(time.Millisecond)}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Email != nil {
		set["email"] = normalizeEmail(*patch.Email)
	}
	if patch.PasswordHash != nil {
		set["password_hash"] = *patch.PasswordHash
	}
	if patch.Address != nil {
		set["address"] = *patch.Address
	}
	if patch.Coordinates != nil {
		set["coordinates"] = *patch.Coordinates
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(withoutPassword)

	var u model.User
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("update user %s: %w", id, err)
	}
	return &u, nil
}

// Delete removes the user document.  Owned regions are not touched here.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AppendRegionReference pushes regionID onto the user's region list.
func (r *UserRepo) AppendRegionReference(ctx context.Context, userID, regionID string) error {
	return r.updateRefs(ctx, userID, bson.M{"$push": bson.M{"region_ids": regionID}})
}

// RemoveRegionReference pulls regionID out of the user's region list.
func (r *UserRepo) RemoveRegionReference(ctx context.Context, userID, regionID string) error {
	return r.updateRefs(ctx, userID, bson.M{"$pull": bson.M{"region_ids": regionID}})
}

func (r *UserRepo) updateRefs(ctx context.Context, userID string, update bson.M) error {
	update["$set"] = bson.M{"updated_at": time.Now().UTC().Truncate(time.Millisecond)}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return fmt.Errorf("update region refs of %s: %w", userID, err)
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepo) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*model.User, error) {
	var u model.User
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
