package service

import (
	"context"
	"math"
	"time"

	"github.com/iliyamo/geo-regions/internal/model"
	"github.com/iliyamo/geo-regions/internal/queue"
)

// RegionStore is the persistence contract for regions.  Implemented by
// repository.RegionRepo.
type RegionStore interface {
	Create(ctx context.Context, region *model.Region) error
	FindByGeometryIntersection(ctx context.Context, geometry model.Polygon) (*model.Region, error)
	FindIntersecting(ctx context.Context, geometry model.Polygon, limit int64) ([]model.Region, error)
	FindContainingPoint(ctx context.Context, point model.GeoPoint) ([]model.Region, error)
	FindNear(ctx context.Context, point model.GeoPoint, maxDistance float64, excludeOwnerID string) ([]model.Region, error)
	FindAll(ctx context.Context, offset, limit int64) ([]model.Region, int64, error)
	FindByID(ctx context.Context, id string) (*model.Region, error)
	Update(ctx context.Context, id string, patch model.RegionPatch) (*model.Region, error)
	Delete(ctx context.Context, id string) error
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
}

// UserStore is the persistence contract for users.  Implemented by
// repository.UserRepo.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindAll(ctx context.Context, offset, limit int64) ([]model.User, int64, error)
	Update(ctx context.Context, id string, patch model.UserPatch) (*model.User, error)
	Delete(ctx context.Context, id string) error
	AppendRegionReference(ctx context.Context, userID, regionID string) error
	RemoveRegionReference(ctx context.Context, userID, regionID string) error
}

// TokenStore persists refresh token hashes.  Implemented by
// repository.TokenRepo.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (string, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

// Transactor runs fn atomically.  Store calls made with the ctx passed to
// fn take part in the transaction.  Implemented by database.Transactor.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher receives lifecycle events after commit.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// Page is one page of a listing.
type Page[T any] struct {
	Rows  []T   `json:"rows"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

func pageBounds(page, pageSize int) (offset, limit int64, err error) {
	if page < 1 || pageSize < 1 {
		return 0, 0, InvalidInput("page and limit must be positive", nil)
	}
	if int64(page-1) > math.MaxInt64/int64(pageSize) {
		return 0, 0, InvalidInput("page is out of range", nil)
	}
	return int64(page-1) * int64(pageSize), int64(pageSize), nil
}
