package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/geo-regions/internal/model"
	"github.com/iliyamo/geo-regions/internal/queue"
	"github.com/iliyamo/geo-regions/internal/repository"
)

// DuplicatePolicy decides when a new or reshaped region collides with an
// existing one.
type DuplicatePolicy string

const (
	// DuplicateOverlap treats any geo-intersecting region as a duplicate.
	DuplicateOverlap DuplicatePolicy = "overlap"
	// DuplicateExact only rejects regions with an identical polygon.
	DuplicateExact DuplicatePolicy = "exact"
)

// ParseDuplicatePolicy accepts "overlap", "exact" or "" (overlap).
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DuplicateOverlap:
		return DuplicateOverlap, nil
	case DuplicateExact:
		return DuplicateExact, nil
	}
	return "", fmt.Errorf("unknown duplicate policy %q", s)
}

// RegionService owns the region lifecycle: uniqueness, ownership and the
// owner's region list, which it keeps in step with the regions collection
// by pairing every insert and delete with the reference update in one
// transaction.
type RegionService struct {
	regions RegionStore
	users   UserStore
	tx      Transactor
	policy  DuplicatePolicy
	common
}

func NewRegionService(regions RegionStore, users UserStore, tx Transactor, policy DuplicatePolicy, opts ...Option) *RegionService {
	if regions == nil || users == nil || tx == nil {
		panic("nil dependency passed to NewRegionService")
	}
	if policy == "" {
		policy = DuplicateOverlap
	}
	return &RegionService{regions: regions, users: users, tx: tx, policy: policy, common: newCommon(opts)}
}

// Create stores a region owned by ownerID and appends it to the owner's
// region list atomically.
func (s *RegionService) Create(ctx context.Context, name string, geometry model.Polygon, ownerID string) (*model.Region, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, InvalidInput("name is required", nil)
	}
	if err := geometry.Validate(); err != nil {
		return nil, InvalidInput(err.Error(), err)
	}
	if _, err := s.users.FindByID(ctx, ownerID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, NotFound("user not found")
		}
		return nil, Internal("failed to create region", err)
	}

	dup, err := s.isDuplicate(ctx, geometry, "")
	if err != nil {
		return nil, geoFailure(errBadGeometry, "failed to create region", err)
	}
	if dup {
		return nil, Conflict("region already exists")
	}

	region := &model.Region{Name: name, Geometry: geometry, OwnerID: ownerID}
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.regions.Create(ctx, region); err != nil {
			return err
		}
		return s.users.AppendRegionReference(ctx, ownerID, region.ID)
	})
	if err != nil {
		s.txFailed("region.create", err)
		return nil, geoFailure(errBadGeometry, "failed to create region", err)
	}

	s.metrics.IncRegionsCreated()
	s.publish(ctx, queue.Event{
		Type:       queue.RegionCreated,
		UserID:     ownerID,
		RegionID:   region.ID,
		RegionName: region.Name,
		OccurredAt: time.Now().UTC(),
	})
	return region, nil
}

// FindAll returns one page of regions.  An empty collection is reported as
// NotFound rather than an empty page.
func (s *RegionService) FindAll(ctx context.Context, page, pageSize int) (*Page[model.Region], error) {
	offset, limit, err := pageBounds(page, pageSize)
	if err != nil {
		return nil, err
	}
	rows, total, err := s.regions.FindAll(ctx, offset, limit)
	if err != nil {
		return nil, Internal("failed to list regions", err)
	}
	if total == 0 {
		return nil, NotFound("no regions found")
	}
	return &Page[model.Region]{Rows: rows, Page: page, Limit: pageSize, Total: total}, nil
}

func (s *RegionService) FindByID(ctx context.Context, id string) (*model.Region, error) {
	region, err := s.regions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRegionNotFound) {
			return nil, NotFound("region not found")
		}
		return nil, Internal("failed to load region", err)
	}
	return region, nil
}

// FindContainingPoint returns the regions containing the "lng,lat" point.
func (s *RegionService) FindContainingPoint(ctx context.Context, pointText string) ([]model.Region, error) {
	point, err := model.ParsePoint(pointText)
	if err != nil {
		return nil, InvalidInput("point must be \"lng,lat\"", err)
	}
	regions, err := s.regions.FindContainingPoint(ctx, point)
	if err != nil {
		return nil, geoFailure(errBadPoint, "failed to query regions", err)
	}
	if len(regions) == 0 {
		return nil, NotFound("regions not found")
	}
	return regions, nil
}

// FindNear returns regions within maxDistance meters of the point, nearest
// first.  With excludeOwn the requesting user's own regions are left out.
func (s *RegionService) FindNear(ctx context.Context, pointText string, maxDistance float64, requestingUserID string, excludeOwn bool) ([]model.Region, error) {
	point, err := model.ParsePoint(pointText)
	if err != nil {
		return nil, InvalidInput("point must be \"lng,lat\"", err)
	}
	if !(maxDistance > 0) {
		return nil, InvalidInput("distance must be a positive number of meters", nil)
	}
	exclude := ""
	if excludeOwn {
		exclude = requestingUserID
	}
	regions, err := s.regions.FindNear(ctx, point, maxDistance, exclude)
	if err != nil {
		return nil, geoFailure(errBadPoint, "failed to query regions", err)
	}
	if len(regions) == 0 {
		return nil, NotFound("regions not found")
	}
	return regions, nil
}

// Update changes name and/or geometry.  Only the owner may update.
func (s *RegionService) Update(ctx context.Context, id string, patch model.RegionPatch, requestingUserID string) (*model.Region, error) {
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.OwnerID != requestingUserID {
		return nil, Unauthorized("you do not own this region")
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, InvalidInput("name must not be empty", nil)
		}
		patch.Name = &name
	}
	if patch.Geometry != nil {
		if err := patch.Geometry.Validate(); err != nil {
			return nil, InvalidInput(err.Error(), err)
		}
		if !patch.Geometry.Equal(current.Geometry) {
			dup, err := s.isDuplicate(ctx, *patch.Geometry, id)
			if err != nil {
				return nil, geoFailure(errBadGeometry, "failed to update region", err)
			}
			if dup {
				return nil, Conflict("region already exists")
			}
		}
	}
	if patch.Empty() {
		return current, nil
	}

	updated, err := s.regions.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, repository.ErrRegionNotFound) {
			return nil, NotFound("region not found")
		}
		return nil, geoFailure(errBadGeometry, "failed to update region", err)
	}
	return updated, nil
}

// Delete removes a region and pulls it from the owner's region list in one
// transaction.  Only the owner may delete.
func (s *RegionService) Delete(ctx context.Context, id, requestingUserID string) error {
	region, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if region.OwnerID != requestingUserID {
		return Unauthorized("you do not own this region")
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.users.RemoveRegionReference(ctx, region.OwnerID, region.ID); err != nil {
			return err
		}
		return s.regions.Delete(ctx, region.ID)
	})
	if err != nil {
		s.txFailed("region.delete", err)
		return Internal("failed to delete region", err)
	}

	s.metrics.AddRegionsDeleted(1)
	s.publish(ctx, queue.Event{
		Type:       queue.RegionDeleted,
		UserID:     region.OwnerID,
		RegionID:   region.ID,
		RegionName: region.Name,
		OccurredAt: time.Now().UTC(),
	})
	return nil
}

const (
	errBadGeometry = "geometry was rejected by the geo index"
	errBadPoint    = "point is outside the valid coordinate range"
)

// geoFailure reports shapes and points the database refuses as caller
// input; anything else stays internal.
func geoFailure(invalidMsg, internalMsg string, err error) *Error {
	if errors.Is(err, repository.ErrInvalidGeometry) {
		return InvalidInput(invalidMsg, err)
	}
	return Internal(internalMsg, err)
}

// isDuplicate applies the configured policy.  excludeID skips the region
// being reshaped.
func (s *RegionService) isDuplicate(ctx context.Context, geometry model.Polygon, excludeID string) (bool, error) {
	if s.policy == DuplicateOverlap && excludeID == "" {
		_, err := s.regions.FindByGeometryIntersection(ctx, geometry)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, repository.ErrRegionNotFound):
			return false, nil
		default:
			return false, err
		}
	}

	var limit int64
	if s.policy == DuplicateOverlap {
		limit = 2 // the region itself plus one other is enough
	}
	candidates, err := s.regions.FindIntersecting(ctx, geometry, limit)
	if err != nil {
		return false, err
	}
	for _, c := range candidates {
		if c.ID == excludeID {
			continue
		}
		if s.policy == DuplicateOverlap || c.Geometry.Equal(geometry) {
			return true, nil
		}
	}
	return false, nil
}
