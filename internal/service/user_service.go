package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/geo-regions/internal/geocode"
	"github.com/iliyamo/geo-regions/internal/model"
	"github.com/iliyamo/geo-regions/internal/queue"
	"github.com/iliyamo/geo-regions/internal/repository"
	"github.com/iliyamo/geo-regions/internal/utils"
)

// CreateUserInput is a registration request.  Exactly one of Address and
// Coordinates must be set; the other is derived through the geocoder.
type CreateUserInput struct {
	Name        string
	Email       string
	Password    string
	Address     string
	Coordinates *model.LngLat
}

// UpdateUserInput is a partial update.  Address and Coordinates are
// mutually exclusive.
type UpdateUserInput struct {
	Name        *string
	Email       *string
	Password    *string
	Address     *string
	Coordinates *model.LngLat
}

// UserService owns the user lifecycle, including the cascade that removes
// a user's regions together with the user.
type UserService struct {
	users      UserStore
	regions    RegionStore
	tx         Transactor
	geocoder   geocode.Geocoder
	bcryptCost int
	common
}

func NewUserService(users UserStore, regions RegionStore, tx Transactor, geocoder geocode.Geocoder, bcryptCost int, opts ...Option) *UserService {
	if users == nil || regions == nil || tx == nil || geocoder == nil {
		panic("nil dependency passed to NewUserService")
	}
	return &UserService{
		users:      users,
		regions:    regions,
		tx:         tx,
		geocoder:   geocoder,
		bcryptCost: bcryptCost,
		common:     newCommon(opts),
	}
}

// Create registers a user.  The returned user carries no password hash.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*model.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Address = strings.TrimSpace(in.Address)
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return nil, InvalidInput("name, email and password are required", nil)
	}
	hasAddress, hasCoords := in.Address != "", in.Coordinates != nil
	if hasAddress == hasCoords {
		return nil, InvalidInput("provide exactly one of address or coordinates", nil)
	}

	if _, err := s.users.FindByEmail(ctx, in.Email); err == nil {
		return nil, Conflict("user already exists")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, Internal("failed to create user", err)
	}

	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, Internal("failed to create user", err)
	}

	u := &model.User{Name: in.Name, Email: in.Email, PasswordHash: hash}
	if hasAddress {
		coords, err := s.coordinatesFor(ctx, in.Address)
		if err != nil {
			return nil, err
		}
		u.Address, u.Coordinates = in.Address, &coords
	} else {
		address, err := s.addressFor(ctx, *in.Coordinates)
		if err != nil {
			return nil, err
		}
		c := *in.Coordinates
		u.Address, u.Coordinates = address, &c
	}

	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, Conflict("user already exists")
		}
		return nil, Internal("failed to create user", err)
	}
	u.PasswordHash = ""

	s.metrics.IncUsersCreated()
	s.publish(ctx, queue.Event{Type: queue.UserCreated, UserID: u.ID, OccurredAt: time.Now().UTC()})
	return u, nil
}

// FindAll returns one page of users.  An empty collection is NotFound.
func (s *UserService) FindAll(ctx context.Context, page, pageSize int) (*Page[model.User], error) {
	offset, limit, err := pageBounds(page, pageSize)
	if err != nil {
		return nil, err
	}
	rows, total, err := s.users.FindAll(ctx, offset, limit)
	if err != nil {
		return nil, Internal("failed to list users", err)
	}
	if total == 0 {
		return nil, NotFound("no users found")
	}
	return &Page[model.User]{Rows: rows, Page: page, Limit: pageSize, Total: total}, nil
}

func (s *UserService) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, NotFound("user not found")
		}
		return nil, Internal("failed to load user", err)
	}
	return u, nil
}

// Update applies a partial update.  Changing the address re-derives the
// coordinates and vice versa.  Changing the password re-hashes it.
func (s *UserService) Update(ctx context.Context, id string, in UpdateUserInput) (*model.User, error) {
	if in.Address != nil && in.Coordinates != nil {
		return nil, InvalidInput("address and coordinates cannot be updated together", nil)
	}
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var patch model.UserPatch
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, InvalidInput("name must not be empty", nil)
		}
		patch.Name = &name
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if email == "" {
			return nil, InvalidInput("email must not be empty", nil)
		}
		if email != current.Email {
			other, err := s.users.FindByEmail(ctx, email)
			switch {
			case err == nil && other.ID != id:
				return nil, Conflict("email already in use")
			case err != nil && !errors.Is(err, repository.ErrUserNotFound):
				return nil, Internal("failed to update user", err)
			}
			patch.Email = &email
		}
	}
	if in.Password != nil {
		if *in.Password == "" {
			return nil, InvalidInput("password must not be empty", nil)
		}
		hash, err := utils.HashPassword(*in.Password, s.bcryptCost)
		if err != nil {
			return nil, Internal("failed to update user", err)
		}
		patch.PasswordHash = &hash
	}
	if in.Address != nil {
		address := strings.TrimSpace(*in.Address)
		if address == "" {
			return nil, InvalidInput("address must not be empty", nil)
		}
		coords, err := s.coordinatesFor(ctx, address)
		if err != nil {
			return nil, err
		}
		patch.Address, patch.Coordinates = &address, &coords
	}
	if in.Coordinates != nil {
		address, err := s.addressFor(ctx, *in.Coordinates)
		if err != nil {
			return nil, err
		}
		c := *in.Coordinates
		patch.Address, patch.Coordinates = &address, &c
	}
	if patch.Empty() {
		return current, nil
	}

	updated, err := s.users.Update(ctx, id, patch)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, NotFound("user not found")
		case errors.Is(err, repository.ErrEmailExists):
			return nil, Conflict("email already in use")
		}
		return nil, Internal("failed to update user", err)
	}
	return updated, nil
}

// Delete removes the user.  A user owning regions is deleted together with
// all of them in one transaction.
func (s *UserService) Delete(ctx context.Context, id string) error {
	u, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if len(u.RegionIDs) == 0 {
		if err := s.users.Delete(ctx, id); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return NotFound("user not found")
			}
			return Internal("failed to delete user", err)
		}
	} else {
		var removed int64
		err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			n, err := s.regions.DeleteByOwner(ctx, id)
			if err != nil {
				return err
			}
			removed = n
			return s.users.Delete(ctx, id)
		})
		if err != nil {
			s.txFailed("user.delete", err)
			return Internal("failed to delete user", err)
		}
		s.metrics.AddRegionsDeleted(int(removed))
	}

	s.metrics.IncUsersDeleted()
	s.publish(ctx, queue.Event{
		Type:       queue.UserDeleted,
		UserID:     id,
		RegionIDs:  u.RegionIDs,
		OccurredAt: time.Now().UTC(),
	})
	return nil
}

func (s *UserService) coordinatesFor(ctx context.Context, address string) (model.LngLat, error) {
	coords, err := s.geocoder.CoordinatesFromAddress(ctx, address)
	if err != nil {
		return model.LngLat{}, geocodeError(err)
	}
	return coords, nil
}

func (s *UserService) addressFor(ctx context.Context, pos model.LngLat) (string, error) {
	if !pos.InBounds() {
		return "", InvalidInput("coordinates out of bounds", geocode.ErrOutOfBounds)
	}
	address, err := s.geocoder.AddressFromCoordinates(ctx, pos)
	if err != nil {
		return "", geocodeError(err)
	}
	return address, nil
}

// geocodeError separates unresolvable input from provider outages.
func geocodeError(err error) error {
	if errors.Is(err, geocode.ErrNoResults) || errors.Is(err, geocode.ErrOutOfBounds) {
		return InvalidInput("could not resolve location", err)
	}
	return Internal("failed to resolve location", err)
}
