// Package testutil provides in-memory stores and fakes for service and
// HTTP tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/geo-regions/internal/model"
	"github.com/iliyamo/geo-regions/internal/repository"
)

// Store is an in-memory stand-in for the Mongo collections.  Users,
// Regions and Tokens return views satisfying the service store
// interfaces; Store itself is the Transactor.  A failed transaction
// restores the state captured when it began.
type Store struct {
	mu      sync.Mutex
	seq     int
	users   map[string]model.User
	regions map[string]model.Region
	tokens  map[string]model.RefreshToken
	fail    map[string]error

	TxCalls int
}

func NewStore() *Store {
	return &Store{
		users:   map[string]model.User{},
		regions: map[string]model.Region{},
		tokens:  map[string]model.RefreshToken{},
		fail:    map[string]error{},
	}
}

// FailNext makes the next call to op return err.  op is "<view>.<Method>",
// for example "regions.Delete" or "users.AppendRegionReference".
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = err
}

func (s *Store) Users() *Users { return &Users{s} }
func (s *Store) Regions() *Regions { return &Regions{s} }
func (s *Store) Tokens() *Tokens { return &Tokens{s} }

// WithinTransaction runs fn and rolls back every change on error.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	s.TxCalls++
	users := cloneMap(s.users, cloneUser)
	regions := cloneMap(s.regions, cloneRegion)
	tokens := cloneMap(s.tokens, func(t model.RefreshToken) model.RefreshToken { return t })
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.users, s.regions, s.tokens = users, regions, tokens
		s.mu.Unlock()
		return err
	}
	return nil
}

// UserCount and RegionCount inspect raw state for assertions.
func (s *Store) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *Store) RegionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.regions)
}

// injected pops a failure registered with FailNext.  Caller holds s.mu.
func (s *Store) injected(op string) error {
	if err, ok := s.fail[op]; ok {
		delete(s.fail, op)
		return err
	}
	return nil
}

// take is injected for callers that do not hold s.mu.
func (s *Store) take(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.injected(op)
}

func (s *Store) nextID() string {
	s.seq++
	return fmt.Sprintf("%024x", s.seq)
}

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

// Users implements service.UserStore.
type Users struct{ s *Store }

func (u *Users) Create(_ context.Context, user *model.User) error {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("users.Create"); err != nil {
		return err
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return repository.ErrEmailExists
		}
	}
	if user.ID == "" {
		user.ID = s.nextID()
	}
	if user.RegionIDs == nil {
		user.RegionIDs = []string{}
	}
	user.CreatedAt, user.UpdatedAt = now(), now()
	s.users[user.ID] = cloneUser(*user)
	return nil
}

func (u *Users) FindByEmail(_ context.Context, email string) (*model.User, error) {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, existing := range s.users {
		if existing.Email == email {
			c := cloneUser(existing)
			return &c, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (u *Users) FindByID(_ context.Context, id string) (*model.User, error) {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("users.FindByID"); err != nil {
		return nil, err
	}
	existing, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	c := cloneUser(existing)
	c.PasswordHash = ""
	return &c, nil
}

func (u *Users) FindAll(_ context.Context, offset, limit int64) ([]model.User, int64, error) {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]model.User, 0, len(s.users))
	for _, existing := range s.users {
		c := cloneUser(existing)
		c.PasswordHash = ""
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	return pageOf(all, offset, limit), int64(len(all)), nil
}

func (u *Users) Update(_ context.Context, id string, patch model.UserPatch) (*model.User, error) {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("users.Update"); err != nil {
		return nil, err
	}
	existing, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	if patch.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*patch.Email))
		for otherID, other := range s.users {
			if otherID != id && other.Email == email {
				return nil, repository.ErrEmailExists
			}
		}
		existing.Email = email
	}
	if patch.Name != nil {
		existing.Name = *patch.Name
	}
	if patch.PasswordHash != nil {
		existing.PasswordHash = *patch.PasswordHash
	}
	if patch.Address != nil {
		existing.Address = *patch.Address
	}
	if patch.Coordinates != nil {
		c := *patch.Coordinates
		existing.Coordinates = &c
	}
	existing.UpdatedAt = now()
	s.users[id] = existing
	c := cloneUser(existing)
	c.PasswordHash = ""
	return &c, nil
}

func (u *Users) Delete(_ context.Context, id string) error {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("users.Delete"); err != nil {
		return err
	}
	if _, ok := s.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

func (u *Users) AppendRegionReference(_ context.Context, userID, regionID string) error {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("users.AppendRegionReference"); err != nil {
		return err
	}
	existing, ok := s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	existing.RegionIDs = append(append([]string{}, existing.RegionIDs...), regionID)
	s.users[userID] = existing
	return nil
}

func (u *Users) RemoveRegionReference(_ context.Context, userID, regionID string) error {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("users.RemoveRegionReference"); err != nil {
		return err
	}
	existing, ok := s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	kept := make([]string, 0, len(existing.RegionIDs))
	for _, id := range existing.RegionIDs {
		if id != regionID {
			kept = append(kept, id)
		}
	}
	existing.RegionIDs = kept
	s.users[userID] = existing
	return nil
}

// Regions implements service.RegionStore.  Geo predicates are planar
// approximations adequate for small test polygons.
type Regions struct{ s *Store }

func (r *Regions) Create(_ context.Context, region *model.Region) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("regions.Create"); err != nil {
		return err
	}
	if region.ID == "" {
		region.ID = s.nextID()
	}
	region.CreatedAt, region.UpdatedAt = now(), now()
	s.regions[region.ID] = cloneRegion(*region)
	return nil
}

func (r *Regions) FindByGeometryIntersection(ctx context.Context, geometry model.Polygon) (*model.Region, error) {
	found, err := r.FindIntersecting(ctx, geometry, 1)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, repository.ErrRegionNotFound
	}
	return &found[0], nil
}

func (r *Regions) FindIntersecting(_ context.Context, geometry model.Polygon, limit int64) ([]model.Region, error) {
	if err := r.s.take("regions.FindIntersecting"); err != nil {
		return nil, err
	}
	return r.filter(limit, func(reg model.Region) bool {
		return PolygonsIntersect(reg.Geometry, geometry)
	}), nil
}

func (r *Regions) FindContainingPoint(_ context.Context, point model.GeoPoint) ([]model.Region, error) {
	if err := r.s.take("regions.FindContainingPoint"); err != nil {
		return nil, err
	}
	return r.filter(0, func(reg model.Region) bool {
		return PolygonContains(reg.Geometry, point.Position())
	}), nil
}

func (r *Regions) FindNear(_ context.Context, point model.GeoPoint, maxDistance float64, excludeOwnerID string) ([]model.Region, error) {
	if err := r.s.take("regions.FindNear"); err != nil {
		return nil, err
	}
	type hit struct {
		region model.Region
		dist   float64
	}
	var hits []hit
	for _, reg := range r.filter(0, func(reg model.Region) bool {
		return excludeOwnerID == "" || reg.OwnerID != excludeOwnerID
	}) {
		if d := DistanceToPolygon(point.Position(), reg.Geometry); d <= maxDistance {
			hits = append(hits, hit{reg, d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	out := make([]model.Region, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.region)
	}
	return out, nil
}

func (r *Regions) FindAll(_ context.Context, offset, limit int64) ([]model.Region, int64, error) {
	all := r.filter(0, func(model.Region) bool { return true })
	return pageOf(all, offset, limit), int64(len(all)), nil
}

func (r *Regions) FindByID(_ context.Context, id string) (*model.Region, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.regions[id]
	if !ok {
		return nil, repository.ErrRegionNotFound
	}
	c := cloneRegion(reg)
	return &c, nil
}

func (r *Regions) Update(_ context.Context, id string, patch model.RegionPatch) (*model.Region, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("regions.Update"); err != nil {
		return nil, err
	}
	reg, ok := s.regions[id]
	if !ok {
		return nil, repository.ErrRegionNotFound
	}
	if patch.Name != nil {
		reg.Name = *patch.Name
	}
	if patch.Geometry != nil {
		reg.Geometry = clonePolygon(*patch.Geometry)
	}
	reg.UpdatedAt = now()
	s.regions[id] = reg
	c := cloneRegion(reg)
	return &c, nil
}

func (r *Regions) Delete(_ context.Context, id string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("regions.Delete"); err != nil {
		return err
	}
	if _, ok := s.regions[id]; !ok {
		return repository.ErrRegionNotFound
	}
	delete(s.regions, id)
	return nil
}

func (r *Regions) DeleteByOwner(_ context.Context, ownerID string) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("regions.DeleteByOwner"); err != nil {
		return 0, err
	}
	var n int64
	for id, reg := range s.regions {
		if reg.OwnerID == ownerID {
			delete(s.regions, id)
			n++
		}
	}
	return n, nil
}

// filter returns matching regions in insertion order.
func (r *Regions) filter(limit int64, keep func(model.Region) bool) []model.Region {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Region{}
	for _, reg := range s.regions {
		if keep(reg) {
			out = append(out, cloneRegion(reg))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out
}

// Tokens implements service.TokenStore.
type Tokens struct{ s *Store }

func (t *Tokens) StoreRefresh(_ context.Context, userID, tokenHash string, exp time.Time) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tokenHash] = model.RefreshToken{
		ID:        s.nextID(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: exp,
		CreatedAt: now(),
	}
	return nil
}

func (t *Tokens) ValidateRefresh(_ context.Context, tokenHash string) (string, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[tokenHash]
	if !ok || tok.RevokedAt != nil || !tok.ExpiresAt.After(time.Now()) {
		return "", repository.ErrTokenNotFound
	}
	return tok.UserID, nil
}

func (t *Tokens) RevokeByHash(_ context.Context, tokenHash string) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[tokenHash]
	if !ok || tok.RevokedAt != nil || !tok.ExpiresAt.After(time.Now()) {
		return repository.ErrTokenNotFound
	}
	at := now()
	tok.RevokedAt = &at
	s.tokens[tokenHash] = tok
	return nil
}

func (t *Tokens) RevokeAllForUser(_ context.Context, userID string) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	at := now()
	for hash, tok := range s.tokens {
		if tok.UserID == userID && tok.RevokedAt == nil {
			tok.RevokedAt = &at
			s.tokens[hash] = tok
		}
	}
	return nil
}

func pageOf[T any](all []T, offset, limit int64) []T {
	if offset >= int64(len(all)) {
		return []T{}
	}
	end := int64(len(all))
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end]
}

func cloneMap[V any](m map[string]V, clone func(V) V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = clone(v)
	}
	return out
}

func cloneUser(u model.User) model.User {
	u.RegionIDs = append([]string{}, u.RegionIDs...)
	if u.Coordinates != nil {
		c := *u.Coordinates
		u.Coordinates = &c
	}
	return u
}

func cloneRegion(r model.Region) model.Region {
	r.Geometry = clonePolygon(r.Geometry)
	return r
}

func clonePolygon(p model.Polygon) model.Polygon {
	rings := make([][]model.LngLat, len(p.Coordinates))
	for i, ring := range p.Coordinates {
		rings[i] = append([]model.LngLat{}, ring...)
	}
	p.Coordinates = rings
	return p
}
