package model

import "time"

// User represents an account as stored in the `users` collection.  The
// bson tags name the document fields; the json tags describe how the
// record leaves the API.  PasswordHash never leaves the process: it is
// tagged json:"-" and the repository projects it away on every read that
// is not part of authentication.
//
// Fields:
//
//	ID           – ObjectID hex string, generated on insert.
//	Name         – display name.
//	Email        – unique, stored lower-cased.
//	PasswordHash – bcrypt hash.
//	Address      – free-text address, derived from Coordinates when those were given.
//	Coordinates  – [lng, lat], derived from Address when that was given.
//	RegionIDs    – ids of regions owned by this user, in creation order.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           string    `bson:"_id" json:"id"`
	Name         string    `bson:"name" json:"name"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"password_hash,omitempty" json:"-"`
	Address      string    `bson:"address,omitempty" json:"address,omitempty"`
	Coordinates  *LngLat   `bson:"coordinates,omitempty" json:"coordinates,omitempty"`
	RegionIDs    []string  `bson:"region_ids" json:"region_ids"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// UserPatch carries a partial update.  Nil fields are left untouched.
// PasswordHash is filled by the service after hashing; callers never set
// it from request input.
type UserPatch struct {
	Name         *string
	Email        *string
	PasswordHash *string
	Address      *string
	Coordinates  *LngLat
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.PasswordHash == nil && p.Address == nil && p.Coordinates == nil
}

// RefreshToken models an entry in the `refresh_tokens` collection.  The
// plain token is not stored; only its SHA‑256 hash.
//
// Fields:
//
//	ID        – ObjectID hex string.
//	UserID    – owner of the token.
//	TokenHash – SHA‑256 hex digest of the token value.
//	ExpiresAt – expiration timestamp of the token.
//	RevokedAt – when the token was revoked (nil if still active).
//	CreatedAt – timestamp of creation.
type RefreshToken struct {
	ID        string     `bson:"_id"`
	UserID    string     `bson:"user_id"`
	TokenHash string     `bson:"token_hash"`
	ExpiresAt time.Time  `bson:"expires_at"`
	RevokedAt *time.Time `bson:"revoked_at,omitempty"`
	CreatedAt time.Time  `bson:"created_at"`
}
