// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// lifecycle services to distinguish between different failure scenarios
// without inspecting driver errors.
package repository

import "errors"

// ErrRegionNotFound is returned when no region matches the lookup.
var ErrRegionNotFound = errors.New("region not found")

// ErrUserNotFound is returned when no user matches the lookup, including
// reference updates targeting a user that no longer exists.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailExists is returned when the unique email index rejects a write.
var ErrEmailExists = errors.New("email already exists")

// ErrTokenNotFound is returned when a refresh token is unknown, expired or
// revoked.
var ErrTokenNotFound = errors.New("refresh token not found")

// ErrInvalidGeometry is returned when Mongo refuses a shape or query point
// that the model checks let through.
var ErrInvalidGeometry = errors.New("invalid geometry")
