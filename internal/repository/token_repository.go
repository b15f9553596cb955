package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/iliyamo/geo-regions/internal/database"
	"github.com/iliyamo/geo-regions/internal/model"
)

// TokenRepo persists/validates refresh tokens (single 'token_hash' field).
type TokenRepo struct{ coll *mongo.Collection }

func NewTokenRepo(db *mongo.Database) *TokenRepo {
	return &TokenRepo{coll: db.Collection(database.RefreshTokensCollection)}
}

// StoreRefresh inserts a refresh token hash document.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID, tokenHash string, exp time.Time) error {
	_, err := r.coll.InsertOne(ctx, model.RefreshToken{
		ID:        primitive.NewObjectID().Hex(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: exp.UTC(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// ValidateRefresh returns userID if a non-revoked, non-expired token exists.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (string, error) {
	var tok model.RefreshToken
	if err := r.coll.FindOne(ctx, bson.M{"token_hash": tokenHash}).Decode(&tok); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrTokenNotFound
		}
		return "", fmt.Errorf("find refresh token: %w", err)
	}
	if tok.RevokedAt != nil {
		return "", ErrTokenNotFound
	}
	if time.Now().UTC().After(tok.ExpiresAt) {
		return "", ErrTokenNotFound
	}
	return tok.UserID, nil
}

// RevokeByHash marks a live token as revoked.  Only one caller can win for
// a given token; the rest get ErrTokenNotFound, as do callers holding an
// unknown or expired token.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	now := time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx,
		bson.M{
			"token_hash": tokenHash,
			"revoked_at": bson.M{"$exists": false},
			"expires_at": bson.M{"$gt": now},
		},
		bson.M{"$set": bson.M{"revoked_at": now}})
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// RevokeAllForUser revokes all user's active tokens.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.coll.UpdateMany(ctx,
		bson.M{"user_id": userID, "revoked_at": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"revoked_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("revoke refresh tokens of %s: %w", userID, err)
	}
	return nil
}
