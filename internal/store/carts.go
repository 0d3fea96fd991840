package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/apperrors"
	"storefront/internal/cart"
)

// Carts keeps each user's cart on the user document (cartData) next to a
// cartVersion counter bumped on every write.
type Carts struct {
	users *mongo.Collection
}

func NewCarts(db *mongo.Database) *Carts {
	return &Carts{users: db.Collection(usersCollection)}
}

type cartDocument struct {
	CartData    map[string]map[string]int64 `bson:"cartData"`
	CartVersion int64                       `bson:"cartVersion"`
}

func (s *Carts) Load(ctx context.Context, userID string) (cart.Snapshot, error) {
	oid, err := objectID("user", userID)
	if err != nil {
		return cart.Snapshot{}, err
	}

	var doc cartDocument
	err = s.users.FindOne(ctx, bson.M{"_id": oid},
		options.FindOne().SetProjection(bson.M{"cartData": 1, "cartVersion": 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return cart.Snapshot{}, apperrors.NotFound("user", userID)
	}
	if err != nil {
		return cart.Snapshot{}, err
	}

	return cart.Snapshot{Cart: cart.FromMap(doc.CartData), Version: doc.CartVersion}, nil
}

// Save replaces cartData when the stored version still equals
// expectedVersion. Documents written before versioning count as version 0.
func (s *Carts) Save(ctx context.Context, userID string, c cart.Cart, expectedVersion int64) (cart.Snapshot, error) {
	oid, err := objectID("user", userID)
	if err != nil {
		return cart.Snapshot{}, err
	}

	versionFilter := bson.M{"cartVersion": expectedVersion}
	if expectedVersion == 0 {
		versionFilter = bson.M{"$or": bson.A{
			bson.M{"cartVersion": int64(0)},
			bson.M{"cartVersion": bson.M{"$exists": false}},
		}}
	}
	filter := bson.M{"$and": bson.A{bson.M{"_id": oid}, versionFilter}}

	pruned := c.Pruned()
	update := bson.M{
		"$set": bson.M{"cartData": map[string]map[string]int64(pruned), "updatedAt": time.Now()},
		"$inc": bson.M{"cartVersion": 1},
	}

	res, err := s.users.UpdateOne(ctx, filter, update)
	if err != nil {
		return cart.Snapshot{}, err
	}
	if res.MatchedCount == 0 {
		count, err := s.users.CountDocuments(ctx, bson.M{"_id": oid})
		if err != nil {
			return cart.Snapshot{}, err
		}
		if count == 0 {
			return cart.Snapshot{}, apperrors.NotFound("user", userID)
		}
		return cart.Snapshot{}, cart.ErrVersionConflict
	}

	return cart.Snapshot{Cart: pruned, Version: expectedVersion + 1}, nil
}
