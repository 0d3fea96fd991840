// Package store persists products, carts and orders in MongoDB.
package store

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperrors"
)

const (
	productsCollection = "products"
	usersCollection    = "users"
	ordersCollection   = "orders"
)

func objectID(resource, id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperrors.NotFound(resource, id)
	}
	return oid, nil
}
