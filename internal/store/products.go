package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/apperrors"
	"storefront/internal/catalog"
	"storefront/internal/models"
)

type Products struct {
	coll *mongo.Collection
}

func NewProducts(db *mongo.Database) *Products {
	return &Products{coll: db.Collection(productsCollection)}
}

var activeProducts = bson.M{"isDeleted": bson.M{"$ne": true}}

// List returns every product that is not soft-deleted, newest first.
func (s *Products) List(ctx context.Context) ([]models.Product, error) {
	cursor, err := s.coll.Find(ctx, activeProducts,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	return decodeProducts(ctx, cursor)
}

func (s *Products) Get(ctx context.Context, id string) (models.Product, error) {
	oid, err := objectID("product", id)
	if err != nil {
		return models.Product{}, err
	}

	var raw bson.M
	err = s.coll.FindOne(ctx, bson.M{"_id": oid, "isDeleted": bson.M{"$ne": true}}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Product{}, apperrors.NotFound("product", id)
	}
	if err != nil {
		return models.Product{}, err
	}
	return normalizeProductDocument(raw)
}

// FindByIDs loads the given products into a catalog snapshot. Unknown and
// malformed ids are skipped.
func (s *Products) FindByIDs(ctx context.Context, ids []string) (catalog.Snapshot, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
		if err != nil {
			continue
		}
		oids = append(oids, oid)
	}
	if len(oids) == 0 {
		return catalog.Snapshot{}, nil
	}

	cursor, err := s.coll.Find(ctx, bson.M{
		"_id":       bson.M{"$in": oids},
		"isDeleted": bson.M{"$ne": true},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	products, err := decodeProducts(ctx, cursor)
	if err != nil {
		return nil, err
	}
	return catalog.NewSnapshot(products), nil
}

func (s *Products) Create(ctx context.Context, product *models.Product) error {
	if product.ID.IsZero() {
		product.ID = primitive.NewObjectID()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now()
	}
	_, err := s.coll.InsertOne(ctx, product)
	return err
}

// Delete soft-deletes a product so existing orders keep resolving it.
func (s *Products) Delete(ctx context.Context, id string) error {
	oid, err := objectID("product", id)
	if err != nil {
		return err
	}

	now := time.Now()
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "isDeleted": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"isDeleted": true, "deletedAt": now}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("product", id)
	}
	return nil
}

// normalizeProductDocument accepts documents written by the previous
// storefront: bestseller stored as a string, prices stored as strings and
// the creation time stored as epoch milliseconds in "date".
func normalizeProductDocument(raw bson.M) (models.Product, error) {
	switch typed := raw["bestseller"].(type) {
	case bool:
	case string:
		raw["bestseller"] = strings.EqualFold(strings.TrimSpace(typed), "true")
	default:
		raw["bestseller"] = false
	}

	if typed, ok := raw["price"].(string); ok {
		price, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			price = 0
		}
		raw["price"] = price
	}

	if _, ok := raw["createdAt"]; !ok {
		if ms, ok := epochMillis(raw["date"]); ok {
			raw["createdAt"] = primitive.NewDateTimeFromTime(time.UnixMilli(ms))
		}
	}

	data, err := bson.Marshal(raw)
	if err != nil {
		return models.Product{}, err
	}

	var p models.Product
	if err := bson.Unmarshal(data, &p); err != nil {
		return models.Product{}, err
	}
	return p, nil
}

func epochMillis(value interface{}) (int64, bool) {
	switch typed := value.(type) {
	case int32:
		return int64(typed), true
	case int64:
		return typed, true
	case float64:
		return int64(typed), true
	}
	return 0, false
}

func decodeProducts(ctx context.Context, cursor *mongo.Cursor) ([]models.Product, error) {
	products := make([]models.Product, 0)

	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}

		product, err := normalizeProductDocument(raw)
		if err != nil {
			return nil, err
		}

		products = append(products, product)
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return products, nil
}
