package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// EnsureIndexes creates the indexes every collection relies on. Failures are
// logged and the first one is returned; the server keeps running without them.
func EnsureIndexes(db *mongo.Database, logger *zap.Logger) error {
	var firstErr error
	for _, ensure := range []func(*mongo.Database, *zap.Logger) error{
		EnsureProductIndexes,
		EnsureUserIndexes,
		EnsureOrderIndexes,
	} {
		if err := ensure(db, logger); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func EnsureProductIndexes(db *mongo.Database, logger *zap.Logger) error {
	return createIndexes(db, logger, "products", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("createdAt_desc"),
		},
		{
			Keys:    bson.D{{Key: "category", Value: 1}, {Key: "subCategory", Value: 1}},
			Options: options.Index().SetName("category_subCategory"),
		},
	})
}

func EnsureUserIndexes(db *mongo.Database, logger *zap.Logger) error {
	if err := createIndexes(db, logger, "users", []mongo.IndexModel{{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("email_unique").SetUnique(true),
	}}); err != nil {
		return err
	}
	return createIndexes(db, logger, "refresh_tokens", []mongo.IndexModel{{
		Keys:    bson.D{{Key: "tokenHash", Value: 1}},
		Options: options.Index().SetName("tokenHash_unique").SetUnique(true),
	}})
}

func EnsureOrderIndexes(db *mongo.Database, logger *zap.Logger) error {
	return createIndexes(db, logger, "orders", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().SetName("userId_index"),
		},
		{
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "idempotencyKey", Value: 1}},
			Options: options.Index().
				SetName("userId_idempotencyKey_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"idempotencyKey": bson.M{"$exists": true},
				}),
		},
	})
}

func createIndexes(db *mongo.Database, logger *zap.Logger, collection string, models []mongo.IndexModel) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	names, err := db.Collection(collection).Indexes().CreateMany(ctx, models)
	if err != nil {
		logger.Warn("index creation failed", zap.String("collection", collection), zap.Error(err))
		return err
	}
	logger.Info("indexes ensured", zap.String("collection", collection), zap.Strings("indexes", names))
	return nil
}
