package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/apperrors"
	"storefront/internal/models"
)

// ErrDuplicateOrder is returned by Create when the user already placed an
// order with the same idempotency key.
var ErrDuplicateOrder = &apperrors.ConflictError{Message: "order already placed"}

// OrderFields selects whole top-level fields to overwrite. Nil fields are
// left untouched.
type OrderFields struct {
	PaymentState   *models.PaymentState
	Status         *models.OrderStatus
	PaymentDetails *models.PaymentDetails
}

func (f OrderFields) set(now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if f.PaymentState != nil {
		set["paymentState"] = *f.PaymentState
	}
	if f.Status != nil {
		set["status"] = *f.Status
	}
	if f.PaymentDetails != nil {
		set["paymentDetails"] = f.PaymentDetails
	}
	return set
}

type Orders struct {
	coll *mongo.Collection
}

func NewOrders(db *mongo.Database) *Orders {
	return &Orders{coll: db.Collection(ordersCollection)}
}

func (s *Orders) Create(ctx context.Context, order *models.Order) error {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	_, err := s.coll.InsertOne(ctx, order)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateOrder
	}
	return err
}

func (s *Orders) Get(ctx context.Context, id string) (models.Order, error) {
	oid, err := objectID("order", id)
	if err != nil {
		return models.Order{}, err
	}

	var order models.Order
	err = s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Order{}, apperrors.NotFound("order", id)
	}
	return order, err
}

// UpdateFields overwrites the selected fields and returns the updated order.
func (s *Orders) UpdateFields(ctx context.Context, id string, fields OrderFields) (models.Order, error) {
	oid, err := objectID("order", id)
	if err != nil {
		return models.Order{}, err
	}

	var order models.Order
	err = s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": fields.set(time.Now())},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Order{}, apperrors.NotFound("order", id)
	}
	return order, err
}

// TransitionPayment moves a pending order to a terminal payment state. The
// boolean reports whether this call made the transition; when the order was
// no longer pending the stored order is returned unchanged.
func (s *Orders) TransitionPayment(ctx context.Context, id string, to models.PaymentState, details *models.PaymentDetails) (models.Order, bool, error) {
	oid, err := objectID("order", id)
	if err != nil {
		return models.Order{}, false, err
	}

	fields := OrderFields{PaymentState: &to, PaymentDetails: details}
	if to == models.PaymentCancelled {
		status := models.StatusCancelled
		fields.Status = &status
	}

	var order models.Order
	err = s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "paymentState": models.PaymentPending},
		bson.M{"$set": fields.set(time.Now())},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&order)
	if err == nil {
		return order, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Order{}, false, err
	}

	order, err = s.Get(ctx, id)
	if err != nil {
		return models.Order{}, false, err
	}
	return order, false, nil
}

// DeletePending removes the order only while its payment is still pending.
func (s *Orders) DeletePending(ctx context.Context, id string) (bool, error) {
	oid, err := objectID("order", id)
	if err != nil {
		return false, err
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid, "paymentState": models.PaymentPending})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *Orders) Delete(ctx context.Context, id string) error {
	oid, err := objectID("order", id)
	if err != nil {
		return err
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperrors.NotFound("order", id)
	}
	return nil
}

func (s *Orders) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	oid, err := objectID("user", userID)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, bson.M{"userId": oid}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// ListAll returns one page of all orders, newest first, and the total count.
// A zero limit returns every order.
func (s *Orders) ListAll(ctx context.Context, page, limit int64) ([]models.Order, int64, error) {
	total, err := s.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		if page < 1 {
			page = 1
		}
		opts.SetSkip((page - 1) * limit).SetLimit(limit)
	}

	orders, err := s.find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (s *Orders) FindByIdempotencyKey(ctx context.Context, userID primitive.ObjectID, key string) (models.Order, error) {
	var order models.Order
	err := s.coll.FindOne(ctx, bson.M{"userId": userID, "idempotencyKey": key}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Order{}, apperrors.NotFound("order", key)
	}
	return order, err
}

func (s *Orders) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Order, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	orders := make([]models.Order, 0)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}
