package models

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PaymentMethod string

const (
	PaymentCOD      PaymentMethod = "COD"
	PaymentStripe   PaymentMethod = "Stripe"
	PaymentRazorpay PaymentMethod = "Razorpay"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCOD, PaymentStripe, PaymentRazorpay:
		return true
	}
	return false
}

type PaymentState string

const (
	PaymentPending   PaymentState = "pending"
	PaymentConfirmed PaymentState = "confirmed"
	PaymentFailed    PaymentState = "failed"
	PaymentCancelled PaymentState = "cancelled"
)

// Terminal reports whether no further payment transition is allowed.
func (s PaymentState) Terminal() bool {
	return s == PaymentConfirmed || s == PaymentFailed || s == PaymentCancelled
}

type OrderStatus string

const (
	StatusPlaced         OrderStatus = "Order Placed"
	StatusProcessing     OrderStatus = "Processing"
	StatusShipped        OrderStatus = "Shipped"
	StatusOutForDelivery OrderStatus = "Out for delivery"
	StatusDelivered      OrderStatus = "Delivered"
	StatusCancelled      OrderStatus = "Cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPlaced, StatusProcessing, StatusShipped, StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// OrderLine captures one product+size of an order with the price at checkout time.
type OrderLine struct {
	ProductID string  `bson:"productId" json:"productId"`
	Name      string  `bson:"name" json:"name"`
	Price     float64 `bson:"price" json:"price"`
	Size      string  `bson:"size" json:"size"`
	Quantity  int64   `bson:"quantity" json:"quantity"`
}

// Address is the delivery address entered at checkout.
type Address struct {
	FirstName string `bson:"firstName" json:"firstName" validate:"required"`
	LastName  string `bson:"lastName" json:"lastName" validate:"required"`
	Email     string `bson:"email" json:"email" validate:"required"`
	Street    string `bson:"street" json:"street" validate:"required"`
	City      string `bson:"city" json:"city" validate:"required"`
	State     string `bson:"state" json:"state" validate:"required"`
	Zip       string `bson:"zipcode" json:"zipcode" validate:"required"`
	Country   string `bson:"country" json:"country" validate:"required"`
	Phone     string `bson:"phone" json:"phone" validate:"required"`
}

// PaymentDetails holds the provider identifiers of a payment: the checkout
// session or provider order created with the intent, and on confirmation the
// payment id and signature.
type PaymentDetails struct {
	ProviderSessionID string `bson:"providerSessionId,omitempty" json:"providerSessionId,omitempty"`
	ProviderOrderID   string `bson:"providerOrderId,omitempty" json:"providerOrderId,omitempty"`
	PaymentID         string `bson:"paymentId,omitempty" json:"paymentId,omitempty"`
	Signature         string `bson:"signature,omitempty" json:"signature,omitempty"`
	RedirectURL       string `bson:"redirectUrl,omitempty" json:"redirectUrl,omitempty"`
}

// Order defines the persisted order document.
type Order struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	UserID         primitive.ObjectID `bson:"userId" json:"userId"`
	Lines          []OrderLine        `bson:"items" json:"items"`
	Amount         float64            `bson:"amount" json:"amount"`
	Address        Address            `bson:"address" json:"address"`
	PaymentMethod  PaymentMethod      `bson:"paymentMethod" json:"paymentMethod"`
	PaymentState   PaymentState       `bson:"paymentState" json:"paymentState"`
	PaymentDetails *PaymentDetails    `bson:"paymentDetails,omitempty" json:"paymentDetails,omitempty"`
	Status         OrderStatus        `bson:"status" json:"status"`
	IdempotencyKey string             `bson:"idempotencyKey,omitempty" json:"-"`
	CreatedAt      time.Time          `bson:"createdAt" json:"date"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}


// MarshalJSON adds the derived "payment" flag storefront clients read to
// show an order as paid.
func (o Order) MarshalJSON() ([]byte, error) {
	type order Order
	return json.Marshal(struct {
		order
		Payment bool `json:"payment"`
	}{order(o), o.PaymentState == PaymentConfirmed})
}
