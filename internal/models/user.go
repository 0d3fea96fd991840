package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the storefront account. The server-side cart lives on the user
// document so that a login on a new device picks it up.
type User struct {
	ID           primitive.ObjectID          `bson:"_id,omitempty" json:"id"`
	Name         string                      `bson:"name" json:"name"`
	Email        string                      `bson:"email" json:"email"`
	PasswordHash string                      `bson:"passwordHash" json:"-"`
	Role         string                      `bson:"role" json:"role"`
	CartData     map[string]map[string]int64 `bson:"cartData" json:"cartData"`
	CartVersion  int64                       `bson:"cartVersion" json:"cartVersion"`
	CreatedAt    time.Time                   `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time                   `bson:"updatedAt" json:"updatedAt"`
}
