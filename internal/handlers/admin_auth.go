package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/models"
)

// AdminLogin issues an admin-role token to a user stored with role=admin.
func AdminLogin(db *mongo.Database, auth AuthSettings, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("auth")
	return func(c *gin.Context) {
		const route = "POST /api/user/admin"
		defer handlePanic(c, logger, route)

		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, logger, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		admin, err := authenticate(ctx, db, req, models.RoleAdmin)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		token, err := issueAccessToken(admin, auth)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		logger.Info("admin login succeeded", zap.String("userId", admin.ID.Hex()))
		c.JSON(http.StatusOK, gin.H{"success": true, "token": token})
	}
}

// SeedAdmin creates or updates the admin account from ADMIN_EMAIL and
// ADMIN_PASSWORD.
func SeedAdmin(ctx context.Context, db *mongo.Database, email, password string, logger *zap.Logger) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = db.Collection("users").UpdateOne(ctx,
		bson.M{"email": email},
		bson.M{
			"$set": bson.M{
				"passwordHash": string(hash),
				"role":         models.RoleAdmin,
				"updatedAt":    now,
			},
			"$setOnInsert": bson.M{
				"name":        "Admin",
				"cartData":    bson.M{},
				"cartVersion": int64(0),
				"createdAt":   now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return err
	}

	logger.Info("admin account ensured", zap.String("email", email))
	return nil
}
