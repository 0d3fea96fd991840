package handlers

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/apperrors"
	"storefront/internal/models"
)

// AuthSettings carries the token configuration shared by the auth handlers.
type AuthSettings struct {
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

var errInvalidCredentials = &apperrors.AuthRequiredError{Message: "invalid credentials"}

func Register(db *mongo.Database, auth AuthSettings, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("auth")
	return func(c *gin.Context) {
		const route = "POST /api/user/register"
		defer handlePanic(c, logger, route)

		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, logger, route, err)
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))
		name := strings.TrimSpace(req.Name)
		if name == "" {
			respondWithError(c, logger, route, apperrors.Validation("name is required"))
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		count, err := db.Collection("users").CountDocuments(ctx, bson.M{"email": email})
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}
		if count > 0 {
			respondWithError(c, logger, route, &apperrors.ConflictError{Message: "user already exists"})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		now := time.Now()
		user := models.User{
			ID:           primitive.NewObjectID(),
			Name:         name,
			Email:        email,
			PasswordHash: string(hash),
			Role:         models.RoleUser,
			CartData:     map[string]map[string]int64{},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if _, err := db.Collection("users").InsertOne(ctx, user); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				err = &apperrors.ConflictError{Message: "user already exists"}
			}
			respondWithError(c, logger, route, err)
			return
		}

		token, err := issueAccessToken(user, auth)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		logger.Info("user registered", zap.String("userId", user.ID.Hex()))
		c.JSON(http.StatusCreated, gin.H{"success": true, "token": token})
	}
}

func Login(db *mongo.Database, auth AuthSettings, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("auth")
	return func(c *gin.Context) {
		const route = "POST /api/user/login"
		defer handlePanic(c, logger, route)

		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, logger, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		user, err := authenticate(ctx, db, req, "")
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		tokens, err := issueTokens(ctx, db, user, auth)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		logger.Info("user login succeeded", zap.String("userId", user.ID.Hex()))
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"token":        tokens.AccessToken,
			"refreshToken": tokens.RefreshToken,
			"expiresIn":    tokens.ExpiresIn,
		})
	}
}

func Refresh(db *mongo.Database, auth AuthSettings, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("auth")
	return func(c *gin.Context) {
		const route = "POST /api/user/refresh"
		defer handlePanic(c, logger, route)

		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, logger, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		var token models.RefreshToken
		if err := db.Collection("refresh_tokens").FindOne(ctx, bson.M{
			"tokenHash": hashToken(strings.TrimSpace(req.RefreshToken)),
			"revoked":   false,
		}).Decode(&token); err != nil {
			respondWithError(c, logger, route, &apperrors.AuthRequiredError{Message: "invalid refresh token"})
			return
		}

		if time.Now().After(token.ExpiresAt) {
			_, _ = db.Collection("refresh_tokens").UpdateByID(ctx, token.ID, bson.M{"$set": bson.M{"revoked": true}})
			respondWithError(c, logger, route, &apperrors.AuthRequiredError{Message: "refresh token expired"})
			return
		}

		var user models.User
		if err := db.Collection("users").FindOne(ctx, bson.M{"_id": token.UserID}).Decode(&user); err != nil {
			respondWithError(c, logger, route, &apperrors.AuthRequiredError{Message: "user not found"})
			return
		}

		tokens, err := issueTokens(ctx, db, user, auth)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		_, _ = db.Collection("refresh_tokens").UpdateByID(ctx, token.ID, bson.M{
			"$set": bson.M{
				"revoked":         true,
				"replacedByToken": tokens.RefreshTokenID,
			},
		})

		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"token":        tokens.AccessToken,
			"refreshToken": tokens.RefreshToken,
			"expiresIn":    tokens.ExpiresIn,
		})
	}
}

func Logout(db *mongo.Database, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("auth")
	return func(c *gin.Context) {
		const route = "POST /api/user/logout"
		defer handlePanic(c, logger, route)

		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, logger, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		res, err := db.Collection("refresh_tokens").UpdateOne(ctx, bson.M{
			"tokenHash": hashToken(strings.TrimSpace(req.RefreshToken)),
			"revoked":   false,
		}, bson.M{"$set": bson.M{"revoked": true}})
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}
		if res.MatchedCount == 0 {
			respondWithError(c, logger, route, &apperrors.AuthRequiredError{Message: "invalid refresh token"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "message": "logged out"})
	}
}

// authenticate checks email and password. A non-empty role restricts the
// accounts that may log in.
func authenticate(ctx context.Context, db *mongo.Database, req LoginRequest, role string) (models.User, error) {
	filter := bson.M{"email": strings.ToLower(strings.TrimSpace(req.Email))}
	if role != "" {
		filter["role"] = role
	}

	var user models.User
	err := db.Collection("users").FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, errInvalidCredentials
	}
	if err != nil {
		return models.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return models.User{}, errInvalidCredentials
	}
	return user, nil
}

func issueAccessToken(user models.User, auth AuthSettings) (string, error) {
	role := user.Role
	if role == "" {
		role = models.RoleUser
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"userId": user.ID.Hex(),
		"role":   role,
		"email":  user.Email,
		"iat":    now.Unix(),
		"exp":    now.Add(auth.AccessTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(auth.JWTSecret))
}

type issuedTokens struct {
	AccessToken    string
	RefreshToken   string
	RefreshTokenID primitive.ObjectID
	ExpiresIn      int64
}

func issueTokens(ctx context.Context, db *mongo.Database, user models.User, auth AuthSettings) (*issuedTokens, error) {
	accessToken, err := issueAccessToken(user, auth)
	if err != nil {
		return nil, err
	}

	plainRefresh, err := generateRefreshString()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	refresh := models.RefreshToken{
		ID:        primitive.NewObjectID(),
		UserID:    user.ID,
		TokenHash: hashToken(plainRefresh),
		ExpiresAt: now.Add(auth.RefreshTTL),
		CreatedAt: now,
	}
	if _, err := db.Collection("refresh_tokens").InsertOne(ctx, refresh); err != nil {
		return nil, err
	}

	return &issuedTokens{
		AccessToken:    accessToken,
		RefreshToken:   plainRefresh,
		RefreshTokenID: refresh.ID,
		ExpiresIn:      int64(auth.AccessTTL.Seconds()),
	}, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateRefreshString() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
