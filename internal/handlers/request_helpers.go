package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"storefront/internal/apperrors"
	"storefront/internal/middleware"
)

var requestTimeout = 5 * time.Second

// SetRequestTimeout bounds the store calls a single request may make.
// Non-positive values keep the current bound.
func SetRequestTimeout(d time.Duration) {
	if d > 0 {
		requestTimeout = d
	}
}

func handlePanic(c *gin.Context, logger *zap.Logger, route string) {
	if r := recover(); r != nil {
		logger.Error("panic recovered", zap.String("route", route), zap.Any("panic", r))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal server error"})
	}
}

func ensureDBConnection(ctx context.Context, db *mongo.Database) error {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return db.Client().Ping(checkCtx, readpref.Primary())
}

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// currentUser returns the user set by the auth middleware.
func currentUser(c *gin.Context) (primitive.ObjectID, error) {
	id, ok := middleware.UserID(c)
	if !ok || id.IsZero() {
		return primitive.NilObjectID, &apperrors.AuthRequiredError{Message: "not authorized, login again"}
	}
	return id, nil
}

// respondWithError answers with the status of the error's kind. Provider
// failures get a retry prompt instead of the provider's message.
func respondWithError(c *gin.Context, logger *zap.Logger, route string, err error) {
	status := apperrors.HTTPStatus(err)
	message := err.Error()

	var providerErr *apperrors.ProviderError
	if errors.As(err, &providerErr) {
		message = "payment provider unavailable, please try again"
	}

	fields := []zap.Field{zap.String("route", route), zap.Int("status", status), zap.Error(err)}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", fields...)
	} else {
		logger.Info("request rejected", fields...)
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

// respondValidationError turns binding errors into a ValidationError naming
// the offending fields.
func respondValidationError(c *gin.Context, logger *zap.Logger, route string, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			field := lowerCamel(fieldError.Field())
			switch fieldError.Tag() {
			case "required":
				details = append(details, fmt.Sprintf("%s is required", field))
			case "email":
				details = append(details, "enter a valid email")
			case "min":
				details = append(details, fmt.Sprintf("%s must be at least %s characters", field, fieldError.Param()))
			default:
				details = append(details, fmt.Sprintf("%s is invalid", field))
			}
		}
		respondWithError(c, logger, route, apperrors.Validation(strings.Join(details, ", ")))
		return
	}

	respondWithError(c, logger, route, apperrors.Validation("invalid body"))
}

func lowerCamel(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
