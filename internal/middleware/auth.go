package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/models"
)

const (
	userIDKey = "userId"
	roleKey   = "role"
)

var errNotAuthorized = errors.New("not authorized, login again")

// AuthGuard validates the session token and injects userId and role into the
// context. With allowedRoles set, other roles are rejected with 403.
func AuthGuard(secret string, logger *zap.Logger, allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := sessionToken(c)
		if !ok {
			logger.Debug("missing token", zap.String("path", c.FullPath()))
			abort(c, http.StatusUnauthorized, errNotAuthorized)
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			logger.Info("token validation failed", zap.Error(err))
			abort(c, http.StatusUnauthorized, errNotAuthorized)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abort(c, http.StatusUnauthorized, errNotAuthorized)
			return
		}

		userIDValue, _ := claims[userIDKey].(string)
		userID, err := primitive.ObjectIDFromHex(strings.TrimSpace(userIDValue))
		if err != nil {
			logger.Info("userId claim invalid")
			abort(c, http.StatusUnauthorized, errNotAuthorized)
			return
		}

		role, _ := claims[roleKey].(string)
		if role == "" {
			role = models.RoleUser
		}
		if len(allowedRoles) > 0 {
			match := false
			for _, r := range allowedRoles {
				if role == r {
					match = true
					break
				}
			}
			if !match {
				abort(c, http.StatusForbidden, errors.New("forbidden"))
				return
			}
		}

		c.Set(userIDKey, userID)
		c.Set(roleKey, role)
		c.Next()
	}
}

func AdminAuth(secret string, logger *zap.Logger) gin.HandlerFunc {
	return AuthGuard(secret, logger, models.RoleAdmin)
}

// sessionToken reads the token from the "token" header the storefront sends,
// falling back to "Authorization: Bearer".
func sessionToken(c *gin.Context) (string, bool) {
	if raw := strings.TrimSpace(c.GetHeader("token")); raw != "" {
		return raw, true
	}

	raw := strings.TrimSpace(c.GetHeader("Authorization"))
	parts := strings.Fields(raw)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": err.Error()})
}
