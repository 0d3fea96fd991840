package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/middleware"
	"storefront/internal/models"
)

func TestIssueAccessTokenClaims(t *testing.T) {
	user := models.User{ID: primitive.NewObjectID(), Email: "jane@example.com"}
	raw, err := issueAccessToken(user, testAuth)
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)

	assert.Equal(t, user.ID.Hex(), claims["userId"])
	assert.Equal(t, models.RoleUser, claims["role"])
	assert.Equal(t, "jane@example.com", claims["email"])
	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp.Time, time.Minute)
}

func TestIssuedTokenPassesAuthGuard(t *testing.T) {
	userID, token := signedToken(t, models.RoleUser)

	r := gin.New()
	r.GET("/me", userGuard(), func(c *gin.Context) {
		id, _ := middleware.UserID(c)
		c.JSON(http.StatusOK, gin.H{"userId": id.Hex(), "role": middleware.Role(c)})
	})

	w := perform(r, http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, userID.Hex(), body["userId"])
	assert.Equal(t, models.RoleUser, body["role"])
}

func TestExpiredTokenRejected(t *testing.T) {
	user := models.User{ID: primitive.NewObjectID(), Role: models.RoleUser}
	raw, err := issueAccessToken(user, AuthSettings{JWTSecret: testSecret, AccessTTL: -time.Minute})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", userGuard(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodGet, "/me", raw, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshTokensAreHashed(t *testing.T) {
	plain, err := generateRefreshString()
	require.NoError(t, err)
	assert.Len(t, plain, 64)

	hashed := hashToken(plain)
	assert.NotEqual(t, plain, hashed)
	assert.Equal(t, hashed, hashToken(plain))
}
