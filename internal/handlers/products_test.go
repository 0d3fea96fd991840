package handlers

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/models"
)

func productRouter(products ProductStore, root string) *gin.Engine {
	r := gin.New()
	g := r.Group("/api/product")
	g.GET("/list", ListProducts(products, zap.NewNop()))
	g.POST("/single", SingleProduct(products, zap.NewNop()))
	g.POST("/add", adminGuard(), AddProduct(products, root, zap.NewNop()))
	g.POST("/remove", adminGuard(), RemoveProduct(products, zap.NewNop()))
	return r
}

func productForm(t *testing.T, fields map[string]string, images map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	for field, filename := range images {
		part, err := writer.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write([]byte("fake image bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func postForm(r *gin.Engine, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/product/add", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("token", token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func uploadedFiles(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(root, uploadsSubdir))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestListAndSingleProduct(t *testing.T) {
	shirt := models.Product{ID: primitive.NewObjectID(), Name: "Shirt", Price: 20}
	r := productRouter(newFakeProducts(shirt), t.TempDir())

	w := perform(r, http.MethodGet, "/api/product/list", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["products"], 1)

	w = perform(r, http.MethodPost, "/api/product/single", "", gin.H{"productId": shirt.ID.Hex()})
	require.Equal(t, http.StatusOK, w.Code)
	product := decode(t, w)["product"].(map[string]interface{})
	assert.Equal(t, "Shirt", product["name"])

	w = perform(r, http.MethodPost, "/api/product/single", "", gin.H{"productId": primitive.NewObjectID().Hex()})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = perform(r, http.MethodPost, "/api/product/single", "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddProductStoresImagesAndFields(t *testing.T) {
	root := t.TempDir()
	products := newFakeProducts()
	r := productRouter(products, root)
	_, token := signedToken(t, "admin")

	body, contentType := productForm(t, map[string]string{
		"name":        "Linen Shirt",
		"description": "light",
		"price":       "24.5",
		"category":    "Men",
		"subCategory": "Topwear",
		"sizes":       `["S","M"]`,
		"bestseller":  "true",
	}, map[string]string{"image1": "front.png", "image3": "back.JPG"})

	w := postForm(r, token, body, contentType)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Len(t, products.created, 1)
	created := products.created[0]
	assert.Equal(t, "Linen Shirt", created.Name)
	assert.Equal(t, 24.5, created.Price)
	assert.Equal(t, models.StringList{"S", "M"}, created.Sizes)
	assert.True(t, created.Bestseller)
	require.Len(t, created.Images, 2)
	for _, p := range created.Images {
		_, err := os.Stat(filepath.Join(root, filepath.FromSlash(p)))
		assert.NoError(t, err)
	}
}

func TestAddProductRequiresAdmin(t *testing.T) {
	r := productRouter(newFakeProducts(), t.TempDir())
	_, token := signedToken(t, "user")

	body, contentType := productForm(t, map[string]string{"name": "x", "price": "1", "category": "Men"}, nil)
	w := postForm(r, token, body, contentType)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAddProductValidation(t *testing.T) {
	root := t.TempDir()
	r := productRouter(newFakeProducts(), root)
	_, token := signedToken(t, "admin")

	body, contentType := productForm(t, map[string]string{"name": "Shirt"}, nil)
	w := postForm(r, token, body, contentType)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["message"], "category")

	body, contentType = productForm(t, map[string]string{"name": "Shirt", "price": "1", "category": "Men"},
		map[string]string{"image1": "virus.exe"})
	w = postForm(r, token, body, contentType)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, contentType = productForm(t, map[string]string{"name": "Shirt", "price": "1", "category": "Men", "sizes": "S,M"},
		map[string]string{"image1": "front.png"})
	w = postForm(r, token, body, contentType)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, uploadedFiles(t, root))
}

func TestAddProductRemovesUploadsWhenInsertFails(t *testing.T) {
	root := t.TempDir()
	products := newFakeProducts()
	products.createErr = errors.New("write failed")
	r := productRouter(products, root)
	_, token := signedToken(t, "admin")

	body, contentType := productForm(t, map[string]string{"name": "Shirt", "price": "1", "category": "Men"},
		map[string]string{"image1": "front.png", "image2": "back.png"})
	w := postForm(r, token, body, contentType)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, uploadedFiles(t, root))
}

func TestRemoveProduct(t *testing.T) {
	shirt := models.Product{ID: primitive.NewObjectID(), Name: "Shirt"}
	products := newFakeProducts(shirt)
	r := productRouter(products, t.TempDir())
	_, token := signedToken(t, "admin")

	w := perform(r, http.MethodPost, "/api/product/remove", token, gin.H{"id": shirt.ID.Hex()})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{shirt.ID.Hex()}, products.deleted)

	w = perform(r, http.MethodPost, "/api/product/remove", token, gin.H{"id": shirt.ID.Hex()})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSafeDeleteUploadStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(root, "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	assert.Error(t, safeDeleteUpload(root, "secret.txt"))
	assert.Error(t, safeDeleteUpload(root, "uploads/../secret.txt"))
	_, err := os.Stat(outside)
	assert.NoError(t, err)

	assert.NoError(t, safeDeleteUpload(root, "uploads/missing.png"))
	assert.NoError(t, safeDeleteUpload(root, ""))
}
