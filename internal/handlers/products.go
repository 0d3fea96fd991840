package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/apperrors"
	"storefront/internal/catalog"
	"storefront/internal/models"
)

// ProductStore is the product persistence the handlers need.
type ProductStore interface {
	List(ctx context.Context) ([]models.Product, error)
	Get(ctx context.Context, id string) (models.Product, error)
	FindByIDs(ctx context.Context, ids []string) (catalog.Snapshot, error)
	Create(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id string) error
}

type productIDRequest struct {
	ProductID string `json:"productId"`
	ID        string `json:"id"`
}

func (r productIDRequest) value() string {
	if id := strings.TrimSpace(r.ProductID); id != "" {
		return id
	}
	return strings.TrimSpace(r.ID)
}

func ListProducts(products ProductStore, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("product")
	return func(c *gin.Context) {
		const route = "GET /api/product/list"
		defer handlePanic(c, logger, route)

		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := products.List(ctx)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "products": list})
	}
}

func SingleProduct(products ProductStore, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("product")
	return func(c *gin.Context) {
		const route = "POST /api/product/single"
		defer handlePanic(c, logger, route)

		var req productIDRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, logger, route, apperrors.Validation("invalid body"))
			return
		}
		id := req.value()
		if id == "" {
			respondWithError(c, logger, route, apperrors.MissingFields("productId"))
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		product, err := products.Get(ctx, id)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "product": product})
	}
}

// AddProduct stores a product from a multipart form. Images land under
// uploadRoot/uploads and are removed again if the insert fails.
func AddProduct(products ProductStore, uploadRoot string, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("product")
	return func(c *gin.Context) {
		const route = "POST /api/product/add"
		defer handlePanic(c, logger, route)

		input, err := parseMultipartProductRequest(c, uploadRoot)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		product := models.Product{
			Name:        input.Name,
			Description: input.Description,
			Price:       input.Price,
			Images:      models.StringList(input.ImagePaths),
			Category:    input.Category,
			SubCategory: input.SubCategory,
			Sizes:       models.StringList(input.Sizes),
			Bestseller:  input.Bestseller,
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		if err := products.Create(ctx, &product); err != nil {
			for _, p := range input.ImagePaths {
				if delErr := safeDeleteUpload(uploadRoot, p); delErr != nil {
					logger.Warn("failed to remove orphaned upload", zap.String("path", p), zap.Error(delErr))
				}
			}
			respondWithError(c, logger, route, err)
			return
		}

		logger.Info("product added", zap.String("productId", product.ID.Hex()), zap.Int("images", len(input.ImagePaths)))
		c.JSON(http.StatusCreated, gin.H{"success": true, "message": "product added", "product": product})
	}
}

func RemoveProduct(products ProductStore, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("product")
	return func(c *gin.Context) {
		const route = "POST /api/product/remove"
		defer handlePanic(c, logger, route)

		var req productIDRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, logger, route, apperrors.Validation("invalid body"))
			return
		}
		id := req.value()
		if id == "" {
			respondWithError(c, logger, route, apperrors.MissingFields("id"))
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		if err := products.Delete(ctx, id); err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		logger.Info("product removed", zap.String("productId", id))
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "product removed"})
	}
}
