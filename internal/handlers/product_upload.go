package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"storefront/internal/apperrors"
)

const (
	maxImageSize   = 5 << 20
	maxImageFields = 4
	uploadsSubdir  = "uploads"
)

var allowedImageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

type MultipartProductInput struct {
	Name        string
	Description string
	Price       float64
	Category    string
	SubCategory string
	Sizes       []string
	Bestseller  bool
	ImagePaths  []string
}

// parseMultipartProductRequest reads the add-product form and stores the
// image1..image4 files under root/uploads. Files already saved are removed
// when a later field fails to parse.
func parseMultipartProductRequest(c *gin.Context, root string) (input MultipartProductInput, err error) {
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		return MultipartProductInput{}, apperrors.Validation("invalid multipart form")
	}

	defer func() {
		if err != nil {
			for _, p := range input.ImagePaths {
				_ = safeDeleteUpload(root, p)
			}
			input.ImagePaths = nil
		}
	}()

	input.Name = strings.TrimSpace(c.PostForm("name"))
	input.Description = strings.TrimSpace(c.PostForm("description"))
	input.Category = strings.TrimSpace(c.PostForm("category"))
	input.SubCategory = strings.TrimSpace(c.PostForm("subCategory"))

	var missing []string
	if input.Name == "" {
		missing = append(missing, "name")
	}
	if input.Category == "" {
		missing = append(missing, "category")
	}

	priceValue := strings.TrimSpace(c.PostForm("price"))
	if priceValue == "" {
		missing = append(missing, "price")
	}
	if len(missing) > 0 {
		return input, apperrors.MissingFields(missing...)
	}

	price, err := strconv.ParseFloat(priceValue, 64)
	if err != nil || price < 0 {
		return input, apperrors.Validation("price must be a non-negative number")
	}
	input.Price = price

	if value := strings.TrimSpace(c.PostForm("sizes")); value != "" {
		if err := json.Unmarshal([]byte(value), &input.Sizes); err != nil {
			return input, apperrors.Validation("sizes must be a JSON array of strings")
		}
	}

	if value, ok := c.GetPostForm("bestseller"); ok && strings.TrimSpace(value) != "" {
		parsed, err := parseBoolValue(value)
		if err != nil {
			return input, apperrors.Validation("bestseller must be a boolean")
		}
		input.Bestseller = parsed
	}

	for i := 1; i <= maxImageFields; i++ {
		file, err := c.FormFile(fmt.Sprintf("image%d", i))
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				continue
			}
			return input, err
		}
		imagePath, err := saveImage(root, file)
		if err != nil {
			return input, err
		}
		input.ImagePaths = append(input.ImagePaths, imagePath)
	}

	return input, nil
}

// saveImage writes the upload to root/uploads and returns the path relative
// to root, in slash form.
func saveImage(root string, file *multipart.FileHeader) (string, error) {
	extension := strings.ToLower(filepath.Ext(file.Filename))
	if extension == "" {
		return "", apperrors.Validation("image file extension is required")
	}
	if _, ok := allowedImageExtensions[extension]; !ok {
		return "", apperrors.Validation(fmt.Sprintf("unsupported image type: %s", extension))
	}
	if file.Size > maxImageSize {
		return "", apperrors.Validation("image file too large (max 5MB)")
	}

	dir := filepath.Join(root, uploadsSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	filename := uuid.NewString() + extension
	out, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return "", err
	}
	defer out.Close()

	in, err := file.Open()
	if err != nil {
		return "", err
	}
	defer in.Close()

	if _, err := io.Copy(out, in); err != nil {
		return "", err
	}

	return uploadsSubdir + "/" + filename, nil
}

func parseBoolValue(value string) (bool, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "on" {
		return true, nil
	}
	return strconv.ParseBool(value)
}
