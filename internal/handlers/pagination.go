package handlers

import (
	"strconv"

	"storefront/internal/apperrors"
)

// parsePaginationParams returns page and limit; a zero limit means no
// pagination was requested.
func parsePaginationParams(pageStr, limitStr string) (int64, int64, error) {
	page := int64(1)
	limit := int64(0)

	if pageStr != "" {
		p, err := strconv.ParseInt(pageStr, 10, 64)
		if err != nil || p < 1 {
			return 0, 0, apperrors.Validation("invalid page")
		}
		page = p
		limit = 20
	}

	if limitStr != "" {
		l, err := strconv.ParseInt(limitStr, 10, 64)
		if err != nil || l < 1 || l > 100 {
			return 0, 0, apperrors.Validation("invalid limit")
		}
		limit = l
	}

	return page, limit, nil
}
