// Package catalog provides read-only product lookup used to price carts and
// orders.
package catalog

import (
	"storefront/internal/models"
)

// Reader looks up a product by id. A missing product is not an error.
type Reader interface {
	Product(id string) (models.Product, bool)
}

// Snapshot is an in-memory Reader over a fixed product list.
type Snapshot map[string]models.Product

func NewSnapshot(products []models.Product) Snapshot {
	s := make(Snapshot, len(products))
	for _, p := range products {
		if p.IsDeleted {
			continue
		}
		s[p.ID.Hex()] = p
	}
	return s
}

func (s Snapshot) Product(id string) (models.Product, bool) {
	p, ok := s[id]
	return p, ok
}
