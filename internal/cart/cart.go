// Package cart holds the per-session cart: a value type with pure
// transitions, the client-side Session that mirrors mutations to the server,
// and the server-side Service persisting carts on the user document.
package cart

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"storefront/internal/apperrors"
	"storefront/internal/catalog"
)

// Cart maps productID -> size -> quantity. Every stored quantity is positive
// and no empty inner or outer entry is kept. Transitions return a new Cart
// and never modify the receiver.
type Cart map[string]map[string]int64

type Line struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Quantity  int64  `json:"quantity"`
}

func New() Cart {
	return Cart{}
}

// FromMap copies a decoded nested map and drops anything that would violate
// the invariant.
func FromMap(raw map[string]map[string]int64) Cart {
	return Cart(raw).Pruned()
}

func (c Cart) clone() Cart {
	out := make(Cart, len(c))
	for productID, sizes := range c {
		inner := make(map[string]int64, len(sizes))
		for size, qty := range sizes {
			inner[size] = qty
		}
		out[productID] = inner
	}
	return out
}

// Pruned returns a copy without non-positive quantities and empty entries.
func (c Cart) Pruned() Cart {
	out := make(Cart, len(c))
	for productID, sizes := range c {
		if strings.TrimSpace(productID) == "" {
			continue
		}
		inner := make(map[string]int64, len(sizes))
		for size, qty := range sizes {
			if qty > 0 && strings.TrimSpace(size) != "" {
				inner[size] = qty
			}
		}
		if len(inner) > 0 {
			out[productID] = inner
		}
	}
	return out
}

// WithAdd increments the (productID, size) line by one.
func (c Cart) WithAdd(productID, size string) (Cart, error) {
	if err := validateKey(productID, size); err != nil {
		return c, err
	}
	out := c.clone()
	if out[productID] == nil {
		out[productID] = map[string]int64{}
	}
	out[productID][size]++
	return out, nil
}

// WithSetQuantity sets an absolute quantity; quantity <= 0 removes the line.
func (c Cart) WithSetQuantity(productID, size string, quantity int64) (Cart, error) {
	if err := validateKey(productID, size); err != nil {
		return c, err
	}
	out := c.clone()
	if quantity <= 0 {
		delete(out[productID], size)
		if len(out[productID]) == 0 {
			delete(out, productID)
		}
		return out, nil
	}
	if out[productID] == nil {
		out[productID] = map[string]int64{}
	}
	out[productID][size] = quantity
	return out, nil
}

// Quantity returns the stored quantity of a line, 0 when absent.
func (c Cart) Quantity(productID, size string) int64 {
	return c[productID][size]
}

// Count sums all positive quantities.
func (c Cart) Count() int64 {
	var total int64
	for _, sizes := range c {
		for _, qty := range sizes {
			if qty > 0 {
				total += qty
			}
		}
	}
	return total
}

// Amount prices the cart at current catalog prices. Lines whose product is
// no longer in the catalog are skipped.
func (c Cart) Amount(products catalog.Reader) decimal.Decimal {
	total := decimal.Zero
	for productID, sizes := range c {
		product, ok := products.Product(productID)
		if !ok {
			continue
		}
		price := decimal.NewFromFloat(product.Price)
		for _, qty := range sizes {
			if qty > 0 {
				total = total.Add(price.Mul(decimal.NewFromInt(qty)))
			}
		}
	}
	return total
}

// Lines lists the cart ordered by product id then size.
func (c Cart) Lines() []Line {
	lines := make([]Line, 0, len(c))
	for productID, sizes := range c {
		for size, qty := range sizes {
			if qty > 0 {
				lines = append(lines, Line{ProductID: productID, Size: size, Quantity: qty})
			}
		}
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].ProductID != lines[j].ProductID {
			return lines[i].ProductID < lines[j].ProductID
		}
		return lines[i].Size < lines[j].Size
	})
	return lines
}

func (c Cart) IsEmpty() bool {
	return len(c.Pruned()) == 0
}

func validateKey(productID, size string) error {
	if strings.TrimSpace(productID) == "" {
		return apperrors.Validation("product is required")
	}
	if strings.TrimSpace(size) == "" {
		return apperrors.Validation("select product size")
	}
	return nil
}
