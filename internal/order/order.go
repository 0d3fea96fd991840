// Package order turns a cart into priced order lines and checks that an order
// can be submitted.
package order

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"storefront/internal/apperrors"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// Build snapshots the cart into order lines at current catalog prices. Lines
// whose product is not in the catalog are dropped. Lines are ordered by
// product id then size.
func Build(c cart.Cart, products catalog.Reader) []models.OrderLine {
	lines := make([]models.OrderLine, 0, len(c))
	for _, line := range c.Lines() {
		product, ok := products.Product(line.ProductID)
		if !ok {
			continue
		}
		lines = append(lines, models.OrderLine{
			ProductID: line.ProductID,
			Name:      product.Name,
			Price:     product.Price,
			Size:      line.Size,
			Quantity:  line.Quantity,
		})
	}
	return lines
}

// Validate fails when there is nothing to order or a required address field
// is blank. Field formats are not checked.
func Validate(lines []models.OrderLine, address models.Address) error {
	if len(lines) == 0 {
		return apperrors.Validation("cart empty")
	}

	trimmed := TrimAddress(address)
	if err := validate.Struct(trimmed); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fe.Field())
		}
		return apperrors.MissingFields(fields...)
	}
	return nil
}

func TrimAddress(a models.Address) models.Address {
	return models.Address{
		FirstName: strings.TrimSpace(a.FirstName),
		LastName:  strings.TrimSpace(a.LastName),
		Email:     strings.TrimSpace(a.Email),
		Street:    strings.TrimSpace(a.Street),
		City:      strings.TrimSpace(a.City),
		State:     strings.TrimSpace(a.State),
		Zip:       strings.TrimSpace(a.Zip),
		Country:   strings.TrimSpace(a.Country),
		Phone:     strings.TrimSpace(a.Phone),
	}
}

// Subtotal sums price × quantity over the lines.
func Subtotal(lines []models.OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(decimal.NewFromFloat(line.Price).Mul(decimal.NewFromInt(line.Quantity)))
	}
	return total
}

// Total is the amount charged: the lines plus the flat delivery fee.
func Total(lines []models.OrderLine, deliveryFee decimal.Decimal) decimal.Decimal {
	return Subtotal(lines).Add(deliveryFee)
}

// MinorUnits converts an amount to integer cents/paise.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
