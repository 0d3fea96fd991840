package payment

import (
	"context"

	"storefront/internal/models"
)

// CashOnDelivery needs no payment collection; orders are confirmed at
// placement.
type CashOnDelivery struct{}

func (CashOnDelivery) Kind() models.PaymentMethod { return models.PaymentCOD }

func (CashOnDelivery) CreateIntent(context.Context, models.Order, IntentOptions) (Intent, error) {
	return Intent{ConfirmNow: true}, nil
}

func (CashOnDelivery) Resume(models.Order) Intent { return Intent{} }

func (CashOnDelivery) Verify(context.Context, models.Order, Proof) (Verdict, error) {
	return Verdict{Confirmed: true}, nil
}
