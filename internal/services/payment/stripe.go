package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"campusmarket/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/paymentintent"
)

type intentGetter func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)

// StripeVerifier confirms payment by retrieving the PaymentIntent named by the
// reference and checking it succeeded for the transaction's amount.
type StripeVerifier struct {
	get      intentGetter
	currency string
}

func NewStripeVerifier(secretKey, currency string) *StripeVerifier {
	client := &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey}
	return &StripeVerifier{get: client.Get, currency: strings.ToLower(currency)}
}

func (v *StripeVerifier) Verify(ctx context.Context, tx *models.Transaction, reference string, _ bool) (Confirmation, error) {
	if strings.TrimSpace(reference) == "" {
		return Confirmation{}, errors.New("stripe payment intent id is required")
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := v.get(reference, params)
	if err != nil {
		return Confirmation{}, fmt.Errorf("retrieve payment intent: %w", err)
	}

	received := decimal.New(pi.AmountReceived, -2)
	conf := Confirmation{
		Reference: pi.ID,
		Amount:    received,
		Currency:  string(pi.Currency),
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return conf, nil
	}
	if v.currency != "" && !strings.EqualFold(string(pi.Currency), v.currency) {
		return conf, fmt.Errorf("payment intent currency %s does not match %s", pi.Currency, v.currency)
	}
	if !received.Equal(tx.Amount) {
		return conf, fmt.Errorf("payment intent received %s, transaction amount is %s", received, tx.Amount)
	}
	conf.Confirmed = true
	return conf, nil
}
