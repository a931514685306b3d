package payflow

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"sacco/internal/mpesa"
)

// Category is the purpose of a payment. Each category carries its own
// amount policy.
type Category string

const (
	CategoryRegistration Category = "REGISTRATION"
	CategoryShares       Category = "SHARES"
	CategoryWelfare      Category = "WELFARE"
)

// Fixed amounts in KSH.
var (
	RegistrationFee = decimal.NewFromInt(1000)
	WelfareAmount   = decimal.NewFromInt(300)
	ShareUnitValue  = decimal.NewFromInt(1)
)

const (
	MinShares = 1
	MaxShares = 50
)

func ValidCategory(c Category) bool {
	switch c {
	case CategoryRegistration, CategoryShares, CategoryWelfare:
		return true
	}
	return false
}

// AmountForShares computes the purchase price for a share count.
func AmountForShares(count int) decimal.Decimal {
	return ShareUnitValue.Mul(decimal.NewFromInt(int64(count)))
}

// Request describes one payment attempt as submitted from the input step.
// Immutable once submitted.
type Request struct {
	Phone    string
	Amount   decimal.Decimal
	Category Category
}

// Validate normalizes nothing; it only checks that the request can be sent.
// Phone normalization happens in the Initiator so the stored request keeps
// what the member typed.
func (r Request) Validate() error {
	if !ValidCategory(r.Category) {
		return fmt.Errorf("unknown payment category %q", r.Category)
	}
	if !mpesa.ValidatePhoneNumber(r.Phone) {
		return fmt.Errorf("please enter a valid Safaricom number")
	}
	if r.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("amount must be positive")
	}
	switch r.Category {
	case CategoryRegistration:
		if !r.Amount.Equal(RegistrationFee) {
			return fmt.Errorf("registration fee is fixed at KSH %s", RegistrationFee)
		}
	case CategoryWelfare:
		if !r.Amount.Equal(WelfareAmount) {
			return fmt.Errorf("welfare contribution is fixed at KSH %s", WelfareAmount)
		}
	case CategoryShares:
		max := AmountForShares(MaxShares)
		if r.Amount.GreaterThan(max) {
			return fmt.Errorf("share purchase is limited to %d shares per transaction", MaxShares)
		}
	}
	return nil
}

// Handle holds the provider correlation identifiers for one payment attempt.
// It is owned by the flow that created it and discarded on any terminal
// state or reset.
type Handle struct {
	CheckoutRequestID string
	MerchantRequestID string
	TransactionID     string
}

// InitiationError marks a failure to start a payment. The member stays on
// the input step and may resubmit; nothing is retried automatically.
type InitiationError struct {
	Message string
}

func (e *InitiationError) Error() string {
	return e.Message
}

// Gateway is the provider boundary the flow depends on. *mpesa.Client
// satisfies it; tests substitute fakes.
type Gateway interface {
	STKPush(ctx context.Context, req mpesa.StkPushRequest) (mpesa.StkPushResponse, error)
	STKQuery(ctx context.Context, checkoutRequestID string) (mpesa.StkQueryResponse, error)
}
